// Package tokens estimates token counts with tiktoken. The gateway uses it
// to budget the probe's minimal live completion and to synthesize a usage
// event when a vendor stream finishes without reporting one.
package tokens

import (
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Estimator counts tokens for OpenAI-style models. Unknown models fall back
// to the o200k encoding; encoding failures fall back to a bytes/4 heuristic
// so estimation never errors.
type Estimator struct {
	mu         sync.RWMutex
	codecCache map[tokenizer.Encoding]tokenizer.Codec
}

// NewEstimator creates an estimator.
func NewEstimator() *Estimator {
	return &Estimator{
		codecCache: make(map[tokenizer.Encoding]tokenizer.Codec),
	}
}

func modelToEncoding(model string) tokenizer.Encoding {
	model = strings.ToLower(model)
	switch {
	case strings.HasPrefix(model, "gpt-4") && !strings.HasPrefix(model, "gpt-4o"),
		strings.HasPrefix(model, "gpt-3.5"),
		strings.HasPrefix(model, "text-embedding"):
		return tokenizer.Cl100kBase
	default:
		return tokenizer.O200kBase
	}
}

func (e *Estimator) getCodec(model string) (tokenizer.Codec, error) {
	if codec, err := tokenizer.ForModel(tokenizer.Model(strings.ToLower(model))); err == nil {
		return codec, nil
	}

	encoding := modelToEncoding(model)

	e.mu.RLock()
	if cached, ok := e.codecCache[encoding]; ok {
		e.mu.RUnlock()
		return cached, nil
	}
	e.mu.RUnlock()

	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.codecCache[encoding] = codec
	e.mu.Unlock()
	return codec, nil
}

// CountText returns the approximate token count of text under the given
// model's encoding.
func (e *Estimator) CountText(model, text string) int {
	if text == "" {
		return 0
	}
	codec, err := e.getCodec(model)
	if err != nil {
		return heuristic(text)
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return heuristic(text)
	}
	return len(ids)
}

// heuristic approximates one token per four bytes of text.
func heuristic(text string) int {
	n := (len(text) + 3) / 4
	if n == 0 {
		n = 1
	}
	return n
}
