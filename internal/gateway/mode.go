package gateway

import (
	"strings"

	"github.com/winkai/studio-gateway/internal/domain"
)

// DecideMode picks the generation mode for a request. An explicit mode in
// the options always wins; otherwise the model name decides. The function
// is total: every input maps to exactly one mode.
func DecideMode(model string, opts *domain.GenerationOptions) domain.Mode {
	if opts != nil && opts.Mode != "" {
		return opts.Mode
	}

	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "imagen"),
		strings.Contains(m, "nano"),
		strings.Contains(m, "gemini-3-pro-image"):
		return domain.ModeImage
	case strings.Contains(m, "veo"):
		return domain.ModeVideo
	default:
		return domain.ModeChat
	}
}
