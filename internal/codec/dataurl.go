// Package codec provides conversion helpers shared by the provider
// adapters, chiefly data-URL handling for inline image payloads.
package codec

import (
	"fmt"
	"strings"
)

// ImageSource is a decoded data URL: a media type plus base64 payload.
type ImageSource struct {
	MediaType string
	Data      string
}

// ParseDataURL splits a `data:<mime>;base64,<payload>` string. The payload
// is returned still base64-encoded; adapters forward it without
// re-encoding.
func ParseDataURL(url string) (*ImageSource, error) {
	if !strings.HasPrefix(url, "data:") {
		return nil, fmt.Errorf("not a data URL")
	}
	content := url[len("data:"):]

	commaIdx := strings.Index(content, ",")
	if commaIdx == -1 {
		return nil, fmt.Errorf("invalid data URL: missing comma separator")
	}

	metadata := content[:commaIdx]
	data := content[commaIdx+1:]

	parts := strings.Split(metadata, ";")
	mediaType := parts[0]
	if mediaType == "" {
		mediaType = "image/png"
	}

	isBase64 := false
	for _, p := range parts[1:] {
		if p == "base64" {
			isBase64 = true
		}
	}
	if !isBase64 {
		return nil, fmt.Errorf("invalid data URL: payload is not base64")
	}

	return &ImageSource{MediaType: mediaType, Data: data}, nil
}

// BuildDataURL assembles a data URL from a media type and base64 payload.
func BuildDataURL(mediaType, base64Data string) string {
	return fmt.Sprintf("data:%s;base64,%s", mediaType, base64Data)
}

// MarkdownImage wraps a data URL (or any URL) as a Markdown image
// reference.
func MarkdownImage(alt, url string) string {
	return fmt.Sprintf("![%s](%s)", alt, url)
}

// VideoMarkup wraps a video URL as inline playable markup.
func VideoMarkup(url string) string {
	return fmt.Sprintf(`<video controls src="%s"></video>`, url)
}
