package google

import (
	"fmt"

	"github.com/winkai/studio-gateway/internal/codec"
	"github.com/winkai/studio-gateway/internal/domain"
)

// Request building and response rendering shared by the Generative
// Language and Vertex adapters.

// BuildGenerateRequest converts canonical messages to Google's multi-turn
// format. The assistant role is remapped to "model" (Google has no
// assistant role) and the first system message becomes systemInstruction.
// Data-URL images become inline parts.
func BuildGenerateRequest(msgs []domain.Message, opts *domain.GenerationOptions) (*GenerateContentRequest, error) {
	req := &GenerateContentRequest{}

	for _, m := range msgs {
		if m.Role == "system" {
			if req.SystemInstruction == nil {
				req.SystemInstruction = &Content{Parts: []Part{{Text: m.Content}}}
			} else {
				req.SystemInstruction.Parts = append(req.SystemInstruction.Parts, Part{Text: m.Content})
			}
			continue
		}

		role := m.Role
		if role == "assistant" {
			role = "model"
		}

		var parts []Part
		if m.Content != "" {
			parts = append(parts, Part{Text: m.Content})
		}
		for _, img := range m.Images {
			src, err := codec.ParseDataURL(img)
			if err != nil {
				return nil, domain.ErrConfig(fmt.Sprintf("invalid image data URL: %v", err))
			}
			parts = append(parts, Part{InlineData: &InlineData{MimeType: src.MediaType, Data: src.Data}})
		}
		if len(parts) == 0 {
			parts = []Part{{Text: ""}}
		}

		req.Contents = append(req.Contents, Content{Role: role, Parts: parts})
	}

	cfg := &GenerationConfig{}
	if opts.Temperature > 0 {
		cfg.Temperature = &opts.Temperature
	}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = opts.MaxTokens
	}
	if cfg.Temperature != nil || cfg.MaxOutputTokens > 0 {
		req.GenerationConfig = cfg
	}
	if opts.EnableSearch {
		req.Tools = []Tool{{GoogleSearch: &struct{}{}}}
	}

	return req, nil
}

// Prompt extracts the current turn's text: the content of the last
// message. Media generation is single-prompt; history is not replayed.
func Prompt(msgs []domain.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Content
}

// BuildImagenPredict builds the Imagen :predict request.
func BuildImagenPredict(prompt string, opts *domain.GenerationOptions) *PredictRequest {
	params := &PredictParams{SampleCount: 1}
	if opts.Image != nil {
		params.AspectRatio = opts.Image.AspectRatio
		params.Resolution = opts.Image.Resolution
	}
	return &PredictRequest{
		Instances:  []PredictInstance{{Prompt: prompt}},
		Parameters: params,
	}
}

// BuildVideoPredict builds the Veo long-running :predict request,
// including the optional reference image decoded from its data URL.
func BuildVideoPredict(prompt string, opts *domain.GenerationOptions) (*PredictRequest, error) {
	instance := PredictInstance{Prompt: prompt}
	params := &PredictParams{SampleCount: 1}

	if opts.Video != nil {
		params.AspectRatio = opts.Video.AspectRatio
		params.Resolution = opts.Video.Resolution
		params.DurationSeconds = opts.Video.DurationSecs
		if opts.Video.WithAudio {
			audio := true
			params.GenerateAudio = &audio
		}
		if opts.Video.ReferenceImage != "" {
			src, err := codec.ParseDataURL(opts.Video.ReferenceImage)
			if err != nil {
				return nil, domain.ErrConfig(fmt.Sprintf("invalid reference image: %v", err))
			}
			instance.Image = &InlineData{MimeType: src.MediaType, Data: src.Data}
		}
	}

	return &PredictRequest{
		Instances:  []PredictInstance{instance},
		Parameters: params,
	}, nil
}

// RenderPredictImage turns an Imagen response into displayable content: a
// Markdown image reference to a data URL, or a readable explanation when
// the vendor returned no image payload.
func RenderPredictImage(resp *PredictResponse) string {
	for _, p := range resp.Predictions {
		if p.BytesBase64Encoded != "" {
			mime := p.MimeType
			if mime == "" {
				mime = "image/png"
			}
			return codec.MarkdownImage("generated image", codec.BuildDataURL(mime, p.BytesBase64Encoded))
		}
	}
	for _, p := range resp.Predictions {
		if p.RAIFilteredReason != "" {
			return fmt.Sprintf("Image generation was filtered: %s", p.RAIFilteredReason)
		}
	}
	return "Image generation returned no image payload."
}

// RenderGeneratedImage turns a generateContent response into displayable
// content: the first inline image payload as a Markdown data URL, falling
// back to any text the model returned, then to the block reason.
func RenderGeneratedImage(resp *GenerateContentResponse) string {
	var text string
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				mime := part.InlineData.MimeType
				if mime == "" {
					mime = "image/png"
				}
				return codec.MarkdownImage("generated image", codec.BuildDataURL(mime, part.InlineData.Data))
			}
			if part.Text != "" {
				text += part.Text
			}
		}
	}
	if text != "" {
		return text
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return fmt.Sprintf("Image generation was blocked: %s", resp.PromptFeedback.BlockReason)
	}
	return "Image generation returned no image payload."
}

// RenderVideo turns a finished operation into playable markup referencing
// either a decoded data URL or a vendor-hosted URI. Unknown response
// shapes surface the raw operation so the caller still reaches a terminal
// state.
func RenderVideo(op *Operation, rawJSON string) string {
	if op.Error != nil {
		return fmt.Sprintf("Video generation failed: %s (code %d)", op.Error.Message, op.Error.Code)
	}
	if op.Response != nil {
		for _, v := range op.Response.Videos {
			if v.BytesBase64Encoded != "" {
				mime := v.MimeType
				if mime == "" {
					mime = "video/mp4"
				}
				return codec.VideoMarkup(codec.BuildDataURL(mime, v.BytesBase64Encoded))
			}
			if uri := firstNonEmpty(v.URI, v.GCSURI); uri != "" {
				return codec.VideoMarkup(uri)
			}
		}
		if gvr := op.Response.GenerateVideoResponse; gvr != nil {
			for _, s := range gvr.GeneratedSamples {
				if s.Video != nil && s.Video.URI != "" {
					return codec.VideoMarkup(s.Video.URI)
				}
			}
		}
	}
	return fmt.Sprintf("Video generation finished with an unrecognized response: %s", rawJSON)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
