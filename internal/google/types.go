package google

// Wire types for the Generative Language and Vertex prediction APIs. They
// are exported because the vertex adapter speaks the same shapes over a
// different host and auth scheme.

// Content is one turn in Google's conversation format. Roles are "user"
// and "model"; there is no assistant role.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is one piece of (possibly multimodal) content.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
	FileData   *FileData   `json:"fileData,omitempty"`
}

// InlineData carries base64 media inline.
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// FileData references vendor-hosted media by URI.
type FileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri"`
}

// GenerationConfig holds generation parameters.
type GenerationConfig struct {
	Temperature        *float64 `json:"temperature,omitempty"`
	MaxOutputTokens    int      `json:"maxOutputTokens,omitempty"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

// Tool enables a built-in vendor tool on the request.
type Tool struct {
	GoogleSearch *struct{} `json:"google_search,omitempty"`
}

// GenerateContentRequest is the body for :generateContent and
// :streamGenerateContent.
type GenerateContentRequest struct {
	Contents          []Content         `json:"contents"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
	Tools             []Tool            `json:"tools,omitempty"`
}

// GenerateContentResponse is the unary and per-frame streaming response.
type GenerateContentResponse struct {
	Candidates     []Candidate     `json:"candidates"`
	PromptFeedback *PromptFeedback `json:"promptFeedback,omitempty"`
	UsageMetadata  *UsageMetadata  `json:"usageMetadata,omitempty"`
}

type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type PromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// PredictRequest is the body for the Imagen :predict call.
type PredictRequest struct {
	Instances  []PredictInstance `json:"instances"`
	Parameters *PredictParams    `json:"parameters,omitempty"`
}

type PredictInstance struct {
	Prompt string      `json:"prompt"`
	Image  *InlineData `json:"image,omitempty"`
}

type PredictParams struct {
	SampleCount      int    `json:"sampleCount,omitempty"`
	AspectRatio      string `json:"aspectRatio,omitempty"`
	Resolution       string `json:"resolution,omitempty"`
	DurationSeconds  int    `json:"durationSeconds,omitempty"`
	GenerateAudio    *bool  `json:"generateAudio,omitempty"`
	PersonGeneration string `json:"personGeneration,omitempty"`
}

// PredictResponse is the unary Imagen response.
type PredictResponse struct {
	Predictions []Prediction `json:"predictions"`
}

type Prediction struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded,omitempty"`
	MimeType           string `json:"mimeType,omitempty"`
	RAIFilteredReason  string `json:"raiFilteredReason,omitempty"`
}

// Operation is a long-running video generation job.
type Operation struct {
	Name     string             `json:"name"`
	Done     bool               `json:"done"`
	Error    *OperationError    `json:"error,omitempty"`
	Response *OperationResponse `json:"response,omitempty"`
}

type OperationError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// OperationResponse covers the output shapes the video API has been seen
// to return; unknown shapes are surfaced raw by the adapter.
type OperationResponse struct {
	Videos                []GeneratedVideo       `json:"videos,omitempty"`
	GenerateVideoResponse *GenerateVideoResponse `json:"generateVideoResponse,omitempty"`
}

type GenerateVideoResponse struct {
	GeneratedSamples []GeneratedSample `json:"generatedSamples,omitempty"`
}

type GeneratedSample struct {
	Video *VideoRef `json:"video,omitempty"`
}

type VideoRef struct {
	URI string `json:"uri,omitempty"`
}

type GeneratedVideo struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded,omitempty"`
	MimeType           string `json:"mimeType,omitempty"`
	GCSURI             string `json:"gcsUri,omitempty"`
	URI                string `json:"uri,omitempty"`
}

// ModelsListResponse is the body of GET /models.
type ModelsListResponse struct {
	Models []ModelEntry `json:"models"`
}

type ModelEntry struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
}
