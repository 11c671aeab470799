package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/winkai/studio-gateway/internal/domain"
	"github.com/winkai/studio-gateway/internal/gateway"
)

type handlers struct {
	gateway *gateway.Gateway
	logger  *slog.Logger
}

type chatRequest struct {
	Provider string                    `json:"provider"`
	Model    string                    `json:"model"`
	Messages []domain.Message          `json:"messages"`
	Options  *domain.GenerationOptions `json:"options,omitempty"`
	Config   *domain.ProviderConfig    `json:"config,omitempty"`
}

// wireEvent is the SSE frame payload. Err does not marshal from the domain
// event, so it is flattened to a string here.
type wireEvent struct {
	Type    domain.EventType `json:"type"`
	Content string           `json:"content,omitempty"`
	Usage   *domain.Usage    `json:"usage,omitempty"`
	Reason  string           `json:"reason,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// chatCompletions streams canonical events as SSE frames, ending with a
// [DONE] sentinel. Failures before the first frame are JSON errors;
// failures mid-stream become an error frame.
func (h *handlers) chatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrConfig("invalid request body: "+err.Error()))
		return
	}
	if req.Model == "" || len(req.Messages) == 0 {
		writeError(w, domain.ErrConfig("model and messages are required"))
		return
	}

	events, err := h.gateway.StreamChat(r.Context(),
		domain.ProviderID(req.Provider), req.Messages, req.Model, req.Config, req.Options)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	for ev := range events {
		frame := wireEvent{
			Type:    ev.Type,
			Content: ev.Content,
			Usage:   ev.Usage,
			Reason:  ev.Reason,
		}
		if ev.Err != nil {
			frame.Type = "error"
			frame.Error = ev.Err.Error()
		}

		payload, err := json.Marshal(frame)
		if err != nil {
			h.logger.Error("failed to marshal event", slog.String("error", err.Error()))
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		if flusher != nil {
			flusher.Flush()
		}

		select {
		case <-r.Context().Done():
			return
		default:
		}
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

func (h *handlers) listModels(w http.ResponseWriter, r *http.Request) {
	provider := domain.ProviderID(chi.URLParam(r, "provider"))
	models, err := h.gateway.ListModels(r.Context(), provider, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

func (h *handlers) probe(w http.ResponseWriter, r *http.Request) {
	provider := domain.ProviderID(chi.URLParam(r, "provider"))
	if !provider.Valid() {
		writeError(w, domain.ErrConfig("unknown provider: "+string(provider)))
		return
	}
	result := h.gateway.Probe(r.Context(), provider, nil)
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError maps the canonical error taxonomy onto HTTP statuses. The
// vendor's original status is reused when it is known.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	payload := map[string]string{"type": "internal", "message": err.Error()}

	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		payload["type"] = string(apiErr.Type)
		payload["message"] = apiErr.Message
		switch {
		case apiErr.StatusCode != 0:
			status = apiErr.StatusCode
		case apiErr.Type == domain.ErrorTypeConfig:
			status = http.StatusBadRequest
		case apiErr.Type == domain.ErrorTypeAuthentication,
			apiErr.Type == domain.ErrorTypeConsent:
			status = http.StatusUnauthorized
		case apiErr.Type == domain.ErrorTypePermission:
			status = http.StatusForbidden
		case apiErr.Type == domain.ErrorTypeNotFound:
			status = http.StatusNotFound
		case apiErr.Type == domain.ErrorTypeRateLimit:
			status = http.StatusTooManyRequests
		case apiErr.Type == domain.ErrorTypeNetwork,
			apiErr.Type == domain.ErrorTypeVendor:
			status = http.StatusBadGateway
		}
	}

	writeJSON(w, status, map[string]any{"error": payload})
}
