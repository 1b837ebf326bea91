//-------------------------------------------------------------------------
//
// pgEdge Librarian Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/pgEdge/pgedge-librarian-server/internal/failure"
	"github.com/pgEdge/pgedge-librarian-server/internal/illustration"
	"github.com/pgEdge/pgedge-librarian-server/internal/observe"
	"github.com/pgEdge/pgedge-librarian-server/internal/pipeline"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// HealthResponse is the response for the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// ImageResponse is the response for the illustration endpoint.
type ImageResponse struct {
	OK         bool   `json:"ok"`
	Image      string `json:"image,omitempty"`
	PromptUsed string `json:"prompt_used,omitempty"`
	Size       string `json:"size,omitempty"`
	Model      string `json:"model,omitempty"`
	Attempt    int    `json:"attempt"`
	State      string `json:"state"`
	Note       string `json:"note,omitempty"`
	Message    string `json:"message,omitempty"`
}

// SpeechTokenResponse is the response for the speech token endpoint.
type SpeechTokenResponse struct {
	Token  string `json:"token"`
	Region string `json:"region"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// handleHealth handles the GET /health endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// handleChat handles the POST /chat endpoint.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req pipeline.ChatRequest
	if !s.decode(w, r, &req) {
		return
	}

	resp, err := s.service.Chat(r.Context(), req)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}

	s.respondJSON(w, http.StatusOK, resp)
}

// handleSearch handles the POST /search endpoint.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req pipeline.SearchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.TopK < 0 {
		s.respondError(w, http.StatusBadRequest, string(failure.InvalidRequest), "top_k must not be negative")
		return
	}

	resp, err := s.service.Search(r.Context(), req)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}

	s.respondJSON(w, http.StatusOK, resp)
}

// handleImage handles the POST /image endpoint. A cascade that ends blocked
// or failed is still a 200 with ok set to false.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	var req pipeline.IllustrateRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.service.Illustrate(r.Context(), req)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}

	if res.Err != nil {
		s.logger.Warn("illustration did not produce an image",
			zap.String("request_id", observe.RequestID(r.Context())),
			zap.String("state", string(res.State)),
			zap.Error(res.Err))
	}

	s.respondJSON(w, http.StatusOK, imageResponse(res))
}

func imageResponse(res *illustration.Result) ImageResponse {
	return ImageResponse{
		OK:         res.OK(),
		Image:      res.Image,
		PromptUsed: res.PromptUsed,
		Size:       res.Size,
		Model:      res.Model,
		Attempt:    res.Attempt,
		State:      string(res.State),
		Note:       res.Note,
		Message:    res.Message,
	}
}

// handleSpeechToken handles the GET and POST /speech/token endpoint.
func (s *Server) handleSpeechToken(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	tok, err := s.service.SpeechToken(r.Context())
	if errors.Is(err, pipeline.ErrSpeechDisabled) {
		s.respondError(w, http.StatusNotFound, "SPEECH_DISABLED", "speech is not enabled")
		return
	}
	if err != nil {
		s.logger.Error("speech token request failed",
			zap.String("request_id", observe.RequestID(r.Context())),
			zap.Error(err))
		s.respondError(w, http.StatusBadGateway, "SPEECH_UNAVAILABLE",
			"the speech service is temporarily unavailable")
		return
	}

	s.respondJSON(w, http.StatusOK, SpeechTokenResponse{Token: tok.Value, Region: tok.Region})
}

// decode reads a JSON request body into v, answering 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, string(failure.InvalidRequest),
			"invalid request body: "+err.Error())
		return false
	}
	return true
}

// statusFor maps a failure kind to an HTTP status. Illustration outcomes,
// blocked ones included, travel in the image response body with 200.
func statusFor(kind failure.Kind) int {
	switch kind {
	case failure.InvalidRequest, failure.ModerationBlocked:
		return http.StatusBadRequest
	case failure.EmbeddingUnavailable, failure.RetrievalFailed:
		return http.StatusServiceUnavailable
	case failure.GenerationFailed, failure.NoGenerationChoices, failure.ImageGenerationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondFailure sends the kind and its safe message. The cause is logged,
// never returned.
func (s *Server) respondFailure(w http.ResponseWriter, r *http.Request, err error) {
	kind := failure.KindOf(err)
	code := string(kind)
	if kind == "" {
		code = "INTERNAL_ERROR"
	}

	status := statusFor(kind)
	fields := []zap.Field{
		zap.String("request_id", observe.RequestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.String("code", code),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", fields...)
	} else {
		s.logger.Info("request rejected", fields...)
	}

	s.respondError(w, status, code, failure.UserMessage(kind))
}

// respondJSON sends a JSON response with RFC 8631 Link header for API discovery.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	// RFC 8631: Link header for API documentation discovery
	w.Header().Set("Link", `</v1/openapi.json>; rel="service-desc"`)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

// respondError sends an error response.
func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
