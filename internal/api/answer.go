package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/tuvan0/tuvan/internal/log"
	"github.com/tuvan0/tuvan/internal/rag"
)

// maxRequestBytes bounds the answer request body.
const maxRequestBytes = 64 * 1024

// answerRequest is the JSON body of both answer endpoints.
type answerRequest struct {
	Question   string `json:"question"`
	UserID     string `json:"user_id"`
	Collection string `json:"collection"`
	Adaptive   bool   `json:"adaptive"`
}

// sourceView is one evidence document in an answer response.
type sourceView struct {
	Title   string  `json:"title,omitempty"`
	Content string  `json:"content"`
	Source  string  `json:"source,omitempty"`
	Score   float64 `json:"score,omitempty"`
	Origin  string  `json:"origin,omitempty"`
}

// answerResponse is the JSON body of POST /api/v1/answer.
type answerResponse struct {
	RequestID string       `json:"request_id"`
	Answer    string       `json:"answer"`
	Route     string       `json:"route"`
	Language  string       `json:"language"`
	Grounded  bool         `json:"grounded"`
	Attempts  int          `json:"attempts"`
	FellBack  bool         `json:"fell_back"`
	Failed    bool         `json:"failed"`
	Sources   []sourceView `json:"sources"`
}

type answerHandler struct {
	answerer Answerer
	logger   log.Logger
}

// decodeRequest parses and validates the shared request body.
func decodeRequest(w http.ResponseWriter, r *http.Request) (answerRequest, error) {
	var req answerRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, fmt.Errorf("invalid request body: %w", err)
	}
	if req.UserID == "" {
		req.UserID = uuid.New().String()
	}
	return req, nil
}

func toRAGRequest(req answerRequest) rag.Request {
	return rag.Request{
		Question:   req.Question,
		UserID:     req.UserID,
		Collection: req.Collection,
		Adaptive:   req.Adaptive,
	}
}

func toResponse(requestID string, res *rag.Result) answerResponse {
	resp := answerResponse{
		RequestID: requestID,
		Answer:    res.Answer,
		Route:     string(res.Route),
		Language:  res.Language,
		Grounded:  res.Grounded,
		Attempts:  res.Attempts,
		FellBack:  res.FellBack,
		Failed:    res.Failed,
		Sources:   []sourceView{},
	}
	for _, doc := range res.Sources {
		resp.Sources = append(resp.Sources, sourceView{
			Title:   doc.Title,
			Content: doc.Content,
			Source:  doc.Source,
			Score:   doc.Score,
			Origin:  doc.Metadata["origin"],
		})
	}
	return resp
}

// answer handles POST /api/v1/answer: one question, one JSON response.
func (h *answerHandler) answer(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), h.logger)
		return
	}

	requestID := requestIDFromContext(r.Context())
	res, err := h.answerer.Answer(r.Context(), toRAGRequest(req), nil)
	if err != nil {
		if errors.Is(err, rag.ErrEmptyQuestion) {
			writeError(w, http.StatusBadRequest, "empty_question", "question is required", h.logger)
			return
		}
		h.logger.Error("answer request failed", "request_id", requestID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(requestID, res), h.logger)
}

// SSE event types for answer streaming.
const (
	eventToken = "token" // one token of the final answer
	eventDone  = "done"  // full result summary
	eventError = "error" // request could not start or stream
)

type tokenPayload struct {
	Text string `json:"text"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// stream handles POST /api/v1/answer/stream over SSE. Tokens of the final
// answer arrive as "token" events; a "done" event carries the result
// summary.
func (h *answerHandler) stream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	req, err := decodeRequest(w, r)
	if err != nil {
		_ = writeEvent(w, flusher, eventError, errorPayload{
			Code:    "invalid_request",
			Message: "invalid request body",
		})
		return
	}

	requestID := requestIDFromContext(r.Context())
	h.logger.Debug("answer stream started", "request_id", requestID, "user_id", req.UserID)

	emit := func(token string) error {
		return writeEvent(w, flusher, eventToken, tokenPayload{Text: token})
	}

	res, err := h.answerer.Answer(r.Context(), toRAGRequest(req), emit)
	if err != nil {
		if errors.Is(err, rag.ErrEmptyQuestion) {
			_ = writeEvent(w, flusher, eventError, errorPayload{
				Code:    "empty_question",
				Message: "question is required",
			})
			return
		}
		if errors.Is(err, rag.ErrStreamAborted) {
			h.logger.Info("client disconnected mid-stream", "request_id", requestID)
			return
		}
		h.logger.Error("answer stream failed", "request_id", requestID, "error", err)
		_ = writeEvent(w, flusher, eventError, errorPayload{
			Code:    "internal_error",
			Message: "internal server error",
		})
		return
	}

	_ = writeEvent(w, flusher, eventDone, toResponse(requestID, res))
	h.logger.Debug("answer stream completed",
		"request_id", requestID, "route", res.Route, "attempts", res.Attempts)
}

// writeEvent writes one SSE event: "event: <type>\ndata: <json>\n\n".
func writeEvent[T any](w io.Writer, flusher http.Flusher, event string, data T) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	flusher.Flush()
	return nil
}
