package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"leeai-backend/internal/models"
	"leeai-backend/internal/services"
)

const maxChatBodyBytes = 1 << 20

// Replies shown to clients. Error details stay in the server log.
const (
	replyInvalidBody     = "Error: Invalid request body."
	replyGenerationError = "Something went wrong: the assistant could not generate a reply."
	replyTimeout         = "Something went wrong: the assistant took too long to reply."
	replyBusy            = "Something went wrong: the assistant is busy, please try again."
	replyUnexpected      = "Something went wrong: an unexpected error occurred."
)

type chatReplier interface {
	Reply(ctx context.Context, message string) (services.Reply, error)
}

type exchangeRecorder interface {
	Submit(ex models.Exchange) bool
}

type ChatHandler struct {
	chat     chatReplier
	recorder exchangeRecorder
}

// NewChatHandler builds the chat handler. recorder may be nil when the
// exchange log is disabled.
func NewChatHandler(chat chatReplier, recorder exchangeRecorder) *ChatHandler {
	return &ChatHandler{
		chat:     chat,
		recorder: recorder,
	}
}

// Chat handles POST /chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	var req models.ChatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[%s] invalid chat body: %v", requestID, err)
		writeJSON(w, http.StatusBadRequest, models.ChatResponse{Reply: replyInvalidBody})
		return
	}

	status, reply := h.Respond(r.Context(), requestID, req.Message)
	writeJSON(w, status, models.ChatResponse{Reply: reply})
}

// Respond runs one message through the chat service and returns the HTTP
// status and the reply text to show. It never panics.
func (h *ChatHandler) Respond(ctx context.Context, requestID, message string) (status int, reply string) {
	start := time.Now()
	var route services.Route

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[%s] panic in chat: %v", requestID, rec)
			status, reply, route = http.StatusInternalServerError, replyUnexpected, ""
		}
		h.record(models.Exchange{
			RequestID:  requestID,
			Route:      string(route),
			Message:    message,
			Reply:      reply,
			Status:     status,
			DurationMS: time.Since(start).Milliseconds(),
		})
	}()

	result, err := h.chat.Reply(ctx, message)
	if err != nil {
		status, reply = errorReply(err)
		if status >= http.StatusInternalServerError {
			log.Printf("[%s] chat failed with %d: %v", requestID, status, err)
		}
		return status, reply
	}

	route = result.Route
	return http.StatusOK, result.Text
}

func (h *ChatHandler) record(ex models.Exchange) {
	if h.recorder == nil {
		return
	}
	ex.ID = uuid.New()
	ex.CreatedAt = time.Now().UTC()
	if !h.recorder.Submit(ex) {
		log.Printf("[%s] exchange log queue full, dropping exchange %s", ex.RequestID, ex.ID)
	}
}

// errorReply maps a chat service error to a status and a safe reply.
func errorReply(err error) (int, string) {
	var validationErr *services.ValidationError
	var busyErr *services.BusyError
	var genErr *services.GenerationError

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, "Error: " + validationErr.Message
	case errors.As(err, &busyErr):
		return http.StatusServiceUnavailable, replyBusy
	case errors.As(err, &genErr) && genErr.Timeout:
		return http.StatusInternalServerError, replyTimeout
	case errors.As(err, &genErr):
		return http.StatusInternalServerError, replyGenerationError
	default:
		return http.StatusInternalServerError, replyUnexpected
	}
}

// Shared helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
