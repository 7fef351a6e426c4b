package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/SkinPipe/internal/analysis"
	"github.com/BTreeMap/SkinPipe/internal/flow"
	"github.com/BTreeMap/SkinPipe/internal/metrics"
	"github.com/BTreeMap/SkinPipe/internal/models"
	"github.com/BTreeMap/SkinPipe/internal/notify"
	"github.com/BTreeMap/SkinPipe/internal/quiz"
	"github.com/BTreeMap/SkinPipe/internal/routine"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

// Pre-marshaled fallback responses to avoid runtime JSON encoding failures
var (
	fallbackErrorResponse []byte
)

// init validates that our fallback responses can be marshaled
func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal first so encoding errors are caught before headers are written
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// decodeJSON decodes a bounded JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	defer r.Body.Close()
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid JSON format: %w", err)
	}
	return nil
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, flow.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, flow.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, quiz.ErrInvalidOption),
		errors.Is(err, quiz.ErrQuestionMismatch),
		errors.Is(err, quiz.ErrNoCurrentQuestion),
		errors.Is(err, flow.ErrInvalidPackage),
		errors.Is(err, analysis.ErrEmptyImage),
		errors.Is(err, notify.ErrInvalidRecipient),
		errors.Is(err, routine.ErrEmptyOwner),
		errors.Is(err, routine.ErrUnknownStep),
		errors.Is(err, routine.ErrUnknownProduct),
		errors.Is(err, routine.ErrWrongStep),
		errors.Is(err, models.ErrInvalidClockTime):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err with the status statusFor picks and counts rejected events.
func writeError(w http.ResponseWriter, handler string, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusBadRequest:
		metrics.InvalidEvents.WithLabelValues("invalid_input").Inc()
		slog.Warn("Server."+handler+": rejected", "error", err)
	case http.StatusConflict:
		metrics.InvalidEvents.WithLabelValues("invalid_transition").Inc()
		slog.Warn("Server."+handler+": invalid transition", "error", err)
	case http.StatusNotFound:
		slog.Debug("Server."+handler+": not found", "error", err)
	default:
		slog.Error("Server."+handler+": failed", "error", err)
		writeJSONResponse(w, status, models.Error("Internal server error"))
		return
	}
	writeJSONResponse(w, status, models.Error(err.Error()))
}
