package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/SkinPipe/internal/analysis"
	"github.com/BTreeMap/SkinPipe/internal/flow"
	"github.com/BTreeMap/SkinPipe/internal/metrics"
	"github.com/BTreeMap/SkinPipe/internal/models"
	"github.com/BTreeMap/SkinPipe/internal/notify"
	"github.com/BTreeMap/SkinPipe/internal/quiz"
	"github.com/BTreeMap/SkinPipe/internal/recommend"
	"github.com/BTreeMap/SkinPipe/internal/store"
)

func (s *Server) questionsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(quiz.DefaultQuestions()))
}

func (s *Server) startSessionHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.startSessionHandler: processing request", "method", r.Method, "path", r.URL.Path)
	var req models.StartSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.startSessionHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	view, err := s.sessions.Start(r.Context(), req.Photo)
	if err != nil {
		writeError(w, "startSessionHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.Success(view))
}

func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	view, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, "getSessionHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(view))
}

func (s *Server) closeSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.sessions.Close(r.Context(), id); err != nil {
		writeError(w, "closeSessionHandler", err)
		return
	}
	slog.Info("Server.closeSessionHandler: session closed", "sessionID", id)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session closed", nil))
}

func (s *Server) analysisHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	view, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, "analysisHandler", err)
		return
	}
	if view.State != models.StatePhoto {
		writeError(w, "analysisHandler", flow.ErrInvalidTransition)
		return
	}
	// The step is checked again inside Apply once the analyzer returns.
	if !s.beginAnalysis(id) {
		slog.Warn("Server.analysisHandler: analysis already running", "sessionID", id)
		writeJSONResponse(w, http.StatusConflict, models.Error("Photo analysis already in progress"))
		return
	}
	defer s.endAnalysis(id)

	defer r.Body.Close()
	image, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxImageBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONResponse(w, http.StatusRequestEntityTooLarge, models.Error("Image too large"))
			return
		}
		slog.Warn("Server.analysisHandler: failed to read image", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Failed to read image"))
		return
	}

	result, err := s.analyzer.Analyze(r.Context(), image)
	if err != nil {
		metrics.Analyses.WithLabelValues("error").Inc()
		if errors.Is(err, analysis.ErrEmptyImage) {
			writeError(w, "analysisHandler", err)
			return
		}
		slog.Error("Server.analysisHandler: analyzer failed", "sessionID", id, "error", err)
		writeJSONResponse(w, http.StatusBadGateway, models.Error("Photo analysis failed"))
		return
	}
	if err := analysis.Validate(result); err != nil {
		metrics.Analyses.WithLabelValues("error").Inc()
		slog.Error("Server.analysisHandler: analyzer returned invalid result", "sessionID", id, "error", err)
		writeJSONResponse(w, http.StatusBadGateway, models.Error("Photo analysis failed"))
		return
	}
	metrics.Analyses.WithLabelValues(result.SkinType).Inc()

	view, err = s.sessions.Apply(r.Context(), id, func(c *flow.Controller) error {
		return c.CompleteAnalysis(result)
	})
	if err != nil {
		writeError(w, "analysisHandler", err)
		return
	}
	slog.Info("Server.analysisHandler: analysis attached", "sessionID", id, "skinType", result.SkinType, "conditions", len(result.DetectedConditions))
	writeSessionView(w, view)
}

func (s *Server) skipAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	view, err := s.sessions.Apply(r.Context(), r.PathValue("id"), func(c *flow.Controller) error {
		return c.SkipAnalysis()
	})
	if err != nil {
		writeError(w, "skipAnalysisHandler", err)
		return
	}
	writeSessionView(w, view)
}

func (s *Server) answerHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req models.AnswerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.answerHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	view, err := s.sessions.Apply(r.Context(), id, func(c *flow.Controller) error {
		_, err := c.SelectAnswer(req.QuestionID, req.Value)
		return err
	})
	if err != nil {
		writeError(w, "answerHandler", err)
		return
	}
	metrics.AnswersRecorded.Inc()
	slog.Debug("Server.answerHandler: answer recorded", "sessionID", id, "questionID", req.QuestionID, "state", view.State)
	writeSessionView(w, view)
}

func (s *Server) packageHandler(w http.ResponseWriter, r *http.Request) {
	var req models.PackageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	view, err := s.sessions.Apply(r.Context(), r.PathValue("id"), func(c *flow.Controller) error {
		key := req.ComboKey
		if key == "" && c.Recommendation() != nil {
			key = c.Recommendation().ComboKey
		}
		return c.SelectPackage(key)
	})
	if err != nil {
		writeError(w, "packageHandler", err)
		return
	}
	writeSessionView(w, view)
}

func (s *Server) backHandler(w http.ResponseWriter, r *http.Request) {
	view, err := s.sessions.Apply(r.Context(), r.PathValue("id"), func(c *flow.Controller) error {
		return c.Back()
	})
	if err != nil {
		writeError(w, "backHandler", err)
		return
	}
	writeSessionView(w, view)
}

// shareResult is returned by the share endpoint.
type shareResult struct {
	To       string `json:"to"`
	Queued   bool   `json:"queued"`
	OutboxID string `json:"outbox_id,omitempty"`
}

func (s *Server) shareHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req models.ShareRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	to, err := notify.CanonicalPhone(req.To)
	if err != nil {
		writeError(w, "shareHandler", err)
		return
	}
	view, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, "shareHandler", err)
		return
	}
	if view.Recommendation == nil {
		writeError(w, "shareHandler", flow.ErrInvalidTransition)
		return
	}

	outboxID, err := s.dispatcher.Send(r.Context(), notify.Message{
		Kind: store.OutboxKindShare,
		To:   to,
		Body: recommend.Summary(*view.Recommendation),
	})
	if err != nil {
		slog.Error("Server.shareHandler: send failed", "sessionID", id, "error", err)
		writeJSONResponse(w, http.StatusBadGateway, models.Error("Failed to send message"))
		return
	}
	slog.Info("Server.shareHandler: recommendation shared", "sessionID", id, "queued", s.dispatcher.Queued())
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Recommendation shared", shareResult{
		To:       to,
		Queued:   s.dispatcher.Queued(),
		OutboxID: outboxID,
	}))
}

// writeSessionView marks the response completed once the quiz is finished.
func writeSessionView(w http.ResponseWriter, view flow.View) {
	if view.Recommendation != nil && view.State == models.StateRecommendations {
		writeJSONResponse(w, http.StatusOK, models.Completed(view))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(view))
}

func (s *Server) resolveHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ResolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.catalog.Resolve(req.Answers)))
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := store.Stats(s.store)
	if err != nil {
		writeError(w, "statsHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(stats))
}

func (s *Server) timersHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(s.sessions.ActiveTimers()))
}
