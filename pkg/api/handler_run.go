package api

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/albarami/qnwis/pkg/models"
)

// submitRunRequest is the POST /api/v1/runs request body. RequestID is
// optional — when empty the server generates one so callers never have
// to coordinate an ID before submitting.
type submitRunRequest struct {
	RequestID    string               `json:"request_id,omitempty"`
	QuestionText string               `json:"question_text"`
	Intent       string               `json:"intent"`
	Params       map[string]any       `json:"params"`
	UserID       string               `json:"user_id,omitempty"`
	Depth        models.Depth         `json:"depth,omitempty"`
	FeatureFlags models.FeatureFlags  `json:"feature_flags,omitempty"`
}

type submitRunResponse struct {
	RequestID string `json:"request_id"`
}

// submitRunHandler starts a new pipeline run and returns immediately with
// its request_id; progress and the terminal result are only observable
// through the paired GET .../events WebSocket (spec §5's suspension-point
// list makes the run itself long-lived, so this endpoint never blocks on
// it).
func (s *Server) submitRunHandler(c *echo.Context) error {
	var req submitRunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.QuestionText == "" || req.Intent == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question_text and intent are required")
	}
	if req.RequestID == "" {
		req.RequestID = newRequestID()
	}

	task := models.Task{
		RequestID:    req.RequestID,
		QuestionText: req.QuestionText,
		Intent:       req.Intent,
		Params:       req.Params,
		UserID:       req.UserID,
		Depth:        req.Depth,
		FeatureFlags: req.FeatureFlags,
	}

	stream, handle := s.driver.Run(context.WithoutCancel(c.Request().Context()), task)
	go s.hub.Attach(task.RequestID, stream)
	go s.drainTerminal(task.RequestID, handle)

	return c.JSON(http.StatusAccepted, submitRunResponse{RequestID: task.RequestID})
}

// drainTerminal blocks until the run's terminal result resolves; the
// result itself is only consumed today via the WebSocket stream's final
// event, but holding this goroutine open keeps Handle.Result's "exactly
// once" contract exercised even when no client is attached at
// completion time (a disconnect-then-reconnect-later client would
// otherwise see the result discarded).
func (s *Server) drainTerminal(requestID string, handle interface {
	Result() (models.BriefingResult, *models.FailureReport)
}) {
	_, _ = handle.Result()
}

func (s *Server) cancelRunHandler(c *echo.Context) error {
	requestID := c.Param("id")
	s.driver.Cancel(requestID)
	return c.NoContent(http.StatusAccepted)
}
