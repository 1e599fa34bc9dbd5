// Package server exposes the orchestrator over HTTP.
package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	contractx "github.com/pitchaya-w/coachflow/agent/contract"
	"github.com/pitchaya-w/coachflow/agent/orchestrator"
)

type Config struct {
	Addr string `envconfig:"ADDR" split_words:"true" default:":8080"`
}

type Server struct {
	echo *echo.Echo
	orch *orchestrator.Orchestrator
	addr string
}

func New(orch *orchestrator.Orchestrator, cfg Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, orch: orch, addr: cfg.Addr}

	e.GET("/healthz", s.health)
	v1 := e.Group("/v1")
	v1.POST("/chat", s.chat)
	v1.GET("/approvals/:run_id", s.pendingApproval)
	v1.POST("/approvals/:run_id", s.resolveApproval)
	v1.DELETE("/runs/:run_id", s.cancelRun)

	return s
}

func (s *Server) Start() error {
	log.Info().Str("addr", s.addr).Msg("http server listening")
	return s.echo.Start(s.addr)
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type chatRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

func (s *Server) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}

	outcome, err := s.orch.Start(c.Request().Context(), req.UserID, req.SessionID, req.Question)
	if err != nil {
		if errors.Is(err, contractx.ErrValidation) {
			return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		}
		if outcome.Kind == contractx.OutcomeFailed {
			// The run aborted but the outcome carries a usable degraded
			// answer; the chat surface stays conversational.
			return c.JSON(http.StatusOK, outcome)
		}
		log.Error().Err(err).Msg("chat request failed")
		return c.JSON(http.StatusInternalServerError, errorBody("internal error"))
	}

	if outcome.Kind == contractx.OutcomePendingApproval {
		return c.JSON(http.StatusAccepted, outcome)
	}
	return c.JSON(http.StatusOK, outcome)
}

type approvalRequest struct {
	Decision string `json:"decision"`
	Feedback string `json:"feedback"`
}

func (s *Server) resolveApproval(c echo.Context) error {
	runID := c.Param("run_id")
	var req approvalRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}

	decision := contractx.ApprovalDecision{
		Action:   contractx.DecisionAction(req.Decision),
		Feedback: req.Feedback,
	}
	outcome, err := s.orch.Resume(c.Request().Context(), runID, decision)
	if err != nil {
		switch {
		case errors.Is(err, contractx.ErrValidation):
			return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		case errors.Is(err, contractx.ErrUnknownRun):
			return c.JSON(http.StatusNotFound, errorBody(err.Error()))
		case errors.Is(err, contractx.ErrRunAlreadyResolved):
			return c.JSON(http.StatusConflict, errorBody(err.Error()))
		}
		if outcome.Kind == contractx.OutcomeFailed {
			return c.JSON(http.StatusOK, outcome)
		}
		log.Error().Err(err).Str("run_id", runID).Msg("resume failed")
		return c.JSON(http.StatusInternalServerError, errorBody("internal error"))
	}
	return c.JSON(http.StatusOK, outcome)
}

func (s *Server) pendingApproval(c echo.Context) error {
	runID := c.Param("run_id")
	req, err := s.orch.PendingApproval(c.Request().Context(), runID)
	if err != nil {
		if errors.Is(err, contractx.ErrUnknownRun) {
			return c.JSON(http.StatusNotFound, errorBody(err.Error()))
		}
		log.Error().Err(err).Str("run_id", runID).Msg("approval lookup failed")
		return c.JSON(http.StatusInternalServerError, errorBody("internal error"))
	}
	return c.JSON(http.StatusOK, req)
}

func (s *Server) cancelRun(c echo.Context) error {
	runID := c.Param("run_id")
	if err := s.orch.Cancel(c.Request().Context(), runID); err != nil {
		switch {
		case errors.Is(err, contractx.ErrValidation):
			return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		case errors.Is(err, contractx.ErrUnknownRun):
			return c.JSON(http.StatusNotFound, errorBody(err.Error()))
		case errors.Is(err, contractx.ErrRunAlreadyResolved):
			return c.JSON(http.StatusConflict, errorBody(err.Error()))
		}
		log.Error().Err(err).Str("run_id", runID).Msg("cancel failed")
		return c.JSON(http.StatusInternalServerError, errorBody("internal error"))
	}
	return c.NoContent(http.StatusNoContent)
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
