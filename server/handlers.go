package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbxark/leadagent/agent"
	"github.com/tbxark/leadagent/types"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type MessageRequest struct {
	Message string `json:"message" binding:"required"`
}

type SlotRequest struct {
	OfferID string `json:"offer_id"`
	Index   *int   `json:"index" binding:"required"`
}

type HistoryResponse struct {
	SessionID string       `json:"session_id"`
	Messages  []types.Turn `json:"messages"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) createSession(c *gin.Context) {
	session, err := s.service.InitSession(c.Request.Context(), uuid.NewString())
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (s *Server) initSession(c *gin.Context) {
	session, err := s.service.InitSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (s *Server) resetSession(c *gin.Context) {
	if err := s.service.ResetSession(c.Request.Context(), c.Param("id")); err != nil {
		s.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listMessages(c *gin.Context) {
	id := c.Param("id")
	turns, err := s.service.History(c.Request.Context(), id)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, HistoryResponse{SessionID: id, Messages: turns})
}

func (s *Server) sendMessage(c *gin.Context) {
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	result, err := s.service.ProcessTurn(c.Request.Context(), c.Param("id"), req.Message)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) selectSlot(c *gin.Context) {
	var req SlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	result, err := s.service.SelectSlot(c.Request.Context(), c.Param("id"), req.OfferID, *req.Index)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleError(c *gin.Context, err error) {
	status, resp := errorResponse(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "path", c.Request.URL.Path, "status", status, "error", err)
	}
	c.JSON(status, resp)
}

func errorResponse(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, agent.ErrSessionNotFound):
		return http.StatusNotFound, ErrorResponse{Error: err.Error()}
	case errors.Is(err, agent.ErrConversationClosed), errors.Is(err, agent.ErrSessionBusy):
		return http.StatusConflict, ErrorResponse{Error: err.Error()}
	case errors.Is(err, agent.ErrEmptyMessage):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error()}
	case errors.Is(err, agent.ErrBackend):
		return http.StatusBadGateway, ErrorResponse{Error: agent.ErrBackend.Error(), Message: agent.ApologyMessage}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrorResponse{Error: "request timed out", Message: agent.ApologyMessage}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal error", Message: agent.ApologyMessage}
	}
}
