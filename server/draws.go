package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"kuji/models"
	"kuji/service"
)

type drawRequest struct {
	PrizeID    uuid.UUID `json:"prize_id" binding:"required"`
	ViewerName string    `json:"viewer_name"`
}

type modalRequest struct {
	Open    bool       `json:"open"`
	PrizeID *uuid.UUID `json:"prize_id"`
}

// ownedBoard checks the caller owns the board in the path
func (s *Server) ownedBoard(c *gin.Context) (uuid.UUID, bool) {
	boardID, ok := pathUUID(c, "id")
	if !ok {
		return uuid.Nil, false
	}
	if _, err := s.deps.Boards.Get(c.Request.Context(), sellerID(c), boardID); err != nil {
		respondError(c, err)
		return uuid.Nil, false
	}
	return boardID, true
}

func (s *Server) listDraws(c *gin.Context) {
	boardID, ok := s.ownedBoard(c)
	if !ok {
		return
	}

	limit := s.deps.RecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(c, service.NewValidationError("limit must be a positive number"))
			return
		}
		limit = n
	}

	draws, err := s.deps.Query.RecentDraws(c.Request.Context(), boardID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, draws)
}

func (s *Server) commitDraw(c *gin.Context) {
	boardID, ok := s.ownedBoard(c)
	if !ok {
		return
	}
	var req drawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	ctx := c.Request.Context()
	if s.deps.Limiter != nil {
		if err := s.deps.Limiter.Allow(ctx, boardID); err != nil {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": service.UserMessage(err)})
			return
		}
	}

	event, err := s.deps.Ledger.CommitDraw(ctx, boardID, req.PrizeID, req.ViewerName)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

func (s *Server) setModal(c *gin.Context) {
	boardID, ok := s.ownedBoard(c)
	if !ok {
		return
	}
	var req modalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	ctx := c.Request.Context()
	var (
		state *models.OverlayState
		err   error
	)
	if req.Open {
		state, err = s.deps.Overlay.OpenModal(ctx, boardID, req.PrizeID)
	} else {
		state, err = s.deps.Overlay.CloseModal(ctx, boardID)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) hideResult(c *gin.Context) {
	boardID, ok := s.ownedBoard(c)
	if !ok {
		return
	}

	state, err := s.deps.Overlay.HideLastResult(c.Request.Context(), boardID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}
