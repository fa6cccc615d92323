package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kuji/models"
	"kuji/service"
)

type boardRequest struct {
	Title        string `json:"title" binding:"required"`
	Description  string `json:"description"`
	SoundEnabled bool   `json:"sound_enabled"`
}

func (r boardRequest) details() service.BoardDetails {
	return service.BoardDetails{Title: r.Title, Description: r.Description, SoundEnabled: r.SoundEnabled}
}

type prizesRequest struct {
	Prizes     []models.PrizeSpec `json:"prizes"`
	TotalDraws int                `json:"total_draws"`
}

type statusRequest struct {
	Status models.BoardStatus `json:"status" binding:"required"`
}

// ownerBoard exposes the overlay token, which only the owner may see
type ownerBoard struct {
	*models.Board
	OverlayToken string `json:"overlay_token"`
	OverlayPath  string `json:"overlay_path"`
}

func newOwnerBoard(b *models.Board) ownerBoard {
	return ownerBoard{
		Board:        b,
		OverlayToken: b.OverlayToken,
		OverlayPath:  "/o/" + b.ID.String() + "?token=" + b.OverlayToken,
	}
}

func (s *Server) createBoard(c *gin.Context) {
	var req boardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	board, err := s.deps.Boards.Create(c.Request.Context(), sellerID(c), req.details())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newOwnerBoard(board))
}

func (s *Server) listBoards(c *gin.Context) {
	boards, err := s.deps.Boards.List(c.Request.Context(), sellerID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]ownerBoard, len(boards))
	for i, b := range boards {
		response[i] = newOwnerBoard(b)
	}
	c.JSON(http.StatusOK, response)
}

func (s *Server) getBoard(c *gin.Context) {
	boardID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	board, err := s.deps.Boards.Get(ctx, sellerID(c), boardID)
	if err != nil {
		respondError(c, err)
		return
	}
	prizes, err := s.deps.Query.Prizes(ctx, boardID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"board": newOwnerBoard(board), "prizes": prizes})
}

func (s *Server) updateBoard(c *gin.Context) {
	boardID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req boardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	board, err := s.deps.Boards.UpdateDetails(c.Request.Context(), sellerID(c), boardID, req.details())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOwnerBoard(board))
}

func (s *Server) deleteBoard(c *gin.Context) {
	boardID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := s.deps.Boards.Delete(c.Request.Context(), sellerID(c), boardID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) replacePrizes(c *gin.Context) {
	boardID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req prizesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	prizes, err := s.deps.Boards.ReplacePrizes(c.Request.Context(), sellerID(c), boardID, req.Prizes, req.TotalDraws)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prizes)
}

func (s *Server) transitionStatus(c *gin.Context) {
	boardID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	board, err := s.deps.Boards.TransitionStatus(c.Request.Context(), sellerID(c), boardID, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOwnerBoard(board))
}

func (s *Server) rotateOverlayToken(c *gin.Context) {
	boardID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	board, err := s.deps.Boards.RotateOverlayToken(c.Request.Context(), sellerID(c), boardID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOwnerBoard(board))
}
