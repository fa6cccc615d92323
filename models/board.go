package models

import (
	"time"

	"github.com/google/uuid"
)

// BoardStatus represents the lifecycle state of a board
type BoardStatus string

const (
	BoardStatusDraft  BoardStatus = "draft"
	BoardStatusLive   BoardStatus = "live"
	BoardStatusPaused BoardStatus = "paused"
	BoardStatusClosed BoardStatus = "closed"
)

// Valid reports whether s is a known status
func (s BoardStatus) Valid() bool {
	switch s {
	case BoardStatusDraft, BoardStatusLive, BoardStatusPaused, BoardStatusClosed:
		return true
	}
	return false
}

// boardTransitions lists the statuses reachable from each status
var boardTransitions = map[BoardStatus][]BoardStatus{
	BoardStatusDraft:  {BoardStatusLive},
	BoardStatusLive:   {BoardStatusPaused, BoardStatusClosed},
	BoardStatusPaused: {BoardStatusLive, BoardStatusClosed},
	BoardStatusClosed: {BoardStatusDraft},
}

// CanTransitionTo reports whether the board may move from s to next
func (s BoardStatus) CanTransitionTo(next BoardStatus) bool {
	for _, allowed := range boardTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// BoardMode is advisory; draws are always operator-driven
type BoardMode string

const (
	BoardModeManual BoardMode = "manual"
	BoardModeRandom BoardMode = "random"
)

// Board is a seller's prize board
type Board struct {
	ID           uuid.UUID   `db:"id" json:"id"`
	SellerID     uuid.UUID   `db:"seller_id" json:"seller_id"`
	Title        string      `db:"title" json:"title"`
	Description  string      `db:"description" json:"description"`
	Status       BoardStatus `db:"status" json:"status"`
	Mode         BoardMode   `db:"mode" json:"mode"`
	OverlayToken string      `db:"overlay_token" json:"-"`
	SoundEnabled bool        `db:"sound_enabled" json:"sound_enabled"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

// OwnedBy reports whether sellerID owns the board
func (b *Board) OwnedBy(sellerID uuid.UUID) bool {
	return b.SellerID == sellerID
}
