package models

import (
	"time"

	"github.com/google/uuid"
)

// DrawEvent is an immutable record of one committed draw
type DrawEvent struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	BoardID    uuid.UUID  `db:"board_id" json:"board_id"`
	PrizeID    *uuid.UUID `db:"prize_id" json:"prize_id"` // nil once the prize row is gone
	ViewerName string     `db:"viewer_name" json:"viewer_name"`
	Note       string     `db:"note" json:"note"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// DrawEventDetail joins a draw event with the prize it resolved to
type DrawEventDetail struct {
	DrawEvent
	PrizeTier string `json:"prize_tier"`
	PrizeName string `json:"prize_name"`
}

// IsWin reports whether the draw resolved to a real prize
func (d *DrawEventDetail) IsWin() bool {
	return d.PrizeID != nil && d.PrizeTier != BlankTier
}

// LedgerDiscrepancy reports a prize whose drawn count disagrees with its draw events
type LedgerDiscrepancy struct {
	BoardID    uuid.UUID `json:"board_id"`
	PrizeID    uuid.UUID `json:"prize_id"`
	Tier       string    `json:"tier"`
	QtyTotal   int       `json:"qty_total"`
	QtyLeft    int       `json:"qty_left"`
	EventCount int       `json:"event_count"`
}

// Drift is positive when more units left inventory than draws were recorded
func (d LedgerDiscrepancy) Drift() int {
	return (d.QtyTotal - d.QtyLeft) - d.EventCount
}
