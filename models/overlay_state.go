package models

import (
	"time"

	"github.com/google/uuid"
)

// ConnectionStatusIdle is the initial connection status of an overlay state
const ConnectionStatusIdle = "idle"

// OverlayState is the singleton per board that the control room writes
// and the overlay reads. UpdatedAt moves on every write.
type OverlayState struct {
	BoardID          uuid.UUID  `db:"board_id" json:"board_id"`
	IsModalOpen      bool       `db:"is_modal_open" json:"is_modal_open"`
	FocusedPrizeID   *uuid.UUID `db:"focused_prize_id" json:"focused_prize_id"`
	ShowLastResult   bool       `db:"show_last_result" json:"show_last_result"`
	ConnectionStatus string     `db:"connection_status" json:"connection_status"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}
