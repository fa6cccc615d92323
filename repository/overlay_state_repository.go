package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"kuji/database"
	"kuji/models"
)

const overlayColumns = `board_id, is_modal_open, focused_prize_id, show_last_result, connection_status, updated_at`

// bumpUpdatedAt uses the statement clock and keeps updated_at strictly increasing per row
const bumpUpdatedAt = `GREATEST(clock_timestamp(), updated_at + INTERVAL '1 microsecond')`

// OverlayStateRepository implements the OverlayStateRepository interface.
// Every write bumps updated_at and returns the row as written.
type OverlayStateRepository struct {
	q queryable
}

// NewOverlayStateRepository creates a new overlay state repository
func NewOverlayStateRepository(db *database.DB) *OverlayStateRepository {
	return &OverlayStateRepository{q: db.Pool}
}

// newOverlayStateRepositoryWithTx creates a new overlay state repository with a transaction
func newOverlayStateRepositoryWithTx(tx queryable) *OverlayStateRepository {
	return &OverlayStateRepository{q: tx}
}

// Create inserts the default overlay state of a board
func (r *OverlayStateRepository) Create(ctx context.Context, boardID uuid.UUID) (*models.OverlayState, error) {
	query := `
		INSERT INTO overlay_states (board_id, connection_status)
		VALUES ($1, $2)
		RETURNING ` + overlayColumns

	state, err := scanOverlayState(r.q.QueryRow(ctx, query, boardID, models.ConnectionStatusIdle))
	if err != nil {
		return nil, fmt.Errorf("failed to create overlay state for board %s: %w", boardID, err)
	}
	return state, nil
}

// GetByBoard retrieves the overlay state of a board
func (r *OverlayStateRepository) GetByBoard(ctx context.Context, boardID uuid.UUID) (*models.OverlayState, error) {
	query := `SELECT ` + overlayColumns + ` FROM overlay_states WHERE board_id = $1`
	return r.one(ctx, "get", query, boardID)
}

// SetModal opens or closes the prize modal and replaces the focused prize
func (r *OverlayStateRepository) SetModal(ctx context.Context, boardID uuid.UUID, open bool, focusedPrizeID *uuid.UUID) (*models.OverlayState, error) {
	query := `
		UPDATE overlay_states
		SET is_modal_open = $2, focused_prize_id = $3, updated_at = ` + bumpUpdatedAt + `
		WHERE board_id = $1
		RETURNING ` + overlayColumns
	return r.one(ctx, "set modal on", query, boardID, open, focusedPrizeID)
}

// FlagLastResult raises the reveal flag and focuses the drawn prize
func (r *OverlayStateRepository) FlagLastResult(ctx context.Context, boardID, prizeID uuid.UUID) (*models.OverlayState, error) {
	query := `
		UPDATE overlay_states
		SET show_last_result = TRUE, focused_prize_id = $2, updated_at = ` + bumpUpdatedAt + `
		WHERE board_id = $1
		RETURNING ` + overlayColumns
	return r.one(ctx, "flag last result on", query, boardID, prizeID)
}

// HideLastResult clears the reveal flag
func (r *OverlayStateRepository) HideLastResult(ctx context.Context, boardID uuid.UUID) (*models.OverlayState, error) {
	query := `
		UPDATE overlay_states
		SET show_last_result = FALSE, updated_at = ` + bumpUpdatedAt + `
		WHERE board_id = $1
		RETURNING ` + overlayColumns
	return r.one(ctx, "hide last result on", query, boardID)
}

func (r *OverlayStateRepository) one(ctx context.Context, op, query string, args ...any) (*models.OverlayState, error) {
	state, err := scanOverlayState(r.q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s overlay state: %w", op, err)
	}
	return state, nil
}

func scanOverlayState(row pgx.Row) (*models.OverlayState, error) {
	var state models.OverlayState
	err := row.Scan(
		&state.BoardID,
		&state.IsModalOpen,
		&state.FocusedPrizeID,
		&state.ShowLastResult,
		&state.ConnectionStatus,
		&state.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &state, nil
}
