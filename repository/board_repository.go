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

const boardColumns = `id, seller_id, title, description, status, mode, overlay_token, sound_enabled, created_at, updated_at`

// BoardRepository implements the BoardRepository interface
type BoardRepository struct {
	q queryable
}

// NewBoardRepository creates a new board repository
func NewBoardRepository(db *database.DB) *BoardRepository {
	return &BoardRepository{q: db.Pool}
}

// newBoardRepositoryWithTx creates a new board repository with a transaction
func newBoardRepositoryWithTx(tx queryable) *BoardRepository {
	return &BoardRepository{q: tx}
}

// Create inserts a new board and fills in its timestamps
func (r *BoardRepository) Create(ctx context.Context, board *models.Board) error {
	query := `
		INSERT INTO boards (id, seller_id, title, description, status, mode, overlay_token, sound_enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		board.ID,
		board.SellerID,
		board.Title,
		board.Description,
		board.Status,
		board.Mode,
		board.OverlayToken,
		board.SoundEnabled,
	).Scan(&board.CreatedAt, &board.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create board %s: %w", board.ID, err)
	}

	return nil
}

// GetByID retrieves a board by ID
func (r *BoardRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Board, error) {
	query := `SELECT ` + boardColumns + ` FROM boards WHERE id = $1`

	board, err := scanBoard(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get board %s: %w", id, err)
	}

	return board, nil
}

// ListBySeller returns a seller's boards, newest first
func (r *BoardRepository) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]*models.Board, error) {
	query := `SELECT ` + boardColumns + ` FROM boards WHERE seller_id = $1 ORDER BY created_at DESC`

	rows, err := r.q.Query(ctx, query, sellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list boards for seller %s: %w", sellerID, err)
	}
	defer rows.Close()

	boards := []*models.Board{}
	for rows.Next() {
		board, err := scanBoard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan board: %w", err)
		}
		boards = append(boards, board)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating boards: %w", err)
	}

	return boards, nil
}

// Update persists the mutable fields of a board
func (r *BoardRepository) Update(ctx context.Context, board *models.Board) error {
	query := `
		UPDATE boards
		SET title = $2, description = $3, status = $4, mode = $5,
		    overlay_token = $6, sound_enabled = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.q.QueryRow(ctx, query,
		board.ID,
		board.Title,
		board.Description,
		board.Status,
		board.Mode,
		board.OverlayToken,
		board.SoundEnabled,
	).Scan(&board.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("board %s not found", board.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update board %s: %w", board.ID, err)
	}

	return nil
}

// Delete removes a board. Prizes, draw events and overlay state cascade.
func (r *BoardRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM boards WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete board %s: %w", id, err)
	}
	return nil
}

func scanBoard(row pgx.Row) (*models.Board, error) {
	var board models.Board
	err := row.Scan(
		&board.ID,
		&board.SellerID,
		&board.Title,
		&board.Description,
		&board.Status,
		&board.Mode,
		&board.OverlayToken,
		&board.SoundEnabled,
		&board.CreatedAt,
		&board.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &board, nil
}
