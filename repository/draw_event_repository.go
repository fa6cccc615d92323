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

// DrawEventRepository implements the DrawEventRepository interface
type DrawEventRepository struct {
	q queryable
}

// NewDrawEventRepository creates a new draw event repository
func NewDrawEventRepository(db *database.DB) *DrawEventRepository {
	return &DrawEventRepository{q: db.Pool}
}

// newDrawEventRepositoryWithTx creates a new draw event repository with a transaction
func newDrawEventRepositoryWithTx(tx queryable) *DrawEventRepository {
	return &DrawEventRepository{q: tx}
}

// Create appends a draw event
func (r *DrawEventRepository) Create(ctx context.Context, event *models.DrawEvent) error {
	query := `
		INSERT INTO draw_events (id, board_id, prize_id, viewer_name, note, created_at)
		VALUES ($1, $2, $3, $4, $5, clock_timestamp())
		RETURNING created_at
	`

	err := r.q.QueryRow(ctx, query,
		event.ID,
		event.BoardID,
		event.PrizeID,
		event.ViewerName,
		event.Note,
	).Scan(&event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create draw event for board %s: %w", event.BoardID, err)
	}

	return nil
}

// ListRecent returns at most limit events with their prize, most recent first
func (r *DrawEventRepository) ListRecent(ctx context.Context, boardID uuid.UUID, limit int) ([]*models.DrawEventDetail, error) {
	query := `
		SELECT d.id, d.board_id, d.prize_id, d.viewer_name, d.note, d.created_at,
		       COALESCE(p.tier, ''), COALESCE(p.name, '')
		FROM draw_events d
		LEFT JOIN prizes p ON p.id = d.prize_id
		WHERE d.board_id = $1
		ORDER BY d.created_at DESC, d.id DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, boardID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list draw events for board %s: %w", boardID, err)
	}
	defer rows.Close()

	details := []*models.DrawEventDetail{}
	for rows.Next() {
		detail, err := scanDrawEventDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan draw event: %w", err)
		}
		details = append(details, detail)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating draw events: %w", err)
	}

	return details, nil
}

// GetLatest returns the most recent event of a board, or nil
func (r *DrawEventRepository) GetLatest(ctx context.Context, boardID uuid.UUID) (*models.DrawEventDetail, error) {
	query := `
		SELECT d.id, d.board_id, d.prize_id, d.viewer_name, d.note, d.created_at,
		       COALESCE(p.tier, ''), COALESCE(p.name, '')
		FROM draw_events d
		LEFT JOIN prizes p ON p.id = d.prize_id
		WHERE d.board_id = $1
		ORDER BY d.created_at DESC, d.id DESC
		LIMIT 1
	`

	detail, err := scanDrawEventDetail(r.q.QueryRow(ctx, query, boardID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest draw event for board %s: %w", boardID, err)
	}

	return detail, nil
}

// CountByBoard returns the number of draw events on a board
func (r *DrawEventRepository) CountByBoard(ctx context.Context, boardID uuid.UUID) (int, error) {
	var count int
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM draw_events WHERE board_id = $1`, boardID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count draw events for board %s: %w", boardID, err)
	}
	return count, nil
}

func scanDrawEventDetail(row pgx.Row) (*models.DrawEventDetail, error) {
	var d models.DrawEventDetail
	err := row.Scan(
		&d.ID,
		&d.BoardID,
		&d.PrizeID,
		&d.ViewerName,
		&d.Note,
		&d.CreatedAt,
		&d.PrizeTier,
		&d.PrizeName,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
