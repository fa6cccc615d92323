package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"kuji/database"
	"kuji/models"
	"kuji/service"
)

const prizeColumns = `id, board_id, tier, name, description, qty_total, qty_left, images, sort_order, created_at`

// PrizeRepository implements the PrizeRepository interface
type PrizeRepository struct {
	q queryable
}

// NewPrizeRepository creates a new prize repository
func NewPrizeRepository(db *database.DB) *PrizeRepository {
	return &PrizeRepository{q: db.Pool}
}

// newPrizeRepositoryWithTx creates a new prize repository with a transaction
func newPrizeRepositoryWithTx(tx queryable) *PrizeRepository {
	return &PrizeRepository{q: tx}
}

// ListByBoard returns a board's prizes in sort order
func (r *PrizeRepository) ListByBoard(ctx context.Context, boardID uuid.UUID) ([]*models.Prize, error) {
	query := `SELECT ` + prizeColumns + ` FROM prizes WHERE board_id = $1 ORDER BY sort_order, created_at`

	rows, err := r.q.Query(ctx, query, boardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list prizes for board %s: %w", boardID, err)
	}
	defer rows.Close()

	prizes := []*models.Prize{}
	for rows.Next() {
		prize, err := scanPrize(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prize: %w", err)
		}
		prizes = append(prizes, prize)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prizes: %w", err)
	}

	return prizes, nil
}

// GetByID retrieves a prize by ID
func (r *PrizeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Prize, error) {
	query := `SELECT ` + prizeColumns + ` FROM prizes WHERE id = $1`

	prize, err := scanPrize(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prize %s: %w", id, err)
	}

	return prize, nil
}

// ReplaceAll deletes a board's prizes and inserts the given set in one batch
func (r *PrizeRepository) ReplaceAll(ctx context.Context, boardID uuid.UUID, prizes []*models.Prize) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM prizes WHERE board_id = $1`, boardID); err != nil {
		return fmt.Errorf("failed to clear prizes for board %s: %w", boardID, err)
	}

	query := `
		INSERT INTO prizes (id, board_id, tier, name, description, qty_total, qty_left, images, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	for _, p := range prizes {
		err := r.q.QueryRow(ctx, query,
			p.ID,
			boardID,
			p.Tier,
			p.Name,
			p.Description,
			p.QtyTotal,
			p.QtyLeft,
			p.Images,
			p.SortOrder,
		).Scan(&p.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert prize %q: %w", p.Tier, err)
		}
	}

	return nil
}

// DecrementRemaining takes one unit only while qty_left > 0.
// The precondition lives in the WHERE clause so concurrent writers cannot oversell.
func (r *PrizeRepository) DecrementRemaining(ctx context.Context, boardID, prizeID uuid.UUID) (int, error) {
	query := `
		UPDATE prizes
		SET qty_left = qty_left - 1
		WHERE id = $2 AND board_id = $1 AND qty_left > 0
		RETURNING qty_left
	`

	var qtyLeft int
	err := r.q.QueryRow(ctx, query, boardID, prizeID).Scan(&qtyLeft)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, service.ErrSoldOut
	}
	if err != nil {
		return 0, fmt.Errorf("failed to decrement prize %s: %w", prizeID, err)
	}

	return qtyLeft, nil
}

// FindLedgerDiscrepancies compares each prize's drawn count against its draw events
func (r *PrizeRepository) FindLedgerDiscrepancies(ctx context.Context) ([]*models.LedgerDiscrepancy, error) {
	query := `
		SELECT p.board_id, p.id, p.tier, p.qty_total, p.qty_left, COALESCE(d.event_count, 0)
		FROM prizes p
		LEFT JOIN (
			SELECT prize_id, COUNT(*) AS event_count
			FROM draw_events
			WHERE prize_id IS NOT NULL
			GROUP BY prize_id
		) d ON d.prize_id = p.id
		WHERE p.qty_total - p.qty_left <> COALESCE(d.event_count, 0)
		ORDER BY p.board_id, p.sort_order
	`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger discrepancies: %w", err)
	}
	defer rows.Close()

	var out []*models.LedgerDiscrepancy
	for rows.Next() {
		var d models.LedgerDiscrepancy
		if err := rows.Scan(&d.BoardID, &d.PrizeID, &d.Tier, &d.QtyTotal, &d.QtyLeft, &d.EventCount); err != nil {
			return nil, fmt.Errorf("failed to scan ledger discrepancy: %w", err)
		}
		out = append(out, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger discrepancies: %w", err)
	}

	return out, nil
}

func scanPrize(row pgx.Row) (*models.Prize, error) {
	var prize models.Prize
	err := row.Scan(
		&prize.ID,
		&prize.BoardID,
		&prize.Tier,
		&prize.Name,
		&prize.Description,
		&prize.QtyTotal,
		&prize.QtyLeft,
		&prize.Images,
		&prize.SortOrder,
		&prize.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if prize.Images == nil {
		prize.Images = []string{}
	}
	return &prize, nil
}
