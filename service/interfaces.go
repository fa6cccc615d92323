package service

import (
	"context"

	"github.com/google/uuid"

	"kuji/events"
	"kuji/models"
)

// BoardRepository defines the interface for board data access
type BoardRepository interface {
	// Create inserts a new board
	Create(ctx context.Context, board *models.Board) error

	// GetByID retrieves a board, returning nil when absent
	GetByID(ctx context.Context, id uuid.UUID) (*models.Board, error)

	// ListBySeller returns a seller's boards, newest first
	ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]*models.Board, error)

	// Update persists mutable board fields and bumps updated_at
	Update(ctx context.Context, board *models.Board) error

	// Delete removes the board; prizes, draw events and overlay state cascade
	Delete(ctx context.Context, id uuid.UUID) error
}

// PrizeRepository defines the interface for prize data access
type PrizeRepository interface {
	// ListByBoard returns a board's prizes in sort order
	ListByBoard(ctx context.Context, boardID uuid.UUID) ([]*models.Prize, error)

	// GetByID retrieves a prize, returning nil when absent
	GetByID(ctx context.Context, id uuid.UUID) (*models.Prize, error)

	// ReplaceAll deletes a board's prizes and inserts the given set
	ReplaceAll(ctx context.Context, boardID uuid.UUID, prizes []*models.Prize) error

	// DecrementRemaining takes one unit only while qty_left > 0 and returns the new qty_left.
	// Returns ErrSoldOut when nothing was left.
	DecrementRemaining(ctx context.Context, boardID, prizeID uuid.UUID) (int, error)

	// FindLedgerDiscrepancies returns prizes whose drawn count disagrees with their draw events
	FindLedgerDiscrepancies(ctx context.Context) ([]*models.LedgerDiscrepancy, error)
}

// DrawEventRepository defines the interface for the append-only draw log
type DrawEventRepository interface {
	// Create appends a draw event
	Create(ctx context.Context, event *models.DrawEvent) error

	// ListRecent returns at most limit events, most recent first
	ListRecent(ctx context.Context, boardID uuid.UUID, limit int) ([]*models.DrawEventDetail, error)

	// GetLatest returns the most recent event, or nil
	GetLatest(ctx context.Context, boardID uuid.UUID) (*models.DrawEventDetail, error)

	// CountByBoard returns the number of draw events on a board
	CountByBoard(ctx context.Context, boardID uuid.UUID) (int, error)
}

// OverlayStateRepository defines the interface for the per-board overlay singleton.
// Every write bumps updated_at.
type OverlayStateRepository interface {
	Create(ctx context.Context, boardID uuid.UUID) (*models.OverlayState, error)
	GetByBoard(ctx context.Context, boardID uuid.UUID) (*models.OverlayState, error)
	SetModal(ctx context.Context, boardID uuid.UUID, open bool, focusedPrizeID *uuid.UUID) (*models.OverlayState, error)
	FlagLastResult(ctx context.Context, boardID, prizeID uuid.UUID) (*models.OverlayState, error)
	HideLastResult(ctx context.Context, boardID uuid.UUID) (*models.OverlayState, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork groups repository calls in one transaction.
// Events published through EventBus are delivered only after Commit.
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	BoardRepository() BoardRepository
	PrizeRepository() PrizeRepository
	DrawEventRepository() DrawEventRepository
	OverlayStateRepository() OverlayStateRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory creates units of work
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// DrawLocker serializes draws against a single key across writers
type DrawLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// BoardCache fronts board lookups on the read path
type BoardCache interface {
	Get(ctx context.Context, boardID uuid.UUID, load func() (*models.Board, error)) (*models.Board, error)
	Invalidate(ctx context.Context, boardID uuid.UUID)
}

// LedgerService commits draws against a board's inventory
type LedgerService interface {
	// CommitDraw records a draw, takes one unit of the prize and flags the overlay
	CommitDraw(ctx context.Context, boardID, prizeID uuid.UUID, viewerName string) (*models.DrawEvent, error)
}

// OverlayStateService drives the overlay state machine
type OverlayStateService interface {
	Get(ctx context.Context, boardID uuid.UUID) (*models.OverlayState, error)

	// OpenModal opens the prize modal, optionally focused on prizeID
	OpenModal(ctx context.Context, boardID uuid.UUID, prizeID *uuid.UUID) (*models.OverlayState, error)

	// CloseModal closes the prize modal and clears focus
	CloseModal(ctx context.Context, boardID uuid.UUID) (*models.OverlayState, error)

	// HideLastResult clears the result reveal flag
	HideLastResult(ctx context.Context, boardID uuid.UUID) (*models.OverlayState, error)
}

// BoardDetails holds the mutable descriptive fields of a board
type BoardDetails struct {
	Title        string
	Description  string
	SoundEnabled bool
}

// BoardService is the owner-scoped structural editor
type BoardService interface {
	Create(ctx context.Context, sellerID uuid.UUID, details BoardDetails) (*models.Board, error)
	List(ctx context.Context, sellerID uuid.UUID) ([]*models.Board, error)
	Get(ctx context.Context, sellerID, boardID uuid.UUID) (*models.Board, error)
	UpdateDetails(ctx context.Context, sellerID, boardID uuid.UUID, details BoardDetails) (*models.Board, error)

	// ReplacePrizes swaps the whole prize set while the board is a draft with no draws.
	// Units of totalDraws not covered by specs become the blank tier.
	ReplacePrizes(ctx context.Context, sellerID, boardID uuid.UUID, specs []models.PrizeSpec, totalDraws int) ([]*models.Prize, error)

	TransitionStatus(ctx context.Context, sellerID, boardID uuid.UUID, status models.BoardStatus) (*models.Board, error)
	RotateOverlayToken(ctx context.Context, sellerID, boardID uuid.UUID) (*models.Board, error)
	Delete(ctx context.Context, sellerID, boardID uuid.UUID) error

	// VerifyOverlayToken is the overlay guard; it must run before anything else is disclosed
	VerifyOverlayToken(ctx context.Context, boardID uuid.UUID, token string) (*models.Board, error)
}

// QueryService is the read side used by sessions
type QueryService interface {
	Board(ctx context.Context, boardID uuid.UUID) (*models.Board, error)
	Prizes(ctx context.Context, boardID uuid.UUID) ([]*models.Prize, error)
	RecentDraws(ctx context.Context, boardID uuid.UUID, limit int) ([]*models.DrawEventDetail, error)
	LatestDraw(ctx context.Context, boardID uuid.UUID) (*models.DrawEventDetail, error)
	OverlayState(ctx context.Context, boardID uuid.UUID) (*models.OverlayState, error)
}
