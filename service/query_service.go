package service

import (
	"context"

	"github.com/google/uuid"

	"kuji/models"
)

type queryService struct {
	uowFactory UnitOfWorkFactory
	boardCache BoardCache
}

// NewQueryService creates the read side used by sessions. boardCache may be nil.
func NewQueryService(uowFactory UnitOfWorkFactory, boardCache BoardCache) QueryService {
	return &queryService{
		uowFactory: uowFactory,
		boardCache: boardCache,
	}
}

func (s *queryService) Board(ctx context.Context, boardID uuid.UUID) (*models.Board, error) {
	load := func() (*models.Board, error) {
		return read(ctx, s.uowFactory, "load board", func(uow UnitOfWork) (*models.Board, error) {
			return uow.BoardRepository().GetByID(ctx, boardID)
		})
	}

	var (
		board *models.Board
		err   error
	)
	if s.boardCache != nil {
		board, err = s.boardCache.Get(ctx, boardID, load)
	} else {
		board, err = load()
	}
	if err != nil {
		return nil, err
	}
	if board == nil {
		return nil, NewNotFoundError("board")
	}
	return board, nil
}

func (s *queryService) Prizes(ctx context.Context, boardID uuid.UUID) ([]*models.Prize, error) {
	return read(ctx, s.uowFactory, "list prizes", func(uow UnitOfWork) ([]*models.Prize, error) {
		return uow.PrizeRepository().ListByBoard(ctx, boardID)
	})
}

func (s *queryService) RecentDraws(ctx context.Context, boardID uuid.UUID, limit int) ([]*models.DrawEventDetail, error) {
	if limit <= 0 {
		return nil, NewValidationError("limit must be positive")
	}
	return read(ctx, s.uowFactory, "list draw events", func(uow UnitOfWork) ([]*models.DrawEventDetail, error) {
		return uow.DrawEventRepository().ListRecent(ctx, boardID, limit)
	})
}

func (s *queryService) LatestDraw(ctx context.Context, boardID uuid.UUID) (*models.DrawEventDetail, error) {
	return read(ctx, s.uowFactory, "load latest draw", func(uow UnitOfWork) (*models.DrawEventDetail, error) {
		return uow.DrawEventRepository().GetLatest(ctx, boardID)
	})
}

func (s *queryService) OverlayState(ctx context.Context, boardID uuid.UUID) (*models.OverlayState, error) {
	state, err := read(ctx, s.uowFactory, "load overlay state", func(uow UnitOfWork) (*models.OverlayState, error) {
		return uow.OverlayStateRepository().GetByBoard(ctx, boardID)
	})
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, NewNotFoundError("overlay state")
	}
	return state, nil
}

// read runs fn in a unit of work that is always rolled back
func read[T any](ctx context.Context, factory UnitOfWorkFactory, op string, fn func(uow UnitOfWork) (T, error)) (T, error) {
	var zero T
	uow := factory.Create()
	if err := uow.Begin(ctx); err != nil {
		return zero, NewStoreError(err, "begin transaction")
	}
	defer uow.Rollback()

	v, err := fn(uow)
	if err != nil {
		return zero, NewStoreError(err, op)
	}
	return v, nil
}
