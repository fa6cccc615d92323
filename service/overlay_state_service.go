package service

import (
	"context"

	"github.com/google/uuid"

	"kuji/models"
)

// The overlay state has a single writer per board in practice. Concurrent
// writers resolve by last write wins; there is no locking here.
type overlayStateService struct {
	uowFactory UnitOfWorkFactory
}

// NewOverlayStateService creates a new overlay state machine
func NewOverlayStateService(uowFactory UnitOfWorkFactory) OverlayStateService {
	return &overlayStateService{uowFactory: uowFactory}
}

func (s *overlayStateService) Get(ctx context.Context, boardID uuid.UUID) (*models.OverlayState, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, NewStoreError(err, "begin transaction")
	}
	defer uow.Rollback()

	state, err := uow.OverlayStateRepository().GetByBoard(ctx, boardID)
	if err != nil {
		return nil, NewStoreError(err, "load overlay state")
	}
	if state == nil {
		return nil, NewNotFoundError("overlay state")
	}
	return state, nil
}

func (s *overlayStateService) OpenModal(ctx context.Context, boardID uuid.UUID, prizeID *uuid.UUID) (*models.OverlayState, error) {
	return s.write(ctx, boardID, func(uow UnitOfWork) (*models.OverlayState, error) {
		if prizeID != nil {
			prize, err := uow.PrizeRepository().GetByID(ctx, *prizeID)
			if err != nil {
				return nil, NewStoreError(err, "load prize")
			}
			if prize == nil || prize.BoardID != boardID {
				return nil, NewNotFoundError("prize")
			}
		}
		return uow.OverlayStateRepository().SetModal(ctx, boardID, true, prizeID)
	})
}

func (s *overlayStateService) CloseModal(ctx context.Context, boardID uuid.UUID) (*models.OverlayState, error) {
	return s.write(ctx, boardID, func(uow UnitOfWork) (*models.OverlayState, error) {
		return uow.OverlayStateRepository().SetModal(ctx, boardID, false, nil)
	})
}

func (s *overlayStateService) HideLastResult(ctx context.Context, boardID uuid.UUID) (*models.OverlayState, error) {
	return s.write(ctx, boardID, func(uow UnitOfWork) (*models.OverlayState, error) {
		return uow.OverlayStateRepository().HideLastResult(ctx, boardID)
	})
}

func (s *overlayStateService) write(ctx context.Context, boardID uuid.UUID, apply func(uow UnitOfWork) (*models.OverlayState, error)) (*models.OverlayState, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, NewStoreError(err, "begin transaction")
	}
	defer uow.Rollback()

	state, err := apply(uow)
	if err != nil {
		if _, ok := err.(*Error); ok {
			return nil, err
		}
		return nil, NewStoreError(err, "update overlay state")
	}
	if state == nil {
		return nil, NewNotFoundError("overlay state")
	}

	uow.EventBus().Publish(overlayChanged(state))

	if err := uow.Commit(); err != nil {
		return nil, NewStoreError(err, "commit overlay state")
	}
	return state, nil
}
