package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"kuji/events"
	"kuji/models"
)

type ledgerService struct {
	uowFactory UnitOfWorkFactory
	locker     DrawLocker
}

// NewLedgerService creates a new inventory ledger
func NewLedgerService(uowFactory UnitOfWorkFactory, locker DrawLocker) LedgerService {
	return &ledgerService{
		uowFactory: uowFactory,
		locker:     locker,
	}
}

// DrawLockKey is the lock key serializing draws on one prize
func DrawLockKey(prizeID uuid.UUID) string {
	return "kuji:draw:prize:" + prizeID.String()
}

func (s *ledgerService) CommitDraw(ctx context.Context, boardID, prizeID uuid.UUID, viewerName string) (*models.DrawEvent, error) {
	viewerName = strings.TrimSpace(viewerName)
	if viewerName == "" {
		return nil, NewValidationError("Enter the viewer's name before drawing")
	}

	unlock, err := s.locker.Lock(ctx, DrawLockKey(prizeID))
	if err != nil {
		return nil, NewStoreError(err, "acquire draw lock")
	}
	defer unlock()

	fields := log.Fields{
		"board_id":    boardID,
		"prize_id":    prizeID,
		"viewer_name": viewerName,
	}
	fail := func(step string, err error) error {
		if KindOf(err) == KindStore {
			log.WithFields(fields).WithField("step", step).WithError(err).Error("Draw commit failed, nothing was applied")
		}
		return err
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fail("begin", NewStoreError(err, "begin transaction"))
	}
	defer uow.Rollback()

	board, err := uow.BoardRepository().GetByID(ctx, boardID)
	if err != nil {
		return nil, fail("load_board", NewStoreError(err, "load board"))
	}
	if board == nil {
		return nil, NewNotFoundError("board")
	}
	if board.Status == models.BoardStatusClosed {
		return nil, NewValidationError("This board is closed")
	}

	prize, err := uow.PrizeRepository().GetByID(ctx, prizeID)
	if err != nil {
		return nil, fail("load_prize", NewStoreError(err, "load prize"))
	}
	if prize == nil || prize.BoardID != boardID {
		return nil, NewNotFoundError("prize")
	}
	if prize.QtyLeft <= 0 {
		return nil, NewValidationError("%s has no remaining quantity", prize.Tier)
	}

	event := &models.DrawEvent{
		ID:         uuid.New(),
		BoardID:    boardID,
		PrizeID:    &prize.ID,
		ViewerName: viewerName,
	}
	if err := uow.DrawEventRepository().Create(ctx, event); err != nil {
		return nil, fail("insert_event", NewStoreError(err, "insert draw event"))
	}

	qtyLeft, err := uow.PrizeRepository().DecrementRemaining(ctx, boardID, prizeID)
	if errors.Is(err, ErrSoldOut) {
		return nil, NewValidationError("%s has no remaining quantity", prize.Tier)
	}
	if err != nil {
		return nil, fail("decrement", NewStoreError(err, "decrement prize"))
	}

	state, err := uow.OverlayStateRepository().FlagLastResult(ctx, boardID, prizeID)
	if err != nil {
		return nil, fail("flag_overlay", NewStoreError(err, "flag last result"))
	}
	if state == nil {
		return nil, NewNotFoundError("overlay state")
	}

	bus := uow.EventBus()
	bus.Publish(events.DrawEventCreatedEvent{
		BoardID:     boardID,
		DrawEventID: event.ID,
		PrizeID:     prize.ID,
		ViewerName:  viewerName,
		PrizeTier:   prize.Tier,
		PrizeName:   prize.Name,
		BoardTitle:  board.Title,
		CreatedAt:   event.CreatedAt,
	})
	bus.Publish(events.PrizeChangedEvent{
		BoardID: boardID,
		PrizeID: prize.ID,
		QtyLeft: qtyLeft,
	})
	bus.Publish(overlayChanged(state))

	if err := uow.Commit(); err != nil {
		return nil, fail("commit", NewStoreError(err, "commit draw"))
	}

	log.WithFields(fields).WithFields(log.Fields{
		"tier":     prize.Tier,
		"qty_left": qtyLeft,
	}).Info("Draw committed")

	return event, nil
}

func overlayChanged(state *models.OverlayState) events.OverlayStateChangedEvent {
	return events.OverlayStateChangedEvent{
		BoardID:        state.BoardID,
		IsModalOpen:    state.IsModalOpen,
		FocusedPrizeID: state.FocusedPrizeID,
		ShowLastResult: state.ShowLastResult,
		UpdatedAt:      state.UpdatedAt,
	}
}
