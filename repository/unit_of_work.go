package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"kuji/database"
	"kuji/events"
	"kuji/service"
)

// unitOfWork implements the UnitOfWork interface
type unitOfWork struct {
	db               *database.DB
	tx               pgx.Tx
	ctx              context.Context
	transactionalBus *events.TransactionalBus
	boardRepo        service.BoardRepository
	prizeRepo        service.PrizeRepository
	drawEventRepo    service.DrawEventRepository
	overlayStateRepo service.OverlayStateRepository
}

// NewUnitOfWorkFactory creates a new UnitOfWork factory
func NewUnitOfWorkFactory(db *database.DB, eventBus *events.Bus) service.UnitOfWorkFactory {
	return &unitOfWorkFactory{
		db:       db,
		eventBus: eventBus,
	}
}

type unitOfWorkFactory struct {
	db       *database.DB
	eventBus *events.Bus
}

func (f *unitOfWorkFactory) Create() service.UnitOfWork {
	return &unitOfWork{
		db:               f.db,
		transactionalBus: events.NewTransactionalBus(f.eventBus),
	}
}

// Begin starts a new transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.tx = tx
	u.ctx = ctx

	u.boardRepo = newBoardRepositoryWithTx(tx)
	u.prizeRepo = newPrizeRepositoryWithTx(tx)
	u.drawEventRepo = newDrawEventRepositoryWithTx(tx)
	u.overlayStateRepo = newOverlayStateRepositoryWithTx(tx)

	return nil
}

// Commit commits the transaction, then delivers the events queued during it
func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}

	err := u.tx.Commit(u.ctx)
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	u.tx = nil
	u.transactionalBus.Flush()

	return nil
}

// Rollback rolls back the transaction and drops queued events
func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil
	}

	err := u.tx.Rollback(u.ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	u.tx = nil
	u.transactionalBus.Discard()

	return nil
}

// BoardRepository returns the board repository for this unit of work
func (u *unitOfWork) BoardRepository() service.BoardRepository {
	if u.boardRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.boardRepo
}

// PrizeRepository returns the prize repository for this unit of work
func (u *unitOfWork) PrizeRepository() service.PrizeRepository {
	if u.prizeRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.prizeRepo
}

// DrawEventRepository returns the draw event repository for this unit of work
func (u *unitOfWork) DrawEventRepository() service.DrawEventRepository {
	if u.drawEventRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.drawEventRepo
}

// OverlayStateRepository returns the overlay state repository for this unit of work
func (u *unitOfWork) OverlayStateRepository() service.OverlayStateRepository {
	if u.overlayStateRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.overlayStateRepo
}

// EventBus returns the transactional event bus for this unit of work
func (u *unitOfWork) EventBus() service.EventPublisher {
	if u.tx == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.transactionalBus
}
