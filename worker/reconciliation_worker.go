package worker

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"kuji/models"
	"kuji/service"
)

// ReconciliationWorker periodically compares each prize's drawn count with
// its draw events and logs every mismatch for manual reconciliation.
type ReconciliationWorker struct {
	uowFactory service.UnitOfWorkFactory
	schedule   string
}

// NewReconciliationWorker creates a worker running on a cron schedule such as "@every 5m"
func NewReconciliationWorker(uowFactory service.UnitOfWorkFactory, schedule string) *ReconciliationWorker {
	return &ReconciliationWorker{
		uowFactory: uowFactory,
		schedule:   schedule,
	}
}

// Start schedules the job and returns a function that stops it and waits
// for a running pass to finish.
func (w *ReconciliationWorker) Start(ctx context.Context) (func(), error) {
	runner := cron.New()
	if _, err := runner.AddFunc(w.schedule, func() {
		if _, err := w.RunOnce(ctx); err != nil {
			log.WithError(err).Error("Ledger reconciliation failed")
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid reconciliation schedule %q: %w", w.schedule, err)
	}

	runner.Start()
	log.WithField("schedule", w.schedule).Info("Ledger reconciliation scheduled")

	return func() {
		<-runner.Stop().Done()
	}, nil
}

// RunOnce performs a single reconciliation pass
func (w *ReconciliationWorker) RunOnce(ctx context.Context) ([]*models.LedgerDiscrepancy, error) {
	uow := w.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	discrepancies, err := uow.PrizeRepository().FindLedgerDiscrepancies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find ledger discrepancies: %w", err)
	}

	for _, d := range discrepancies {
		log.WithFields(log.Fields{
			"board_id":    d.BoardID,
			"prize_id":    d.PrizeID,
			"tier":        d.Tier,
			"qty_total":   d.QtyTotal,
			"qty_left":    d.QtyLeft,
			"event_count": d.EventCount,
			"drift":       d.Drift(),
		}).Warn("Ledger discrepancy needs manual reconciliation")
	}
	log.WithField("discrepancies", len(discrepancies)).Debug("Ledger reconciliation pass complete")

	return discrepancies, nil
}
