package service_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kuji/events"
	"kuji/models"
	"kuji/service"
	"kuji/testhelpers"
)

func TestLedger_ConcurrentDrawsNeverOversell(t *testing.T) {
	ctx := context.Background()
	store := testhelpers.NewMemoryStore(events.NewBus())
	ledger := service.NewLedgerService(store, &service.RecordingLocker{})
	board, prizes := store.SeedBoard(uuid.New(), "Board", models.BoardStatusLive, models.PrizeSpec{Tier: "A", Name: "Figure", Quantity: 2})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := ledger.CommitDraw(ctx, board.ID, prizes[0].ID, fmt.Sprintf("viewer-%d", i))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if service.IsValidation(err) {
				rejected++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 2, succeeded)
	assert.Equal(t, 8, rejected)
	assert.Equal(t, 0, store.Prize(prizes[0].ID).QtyLeft)
	assert.Len(t, store.DrawEvents(board.ID), 2)
}

func TestLedger_FailureAppliesNothing(t *testing.T) {
	ops := []string{"draws.Create", "prizes.DecrementRemaining", "overlay.FlagLastResult", "uow.Commit"}

	for _, op := range ops {
		t.Run(op, func(t *testing.T) {
			ctx := context.Background()
			store := testhelpers.NewMemoryStore(events.NewBus())
			ledger := service.NewLedgerService(store, &service.RecordingLocker{})
			board, prizes := store.SeedBoard(uuid.New(), "Board", models.BoardStatusLive, models.PrizeSpec{Tier: "A", Name: "Figure", Quantity: 2})
			store.FailOn(op, errors.New("boom"))

			_, err := ledger.CommitDraw(ctx, board.ID, prizes[0].ID, "Alice")

			require.Error(t, err)
			assert.True(t, service.IsStore(err))
			assert.Equal(t, 2, store.Prize(prizes[0].ID).QtyLeft)
			assert.Empty(t, store.DrawEvents(board.ID))
			assert.False(t, store.OverlayState(board.ID).ShowLastResult)
		})
	}
}

func TestLedger_TwoDrawsThenSoldOut(t *testing.T) {
	ctx := context.Background()
	store := testhelpers.NewMemoryStore(events.NewBus())
	ledger := service.NewLedgerService(store, &service.RecordingLocker{})
	board, prizes := store.SeedBoard(uuid.New(), "Board", models.BoardStatusLive, models.PrizeSpec{Tier: "A", Name: "Figure", Quantity: 2})

	_, err := ledger.CommitDraw(ctx, board.ID, prizes[0].ID, "Alice")
	require.NoError(t, err)
	_, err = ledger.CommitDraw(ctx, board.ID, prizes[0].ID, "Bob")
	require.NoError(t, err)

	_, err = ledger.CommitDraw(ctx, board.ID, prizes[0].ID, "Carol")

	assert.True(t, service.IsValidation(err))
	assert.Equal(t, 0, store.Prize(prizes[0].ID).QtyLeft)
	assert.Len(t, store.DrawEvents(board.ID), 2)

	state := store.OverlayState(board.ID)
	assert.True(t, state.ShowLastResult)
	require.NotNil(t, state.FocusedPrizeID)
	assert.Equal(t, prizes[0].ID, *state.FocusedPrizeID)
}

// ledgerModel is the expected state of one board's inventory
type ledgerModel struct {
	status models.BoardStatus
	left   map[uuid.UUID]int
	total  map[uuid.UUID]int
	draws  int
}

func (m *ledgerModel) reset(prizes []*models.Prize) {
	m.left = make(map[uuid.UUID]int)
	m.total = make(map[uuid.UUID]int)
	for _, p := range prizes {
		m.left[p.ID] = p.QtyLeft
		m.total[p.ID] = p.QtyTotal
	}
}

func randomSpecs(rng *rand.Rand) ([]models.PrizeSpec, int) {
	n := 1 + rng.Intn(3)
	specs := make([]models.PrizeSpec, n)
	winning := 0
	for i := range specs {
		qty := 1 + rng.Intn(3)
		specs[i] = models.PrizeSpec{Tier: fmt.Sprintf("T%d", i+1), Name: fmt.Sprintf("Prize %d", i+1), Quantity: qty}
		winning += qty
	}
	return specs, winning + rng.Intn(3)
}

func TestLedger_RandomSequencesKeepInvariants(t *testing.T) {
	statuses := []models.BoardStatus{models.BoardStatusDraft, models.BoardStatusLive, models.BoardStatusPaused, models.BoardStatusClosed}

	for seed := int64(1); seed <= 20; seed++ {
		t.Run(fmt.Sprintf("seed-%d", seed), func(t *testing.T) {
			ctx := context.Background()
			rng := rand.New(rand.NewSource(seed))
			store := testhelpers.NewMemoryStore(events.NewBus())
			boards := service.NewBoardService(store, nil)
			ledger := service.NewLedgerService(store, &service.RecordingLocker{})
			seller := uuid.New()

			board, err := boards.Create(ctx, seller, service.BoardDetails{Title: "Board"})
			require.NoError(t, err)
			specs, total := randomSpecs(rng)
			prizes, err := boards.ReplacePrizes(ctx, seller, board.ID, specs, total)
			require.NoError(t, err)

			model := &ledgerModel{status: models.BoardStatusDraft}
			model.reset(prizes)

			for step := 0; step < 60; step++ {
				switch op := rng.Intn(10); {
				case op < 7:
					prize := prizes[rng.Intn(len(prizes))]
					name := fmt.Sprintf("viewer-%d", step)
					if rng.Intn(10) == 0 {
						name = "  "
					}
					_, err := ledger.CommitDraw(ctx, board.ID, prize.ID, name)

					ok := name != "  " && model.status != models.BoardStatusClosed && model.left[prize.ID] > 0
					if ok {
						require.NoError(t, err, "step %d", step)
						model.left[prize.ID]--
						model.draws++
					} else {
						assert.True(t, service.IsValidation(err), "step %d: %v", step, err)
					}

				case op < 9:
					specs, total := randomSpecs(rng)
					replaced, err := boards.ReplacePrizes(ctx, seller, board.ID, specs, total)
					if model.status == models.BoardStatusDraft && model.draws == 0 {
						require.NoError(t, err, "step %d", step)
						prizes = replaced
						model.reset(prizes)
					} else {
						assert.True(t, service.IsValidation(err), "step %d: %v", step, err)
					}

				default:
					next := statuses[rng.Intn(len(statuses))]
					_, err := boards.TransitionStatus(ctx, seller, board.ID, next)
					if model.status.CanTransitionTo(next) {
						require.NoError(t, err, "step %d", step)
						model.status = next
					} else {
						assert.True(t, service.IsValidation(err), "step %d: %v", step, err)
					}
				}

				drawn := make(map[uuid.UUID]int)
				for _, e := range store.DrawEvents(board.ID) {
					if e.PrizeID != nil {
						drawn[*e.PrizeID]++
					}
				}
				for _, p := range prizes {
					got := store.Prize(p.ID)
					require.NotNil(t, got)
					assert.GreaterOrEqual(t, got.QtyLeft, 0)
					assert.LessOrEqual(t, got.QtyLeft, got.QtyTotal)
					assert.Equal(t, model.left[p.ID], got.QtyLeft, "step %d", step)
					assert.Equal(t, got.QtyTotal-got.QtyLeft, drawn[p.ID], "step %d", step)
				}
				assert.Len(t, store.DrawEvents(board.ID), model.draws)
			}
		})
	}
}
