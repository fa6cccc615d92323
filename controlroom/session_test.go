package controlroom

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kuji/events"
	"kuji/models"
	"kuji/service"
	"kuji/testhelpers"
)

type fixture struct {
	store   *testhelpers.MemoryStore
	bus     *events.Bus
	ledger  service.LedgerService
	session *Session
	board   *models.Board
	prizes  []*models.Prize
}

func setup(t *testing.T, limiter DrawLimiter, specs ...models.PrizeSpec) *fixture {
	t.Helper()
	bus := events.NewBus()
	store := testhelpers.NewMemoryStore(bus)
	board, prizes := store.SeedBoard(uuid.New(), "Friday stream", models.BoardStatusLive, specs...)
	ledger := service.NewLedgerService(store, &service.RecordingLocker{})

	session := NewSession(Dependencies{
		Query:   service.NewQueryService(store, nil),
		Ledger:  ledger,
		Overlay: service.NewOverlayStateService(store),
		Bus:     bus,
		Limiter: limiter,
	}, board.ID)
	require.NoError(t, session.Open(context.Background(), nil))
	t.Cleanup(session.Close)

	return &fixture{store: store, bus: bus, ledger: ledger, session: session, board: board, prizes: prizes}
}

func remainingOf(v View, id uuid.UUID) int {
	for _, p := range v.Prizes {
		if p.ID == id {
			return p.QtyLeft
		}
	}
	return -1
}

func TestSession_DrawUntilSoldOut(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil, models.PrizeSpec{Tier: "1등", Name: "Figure", Quantity: 2})
	p := f.prizes[0]

	require.NoError(t, f.session.HandleKey(ctx, "1", false))
	f.session.SetViewerName("Alice")
	_, err := f.session.SubmitDraw(ctx)
	require.NoError(t, err)

	v := f.session.View()
	assert.Equal(t, 1, remainingOf(v, p.ID))
	assert.Nil(t, v.SelectedPrizeID)
	assert.Empty(t, v.ViewerName)
	assert.True(t, v.FocusInput)
	require.NotNil(t, v.Notice)
	assert.Equal(t, NoticeSuccess, v.Notice.Level)
	require.Len(t, v.RecentDraws, 1)
	assert.Equal(t, "Alice", v.RecentDraws[0].ViewerName)
	assert.True(t, v.Overlay.ShowLastResult)
	require.NotNil(t, v.Overlay.FocusedPrizeID)
	assert.Equal(t, p.ID, *v.Overlay.FocusedPrizeID)

	require.NoError(t, f.session.SelectPrize(p.ID))
	f.session.SetViewerName("Bob")
	_, err = f.session.SubmitDraw(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, remainingOf(f.session.View(), p.ID))

	require.NoError(t, f.session.SelectPrize(p.ID))
	f.session.SetViewerName("Carol")
	_, err = f.session.SubmitDraw(ctx)

	assert.True(t, service.IsValidation(err))
	v = f.session.View()
	assert.Equal(t, "Carol", v.ViewerName)
	require.NotNil(t, v.SelectedPrizeID)
	assert.Equal(t, NoticeError, v.Notice.Level)
	assert.Len(t, f.store.DrawEvents(f.board.ID), 2)
	assert.Equal(t, 0, f.store.Prize(p.ID).QtyLeft)
}

func TestSession_KeyboardContract(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil,
		models.PrizeSpec{Tier: "1등", Name: "Figure", Quantity: 1},
		models.PrizeSpec{Tier: "2등", Name: "Keyring", Quantity: 3},
		models.PrizeSpec{Tier: models.BlankTier, Name: models.BlankTier, Quantity: 5},
	)

	require.NoError(t, f.session.HandleKey(ctx, "2", false))
	v := f.session.View()
	require.NotNil(t, v.SelectedPrizeID)
	assert.Equal(t, f.prizes[1].ID, *v.SelectedPrizeID)
	assert.True(t, v.FocusInput)

	f.session.SetViewerName("Alice")
	require.NoError(t, f.session.HandleKey(ctx, KeyEscape, false))
	v = f.session.View()
	assert.Nil(t, v.SelectedPrizeID)
	assert.Empty(t, v.ViewerName)

	t.Run("digits beyond the list are ignored", func(t *testing.T) {
		require.NoError(t, f.session.HandleKey(ctx, "3", false))
		assert.Nil(t, f.session.View().SelectedPrizeID)
	})

	t.Run("focused input only reacts to enter", func(t *testing.T) {
		require.NoError(t, f.session.HandleKey(ctx, "1", false))
		f.session.SetViewerName("Bob")

		require.NoError(t, f.session.HandleKey(ctx, KeyEscape, true))
		require.NoError(t, f.session.HandleKey(ctx, "2", true))
		v := f.session.View()
		require.NotNil(t, v.SelectedPrizeID)
		assert.Equal(t, f.prizes[0].ID, *v.SelectedPrizeID)
		assert.Equal(t, "Bob", v.ViewerName)

		require.NoError(t, f.session.HandleKey(ctx, KeyEnter, true))
		assert.Equal(t, 0, f.store.Prize(f.prizes[0].ID).QtyLeft)
		assert.Nil(t, f.session.View().SelectedPrizeID)
	})

	t.Run("enter without a selection does nothing", func(t *testing.T) {
		f.session.SetViewerName("Carol")
		require.NoError(t, f.session.HandleKey(ctx, KeyEnter, true))
		assert.Len(t, f.store.DrawEvents(f.board.ID), 1)
	})
}

func TestSession_ViewHidesBlankTierButCountsIt(t *testing.T) {
	f := setup(t, nil,
		models.PrizeSpec{Tier: "1등", Name: "Figure", Quantity: 2},
		models.PrizeSpec{Tier: models.BlankTier, Name: models.BlankTier, Quantity: 8},
	)
	f.store.SetPrizeQtyLeft(f.prizes[0].ID, -3)
	require.NoError(t, f.session.Refresh(context.Background()))

	v := f.session.View()
	require.Len(t, v.Prizes, 1)
	require.NotNil(t, v.BlankPrize)
	assert.Equal(t, f.prizes[1].ID, v.BlankPrize.ID)
	assert.Equal(t, Counters{Remaining: 8, Total: 10}, v.Counters)
}

func TestSession_BlankTierIsDrawable(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil,
		models.PrizeSpec{Tier: "1등", Name: "Figure", Quantity: 1},
		models.PrizeSpec{Tier: models.BlankTier, Name: models.BlankTier, Quantity: 2},
	)

	require.NoError(t, f.session.SelectPrize(f.prizes[1].ID))
	f.session.SetViewerName("Dave")
	_, err := f.session.SubmitDraw(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, f.store.Prize(f.prizes[1].ID).QtyLeft)
}

func TestSession_SubmitGuards(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil, models.PrizeSpec{Tier: "1등", Name: "Figure", Quantity: 1})

	_, err := f.session.SubmitDraw(ctx)
	assert.True(t, service.IsValidation(err))

	require.NoError(t, f.session.SelectPrize(f.prizes[0].ID))
	f.session.SetViewerName("   ")
	_, err = f.session.SubmitDraw(ctx)
	assert.True(t, service.IsValidation(err))

	assert.True(t, service.IsNotFound(f.session.SelectPrize(uuid.New())))
	assert.Empty(t, f.store.DrawEvents(f.board.ID))

	f.session.DismissNotice()
	assert.Nil(t, f.session.View().Notice)
}

func TestSession_StoreFailureKeepsInput(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil, models.PrizeSpec{Tier: "1등", Name: "Figure", Quantity: 1})
	f.store.FailOn("prizes.DecrementRemaining", errors.New("connection reset"))

	require.NoError(t, f.session.SelectPrize(f.prizes[0].ID))
	f.session.SetViewerName("Alice")
	_, err := f.session.SubmitDraw(ctx)

	assert.True(t, service.IsStore(err))
	v := f.session.View()
	assert.Equal(t, "Alice", v.ViewerName)
	assert.NotNil(t, v.SelectedPrizeID)
	assert.False(t, v.Drawing)
	assert.Equal(t, service.UserMessage(err), v.Notice.Message)
	assert.Equal(t, 1, f.store.Prize(f.prizes[0].ID).QtyLeft)
}

type denyLimiter struct{}

func (denyLimiter) Allow(ctx context.Context, boardID uuid.UUID) error {
	return service.NewValidationError("Too many draws, slow down")
}

func TestSession_RateLimited(t *testing.T) {
	f := setup(t, denyLimiter{}, models.PrizeSpec{Tier: "1등", Name: "Figure", Quantity: 1})

	require.NoError(t, f.session.SelectPrize(f.prizes[0].ID))
	f.session.SetViewerName("Alice")
	_, err := f.session.SubmitDraw(context.Background())

	assert.True(t, service.IsValidation(err))
	assert.Equal(t, 1, f.store.Prize(f.prizes[0].ID).QtyLeft)
}

func TestSession_OverlayControls(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil, models.PrizeSpec{Tier: "1등", Name: "Figure", Quantity: 1})

	require.NoError(t, f.session.SelectPrize(f.prizes[0].ID))
	require.NoError(t, f.session.ToggleModal(ctx))
	state := f.store.OverlayState(f.board.ID)
	assert.True(t, state.IsModalOpen)
	require.NotNil(t, state.FocusedPrizeID)
	assert.Equal(t, f.prizes[0].ID, *state.FocusedPrizeID)
	assert.True(t, f.session.View().Overlay.IsModalOpen)

	require.NoError(t, f.session.ToggleModal(ctx))
	state = f.store.OverlayState(f.board.ID)
	assert.False(t, state.IsModalOpen)
	assert.Nil(t, state.FocusedPrizeID)

	require.NoError(t, f.session.ShowPrize(ctx, f.prizes[0].ID))
	assert.True(t, f.store.OverlayState(f.board.ID).IsModalOpen)

	f.session.SetViewerName("Alice")
	_, err := f.session.SubmitDraw(ctx)
	require.NoError(t, err)
	require.NoError(t, f.session.HideLastResult(ctx))
	assert.False(t, f.store.OverlayState(f.board.ID).ShowLastResult)
	assert.False(t, f.session.View().Overlay.ShowLastResult)

	err = f.session.ShowPrize(ctx, uuid.New())
	assert.True(t, service.IsNotFound(err))
}

func TestSession_RefreshesOnRemoteChanges(t *testing.T) {
	ctx := context.Background()
	bus := events.NewBus()
	store := testhelpers.NewMemoryStore(bus)
	board, prizes := store.SeedBoard(uuid.New(), "Board", models.BoardStatusLive, models.PrizeSpec{Tier: "1등", Name: "Figure", Quantity: 3})
	ledger := service.NewLedgerService(store, &service.RecordingLocker{})

	session := NewSession(Dependencies{
		Query:   service.NewQueryService(store, nil),
		Ledger:  ledger,
		Overlay: service.NewOverlayStateService(store),
		Bus:     bus,
	}, board.ID)

	var (
		mu    sync.Mutex
		views []View
	)
	require.NoError(t, session.Open(ctx, func(v View) {
		mu.Lock()
		defer mu.Unlock()
		views = append(views, v)
	}))
	defer session.Close()
	for _, typ := range events.AllTypes {
		assert.Equal(t, 1, bus.SubscriberCount(typ))
	}

	_, err := ledger.CommitDraw(ctx, board.ID, prizes[0].ID, "Elsewhere")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(views) > 0 && remainingOf(views[len(views)-1], prizes[0].ID) == 2
	}, time.Second, 10*time.Millisecond)

	session.Close()
	assert.Equal(t, 0, bus.SubscriberCount(events.EventTypeDrawEventCreated))
}
