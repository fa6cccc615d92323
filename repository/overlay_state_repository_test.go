package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kuji/models"
	"kuji/repository/testutil"
)

func TestOverlayStateRepository(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	boards := NewBoardRepository(testDB.DB)
	prizes := NewPrizeRepository(testDB.DB)
	repo := NewOverlayStateRepository(testDB.DB)
	ctx := context.Background()

	board := testutil.CreateTestBoard(uuid.New(), "Board")
	require.NoError(t, boards.Create(ctx, board))
	prize := testutil.CreateTestPrize(board.ID, "A", "Figure", 2, 0)
	require.NoError(t, prizes.ReplaceAll(ctx, board.ID, []*models.Prize{prize}))

	created, err := repo.Create(ctx, board.ID)
	require.NoError(t, err)
	assert.False(t, created.IsModalOpen)
	assert.False(t, created.ShowLastResult)
	assert.Equal(t, models.ConnectionStatusIdle, created.ConnectionStatus)

	t.Run("missing board", func(t *testing.T) {
		state, err := repo.SetModal(ctx, uuid.New(), true, nil)
		require.NoError(t, err)
		assert.Nil(t, state)
	})

	t.Run("open then close modal", func(t *testing.T) {
		opened, err := repo.SetModal(ctx, board.ID, true, &prize.ID)
		require.NoError(t, err)
		assert.True(t, opened.IsModalOpen)
		require.NotNil(t, opened.FocusedPrizeID)
		assert.Equal(t, prize.ID, *opened.FocusedPrizeID)
		assert.False(t, opened.UpdatedAt.Before(created.UpdatedAt))

		closed, err := repo.SetModal(ctx, board.ID, false, nil)
		require.NoError(t, err)
		assert.False(t, closed.IsModalOpen)
		assert.Nil(t, closed.FocusedPrizeID)
	})

	t.Run("flag and hide last result", func(t *testing.T) {
		flagged, err := repo.FlagLastResult(ctx, board.ID, prize.ID)
		require.NoError(t, err)
		assert.True(t, flagged.ShowLastResult)
		require.NotNil(t, flagged.FocusedPrizeID)
		assert.Equal(t, prize.ID, *flagged.FocusedPrizeID)

		hidden, err := repo.HideLastResult(ctx, board.ID)
		require.NoError(t, err)
		assert.False(t, hidden.ShowLastResult)
		assert.NotNil(t, hidden.FocusedPrizeID)
	})

	t.Run("later commit carries a later stamp", func(t *testing.T) {
		tx, err := testDB.DB.Begin(ctx)
		require.NoError(t, err)
		defer tx.Rollback(ctx)

		// the draw transaction starts first but writes after the hide commits
		time.Sleep(20 * time.Millisecond)
		hidden, err := repo.HideLastResult(ctx, board.ID)
		require.NoError(t, err)

		flagged, err := newOverlayStateRepositoryWithTx(tx).FlagLastResult(ctx, board.ID, prize.ID)
		require.NoError(t, err)
		require.NoError(t, tx.Commit(ctx))

		assert.True(t, flagged.UpdatedAt.After(hidden.UpdatedAt))

		current, err := repo.GetByBoard(ctx, board.ID)
		require.NoError(t, err)
		assert.True(t, current.ShowLastResult)
		assert.True(t, flagged.UpdatedAt.Equal(current.UpdatedAt))
	})

	t.Run("updated_at strictly increases", func(t *testing.T) {
		first, err := repo.HideLastResult(ctx, board.ID)
		require.NoError(t, err)
		second, err := repo.HideLastResult(ctx, board.ID)
		require.NoError(t, err)
		assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
	})
}
