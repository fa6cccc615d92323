package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kuji/models"
	"kuji/repository/testutil"
)

func TestDrawEventRepository(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	boards := NewBoardRepository(testDB.DB)
	prizes := NewPrizeRepository(testDB.DB)
	repo := NewDrawEventRepository(testDB.DB)
	ctx := context.Background()

	board := testutil.CreateTestBoard(uuid.New(), "Board")
	require.NoError(t, boards.Create(ctx, board))
	prize := testutil.CreateTestPrize(board.ID, "A", "Figure", 5, 0)
	require.NoError(t, prizes.ReplaceAll(ctx, board.ID, []*models.Prize{prize}))

	t.Run("empty board", func(t *testing.T) {
		latest, err := repo.GetLatest(ctx, board.ID)
		require.NoError(t, err)
		assert.Nil(t, latest)

		count, err := repo.CountByBoard(ctx, board.ID)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("recent most recent first with prize", func(t *testing.T) {
		for _, viewer := range []string{"Alice", "Bob", "Carol"} {
			require.NoError(t, repo.Create(ctx, testutil.CreateTestDrawEvent(board.ID, prize.ID, viewer)))
		}

		recent, err := repo.ListRecent(ctx, board.ID, 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, "Carol", recent[0].ViewerName)
		assert.Equal(t, "Bob", recent[1].ViewerName)
		assert.Equal(t, "A", recent[0].PrizeTier)
		assert.Equal(t, "Figure", recent[0].PrizeName)

		latest, err := repo.GetLatest(ctx, board.ID)
		require.NoError(t, err)
		assert.Equal(t, "Carol", latest.ViewerName)

		count, err := repo.CountByBoard(ctx, board.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})

	t.Run("blank viewer rejected by the store", func(t *testing.T) {
		err := repo.Create(ctx, testutil.CreateTestDrawEvent(board.ID, prize.ID, "  "))
		assert.Error(t, err)
	})

	t.Run("prize removal keeps the event", func(t *testing.T) {
		require.NoError(t, prizes.ReplaceAll(ctx, board.ID, nil))

		latest, err := repo.GetLatest(ctx, board.ID)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Nil(t, latest.PrizeID)
		assert.Empty(t, latest.PrizeTier)
		assert.False(t, latest.IsWin())
	})
}
