package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kuji/models"
	"kuji/repository/testutil"
	"kuji/service"
)

func TestPrizeRepository(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	boards := NewBoardRepository(testDB.DB)
	repo := NewPrizeRepository(testDB.DB)
	draws := NewDrawEventRepository(testDB.DB)
	ctx := context.Background()

	newBoard := func(t *testing.T) *models.Board {
		board := testutil.CreateTestBoard(uuid.New(), "Board")
		require.NoError(t, boards.Create(ctx, board))
		return board
	}

	t.Run("replace all keeps sort order", func(t *testing.T) {
		board := newBoard(t)
		old := testutil.CreateTestPrize(board.ID, "Old", "Gone", 1, 0)
		require.NoError(t, repo.ReplaceAll(ctx, board.ID, []*models.Prize{old}))

		a := testutil.CreateTestPrize(board.ID, "A", "Figure", 1, 0)
		a.Images = []string{"https://img.example/a.png"}
		b := testutil.CreateTestPrize(board.ID, "B", "Keyring", 3, 1)
		require.NoError(t, repo.ReplaceAll(ctx, board.ID, []*models.Prize{b, a}))

		prizes, err := repo.ListByBoard(ctx, board.ID)
		require.NoError(t, err)
		require.Len(t, prizes, 2)
		assert.Equal(t, "A", prizes[0].Tier)
		assert.Equal(t, []string{"https://img.example/a.png"}, prizes[0].Images)
		assert.Equal(t, "B", prizes[1].Tier)
		assert.Equal(t, []string{}, prizes[1].Images)
	})

	t.Run("decrement stops at zero", func(t *testing.T) {
		board := newBoard(t)
		prize := testutil.CreateTestPrize(board.ID, "A", "Figure", 2, 0)
		require.NoError(t, repo.ReplaceAll(ctx, board.ID, []*models.Prize{prize}))

		left, err := repo.DecrementRemaining(ctx, board.ID, prize.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, left)
		left, err = repo.DecrementRemaining(ctx, board.ID, prize.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, left)

		_, err = repo.DecrementRemaining(ctx, board.ID, prize.ID)
		assert.ErrorIs(t, err, service.ErrSoldOut)
	})

	t.Run("decrement scoped to board", func(t *testing.T) {
		board := newBoard(t)
		prize := testutil.CreateTestPrize(board.ID, "A", "Figure", 2, 0)
		require.NoError(t, repo.ReplaceAll(ctx, board.ID, []*models.Prize{prize}))

		_, err := repo.DecrementRemaining(ctx, uuid.New(), prize.ID)
		assert.ErrorIs(t, err, service.ErrSoldOut)
	})

	t.Run("concurrent decrements never go negative", func(t *testing.T) {
		board := newBoard(t)
		prize := testutil.CreateTestPrize(board.ID, "A", "Figure", 3, 0)
		require.NoError(t, repo.ReplaceAll(ctx, board.ID, []*models.Prize{prize}))

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			success int
		)
		for i := 0; i < 12; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := repo.DecrementRemaining(ctx, board.ID, prize.ID); err == nil {
					mu.Lock()
					success++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 3, success)
		got, err := repo.GetByID(ctx, prize.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.QtyLeft)
	})

	t.Run("ledger discrepancies", func(t *testing.T) {
		board := newBoard(t)
		consistent := testutil.CreateTestPrize(board.ID, "A", "Figure", 2, 0)
		drifted := testutil.CreateTestPrize(board.ID, "B", "Keyring", 2, 1)
		require.NoError(t, repo.ReplaceAll(ctx, board.ID, []*models.Prize{consistent, drifted}))

		require.NoError(t, draws.Create(ctx, testutil.CreateTestDrawEvent(board.ID, consistent.ID, "Alice")))
		_, err := repo.DecrementRemaining(ctx, board.ID, consistent.ID)
		require.NoError(t, err)
		_, err = repo.DecrementRemaining(ctx, board.ID, drifted.ID)
		require.NoError(t, err)

		found, err := repo.FindLedgerDiscrepancies(ctx)
		require.NoError(t, err)

		var mine []*models.LedgerDiscrepancy
		for _, d := range found {
			if d.BoardID == board.ID {
				mine = append(mine, d)
			}
		}
		require.Len(t, mine, 1)
		assert.Equal(t, drifted.ID, mine[0].PrizeID)
		assert.Equal(t, 1, mine[0].Drift())
	})
}
