package testutil

import (
	"github.com/google/uuid"

	"kuji/models"
)

// CreateTestBoard creates an unsaved live board owned by sellerID
func CreateTestBoard(sellerID uuid.UUID, title string) *models.Board {
	return &models.Board{
		ID:           uuid.New(),
		SellerID:     sellerID,
		Title:        title,
		Status:       models.BoardStatusLive,
		Mode:         models.BoardModeManual,
		OverlayToken: "token-" + uuid.NewString(),
		SoundEnabled: true,
	}
}

// CreateTestPrize creates an unsaved prize with full quantity
func CreateTestPrize(boardID uuid.UUID, tier, name string, qty, sortOrder int) *models.Prize {
	return &models.Prize{
		ID:        uuid.New(),
		BoardID:   boardID,
		Tier:      tier,
		Name:      name,
		QtyTotal:  qty,
		QtyLeft:   qty,
		Images:    []string{},
		SortOrder: sortOrder,
	}
}

// CreateTestDrawEvent creates an unsaved draw event
func CreateTestDrawEvent(boardID, prizeID uuid.UUID, viewer string) *models.DrawEvent {
	return &models.DrawEvent{
		ID:         uuid.New(),
		BoardID:    boardID,
		PrizeID:    &prizeID,
		ViewerName: viewer,
	}
}
