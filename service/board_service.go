package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"kuji/events"
	"kuji/models"
)

const overlayTokenBytes = 24

type boardService struct {
	uowFactory UnitOfWorkFactory
	boardCache BoardCache
}

// NewBoardService creates the board structural editor. boardCache may be nil.
func NewBoardService(uowFactory UnitOfWorkFactory, boardCache BoardCache) BoardService {
	return &boardService{
		uowFactory: uowFactory,
		boardCache: boardCache,
	}
}

// NewOverlayToken returns a fresh opaque overlay token
func NewOverlayToken() (string, error) {
	buf := make([]byte, overlayTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate overlay token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (s *boardService) Create(ctx context.Context, sellerID uuid.UUID, details BoardDetails) (*models.Board, error) {
	title := strings.TrimSpace(details.Title)
	if title == "" {
		return nil, NewValidationError("Enter a board title")
	}

	token, err := NewOverlayToken()
	if err != nil {
		return nil, NewStoreError(err, "generate overlay token")
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, NewStoreError(err, "begin transaction")
	}
	defer uow.Rollback()

	board := &models.Board{
		ID:           uuid.New(),
		SellerID:     sellerID,
		Title:        title,
		Description:  strings.TrimSpace(details.Description),
		Status:       models.BoardStatusDraft,
		Mode:         models.BoardModeManual,
		OverlayToken: token,
		SoundEnabled: details.SoundEnabled,
	}
	if err := uow.BoardRepository().Create(ctx, board); err != nil {
		return nil, NewStoreError(err, "create board")
	}
	if _, err := uow.OverlayStateRepository().Create(ctx, board.ID); err != nil {
		return nil, NewStoreError(err, "create overlay state")
	}

	uow.EventBus().Publish(events.BoardChangedEvent{BoardID: board.ID})

	if err := uow.Commit(); err != nil {
		return nil, NewStoreError(err, "commit board")
	}

	log.WithFields(log.Fields{
		"board_id":  board.ID,
		"seller_id": sellerID,
	}).Info("Board created")
	return board, nil
}

func (s *boardService) List(ctx context.Context, sellerID uuid.UUID) ([]*models.Board, error) {
	return read(ctx, s.uowFactory, "list boards", func(uow UnitOfWork) ([]*models.Board, error) {
		return uow.BoardRepository().ListBySeller(ctx, sellerID)
	})
}

func (s *boardService) Get(ctx context.Context, sellerID, boardID uuid.UUID) (*models.Board, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, NewStoreError(err, "begin transaction")
	}
	defer uow.Rollback()

	return loadOwned(ctx, uow, sellerID, boardID)
}

func (s *boardService) UpdateDetails(ctx context.Context, sellerID, boardID uuid.UUID, details BoardDetails) (*models.Board, error) {
	title := strings.TrimSpace(details.Title)
	if title == "" {
		return nil, NewValidationError("Enter a board title")
	}

	return s.mutate(ctx, sellerID, boardID, func(board *models.Board) error {
		board.Title = title
		board.Description = strings.TrimSpace(details.Description)
		board.SoundEnabled = details.SoundEnabled
		return nil
	})
}

func (s *boardService) TransitionStatus(ctx context.Context, sellerID, boardID uuid.UUID, status models.BoardStatus) (*models.Board, error) {
	if !status.Valid() {
		return nil, NewValidationError("Unknown board status %q", status)
	}

	return s.mutate(ctx, sellerID, boardID, func(board *models.Board) error {
		if !board.Status.CanTransitionTo(status) {
			return NewValidationError("Cannot move a %s board to %s", board.Status, status)
		}
		board.Status = status
		return nil
	})
}

func (s *boardService) RotateOverlayToken(ctx context.Context, sellerID, boardID uuid.UUID) (*models.Board, error) {
	token, err := NewOverlayToken()
	if err != nil {
		return nil, NewStoreError(err, "generate overlay token")
	}

	return s.mutate(ctx, sellerID, boardID, func(board *models.Board) error {
		board.OverlayToken = token
		return nil
	})
}

func (s *boardService) ReplacePrizes(ctx context.Context, sellerID, boardID uuid.UUID, specs []models.PrizeSpec, totalDraws int) ([]*models.Prize, error) {
	prizes, err := buildPrizeSet(boardID, specs, totalDraws)
	if err != nil {
		return nil, err
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, NewStoreError(err, "begin transaction")
	}
	defer uow.Rollback()

	board, err := loadOwned(ctx, uow, sellerID, boardID)
	if err != nil {
		return nil, err
	}
	if board.Status != models.BoardStatusDraft {
		return nil, NewValidationError("Prizes can only be edited while the board is a draft")
	}

	count, err := uow.DrawEventRepository().CountByBoard(ctx, boardID)
	if err != nil {
		return nil, NewStoreError(err, "count draw events")
	}
	if count > 0 {
		return nil, NewValidationError("Prizes cannot be edited after the first draw")
	}

	if err := uow.PrizeRepository().ReplaceAll(ctx, boardID, prizes); err != nil {
		return nil, NewStoreError(err, "replace prizes")
	}

	uow.EventBus().Publish(events.PrizeChangedEvent{BoardID: boardID})

	if err := uow.Commit(); err != nil {
		return nil, NewStoreError(err, "commit prizes")
	}
	return prizes, nil
}

// buildPrizeSet validates tier specs and appends the blank tier covering the remainder
func buildPrizeSet(boardID uuid.UUID, specs []models.PrizeSpec, totalDraws int) ([]*models.Prize, error) {
	if len(specs) == 0 {
		return nil, NewValidationError("Add at least one prize tier")
	}

	prizes := make([]*models.Prize, 0, len(specs)+1)
	winning := 0
	for i, spec := range specs {
		tier := strings.TrimSpace(spec.Tier)
		name := strings.TrimSpace(spec.Name)
		switch {
		case tier == "":
			return nil, NewValidationError("Tier %d needs a label", i+1)
		case tier == models.BlankTier:
			return nil, NewValidationError("%q is reserved for the blank tier", models.BlankTier)
		case name == "":
			return nil, NewValidationError("Enter a prize name for every tier")
		case spec.Quantity < 1:
			return nil, NewValidationError("%s needs a quantity of at least 1", tier)
		}

		images := spec.Images
		if images == nil {
			images = []string{}
		}
		prizes = append(prizes, &models.Prize{
			ID:          uuid.New(),
			BoardID:     boardID,
			Tier:        tier,
			Name:        name,
			Description: strings.TrimSpace(spec.Description),
			QtyTotal:    spec.Quantity,
			QtyLeft:     spec.Quantity,
			Images:      images,
			SortOrder:   i,
		})
		winning += spec.Quantity
	}

	if totalDraws == 0 {
		totalDraws = winning
	}
	if winning > totalDraws {
		return nil, NewValidationError("Winning prizes (%d) exceed the total number of draws (%d)", winning, totalDraws)
	}

	if blank := totalDraws - winning; blank > 0 {
		prizes = append(prizes, &models.Prize{
			ID:        uuid.New(),
			BoardID:   boardID,
			Tier:      models.BlankTier,
			Name:      models.BlankTier,
			QtyTotal:  blank,
			QtyLeft:   blank,
			Images:    []string{},
			SortOrder: len(specs),
		})
	}
	return prizes, nil
}

func (s *boardService) Delete(ctx context.Context, sellerID, boardID uuid.UUID) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return NewStoreError(err, "begin transaction")
	}
	defer uow.Rollback()

	if _, err := loadOwned(ctx, uow, sellerID, boardID); err != nil {
		return err
	}
	if err := uow.BoardRepository().Delete(ctx, boardID); err != nil {
		return NewStoreError(err, "delete board")
	}

	uow.EventBus().Publish(events.BoardChangedEvent{BoardID: boardID, Deleted: true})

	s.invalidate(ctx, boardID)
	if err := uow.Commit(); err != nil {
		return NewStoreError(err, "commit board deletion")
	}

	s.invalidate(ctx, boardID)
	log.WithField("board_id", boardID).Info("Board torn down")
	return nil
}

func (s *boardService) VerifyOverlayToken(ctx context.Context, boardID uuid.UUID, token string) (*models.Board, error) {
	if token == "" {
		return nil, NewAuthorizationError("Overlay token is required")
	}

	// always read through to the store; a cached board may hold a rotated token
	board, err := read(ctx, s.uowFactory, "load board", func(uow UnitOfWork) (*models.Board, error) {
		return uow.BoardRepository().GetByID(ctx, boardID)
	})
	if err != nil {
		return nil, err
	}
	if board == nil {
		return nil, NewNotFoundError("board")
	}
	if subtle.ConstantTimeCompare([]byte(board.OverlayToken), []byte(token)) != 1 {
		return nil, NewAuthorizationError("Invalid overlay token")
	}
	return board, nil
}

// mutate loads an owned board, applies fn and persists it with a board_changed event
func (s *boardService) mutate(ctx context.Context, sellerID, boardID uuid.UUID, fn func(board *models.Board) error) (*models.Board, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, NewStoreError(err, "begin transaction")
	}
	defer uow.Rollback()

	board, err := loadOwned(ctx, uow, sellerID, boardID)
	if err != nil {
		return nil, err
	}
	if err := fn(board); err != nil {
		return nil, err
	}
	if err := uow.BoardRepository().Update(ctx, board); err != nil {
		return nil, NewStoreError(err, "update board")
	}

	uow.EventBus().Publish(events.BoardChangedEvent{BoardID: boardID})

	// board_changed handlers run as soon as Commit flushes, so the cached
	// copy is dropped before it and again after it
	s.invalidate(ctx, boardID)
	if err := uow.Commit(); err != nil {
		return nil, NewStoreError(err, "commit board")
	}

	s.invalidate(ctx, boardID)
	return board, nil
}

func (s *boardService) invalidate(ctx context.Context, boardID uuid.UUID) {
	if s.boardCache != nil {
		s.boardCache.Invalidate(ctx, boardID)
	}
}

func loadOwned(ctx context.Context, uow UnitOfWork, sellerID, boardID uuid.UUID) (*models.Board, error) {
	board, err := uow.BoardRepository().GetByID(ctx, boardID)
	if err != nil {
		return nil, NewStoreError(err, "load board")
	}
	if board == nil {
		return nil, NewNotFoundError("board")
	}
	if !board.OwnedBy(sellerID) {
		return nil, NewAuthorizationError("You do not own this board")
	}
	return board, nil
}
