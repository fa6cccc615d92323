package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"kuji/events"
	"kuji/models"
)

// MockBoardRepository is a mock implementation of BoardRepository
type MockBoardRepository struct {
	mock.Mock
}

func (m *MockBoardRepository) Create(ctx context.Context, board *models.Board) error {
	args := m.Called(ctx, board)
	return args.Error(0)
}

func (m *MockBoardRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Board, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Board), args.Error(1)
}

func (m *MockBoardRepository) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]*models.Board, error) {
	args := m.Called(ctx, sellerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Board), args.Error(1)
}

func (m *MockBoardRepository) Update(ctx context.Context, board *models.Board) error {
	args := m.Called(ctx, board)
	return args.Error(0)
}

func (m *MockBoardRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockPrizeRepository is a mock implementation of PrizeRepository
type MockPrizeRepository struct {
	mock.Mock
}

func (m *MockPrizeRepository) ListByBoard(ctx context.Context, boardID uuid.UUID) ([]*models.Prize, error) {
	args := m.Called(ctx, boardID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Prize), args.Error(1)
}

func (m *MockPrizeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Prize, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Prize), args.Error(1)
}

func (m *MockPrizeRepository) ReplaceAll(ctx context.Context, boardID uuid.UUID, prizes []*models.Prize) error {
	args := m.Called(ctx, boardID, prizes)
	return args.Error(0)
}

func (m *MockPrizeRepository) DecrementRemaining(ctx context.Context, boardID, prizeID uuid.UUID) (int, error) {
	args := m.Called(ctx, boardID, prizeID)
	return args.Int(0), args.Error(1)
}

func (m *MockPrizeRepository) FindLedgerDiscrepancies(ctx context.Context) ([]*models.LedgerDiscrepancy, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LedgerDiscrepancy), args.Error(1)
}

// MockDrawEventRepository is a mock implementation of DrawEventRepository
type MockDrawEventRepository struct {
	mock.Mock
}

func (m *MockDrawEventRepository) Create(ctx context.Context, event *models.DrawEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockDrawEventRepository) ListRecent(ctx context.Context, boardID uuid.UUID, limit int) ([]*models.DrawEventDetail, error) {
	args := m.Called(ctx, boardID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.DrawEventDetail), args.Error(1)
}

func (m *MockDrawEventRepository) GetLatest(ctx context.Context, boardID uuid.UUID) (*models.DrawEventDetail, error) {
	args := m.Called(ctx, boardID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DrawEventDetail), args.Error(1)
}

func (m *MockDrawEventRepository) CountByBoard(ctx context.Context, boardID uuid.UUID) (int, error) {
	args := m.Called(ctx, boardID)
	return args.Int(0), args.Error(1)
}

// MockOverlayStateRepository is a mock implementation of OverlayStateRepository
type MockOverlayStateRepository struct {
	mock.Mock
}

func (m *MockOverlayStateRepository) Create(ctx context.Context, boardID uuid.UUID) (*models.OverlayState, error) {
	args := m.Called(ctx, boardID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OverlayState), args.Error(1)
}

func (m *MockOverlayStateRepository) GetByBoard(ctx context.Context, boardID uuid.UUID) (*models.OverlayState, error) {
	args := m.Called(ctx, boardID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OverlayState), args.Error(1)
}

func (m *MockOverlayStateRepository) SetModal(ctx context.Context, boardID uuid.UUID, open bool, focusedPrizeID *uuid.UUID) (*models.OverlayState, error) {
	args := m.Called(ctx, boardID, open, focusedPrizeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OverlayState), args.Error(1)
}

func (m *MockOverlayStateRepository) FlagLastResult(ctx context.Context, boardID, prizeID uuid.UUID) (*models.OverlayState, error) {
	args := m.Called(ctx, boardID, prizeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OverlayState), args.Error(1)
}

func (m *MockOverlayStateRepository) HideLastResult(ctx context.Context, boardID uuid.UUID) (*models.OverlayState, error) {
	args := m.Called(ctx, boardID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OverlayState), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher for testing
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) {
	m.Called(event)
}

// MockUnitOfWork is a mock implementation of UnitOfWork
type MockUnitOfWork struct {
	mock.Mock
	boardRepo        BoardRepository
	prizeRepo        PrizeRepository
	drawEventRepo    DrawEventRepository
	overlayStateRepo OverlayStateRepository
	eventBus         EventPublisher
}

// SetRepositories wires the repositories returned by the mock
func (m *MockUnitOfWork) SetRepositories(boards BoardRepository, prizes PrizeRepository, draws DrawEventRepository, overlay OverlayStateRepository) {
	m.boardRepo = boards
	m.prizeRepo = prizes
	m.drawEventRepo = draws
	m.overlayStateRepo = overlay
}

// SetEventBus wires the publisher returned by EventBus
func (m *MockUnitOfWork) SetEventBus(bus EventPublisher) {
	m.eventBus = bus
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) BoardRepository() BoardRepository               { return m.boardRepo }
func (m *MockUnitOfWork) PrizeRepository() PrizeRepository               { return m.prizeRepo }
func (m *MockUnitOfWork) DrawEventRepository() DrawEventRepository       { return m.drawEventRepo }
func (m *MockUnitOfWork) OverlayStateRepository() OverlayStateRepository { return m.overlayStateRepo }
func (m *MockUnitOfWork) EventBus() EventPublisher                       { return m.eventBus }

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}

// MockBoardCache is a mock implementation of BoardCache
type MockBoardCache struct {
	mock.Mock
}

func (m *MockBoardCache) Get(ctx context.Context, boardID uuid.UUID, load func() (*models.Board, error)) (*models.Board, error) {
	args := m.Called(ctx, boardID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Board), args.Error(1)
}

func (m *MockBoardCache) Invalidate(ctx context.Context, boardID uuid.UUID) {
	m.Called(ctx, boardID)
}

// RecordingLocker is a DrawLocker that records the keys it was asked to lock
type RecordingLocker struct {
	mu   sync.Mutex
	Keys []string
	Err  error
}

func (l *RecordingLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	l.Keys = append(l.Keys, key)
	return func() {}, nil
}
