package testhelpers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"kuji/events"
	"kuji/models"
	"kuji/service"
)

// MemoryStore is an in-memory record store with the transactional behaviour
// of the Postgres unit of work: a unit of work sees a private copy of the data,
// Commit publishes it and flushes queued events, Rollback drops both.
// Units of work are serialized.
type MemoryStore struct {
	txMu sync.Mutex
	bus  *events.Bus

	mu     sync.Mutex
	data   *memData
	faults map[string]error
	clock  time.Time
}

// NewMemoryStore creates an empty store publishing committed events to bus
func NewMemoryStore(bus *events.Bus) *MemoryStore {
	return &MemoryStore{
		bus:    bus,
		data:   newMemData(),
		faults: make(map[string]error),
	}
}

// Create implements service.UnitOfWorkFactory
func (s *MemoryStore) Create() service.UnitOfWork {
	return &memoryUnitOfWork{store: s}
}

// FailOn makes the next call of op fail with err. Ops are named
// "<repository>.<method>", e.g. "prizes.DecrementRemaining".
func (s *MemoryStore) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

func (s *MemoryStore) fault(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.faults[op]
	delete(s.faults, op)
	return err
}

// now returns a strictly increasing timestamp so ordering by time is total
func (s *MemoryStore) now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := time.Now().UTC()
	if !t.After(s.clock) {
		t = s.clock.Add(time.Microsecond)
	}
	s.clock = t
	return t
}

func (s *MemoryStore) snapshot() *memData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.clone()
}

// SeedBoard inserts a board with its overlay state and prizes, bypassing services
func (s *MemoryStore) SeedBoard(sellerID uuid.UUID, title string, status models.BoardStatus, specs ...models.PrizeSpec) (*models.Board, []*models.Prize) {
	now := s.now()
	board := &models.Board{
		ID:           uuid.New(),
		SellerID:     sellerID,
		Title:        title,
		Status:       status,
		Mode:         models.BoardModeManual,
		OverlayToken: "token-" + uuid.NewString(),
		SoundEnabled: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	prizes := make([]*models.Prize, 0, len(specs))
	for i, spec := range specs {
		images := spec.Images
		if images == nil {
			images = []string{}
		}
		prizes = append(prizes, &models.Prize{
			ID:        uuid.New(),
			BoardID:   board.ID,
			Tier:      spec.Tier,
			Name:      spec.Name,
			QtyTotal:  spec.Quantity,
			QtyLeft:   spec.Quantity,
			Images:    images,
			SortOrder: i,
			CreatedAt: now,
		})
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.boards[board.ID] = copyBoard(board)
	s.data.overlay[board.ID] = &models.OverlayState{
		BoardID:          board.ID,
		ConnectionStatus: models.ConnectionStatusIdle,
		UpdatedAt:        now,
	}
	for _, p := range prizes {
		s.data.prizes[p.ID] = copyPrize(p)
	}
	return board, prizes
}

// Prize returns a committed copy of a prize, or nil
func (s *MemoryStore) Prize(id uuid.UUID) *models.Prize {
	p, ok := s.snapshot().prizes[id]
	if !ok {
		return nil
	}
	return p
}

// DrawEvents returns the committed draw events of a board, oldest first
func (s *MemoryStore) DrawEvents(boardID uuid.UUID) []*models.DrawEvent {
	var out []*models.DrawEvent
	for _, d := range s.snapshot().draws {
		if d.BoardID == boardID {
			out = append(out, d)
		}
	}
	return out
}

// OverlayState returns the committed overlay state of a board, or nil
func (s *MemoryStore) OverlayState(boardID uuid.UUID) *models.OverlayState {
	return s.snapshot().overlay[boardID]
}

// SetPrizeQtyLeft overwrites qty_left directly, bypassing the ledger
func (s *MemoryStore) SetPrizeQtyLeft(prizeID uuid.UUID, qtyLeft int) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.data.prizes[prizeID]; ok {
		p.QtyLeft = qtyLeft
	}
}

type memData struct {
	boards  map[uuid.UUID]*models.Board
	prizes  map[uuid.UUID]*models.Prize
	draws   []*models.DrawEvent
	overlay map[uuid.UUID]*models.OverlayState
}

func newMemData() *memData {
	return &memData{
		boards:  make(map[uuid.UUID]*models.Board),
		prizes:  make(map[uuid.UUID]*models.Prize),
		overlay: make(map[uuid.UUID]*models.OverlayState),
	}
}

func (d *memData) clone() *memData {
	c := newMemData()
	for id, b := range d.boards {
		c.boards[id] = copyBoard(b)
	}
	for id, p := range d.prizes {
		c.prizes[id] = copyPrize(p)
	}
	for _, e := range d.draws {
		c.draws = append(c.draws, copyDraw(e))
	}
	for id, o := range d.overlay {
		c.overlay[id] = copyOverlay(o)
	}
	return c
}

func copyBoard(b *models.Board) *models.Board {
	c := *b
	return &c
}

func copyPrize(p *models.Prize) *models.Prize {
	c := *p
	c.Images = append([]string{}, p.Images...)
	return &c
}

func copyDraw(e *models.DrawEvent) *models.DrawEvent {
	c := *e
	if e.PrizeID != nil {
		id := *e.PrizeID
		c.PrizeID = &id
	}
	return &c
}

func copyOverlay(o *models.OverlayState) *models.OverlayState {
	c := *o
	if o.FocusedPrizeID != nil {
		id := *o.FocusedPrizeID
		c.FocusedPrizeID = &id
	}
	return &c
}

type memoryUnitOfWork struct {
	store  *MemoryStore
	work   *memData
	txBus  *events.TransactionalBus
	active bool
}

func (u *memoryUnitOfWork) Begin(ctx context.Context) error {
	if u.active {
		return fmt.Errorf("transaction already started")
	}
	if err := u.store.fault("uow.Begin"); err != nil {
		return err
	}
	u.store.txMu.Lock()
	u.work = u.store.snapshot()
	u.txBus = events.NewTransactionalBus(u.store.bus)
	u.active = true
	return nil
}

func (u *memoryUnitOfWork) Commit() error {
	if !u.active {
		return fmt.Errorf("no transaction to commit")
	}
	if err := u.store.fault("uow.Commit"); err != nil {
		u.finish()
		return err
	}

	u.store.mu.Lock()
	u.store.data = u.work
	u.store.mu.Unlock()

	bus := u.txBus
	u.finish()
	bus.Flush()
	return nil
}

func (u *memoryUnitOfWork) Rollback() error {
	if !u.active {
		return nil
	}
	u.finish()
	return nil
}

func (u *memoryUnitOfWork) finish() {
	u.txBus.Discard()
	u.work = nil
	u.active = false
	u.store.txMu.Unlock()
}

func (u *memoryUnitOfWork) mustBegin() {
	if !u.active {
		panic("unit of work not started - call Begin() first")
	}
}

func (u *memoryUnitOfWork) BoardRepository() service.BoardRepository {
	u.mustBegin()
	return &memBoards{u}
}

func (u *memoryUnitOfWork) PrizeRepository() service.PrizeRepository {
	u.mustBegin()
	return &memPrizes{u}
}

func (u *memoryUnitOfWork) DrawEventRepository() service.DrawEventRepository {
	u.mustBegin()
	return &memDraws{u}
}

func (u *memoryUnitOfWork) OverlayStateRepository() service.OverlayStateRepository {
	u.mustBegin()
	return &memOverlay{u}
}

func (u *memoryUnitOfWork) EventBus() service.EventPublisher {
	u.mustBegin()
	return u.txBus
}

type memBoards struct{ u *memoryUnitOfWork }

func (r *memBoards) Create(ctx context.Context, board *models.Board) error {
	if err := r.u.store.fault("boards.Create"); err != nil {
		return err
	}
	now := r.u.store.now()
	board.CreatedAt, board.UpdatedAt = now, now
	r.u.work.boards[board.ID] = copyBoard(board)
	return nil
}

func (r *memBoards) GetByID(ctx context.Context, id uuid.UUID) (*models.Board, error) {
	if err := r.u.store.fault("boards.GetByID"); err != nil {
		return nil, err
	}
	b, ok := r.u.work.boards[id]
	if !ok {
		return nil, nil
	}
	return copyBoard(b), nil
}

func (r *memBoards) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]*models.Board, error) {
	var out []*models.Board
	for _, b := range r.u.work.boards {
		if b.SellerID == sellerID {
			out = append(out, copyBoard(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memBoards) Update(ctx context.Context, board *models.Board) error {
	if err := r.u.store.fault("boards.Update"); err != nil {
		return err
	}
	if _, ok := r.u.work.boards[board.ID]; !ok {
		return fmt.Errorf("board %s not found", board.ID)
	}
	board.UpdatedAt = r.u.store.now()
	r.u.work.boards[board.ID] = copyBoard(board)
	return nil
}

func (r *memBoards) Delete(ctx context.Context, id uuid.UUID) error {
	w := r.u.work
	delete(w.boards, id)
	delete(w.overlay, id)
	for pid, p := range w.prizes {
		if p.BoardID == id {
			delete(w.prizes, pid)
		}
	}
	kept := w.draws[:0]
	for _, d := range w.draws {
		if d.BoardID != id {
			kept = append(kept, d)
		}
	}
	w.draws = kept
	return nil
}

type memPrizes struct{ u *memoryUnitOfWork }

func (r *memPrizes) ListByBoard(ctx context.Context, boardID uuid.UUID) ([]*models.Prize, error) {
	if err := r.u.store.fault("prizes.ListByBoard"); err != nil {
		return nil, err
	}
	out := []*models.Prize{}
	for _, p := range r.u.work.prizes {
		if p.BoardID == boardID {
			out = append(out, copyPrize(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (r *memPrizes) GetByID(ctx context.Context, id uuid.UUID) (*models.Prize, error) {
	if err := r.u.store.fault("prizes.GetByID"); err != nil {
		return nil, err
	}
	p, ok := r.u.work.prizes[id]
	if !ok {
		return nil, nil
	}
	return copyPrize(p), nil
}

func (r *memPrizes) ReplaceAll(ctx context.Context, boardID uuid.UUID, prizes []*models.Prize) error {
	for id, p := range r.u.work.prizes {
		if p.BoardID == boardID {
			delete(r.u.work.prizes, id)
		}
	}
	now := r.u.store.now()
	for _, p := range prizes {
		p.CreatedAt = now
		r.u.work.prizes[p.ID] = copyPrize(p)
	}
	return nil
}

func (r *memPrizes) DecrementRemaining(ctx context.Context, boardID, prizeID uuid.UUID) (int, error) {
	if err := r.u.store.fault("prizes.DecrementRemaining"); err != nil {
		return 0, err
	}
	p, ok := r.u.work.prizes[prizeID]
	if !ok || p.BoardID != boardID || p.QtyLeft <= 0 {
		return 0, service.ErrSoldOut
	}
	p.QtyLeft--
	return p.QtyLeft, nil
}

func (r *memPrizes) FindLedgerDiscrepancies(ctx context.Context) ([]*models.LedgerDiscrepancy, error) {
	if err := r.u.store.fault("prizes.FindLedgerDiscrepancies"); err != nil {
		return nil, err
	}
	counts := make(map[uuid.UUID]int)
	for _, d := range r.u.work.draws {
		if d.PrizeID != nil {
			counts[*d.PrizeID]++
		}
	}
	var out []*models.LedgerDiscrepancy
	for _, p := range r.u.work.prizes {
		if p.QtyTotal-p.QtyLeft != counts[p.ID] {
			out = append(out, &models.LedgerDiscrepancy{
				BoardID:    p.BoardID,
				PrizeID:    p.ID,
				Tier:       p.Tier,
				QtyTotal:   p.QtyTotal,
				QtyLeft:    p.QtyLeft,
				EventCount: counts[p.ID],
			})
		}
	}
	return out, nil
}

type memDraws struct{ u *memoryUnitOfWork }

func (r *memDraws) Create(ctx context.Context, event *models.DrawEvent) error {
	if err := r.u.store.fault("draws.Create"); err != nil {
		return err
	}
	event.CreatedAt = r.u.store.now()
	r.u.work.draws = append(r.u.work.draws, copyDraw(event))
	return nil
}

func (r *memDraws) ListRecent(ctx context.Context, boardID uuid.UUID, limit int) ([]*models.DrawEventDetail, error) {
	if err := r.u.store.fault("draws.ListRecent"); err != nil {
		return nil, err
	}
	out := []*models.DrawEventDetail{}
	for i := len(r.u.work.draws) - 1; i >= 0 && len(out) < limit; i-- {
		if d := r.u.work.draws[i]; d.BoardID == boardID {
			out = append(out, r.detail(d))
		}
	}
	return out, nil
}

func (r *memDraws) GetLatest(ctx context.Context, boardID uuid.UUID) (*models.DrawEventDetail, error) {
	recent, err := r.ListRecent(ctx, boardID, 1)
	if err != nil || len(recent) == 0 {
		return nil, err
	}
	return recent[0], nil
}

func (r *memDraws) CountByBoard(ctx context.Context, boardID uuid.UUID) (int, error) {
	n := 0
	for _, d := range r.u.work.draws {
		if d.BoardID == boardID {
			n++
		}
	}
	return n, nil
}

func (r *memDraws) detail(d *models.DrawEvent) *models.DrawEventDetail {
	out := &models.DrawEventDetail{DrawEvent: *copyDraw(d)}
	if d.PrizeID != nil {
		if p, ok := r.u.work.prizes[*d.PrizeID]; ok {
			out.PrizeTier = p.Tier
			out.PrizeName = p.Name
		}
	}
	return out
}

type memOverlay struct{ u *memoryUnitOfWork }

func (r *memOverlay) Create(ctx context.Context, boardID uuid.UUID) (*models.OverlayState, error) {
	state := &models.OverlayState{
		BoardID:          boardID,
		ConnectionStatus: models.ConnectionStatusIdle,
		UpdatedAt:        r.u.store.now(),
	}
	r.u.work.overlay[boardID] = state
	return copyOverlay(state), nil
}

func (r *memOverlay) GetByBoard(ctx context.Context, boardID uuid.UUID) (*models.OverlayState, error) {
	if err := r.u.store.fault("overlay.GetByBoard"); err != nil {
		return nil, err
	}
	state, ok := r.u.work.overlay[boardID]
	if !ok {
		return nil, nil
	}
	return copyOverlay(state), nil
}

func (r *memOverlay) SetModal(ctx context.Context, boardID uuid.UUID, open bool, focusedPrizeID *uuid.UUID) (*models.OverlayState, error) {
	return r.update(boardID, "overlay.SetModal", func(s *models.OverlayState) {
		s.IsModalOpen = open
		s.FocusedPrizeID = nil
		if focusedPrizeID != nil {
			id := *focusedPrizeID
			s.FocusedPrizeID = &id
		}
	})
}

func (r *memOverlay) FlagLastResult(ctx context.Context, boardID, prizeID uuid.UUID) (*models.OverlayState, error) {
	return r.update(boardID, "overlay.FlagLastResult", func(s *models.OverlayState) {
		s.ShowLastResult = true
		s.FocusedPrizeID = &prizeID
	})
}

func (r *memOverlay) HideLastResult(ctx context.Context, boardID uuid.UUID) (*models.OverlayState, error) {
	return r.update(boardID, "overlay.HideLastResult", func(s *models.OverlayState) {
		s.ShowLastResult = false
	})
}

func (r *memOverlay) update(boardID uuid.UUID, op string, fn func(s *models.OverlayState)) (*models.OverlayState, error) {
	if err := r.u.store.fault(op); err != nil {
		return nil, err
	}
	state, ok := r.u.work.overlay[boardID]
	if !ok {
		return nil, nil
	}
	fn(state)
	state.UpdatedAt = r.u.store.now()
	return copyOverlay(state), nil
}
