package overlay

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"kuji/events"
	"kuji/models"
	"kuji/service"
)

// DefaultRevealDelay is the pre-roll between reveal_start and reveal_mount
const DefaultRevealDelay = 500 * time.Millisecond

// Phase is the stage of the result reveal
type Phase string

const (
	PhaseHidden  Phase = "hidden"
	PhasePending Phase = "pending"
	PhaseShown   Phase = "shown"
)

// Cue is an animation trigger emitted on a state edge
type Cue string

const (
	CueModalEnter  Cue = "modal_enter"
	CueModalExit   Cue = "modal_exit"
	CueRevealStart Cue = "reveal_start"
	CueRevealMount Cue = "reveal_mount"
	CueRevealHide  Cue = "reveal_hide"
)

// Snapshot is one reload of everything the overlay shows
type Snapshot struct {
	Board    *models.Board
	Prizes   []*models.Prize
	State    *models.OverlayState
	LastDraw *models.DrawEventDetail
}

// Dependencies are the collaborators of a session
type Dependencies struct {
	Boards      service.BoardService
	Query       service.QueryService
	Bus         *events.Bus
	RevealDelay time.Duration
}

// FrameFunc receives every new frame along with the cues that produced it
type FrameFunc func(frame Frame, cues []Cue)

// Session renders one board for one broadcast source
type Session struct {
	deps    Dependencies
	boardID uuid.UUID

	refreshMu sync.Mutex

	mu        sync.Mutex
	token     string
	denied    error
	board     *models.Board
	prizes    []*models.Prize
	lastDraw  *models.DrawEventDetail
	observed  *models.OverlayState
	modalOpen bool
	phase     Phase
	revealGen int
	timer     *time.Timer
	onFrame   FrameFunc
	subs      []*events.Subscription
	closed    bool
}

// NewSession creates an overlay session for boardID
func NewSession(deps Dependencies, boardID uuid.UUID) *Session {
	if deps.RevealDelay <= 0 {
		deps.RevealDelay = DefaultRevealDelay
	}
	return &Session{
		deps:    deps,
		boardID: boardID,
		phase:   PhaseHidden,
	}
}

// Load checks the overlay token before anything else is loaded, then
// loads the board once. Only an AuthorizationError or a NotFoundError denies
// the session for good; a store failure leaves it loading so Load can be retried.
func (s *Session) Load(ctx context.Context, token string) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	if _, err := s.deps.Boards.VerifyOverlayToken(ctx, s.boardID, token); err != nil {
		if terminal(err) {
			s.deny(err)
		}
		return err
	}

	_, err := s.Refresh(ctx)
	return err
}

// Open loads the board and follows its changes, pushing every frame to onFrame
func (s *Session) Open(ctx context.Context, token string, onFrame FrameFunc) error {
	if err := s.Load(ctx, token); err != nil {
		return err
	}

	s.mu.Lock()
	s.onFrame = onFrame
	for _, t := range events.AllTypes {
		s.subs = append(s.subs, s.deps.Bus.Subscribe(t, s.boardID, s.notify))
	}
	s.mu.Unlock()
	return nil
}

// Close stops the reveal timer and unsubscribes
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	subs := s.subs
	s.subs = nil
	s.onFrame = nil
	s.mu.Unlock()

	for _, sub := range subs {
		s.deps.Bus.Unsubscribe(sub)
	}
}

func (s *Session) deny(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.denied == nil {
		s.denied = err
		log.WithFields(log.Fields{
			"board_id": s.boardID,
			"reason":   service.KindOf(err),
		}).Info("Overlay access denied")
	}
}

func terminal(err error) bool {
	return service.IsAuthorization(err) || service.IsNotFound(err)
}

// Denied returns the error that denied the session, or nil
func (s *Session) Denied() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.denied
}

func (s *Session) notify(ctx context.Context, e events.Event) {
	s.mu.Lock()
	skip := s.closed || s.denied != nil
	s.mu.Unlock()
	if skip {
		return
	}

	// board changes may rotate the token or delete the board
	if e.Type() == events.EventTypeBoardChanged {
		s.mu.Lock()
		token := s.token
		s.mu.Unlock()
		if _, err := s.deps.Boards.VerifyOverlayToken(context.Background(), s.boardID, token); err != nil {
			if terminal(err) {
				s.deny(err)
				s.push(nil)
				return
			}
		}
	}

	cues, err := s.Refresh(context.Background())
	if err != nil {
		log.WithFields(log.Fields{
			"board_id":  s.boardID,
			"eventType": e.Type(),
			"error":     err,
		}).Warn("Overlay refresh failed")
		return
	}
	s.push(cues)
}

// Refresh reloads the board, prizes, overlay state and latest draw, then applies them
func (s *Session) Refresh(ctx context.Context) ([]Cue, error) {
	if err := s.Denied(); err != nil {
		return nil, err
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	var snap Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.Board, err = s.deps.Query.Board(gctx, s.boardID)
		return err
	})
	g.Go(func() (err error) {
		snap.Prizes, err = s.deps.Query.Prizes(gctx, s.boardID)
		return err
	})
	g.Go(func() (err error) {
		snap.State, err = s.deps.Query.OverlayState(gctx, s.boardID)
		return err
	})
	g.Go(func() (err error) {
		snap.LastDraw, err = s.deps.Query.LatestDraw(gctx, s.boardID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return s.Apply(snap), nil
}

// Apply diffs snap against the last observed overlay state and returns
// the cues for every edge crossed. Re-applying the same levels yields no cues.
func (s *Session) Apply(snap Snapshot) []Cue {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.denied != nil {
		return nil
	}
	if snap.Board != nil {
		s.board = snap.Board
	}
	if snap.Prizes != nil {
		s.prizes = snap.Prizes
	}
	if snap.LastDraw != nil {
		s.lastDraw = snap.LastDraw
	}

	state := snap.State
	if state == nil {
		return nil
	}
	prev := s.observed
	if prev != nil && state.UpdatedAt.Before(prev.UpdatedAt) {
		// a stale read delivered after a newer one
		return nil
	}

	var (
		cues     []Cue
		wasOpen  bool
		wasShown bool
	)
	if prev != nil {
		wasOpen = prev.IsModalOpen
		wasShown = prev.ShowLastResult
	}

	switch {
	case state.IsModalOpen && !wasOpen:
		cues = append(cues, CueModalEnter)
	case !state.IsModalOpen && wasOpen:
		cues = append(cues, CueModalExit)
	}
	s.modalOpen = state.IsModalOpen

	switch {
	case state.ShowLastResult && !wasShown:
		s.startRevealLocked()
		cues = append(cues, CueRevealStart)
	case !state.ShowLastResult && wasShown:
		s.hideRevealLocked()
		cues = append(cues, CueRevealHide)
	}

	observed := *state
	s.observed = &observed
	return cues
}

func (s *Session) startRevealLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.revealGen++
	gen := s.revealGen
	s.phase = PhasePending
	s.timer = time.AfterFunc(s.deps.RevealDelay, func() { s.mount(gen) })
}

func (s *Session) hideRevealLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.revealGen++
	s.phase = PhaseHidden
}

func (s *Session) mount(gen int) {
	s.mu.Lock()
	if s.closed || gen != s.revealGen || s.phase != PhasePending {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseShown
	s.mu.Unlock()

	s.push([]Cue{CueRevealMount})
}

// Settle skips a pending reveal straight to shown. Used for one-shot renders.
func (s *Session) Settle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhasePending {
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		s.revealGen++
		s.phase = PhaseShown
	}
}

// Phase returns the current reveal phase
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) push(cues []Cue) {
	s.mu.Lock()
	onFrame := s.onFrame
	frame := s.frameLocked()
	s.mu.Unlock()

	if onFrame != nil {
		onFrame(frame, cues)
	}
}
