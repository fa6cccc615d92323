package controlroom

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"kuji/events"
	"kuji/models"
	"kuji/service"
)

// Keys handled by HandleKey besides the digits 1-9
const (
	KeyEscape = "Escape"
	KeyEnter  = "Enter"
)

const defaultRecentLimit = 20

// NoticeLevel classifies a notice shown to the operator
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notice is a transient, dismissible message for the operator
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

// Counters are the board-wide draw aggregates
type Counters struct {
	Remaining int `json:"remaining"`
	Total     int `json:"total"`
}

// View is everything the control room renders
type View struct {
	Board           *models.Board             `json:"board"`
	Prizes          []*models.Prize           `json:"prizes"`
	BlankPrize      *models.Prize             `json:"blank_prize,omitempty"`
	RecentDraws     []*models.DrawEventDetail `json:"recent_draws"`
	Overlay         *models.OverlayState      `json:"overlay"`
	SelectedPrizeID *uuid.UUID                `json:"selected_prize_id"`
	ViewerName      string                    `json:"viewer_name"`
	Counters        Counters                  `json:"counters"`
	Drawing         bool                      `json:"drawing"`
	Notice          *Notice                   `json:"notice,omitempty"`
	FocusInput      bool                      `json:"focus_input"`
}

// DrawLimiter bounds draw submissions per board
type DrawLimiter interface {
	Allow(ctx context.Context, boardID uuid.UUID) error
}

// Dependencies are the collaborators of a session
type Dependencies struct {
	Query       service.QueryService
	Ledger      service.LedgerService
	Overlay     service.OverlayStateService
	Bus         *events.Bus
	Limiter     DrawLimiter
	RecentLimit int
}

// Session is one operator's control room for one board
type Session struct {
	deps    Dependencies
	boardID uuid.UUID

	// refreshMu serializes reloads so an older snapshot never overwrites a newer one
	refreshMu sync.Mutex

	mu         sync.Mutex
	board      *models.Board
	prizes     []*models.Prize
	display    []*models.Prize
	blank      *models.Prize
	draws      []*models.DrawEventDetail
	overlay    *models.OverlayState
	selected   *uuid.UUID
	viewerName string
	drawing    bool
	notice     *Notice
	focusInput bool
	onChange   func(View)
	subs       []*events.Subscription
	closed     bool
}

// NewSession creates a control room session for boardID
func NewSession(deps Dependencies, boardID uuid.UUID) *Session {
	if deps.RecentLimit <= 0 {
		deps.RecentLimit = defaultRecentLimit
	}
	return &Session{
		deps:    deps,
		boardID: boardID,
	}
}

// Open loads the board and subscribes to its four record sets.
// onChange receives a fresh View after every change; it may be nil.
func (s *Session) Open(ctx context.Context, onChange func(View)) error {
	if err := s.Refresh(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.onChange = onChange
	for _, t := range events.AllTypes {
		s.subs = append(s.subs, s.deps.Bus.Subscribe(t, s.boardID, s.notify))
	}
	s.mu.Unlock()

	log.WithField("board_id", s.boardID).Debug("Control room session opened")
	return nil
}

// Close unsubscribes the session. Deliveries already in flight are dropped.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	subs := s.subs
	s.subs = nil
	s.onChange = nil
	s.mu.Unlock()

	for _, sub := range subs {
		s.deps.Bus.Unsubscribe(sub)
	}
}

func (s *Session) notify(ctx context.Context, e events.Event) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	// notifications only say "something changed"; the store is the source of truth
	if err := s.Refresh(context.Background()); err != nil {
		log.WithFields(log.Fields{
			"board_id":  s.boardID,
			"eventType": e.Type(),
			"error":     err,
		}).Warn("Control room refresh failed")
	}
	s.push()
}

// Refresh reloads the board, prizes, recent draws and overlay state in parallel
func (s *Session) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	var (
		board   *models.Board
		prizes  []*models.Prize
		draws   []*models.DrawEventDetail
		overlay *models.OverlayState
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		board, err = s.deps.Query.Board(gctx, s.boardID)
		return err
	})
	g.Go(func() (err error) {
		prizes, err = s.deps.Query.Prizes(gctx, s.boardID)
		return err
	})
	g.Go(func() (err error) {
		draws, err = s.deps.Query.RecentDraws(gctx, s.boardID, s.deps.RecentLimit)
		return err
	})
	g.Go(func() (err error) {
		overlay, err = s.deps.Query.OverlayState(gctx, s.boardID)
		return err
	})
	if err := g.Wait(); err != nil {
		s.mu.Lock()
		s.notice = noticeFor(err)
		s.mu.Unlock()
		return err
	}

	display, blank := models.SplitBlank(prizes)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.board = board
	s.prizes = prizes
	s.display = display
	s.blank = blank
	s.draws = draws
	s.overlay = overlay
	if s.selected != nil && models.FindPrize(prizes, *s.selected) == nil {
		s.selected = nil
	}
	return nil
}

// View returns the current view
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	v := View{
		Board:       s.board,
		Prizes:      append([]*models.Prize{}, s.display...),
		BlankPrize:  s.blank,
		RecentDraws: append([]*models.DrawEventDetail{}, s.draws...),
		Overlay:     s.overlay,
		ViewerName:  s.viewerName,
		Counters:    countersOf(s.prizes),
		Drawing:     s.drawing,
		Notice:      s.notice,
		FocusInput:  s.focusInput,
	}
	if s.selected != nil {
		id := *s.selected
		v.SelectedPrizeID = &id
	}
	return v
}

func (s *Session) push() {
	s.mu.Lock()
	onChange := s.onChange
	view := s.viewLocked()
	s.mu.Unlock()

	if onChange != nil {
		onChange(view)
	}
}

// countersOf sums remaining and total over every prize, clamping each prize
func countersOf(prizes []*models.Prize) Counters {
	var c Counters
	for _, p := range prizes {
		c.Remaining += p.Remaining()
		c.Total += p.QtyTotal
	}
	return c
}

// HandleKey applies the keyboard contract. inputFocused reports whether a
// text input held focus when the key was pressed.
func (s *Session) HandleKey(ctx context.Context, key string, inputFocused bool) error {
	if inputFocused {
		if key != KeyEnter {
			return nil
		}
		s.mu.Lock()
		hasSelection := s.selected != nil
		s.mu.Unlock()
		if !hasSelection {
			return nil
		}
		_, err := s.SubmitDraw(ctx)
		return err
	}

	switch {
	case key == KeyEscape:
		s.mu.Lock()
		s.selected = nil
		s.viewerName = ""
		s.focusInput = false
		s.mu.Unlock()
	case len(key) == 1 && key[0] >= '1' && key[0] <= '9':
		n, _ := strconv.Atoi(key)
		s.mu.Lock()
		if n > len(s.display) {
			s.mu.Unlock()
			return nil
		}
		id := s.display[n-1].ID
		s.selected = &id
		s.focusInput = true
		s.mu.Unlock()
	default:
		return nil
	}

	s.push()
	return nil
}

// SelectPrize selects any prize of the board, including the blank tier
func (s *Session) SelectPrize(prizeID uuid.UUID) error {
	s.mu.Lock()
	if models.FindPrize(s.prizes, prizeID) == nil {
		s.mu.Unlock()
		return service.NewNotFoundError("prize")
	}
	s.selected = &prizeID
	s.focusInput = true
	s.mu.Unlock()

	s.push()
	return nil
}

// ClearSelection drops the selected prize
func (s *Session) ClearSelection() {
	s.mu.Lock()
	s.selected = nil
	s.mu.Unlock()
	s.push()
}

// SetViewerName stores the viewer name input verbatim
func (s *Session) SetViewerName(name string) {
	s.mu.Lock()
	s.viewerName = name
	s.focusInput = false
	s.mu.Unlock()
}

// DismissNotice clears the current notice
func (s *Session) DismissNotice() {
	s.mu.Lock()
	s.notice = nil
	s.mu.Unlock()
	s.push()
}

// SubmitDraw draws the selected prize for the entered viewer name.
// On failure the selection and input are kept for a retry.
func (s *Session) SubmitDraw(ctx context.Context) (*models.DrawEvent, error) {
	s.mu.Lock()
	prizeID, viewerName, err := s.drawGuardsLocked()
	if err != nil {
		s.notice = noticeFor(err)
		s.mu.Unlock()
		s.push()
		return nil, err
	}
	s.drawing = true
	s.mu.Unlock()
	s.push()

	event, err := s.commit(ctx, prizeID, viewerName)

	s.mu.Lock()
	s.drawing = false
	if err != nil {
		s.notice = noticeFor(err)
	} else {
		s.notice = &Notice{Level: NoticeSuccess, Message: s.successMessage(prizeID, viewerName)}
		s.selected = nil
		s.viewerName = ""
		s.focusInput = true
	}
	s.mu.Unlock()

	if refreshErr := s.Refresh(ctx); refreshErr != nil && err == nil {
		log.WithError(refreshErr).WithField("board_id", s.boardID).Warn("Refresh after draw failed")
	}
	s.push()
	return event, err
}

func (s *Session) drawGuardsLocked() (uuid.UUID, string, error) {
	if s.drawing {
		return uuid.Nil, "", service.NewValidationError("A draw is already being submitted")
	}
	if s.selected == nil {
		return uuid.Nil, "", service.NewValidationError("Select a prize first")
	}
	name := strings.TrimSpace(s.viewerName)
	if name == "" {
		return uuid.Nil, "", service.NewValidationError("Enter the viewer's name before drawing")
	}
	prize := models.FindPrize(s.prizes, *s.selected)
	if prize == nil {
		return uuid.Nil, "", service.NewNotFoundError("prize")
	}
	if prize.Remaining() <= 0 {
		return uuid.Nil, "", service.NewValidationError("%s has no remaining quantity", prize.Tier)
	}
	return prize.ID, name, nil
}

func (s *Session) commit(ctx context.Context, prizeID uuid.UUID, viewerName string) (*models.DrawEvent, error) {
	if s.deps.Limiter != nil {
		if err := s.deps.Limiter.Allow(ctx, s.boardID); err != nil {
			return nil, err
		}
	}
	return s.deps.Ledger.CommitDraw(ctx, s.boardID, prizeID, viewerName)
}

func (s *Session) successMessage(prizeID uuid.UUID, viewerName string) string {
	if p := models.FindPrize(s.prizes, prizeID); p != nil {
		return viewerName + " - " + p.Tier
	}
	return viewerName
}

// ToggleModal closes the overlay modal when open, otherwise opens it on the selected prize
func (s *Session) ToggleModal(ctx context.Context) error {
	s.mu.Lock()
	open := s.overlay != nil && s.overlay.IsModalOpen
	var focus *uuid.UUID
	if s.selected != nil {
		id := *s.selected
		focus = &id
	}
	s.mu.Unlock()

	if open {
		return s.overlayWrite(ctx, func() error {
			_, err := s.deps.Overlay.CloseModal(ctx, s.boardID)
			return err
		})
	}
	return s.overlayWrite(ctx, func() error {
		_, err := s.deps.Overlay.OpenModal(ctx, s.boardID, focus)
		return err
	})
}

// ShowPrize opens the overlay modal focused on prizeID
func (s *Session) ShowPrize(ctx context.Context, prizeID uuid.UUID) error {
	return s.overlayWrite(ctx, func() error {
		_, err := s.deps.Overlay.OpenModal(ctx, s.boardID, &prizeID)
		return err
	})
}

// HideLastResult clears the overlay's result reveal
func (s *Session) HideLastResult(ctx context.Context) error {
	return s.overlayWrite(ctx, func() error {
		_, err := s.deps.Overlay.HideLastResult(ctx, s.boardID)
		return err
	})
}

// overlayWrite runs an overlay state write and re-syncs the view
func (s *Session) overlayWrite(ctx context.Context, write func() error) error {
	err := write()
	if err != nil {
		s.mu.Lock()
		s.notice = noticeFor(err)
		s.mu.Unlock()
	}
	if refreshErr := s.Refresh(ctx); refreshErr != nil && err == nil {
		err = refreshErr
	}
	s.push()
	return err
}

func noticeFor(err error) *Notice {
	return &Notice{Level: NoticeError, Message: service.UserMessage(err)}
}
