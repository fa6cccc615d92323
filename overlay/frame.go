package overlay

import (
	"github.com/google/uuid"

	"kuji/models"
	"kuji/service"
)

// Frame is everything the broadcast source draws at one moment
type Frame struct {
	Denied     bool          `json:"denied"`
	Message    string        `json:"message,omitempty"`
	BoardTitle string        `json:"board_title,omitempty"`
	Modal      *ModalView    `json:"modal,omitempty"`
	Phase      Phase         `json:"phase"`
	Result     *ResultView   `json:"result,omitempty"`
	Footer     []FooterEntry `json:"footer"`
	Chip       *WinnerChip   `json:"chip,omitempty"`
}

// ModalView is the focused prize card
type ModalView struct {
	PrizeID     uuid.UUID `json:"prize_id"`
	Tier        string    `json:"tier"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Image       string    `json:"image,omitempty"`
	Remaining   int       `json:"remaining"`
	Total       int       `json:"total"`
}

// ResultView is the revealed draw result
type ResultView struct {
	ViewerName string `json:"viewer_name"`
	Tier       string `json:"tier"`
	Name       string `json:"name"`
	Image      string `json:"image,omitempty"`
	Winning    bool   `json:"winning"`
	TopTier    bool   `json:"top_tier"`
}

// FooterEntry is one persistent per-prize counter
type FooterEntry struct {
	Tier      string `json:"tier"`
	Remaining int    `json:"remaining"`
	Total     int    `json:"total"`
	SoldOut   bool   `json:"sold_out"`
}

// WinnerChip is the small most-recent-winner badge
type WinnerChip struct {
	ViewerName string `json:"viewer_name"`
	Tier       string `json:"tier"`
}

const (
	deniedMessage  = "Access denied"
	loadingMessage = "Loading"
)

// Frame returns the frame for the current state
func (s *Session) Frame() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameLocked()
}

func (s *Session) frameLocked() Frame {
	if s.denied != nil {
		msg := deniedMessage
		if service.IsNotFound(s.denied) {
			msg = service.UserMessage(s.denied)
		}
		return Frame{Denied: true, Message: msg, Phase: PhaseHidden, Footer: []FooterEntry{}}
	}

	display, _ := models.SplitBlank(s.prizes)
	f := Frame{
		Phase:  s.phase,
		Footer: footer(display),
	}
	if s.board != nil {
		f.BoardTitle = s.board.Title
	} else {
		f.Message = loadingMessage
	}

	// focus is resolved against the current prize list on every frame
	if s.modalOpen && s.observed != nil && s.observed.FocusedPrizeID != nil {
		if p := models.FindPrize(s.prizes, *s.observed.FocusedPrizeID); p != nil {
			f.Modal = &ModalView{
				PrizeID:     p.ID,
				Tier:        p.Tier,
				Name:        p.Name,
				Description: p.Description,
				Image:       firstImage(p),
				Remaining:   p.Remaining(),
				Total:       p.QtyTotal,
			}
		}
	}

	if s.lastDraw != nil {
		switch s.phase {
		case PhaseShown:
			f.Result = s.resultLocked(display)
		case PhaseHidden:
			f.Chip = &WinnerChip{ViewerName: s.lastDraw.ViewerName, Tier: tierOf(s.lastDraw)}
		}
	}
	return f
}

func (s *Session) resultLocked(display []*models.Prize) *ResultView {
	d := s.lastDraw
	r := &ResultView{
		ViewerName: d.ViewerName,
		Tier:       tierOf(d),
		Name:       d.PrizeName,
		Winning:    d.IsWin(),
	}
	if r.Name == "" {
		r.Name = models.BlankTier
	}
	if d.PrizeID != nil {
		if p := models.FindPrize(s.prizes, *d.PrizeID); p != nil {
			r.Image = firstImage(p)
		}
		r.TopTier = len(display) > 0 && display[0].ID == *d.PrizeID
	}
	return r
}

func footer(display []*models.Prize) []FooterEntry {
	entries := make([]FooterEntry, 0, len(display))
	for _, p := range display {
		remaining := p.Remaining()
		entries = append(entries, FooterEntry{
			Tier:      p.Tier,
			Remaining: remaining,
			Total:     p.QtyTotal,
			SoldOut:   remaining == 0,
		})
	}
	return entries
}

func tierOf(d *models.DrawEventDetail) string {
	if d.PrizeTier == "" {
		return models.BlankTier
	}
	return d.PrizeTier
}

func firstImage(p *models.Prize) string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}
