package models

import (
	"time"

	"github.com/google/uuid"
)

// BlankTier is the reserved tier label of the "no prize" entry
const BlankTier = "꽝"

// Prize is one tier of a board's inventory
type Prize struct {
	ID          uuid.UUID `db:"id" json:"id"`
	BoardID     uuid.UUID `db:"board_id" json:"board_id"`
	Tier        string    `db:"tier" json:"tier"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	QtyTotal    int       `db:"qty_total" json:"qty_total"`
	QtyLeft     int       `db:"qty_left" json:"qty_left"`
	Images      []string  `db:"images" json:"images"`
	SortOrder   int       `db:"sort_order" json:"sort_order"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// IsBlank reports whether the prize is the sentinel "no prize" tier
func (p *Prize) IsBlank() bool {
	return p.Tier == BlankTier
}

// Remaining returns qty_left clamped to [0, qty_total]
func (p *Prize) Remaining() int {
	return clamp(p.QtyLeft, 0, p.QtyTotal)
}

// Drawn returns how many units have left the inventory
func (p *Prize) Drawn() int {
	return p.QtyTotal - p.Remaining()
}

// SplitBlank separates the sentinel tier from the displayable prizes,
// preserving order. Only the first sentinel is returned.
func SplitBlank(prizes []*Prize) (display []*Prize, blank *Prize) {
	display = make([]*Prize, 0, len(prizes))
	for _, p := range prizes {
		if p.IsBlank() {
			if blank == nil {
				blank = p
			}
			continue
		}
		display = append(display, p)
	}
	return display, blank
}

// FindPrize returns the prize with the given id, or nil
func FindPrize(prizes []*Prize, id uuid.UUID) *Prize {
	for _, p := range prizes {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// PrizeSpec is the editor's input for one tier
type PrizeSpec struct {
	Tier        string   `json:"tier"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Quantity    int      `json:"quantity"`
	Images      []string `json:"images"`
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
