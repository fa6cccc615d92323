package overlay

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	log "github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"kuji/models"
)

const (
	cardWidth  = 1280
	cardHeight = 720
	cardMargin = 24
)

type tierColor struct {
	accent [3]float64
	text   [3]float64
}

var tierColors = map[string]tierColor{
	"1등":            {accent: [3]float64{0.96, 0.72, 0.05}, text: [3]float64{0.98, 0.8, 0.08}},
	"2등":            {accent: [3]float64{0.8, 0.8, 0.82}, text: [3]float64{0.82, 0.83, 0.86}},
	"3등":            {accent: [3]float64{0.98, 0.45, 0.09}, text: [3]float64{0.98, 0.57, 0.24}},
	"4등":            {accent: [3]float64{0.39, 0.4, 0.95}, text: [3]float64{0.51, 0.55, 0.97}},
	"5등":            {accent: [3]float64{0.06, 0.72, 0.5}, text: [3]float64{0.2, 0.83, 0.6}},
	models.BlankTier: {accent: [3]float64{0.42, 0.45, 0.5}, text: [3]float64{0.61, 0.64, 0.69}},
}

func colorFor(tier string) tierColor {
	if c, ok := tierColors[tier]; ok {
		return c
	}
	return tierColors[models.BlankTier]
}

// CardRenderer draws frames to PNG for sources that cannot run the web overlay
type CardRenderer struct {
	regular *truetype.Font
	bold    *truetype.Font
}

// NewCardRenderer loads fontPath for all text, or the Go fonts when empty.
// The Go fonts have no Hangul glyphs.
func NewCardRenderer(fontPath string) (*CardRenderer, error) {
	if fontPath == "" {
		regular, err := truetype.Parse(goregular.TTF)
		if err != nil {
			return nil, fmt.Errorf("failed to parse regular font: %w", err)
		}
		bold, err := truetype.Parse(gobold.TTF)
		if err != nil {
			return nil, fmt.Errorf("failed to parse bold font: %w", err)
		}
		return &CardRenderer{regular: regular, bold: bold}, nil
	}

	data, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read font %s: %w", fontPath, err)
	}
	f, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font %s: %w", fontPath, err)
	}
	return &CardRenderer{regular: f, bold: f}, nil
}

func (r *CardRenderer) face(bold bool, size float64) font.Face {
	f := r.regular
	if bold {
		f = r.bold
	}
	return truetype.NewFace(f, &truetype.Options{Size: size})
}

// Render draws frame on a transparent canvas and encodes it as PNG
func (r *CardRenderer) Render(frame Frame) ([]byte, error) {
	start := time.Now()
	defer func() {
		log.WithField("duration_ms", time.Since(start).Milliseconds()).
			WithField("phase", frame.Phase).
			Debug("Result card rendered")
	}()

	dc := gg.NewContext(cardWidth, cardHeight)

	if frame.Denied {
		dc.SetFontFace(r.face(true, 28))
		dc.SetRGB(0.94, 0.27, 0.27)
		dc.DrawStringAnchored(frame.Message, cardWidth/2, cardHeight/2, 0.5, 0.5)
		return encode(dc)
	}
	if frame.BoardTitle == "" && frame.Message != "" {
		dc.SetFontFace(r.face(false, 24))
		dc.SetRGB(0.8, 0.8, 0.8)
		dc.DrawStringAnchored(frame.Message, cardWidth/2, cardHeight/2, 0.5, 0.5)
		return encode(dc)
	}

	if frame.BoardTitle != "" {
		r.drawTitle(dc, frame.BoardTitle)
	}
	r.drawFooter(dc, frame.Footer)
	if frame.Chip != nil {
		r.drawChip(dc, frame.Chip)
	}

	switch {
	case frame.Result != nil:
		r.drawResult(dc, frame.Result)
	case frame.Modal != nil:
		r.drawModal(dc, frame.Modal)
	}

	return encode(dc)
}

func encode(dc *gg.Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func panel(dc *gg.Context, x, y, w, h, radius float64) {
	dc.SetRGBA(0, 0, 0, 0.7)
	dc.DrawRoundedRectangle(x, y, w, h, radius)
	dc.Fill()
	dc.SetRGBA(1, 1, 1, 0.1)
	dc.SetLineWidth(1)
	dc.DrawRoundedRectangle(x, y, w, h, radius)
	dc.Stroke()
}

func (r *CardRenderer) drawTitle(dc *gg.Context, title string) {
	dc.SetFontFace(r.face(true, 22))
	w, h := dc.MeasureString(title)
	panel(dc, cardMargin, cardMargin, w+32, h+24, 12)
	dc.SetRGB(0.51, 0.55, 0.97)
	dc.DrawString(title, cardMargin+16, cardMargin+12+h)
}

func (r *CardRenderer) drawFooter(dc *gg.Context, entries []FooterEntry) {
	const boxW, boxH, gap = 110.0, 64.0, 8.0
	y := float64(cardHeight) - cardMargin - boxH
	for i, e := range entries {
		x := cardMargin + float64(i)*(boxW+gap)
		panel(dc, x, y, boxW, boxH, 12)

		alpha := 1.0
		if e.SoldOut {
			alpha = 0.5
		}
		c := colorFor(e.Tier).text
		dc.SetFontFace(r.face(true, 16))
		dc.SetRGBA(c[0], c[1], c[2], alpha)
		dc.DrawString(e.Tier, x+14, y+26)

		dc.SetFontFace(r.face(false, 18))
		dc.SetRGBA(1, 1, 1, alpha)
		dc.DrawString(fmt.Sprintf("%d/%d", e.Remaining, e.Total), x+14, y+52)
	}
}

func (r *CardRenderer) drawChip(dc *gg.Context, chip *WinnerChip) {
	const w, h = 200.0, 78.0
	x := float64(cardWidth) - cardMargin - w
	y := float64(cardHeight) - cardMargin - h
	panel(dc, x, y, w, h, 12)

	dc.SetFontFace(r.face(false, 12))
	dc.SetRGB(0.61, 0.64, 0.69)
	dc.DrawString("Latest winner", x+14, y+20)

	dc.SetFontFace(r.face(true, 18))
	dc.SetRGB(1, 1, 1)
	dc.DrawString(chip.ViewerName, x+14, y+44)

	c := colorFor(chip.Tier).text
	dc.SetFontFace(r.face(false, 14))
	dc.SetRGB(c[0], c[1], c[2])
	dc.DrawString(chip.Tier, x+14, y+66)
}

func (r *CardRenderer) drawResult(dc *gg.Context, result *ResultView) {
	const w, h = 560.0, 320.0
	x := (cardWidth - w) / 2
	y := (cardHeight - h) / 2
	c := colorFor(result.Tier)

	// glow
	dc.SetRGBA(c.accent[0], c.accent[1], c.accent[2], 0.3)
	dc.DrawCircle(cardWidth/2, cardHeight/2, 300)
	dc.Fill()

	dc.SetRGB(c.accent[0], c.accent[1], c.accent[2])
	dc.DrawRoundedRectangle(x-4, y-4, w+8, h+8, 28)
	dc.Fill()
	dc.SetRGBA(0.07, 0.09, 0.15, 0.92)
	dc.DrawRoundedRectangle(x, y, w, h, 24)
	dc.Fill()

	cx := float64(cardWidth) / 2
	dc.SetFontFace(r.face(true, 60))
	dc.SetRGB(c.text[0], c.text[1], c.text[2])
	dc.DrawStringAnchored(result.Tier, cx, y+80, 0.5, 0.5)

	dc.SetFontFace(r.face(true, 30))
	dc.SetRGB(1, 1, 1)
	dc.DrawStringAnchored(result.Name, cx, y+150, 0.5, 0.5)

	dc.SetRGBA(1, 1, 1, 0.1)
	dc.DrawLine(x+40, y+190, x+w-40, y+190)
	dc.Stroke()

	dc.SetFontFace(r.face(false, 16))
	dc.SetRGB(0.61, 0.64, 0.69)
	dc.DrawStringAnchored("Winner", cx, y+220, 0.5, 0.5)

	dc.SetFontFace(r.face(true, 36))
	dc.SetRGB(1, 1, 1)
	dc.DrawStringAnchored(result.ViewerName, cx, y+265, 0.5, 0.5)
}

func (r *CardRenderer) drawModal(dc *gg.Context, modal *ModalView) {
	dc.SetRGBA(0, 0, 0, 0.5)
	dc.DrawRectangle(0, 0, cardWidth, cardHeight)
	dc.Fill()

	const w, h = 640.0, 260.0
	x := (cardWidth - w) / 2
	y := (cardHeight - h) / 2
	dc.SetRGBA(0.07, 0.09, 0.15, 0.95)
	dc.DrawRoundedRectangle(x, y, w, h, 24)
	dc.Fill()

	c := colorFor(modal.Tier).text
	dc.SetFontFace(r.face(true, 30))
	dc.SetRGB(c[0], c[1], c[2])
	dc.DrawString(modal.Tier, x+32, y+56)

	dc.SetFontFace(r.face(true, 36))
	dc.SetRGB(1, 1, 1)
	dc.DrawString(modal.Name, x+32, y+106)

	if modal.Description != "" {
		dc.SetFontFace(r.face(false, 16))
		dc.SetRGB(0.61, 0.64, 0.69)
		dc.DrawStringWrapped(modal.Description, x+32, y+126, 0, 0, w-64, 1.4, gg.AlignLeft)
	}

	dc.SetFontFace(r.face(false, 14))
	dc.SetRGB(0.61, 0.64, 0.69)
	dc.DrawString("Remaining", x+32, y+h-52)
	dc.SetFontFace(r.face(true, 24))
	dc.SetRGB(1, 1, 1)
	dc.DrawString(fmt.Sprintf("%d/%d", modal.Remaining, modal.Total), x+32, y+h-22)
}
