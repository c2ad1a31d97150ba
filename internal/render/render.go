// Package render draws a board as a PNG for link previews and chat clients
// that cannot run the web UI.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"strconv"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/akshatjain2002sept/connect-4-multi/internal/board"
	"github.com/akshatjain2002sept/connect-4-multi/internal/domain"
)

const (
	CellSize     = 64
	Margin       = 24
	HeaderHeight = 40
	FooterHeight = 28

	Width  = board.Columns*CellSize + Margin*2
	Height = board.Rows*CellSize + HeaderHeight + FooterHeight + Margin
)

// Cell addresses one grid position.
type Cell struct {
	Row, Col int
}

// Options decorate the rendered board.
type Options struct {
	// LastMove gets a ring around its disc.
	LastMove *Cell
	Caption  string
}

type Renderer interface {
	RenderPNG(ctx context.Context, b board.Board, opts Options) ([]byte, error)
}

type pngRenderer struct{}

func NewRenderer() Renderer { return pngRenderer{} }

var (
	backgroundColor = color.RGBA{R: 24, G: 28, B: 44, A: 255}
	frameColor      = color.RGBA{R: 29, G: 78, B: 216, A: 255}
	captionColor    = color.RGBA{R: 236, G: 239, B: 255, A: 255}
	labelColor      = color.RGBA{R: 148, G: 163, B: 184, A: 255}
	ringColor       = color.NRGBA{R: 255, G: 255, B: 255, A: 200}
)

// CellCenter returns the pixel center of (row, col).
func CellCenter(row, col int) image.Point {
	return image.Point{
		X: Margin + col*CellSize + CellSize/2,
		Y: HeaderHeight + row*CellSize + CellSize/2,
	}
}

func (pngRenderer) RenderPNG(ctx context.Context, b board.Board, opts Options) ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	frame := image.Rect(Margin, HeaderHeight, Margin+board.Columns*CellSize, HeaderHeight+board.Rows*CellSize)
	imagedraw.Draw(img, frame, image.NewUniform(frameColor), image.Point{}, imagedraw.Src)

	for row := 0; row < board.Rows; row++ {
		for col := 0; col < board.Columns; col++ {
			disc, err := discImage(b.At(row, col), CellSize)
			if err != nil {
				return nil, err
			}
			x := Margin + col*CellSize
			y := HeaderHeight + row*CellSize
			imagedraw.Draw(img, image.Rect(x, y, x+CellSize, y+CellSize), disc, image.Point{}, imagedraw.Over)
		}
	}
	if lm := opts.LastMove; lm != nil && lm.Row >= 0 && lm.Row < board.Rows && lm.Col >= 0 && lm.Col < board.Columns {
		drawRing(img, CellCenter(lm.Row, lm.Col), CellSize/2-4, 3, ringColor)
	}

	drawer := &font.Drawer{Dst: img, Face: basicfont.Face7x13}
	drawer.Src = image.NewUniform(captionColor)
	drawCentered(drawer, opts.Caption, Width/2, HeaderHeight/2+5)
	drawer.Src = image.NewUniform(labelColor)
	for col := 0; col < board.Columns; col++ {
		drawCentered(drawer, strconv.Itoa(col+1), CellCenter(0, col).X, frame.Max.Y+FooterHeight/2+5)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func drawCentered(d *font.Drawer, text string, centerX, baseline int) {
	if text == "" {
		return
	}
	w := d.MeasureString(text).Round()
	d.Dot = fixed.P(centerX-w/2, baseline)
	d.DrawString(text)
}

// drawRing blends an annulus of the given thickness onto img.
func drawRing(img *image.RGBA, center image.Point, radius, thickness int, clr color.Color) {
	outer := radius * radius
	inner := (radius - thickness) * (radius - thickness)
	src := image.NewUniform(clr)
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			d := x*x + y*y
			if d > outer || d < inner {
				continue
			}
			p := image.Point{X: center.X + x, Y: center.Y + y}
			imagedraw.Draw(img, image.Rect(p.X, p.Y, p.X+1, p.Y+1), src, image.Point{}, imagedraw.Over)
		}
	}
}

type discKey struct {
	player board.Player
	size   int
}

var (
	discCache   = map[discKey]image.Image{}
	discCacheMu sync.RWMutex
)

var discFills = map[board.Player][2]string{
	0:               {"#0f172a", "#1e3a8a"},
	board.PlayerOne: {"#dc2626", "#991b1b"},
	board.PlayerTwo: {"#facc15", "#a16207"},
}

func discSVG(p board.Player) ([]byte, error) {
	fill, ok := discFills[p]
	if !ok {
		return nil, errors.New("render: unknown player")
	}
	return []byte(fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 100">`+
			`<circle cx="50" cy="50" r="42" fill="%s" stroke="%s" stroke-width="5"/>`+
			`<circle cx="50" cy="50" r="28" fill="none" stroke="%s" stroke-width="3"/>`+
			`</svg>`, fill[0], fill[1], fill[1])), nil
}

// discImage rasterises one cell and caches it per seat and size.
func discImage(p board.Player, size int) (image.Image, error) {
	key := discKey{player: p, size: size}
	discCacheMu.RLock()
	if img, ok := discCache[key]; ok {
		discCacheMu.RUnlock()
		return img, nil
	}
	discCacheMu.RUnlock()

	data, err := discSVG(p)
	if err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse disc svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	discCacheMu.Lock()
	discCache[key] = img
	discCacheMu.Unlock()
	return img, nil
}

// Caption describes g for the header line.
func Caption(g *domain.Game) string {
	switch {
	case g.Outcome != nil && *g.Outcome == domain.OutcomeDraw:
		return "Draw"
	case g.Outcome != nil && *g.Outcome == domain.OutcomeP1Win:
		return seatName(board.PlayerOne) + " wins"
	case g.Outcome != nil:
		return seatName(board.PlayerTwo) + " wins"
	case g.Status == domain.StatusAbandoned:
		return "Game cancelled"
	case g.Status == domain.StatusWaiting:
		return "Waiting for opponent"
	}
	return seatName(g.Turn) + " to move"
}

// OptionsFor highlights g's last move and captions its state.
func OptionsFor(g *domain.Game) Options {
	opts := Options{Caption: Caption(g)}
	if mv, ok := g.Moves.Last(); ok {
		opts.LastMove = &Cell{Row: mv.Row, Col: mv.Column}
	}
	return opts
}

func seatName(p board.Player) string {
	if p == board.PlayerOne {
		return "Red"
	}
	return "Yellow"
}
