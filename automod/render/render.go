// Package render rasterizes groups of canvases and displays into images.
package render

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/canvasmod/canvasmod/automod/payload"
	"github.com/canvasmod/canvasmod/grid"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/vector"
)

// PixelsPerCell is the edge length, in output pixels, of one grid cell.
const PixelsPerCell = 32

// Renderer turns groups into images. Rendering is deterministic: the same
// group always produces the same pixels.
type Renderer struct {
	// Scaler resamples block rasters to their footprint. Defaults to nearest
	// neighbor, which keeps pixel art sharp.
	Scaler xdraw.Scaler
}

func NewRenderer() *Renderer {
	return &Renderer{Scaler: xdraw.NearestNeighbor}
}

// Render draws every block of the group on a transparent background. The host
// grid has its origin at the bottom-left, so the group's vertical axis is
// inverted to produce a top-down image.
func (r *Renderer) Render(g grid.Group[payload.Image]) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, g.W*PixelsPerCell, g.H*PixelsPerCell))
	scaler := r.Scaler
	if scaler == nil {
		scaler = xdraw.NearestNeighbor
	}
	for _, b := range g.Blocks {
		tile := Tile(b.Data)
		if tile == nil {
			continue
		}
		left := (b.X - g.X) * PixelsPerCell
		top := (g.H - (b.Y - g.Y) - b.Size) * PixelsPerCell
		dst := image.Rect(left, top, left+b.Size*PixelsPerCell, top+b.Size*PixelsPerCell)
		scaler.Scale(out, dst, tile, tile.Bounds(), draw.Src, nil)
	}
	return out
}

// Tile rasterizes a single payload at its native resolution. Returns nil for
// payloads without a positive resolution.
func Tile(img payload.Image) *image.RGBA {
	res := img.Resolution()
	if res <= 0 {
		return nil
	}
	tile := image.NewRGBA(image.Rect(0, 0, res, res))
	draw.Draw(tile, tile.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	switch v := img.(type) {
	case *payload.Canvas:
		drawCanvas(tile, v)
	case *payload.Display:
		drawDisplay(tile, v)
		flipVertical(tile)
	}
	return tile
}

// drawCanvas copies row-major RGB888 pixels, first row at the top.
func drawCanvas(tile *image.RGBA, c *payload.Canvas) {
	res := c.Res
	for i := 0; i < res*res && i < len(c.Pixels); i++ {
		tile.SetRGBA(i%res, i/res, rgb888(c.Pixels[i]))
	}
}

// drawDisplay replays the draw instructions of the linked processors in
// position order. Display coordinates grow upwards; the caller flips the tile.
func drawDisplay(tile *image.RGBA, d *payload.Display) {
	var current color.NRGBA
	bounds := tile.Bounds()
	for _, p := range d.SortedProcessors() {
		for _, inst := range p.Processor.Instructions {
			switch {
			case inst.Color != nil:
				current = color.NRGBA{R: inst.Color.R, G: inst.Color.G, B: inst.Color.B, A: inst.Color.A}
			case inst.Rect != nil:
				r := image.Rect(inst.Rect.X, inst.Rect.Y, inst.Rect.X+inst.Rect.W, inst.Rect.Y+inst.Rect.H)
				draw.Draw(tile, r.Intersect(bounds), image.NewUniform(current), image.Point{}, draw.Over)
			case inst.Triangle != nil:
				fillTriangle(tile, inst.Triangle, current)
			}
		}
	}
}

func fillTriangle(tile *image.RGBA, t *payload.Triangle, c color.NRGBA) {
	b := tile.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	z.DrawOp = draw.Over
	z.MoveTo(float32(t.X1), float32(t.Y1))
	z.LineTo(float32(t.X2), float32(t.Y2))
	z.LineTo(float32(t.X3), float32(t.Y3))
	z.ClosePath()
	z.Draw(tile, b, image.NewUniform(c), image.Point{})
}

func flipVertical(img *image.RGBA) {
	h := img.Bounds().Dy()
	for y := 0; y < h/2; y++ {
		top := img.Pix[y*img.Stride : y*img.Stride+img.Stride]
		bottom := img.Pix[(h-1-y)*img.Stride : (h-1-y)*img.Stride+img.Stride]
		for i := range top {
			top[i], bottom[i] = bottom[i], top[i]
		}
	}
}

func rgb888(v uint32) color.RGBA {
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}
