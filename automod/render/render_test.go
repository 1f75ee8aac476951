package render

import (
	"image/color"
	"testing"

	"github.com/canvasmod/canvasmod/automod/payload"
	"github.com/canvasmod/canvasmod/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	red   = color.RGBA{R: 0xff, A: 0xff}
	green = color.RGBA{G: 0xff, A: 0xff}
	black = color.RGBA{A: 0xff}
)

func TestRenderCanvasOrientation(t *testing.T) {
	assert := assert.New(t)

	// 2x2 canvas: red top-left, green bottom-right
	c := &payload.Canvas{Res: 2, Pixels: []uint32{0xff0000, 0, 0, 0x00ff00}}
	g := grid.Group[payload.Image]{
		X: 0, Y: 0, W: 1, H: 1,
		Blocks: []grid.Block[payload.Image]{{X: 0, Y: 0, Size: 1, Data: c}},
	}
	img := NewRenderer().Render(g)
	require.Equal(t, 32, img.Bounds().Dx())
	require.Equal(t, 32, img.Bounds().Dy())
	assert.Equal(red, img.RGBAAt(0, 0))
	assert.Equal(red, img.RGBAAt(15, 15))
	assert.Equal(black, img.RGBAAt(16, 0))
	assert.Equal(green, img.RGBAAt(31, 31))
}

func TestRenderGroupInvertsVerticalAxis(t *testing.T) {
	assert := assert.New(t)

	low := &payload.Canvas{Res: 1, Pixels: []uint32{0xff0000}}
	high := &payload.Canvas{Res: 1, Pixels: []uint32{0x00ff00}}
	g := grid.Group[payload.Image]{
		X: 5, Y: 5, W: 2, H: 2,
		Blocks: []grid.Block[payload.Image]{
			{X: 5, Y: 5, Size: 1, Data: low},
			{X: 6, Y: 6, Size: 1, Data: high},
		},
	}
	img := NewRenderer().Render(g)
	assert.Equal(64, img.Bounds().Dx())

	// the block higher on the grid is drawn at the top of the image
	assert.Equal(green, img.RGBAAt(40, 10))
	assert.Equal(red, img.RGBAAt(10, 40))
	// cells without a block stay transparent
	assert.Equal(color.RGBA{}, img.RGBAAt(10, 10))
	assert.Equal(color.RGBA{}, img.RGBAAt(40, 40))
}

func TestRenderDisplay(t *testing.T) {
	assert := assert.New(t)

	first := &payload.Processor{Instructions: []payload.Instruction{
		{Color: &payload.Color{R: 255, A: 255}},
		{Rect: &payload.Rect{X: 0, Y: 0, W: 2, H: 2}},
	}}
	second := &payload.Processor{Instructions: []payload.Instruction{
		{Color: &payload.Color{G: 255, A: 255}},
		{Rect: &payload.Rect{X: 1, Y: 1, W: 1, H: 1}},
		{Rect: &payload.Rect{X: 3, Y: 3, W: 5, H: 5}},
	}}
	d := &payload.Display{Res: 4, Processors: map[payload.Point]*payload.Processor{
		{X: 9, Y: 0}: second,
		{X: 1, Y: 0}: first,
	}}

	tile := Tile(d)
	require.NotNil(t, tile)
	// display y=0 is the bottom row of the tile
	assert.Equal(red, tile.RGBAAt(0, 3))
	// processors draw in position order, so green lands over red
	assert.Equal(green, tile.RGBAAt(1, 2))
	assert.Equal(black, tile.RGBAAt(0, 0))
	// out of bounds rectangles are clipped
	assert.Equal(green, tile.RGBAAt(3, 0))
}

func TestRenderTriangle(t *testing.T) {
	assert := assert.New(t)
	p := &payload.Processor{Instructions: []payload.Instruction{
		{Color: &payload.Color{R: 255, A: 255}},
		{Triangle: &payload.Triangle{X1: 0, Y1: 0, X2: 16, Y2: 0, X3: 0, Y3: 16}},
	}}
	d := &payload.Display{Res: 16, Processors: map[payload.Point]*payload.Processor{{X: 0, Y: 0}: p}}

	tile := Tile(d)
	require.NotNil(t, tile)
	// well inside the triangle, near the display origin
	assert.Equal(red, tile.RGBAAt(2, 13))
	// opposite corner is untouched
	assert.Equal(black, tile.RGBAAt(15, 0))
}

func TestRenderDeterministic(t *testing.T) {
	c := &payload.Canvas{Res: 3, Pixels: []uint32{1, 2, 3, 4, 5, 6, 7, 8, 9}}
	g := grid.Group[payload.Image]{
		W: 2, H: 2,
		Blocks: []grid.Block[payload.Image]{{Size: 2, Data: c}},
	}
	r := NewRenderer()
	assert.Equal(t, r.Render(g).Pix, r.Render(g).Pix)
	assert.Nil(t, Tile(&payload.Canvas{}))
}
