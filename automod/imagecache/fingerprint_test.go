package imagecache

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(img draw.Image, r image.Rectangle, c color.Color) {
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
}

func TestComputeSkipsSolidTiles(t *testing.T) {
	assert := assert.New(t)

	assert.Empty(Compute(image.NewRGBA(image.Rect(0, 0, 0, 0))))
	assert.Empty(Compute(image.NewRGBA(image.Rect(0, 0, 64, 64))))

	img := image.NewRGBA(image.Rect(0, 0, 64, 32))
	fill(img, img.Bounds(), color.Black)
	// left tile: white top half, black bottom half. right tile stays solid.
	fill(img, image.Rect(0, 0, 32, 16), color.White)

	fp := Compute(img)
	require.Len(t, fp, 1)
	h := fp[0]
	for i := 0; i < 64; i++ {
		assert.Equal(byte(0xff), h[i], "byte %d", i)
	}
	for i := 64; i < 128; i++ {
		assert.Equal(byte(0), h[i], "byte %d", i)
	}
}

func TestComputeDeduplicatesTiles(t *testing.T) {
	assert := assert.New(t)

	img := image.NewRGBA(image.Rect(0, 0, 96, 32))
	fill(img, img.Bounds(), color.Black)
	for x := 0; x < 96; x += 32 {
		fill(img, image.Rect(x, 0, x+8, 32), color.White)
	}
	assert.Len(Compute(img), 1)

	// a different pattern in the last tile adds a hash
	fill(img, image.Rect(64, 0, 96, 8), color.White)
	fp := Compute(img)
	assert.Len(fp, 2)
	assert.Negative(compareHashes(fp[0], fp[1]))
}

func TestComputeScalesToTileMultiple(t *testing.T) {
	assert := assert.New(t)

	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	fill(img, img.Bounds(), color.Black)
	fill(img, image.Rect(0, 0, 20, 40), color.White)

	fp := Compute(img)
	assert.NotEmpty(fp)
	assert.LessOrEqual(len(fp), 4)

	// fingerprints are deterministic
	assert.Equal(fp, Compute(img))
}

func TestOverlap(t *testing.T) {
	assert := assert.New(t)
	a, b, c, d := th(1), th(2), th(3), th(4)

	assert.Equal(100.0, Overlap(Fingerprint{a, b}, Fingerprint{a, b, c}))
	assert.Equal(75.0, Overlap(Fingerprint{a, b, c, d}, Fingerprint{a, b, c}))
	assert.Equal(50.0, Overlap(Fingerprint{a, d}, Fingerprint{a, b}))
	assert.Equal(0.0, Overlap(nil, Fingerprint{a}))
}

func th(n byte) TileHash {
	var h TileHash
	h[0] = n
	h[127] = 0x5a
	return h
}
