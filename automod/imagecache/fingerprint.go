package imagecache

import (
	"bytes"
	"image"
	"image/draw"
	"slices"

	xdraw "golang.org/x/image/draw"
)

// TileSize is the edge length, in pixels, of a hashed tile.
const TileSize = 32

// TileHash holds one bit per tile pixel, set when the pixel is brighter than
// the tile mean. Bit i (row-major) is bit i%8 of byte i/8.
type TileHash [TileSize * TileSize / 8]byte

// Fingerprint is the set of tile hashes of an image, sorted and without
// duplicates.
type Fingerprint []TileHash

// Compute fingerprints an image. Images whose sides are not multiples of
// TileSize are first scaled up to the next multiple. Tiles of a single solid
// colour carry no information and are skipped, so an empty or blank image has
// an empty fingerprint.
func Compute(img image.Image) Fingerprint {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil
	}

	pw, ph := roundUp(w), roundUp(h)
	src := image.NewNRGBA(image.Rect(0, 0, pw, ph))
	if pw != w || ph != h {
		xdraw.BiLinear.Scale(src, src.Bounds(), img, b, draw.Src, nil)
	} else {
		draw.Draw(src, src.Bounds(), img, b.Min, draw.Src)
	}

	seen := make(map[TileHash]struct{})
	var fp Fingerprint
	for ty := 0; ty < ph; ty += TileSize {
		for tx := 0; tx < pw; tx += TileSize {
			th, ok := hashTile(src, tx, ty)
			if !ok {
				continue
			}
			if _, dup := seen[th]; dup {
				continue
			}
			seen[th] = struct{}{}
			fp = append(fp, th)
		}
	}
	slices.SortFunc(fp, compareHashes)
	return fp
}

func hashTile(img *image.NRGBA, x0, y0 int) (TileHash, bool) {
	var (
		th    TileHash
		gray  [TileSize * TileSize]int
		sum   int
		solid = true
	)
	first := img.Pix[img.PixOffset(x0, y0) : img.PixOffset(x0, y0)+4]
	for y := 0; y < TileSize; y++ {
		row := img.PixOffset(x0, y0+y)
		for x := 0; x < TileSize; x++ {
			px := img.Pix[row+x*4 : row+x*4+4]
			if solid && !bytes.Equal(px, first) {
				solid = false
			}
			g := (int(px[0]) + int(px[1]) + int(px[2])) / 3
			gray[y*TileSize+x] = g
			sum += g
		}
	}
	if solid {
		return th, false
	}
	mean := sum / len(gray)
	for i, g := range gray {
		if g > mean {
			th[i/8] |= 1 << (i % 8)
		}
	}
	return th, true
}

func roundUp(v int) int {
	if r := v % TileSize; r != 0 {
		return v + TileSize - r
	}
	return v
}

func compareHashes(a, b TileHash) int {
	return bytes.Compare(a[:], b[:])
}

// Overlap returns the percentage of the candidate's tiles found in stored.
func Overlap(candidate, stored Fingerprint) float64 {
	if len(candidate) == 0 {
		return 0
	}
	set := make(map[TileHash]struct{}, len(stored))
	for _, h := range stored {
		set[h] = struct{}{}
	}
	matching := 0
	for _, h := range candidate {
		if _, ok := set[h]; ok {
			matching++
		}
	}
	return percent(matching, len(candidate))
}

func percent(matching, total int) float64 {
	return float64(matching) / float64(total) * 100
}
