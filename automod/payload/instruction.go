package payload

import (
	"encoding/json"
	"fmt"
)

// Instruction is a single display draw call. Exactly one of the fields is set.
type Instruction struct {
	Color    *Color    `json:"color,omitempty"`
	Rect     *Rect     `json:"rect,omitempty"`
	Triangle *Triangle `json:"triangle,omitempty"`
}

// Color sets the current draw color. Components are 0-255.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
	A uint8 `json:"a"`
}

// Rect fills an axis-aligned rectangle with the current color.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Triangle fills a triangle with the current color.
type Triangle struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
	X3 int `json:"x3"`
	Y3 int `json:"y3"`
}

// NormalizeColor wraps an arbitrary integer register value into 0-255 the way
// processors do when a color component is out of range.
func NormalizeColor(v int) uint8 {
	r := v % 256
	if r < 0 {
		r += 256
	}
	return uint8(r)
}

func (i Instruction) validate() error {
	n := 0
	if i.Color != nil {
		n++
	}
	if i.Rect != nil {
		n++
	}
	if i.Triangle != nil {
		n++
	}
	if n != 1 {
		return fmt.Errorf("instruction must set exactly one variant, got %d", n)
	}
	return nil
}

func (i *Instruction) UnmarshalJSON(b []byte) error {
	type raw Instruction
	var r raw
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	inst := Instruction(r)
	if err := inst.validate(); err != nil {
		return err
	}
	*i = inst
	return nil
}
