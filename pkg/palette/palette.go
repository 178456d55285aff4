// Package palette generates well separated flat colors for object ids
package palette

import "math"

// RGB is an 8 bit color
type RGB [3]uint8

// UniqueColors returns n distinct colors spread over an evenly spaced RGB lattice.
// If noBlack is true, black is excluded so that it can serve as background.
func UniqueColors(n int, noBlack bool) []RGB {
	if n <= 0 {
		return nil
	}
	need := n
	if noBlack {
		need++
	}
	subdivs := max(2, int(math.Ceil(math.Cbrt(float64(need)))))
	delta := 255 / (subdivs - 1)
	colors := make([]RGB, 0, n)
	for r := 0; r < subdivs; r++ {
		for g := 0; g < subdivs; g++ {
			for b := 0; b < subdivs; b++ {
				if len(colors) == n {
					return colors
				}
				if noBlack && r == 0 && g == 0 && b == 0 {
					continue
				}
				colors = append(colors, RGB{uint8(r * delta), uint8(g * delta), uint8(b * delta)})
			}
		}
	}
	return colors
}

// Picker hands out colors in round robin order
type Picker struct {
	Colors []RGB
	Next   int
}

func NewPicker(n int, noBlack bool) *Picker {
	return &Picker{Colors: UniqueColors(n, noBlack)}
}

// Pick returns the next color, wrapping around after the last one
func (p *Picker) Pick() RGB {
	c := p.Colors[p.Next%len(p.Colors)]
	p.Next = (p.Next + 1) % len(p.Colors)
	return c
}
