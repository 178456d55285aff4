// Package interp samples grids at fractional coordinates with bilinear interpolation.
//
// The weights follow a specific convention: for a coordinate v with neighbours
// prev = floor(v) and next = ceil(v), the weight of the prev sample is (next - v),
// and the weight of the next sample is 1 - (next - v). At integer coordinates
// prev == next, so the result is exactly the grid value.
// Occlusion thresholds depend on this convention.
package interp

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/cyclopcam/flowcore/pkg/grid"
)

var ErrOutOfRange = errors.New("coordinate out of range")

// InRange returns true if (row, col) lies inside [0, height-1] x [0, width-1].
// NaN coordinates are out of range.
func InRange(height, width int, row, col float32) bool {
	return row >= 0 && row <= float32(height-1) && col >= 0 && col <= float32(width-1)
}

// SampleBilinear returns the interpolated value of every channel at (row, col).
// Coordinates outside the grid are an error; there is no extrapolation.
func SampleBilinear[T grid.Number](g *grid.Grid[T], row, col float32) ([]float32, error) {
	out := make([]float32, g.Channels)
	if err := SampleBilinearInto(g, row, col, out); err != nil {
		return nil, err
	}
	return out, nil
}

// SampleBilinearInto is SampleBilinear without the allocation.
// len(out) must be at least g.Channels.
func SampleBilinearInto[T grid.Number](g *grid.Grid[T], row, col float32, out []float32) error {
	if !InRange(g.Height, g.Width, row, col) {
		return fmt.Errorf("%w: accessing grid of shape %v with float index (%.3f, %.3f)", ErrOutOfRange, g.Shape(), row, col)
	}
	sample(g, row, col, out)
	return nil
}

// SampleBilinearBatch samples the grid at many points.
// rows and cols are flattened coordinate arrays of the same length (callers with 2D
// index arrays flatten them in row-major order, and reshape the result the same way).
// The returned values hold g.Channels entries per point.
// Points outside the grid are flagged in invalid, and all of their channels are set to fill.
// In-range points produce exactly the same values as SampleBilinear.
func SampleBilinearBatch[T grid.Number](g *grid.Grid[T], rows, cols []float32, fill float32) (values []float32, invalid []bool, err error) {
	if len(rows) != len(cols) {
		return nil, nil, fmt.Errorf("%w: %v rows but %v cols", grid.ErrShapeMismatch, len(rows), len(cols))
	}
	nc := g.Channels
	values = make([]float32, len(rows)*nc)
	invalid = make([]bool, len(rows))
	for i := range rows {
		out := values[i*nc : (i+1)*nc]
		if !InRange(g.Height, g.Width, rows[i], cols[i]) {
			invalid[i] = true
			for c := range out {
				out[c] = fill
			}
			continue
		}
		sample(g, rows[i], cols[i], out)
	}
	return values, invalid, nil
}

// neighbors returns floor, ceil and the weight of the floor sample.
// The weight is computed before ceil is clamped to the last valid index.
func neighbors(v float32, size int) (prev, next int, alpha float32) {
	prev = int(math32.Floor(v))
	next = int(math32.Ceil(v))
	alpha = float32(next) - v
	if next > size-1 {
		next = prev
	}
	return
}

// sample assumes (row, col) is in range
func sample[T grid.Number](g *grid.Grid[T], row, col float32, out []float32) {
	rp, rn, ra := neighbors(row, g.Height)
	cp, cn, ca := neighbors(col, g.Width)
	nc := g.Channels
	pp := (rp*g.Width + cp) * nc
	pn := (rp*g.Width + cn) * nc
	np := (rn*g.Width + cp) * nc
	nn := (rn*g.Width + cn) * nc
	for c := 0; c < nc; c++ {
		valPrev := float32(g.Pix[pp+c])*ca + float32(g.Pix[pn+c])*(1-ca)
		valNext := float32(g.Pix[np+c])*ca + float32(g.Pix[nn+c])*(1-ca)
		out[c] = valPrev*ra + valNext*(1-ra)
	}
}
