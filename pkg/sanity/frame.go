package sanity

import (
	"fmt"
	"math/rand"

	"github.com/cyclopcam/flowcore/pkg/gen"
	"github.com/cyclopcam/flowcore/pkg/grid"
	"github.com/cyclopcam/flowcore/pkg/occlusion"
	"github.com/cyclopcam/logs"
)

// Flow components at or below this magnitude are considered to be no motion
const minFlow = 0.001

// Counts holds the number of tested pixels in each category
type Counts [NumCategories]int

func (c *Counts) Add(other Counts) {
	for i := range c {
		c[i] += other[i]
	}
}

// Tested returns the total number of pixels
func (c Counts) Tested() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

func (c Counts) Sane() int {
	return c[Sane]
}

// Ratio returns the fraction of sane pixels, or 0 if nothing was tested
func (c Counts) Ratio() float64 {
	if c.Tested() == 0 {
		return 0
	}
	return float64(c.Sane()) / float64(c.Tested())
}

// FrameResult is the outcome of checking a sample of pixels in one frame
type FrameResult struct {
	Frame            int
	Counts           Counts
	OccludedFraction float64 // Fraction of foreground (alpha > 0) pixels with occlusion > 0
	Skipped          string  // Non-empty if the frame was not tested
}

// CheckFrame tests up to npixels distinct foreground pixels, chosen at random.
// Foreground pixels are those where the first channel of alpha is non-zero.
func CheckFrame(in *PairData, alpha *grid.Image, npixels int, rng *rand.Rand, log logs.Log) (FrameResult, error) {
	res := FrameResult{}
	if npixels < 0 {
		return res, fmt.Errorf("%w: pixel count %v is negative", ErrConfig, npixels)
	}
	if err := in.Validate(); err != nil {
		return res, err
	}
	if err := grid.RequireSameSize("alpha", in.Flow.Size(), alpha.Size()); err != nil {
		return res, err
	}
	rows, cols := grid.NonZero(alpha)
	if len(rows) == 0 {
		res.Skipped = "no non-zero alphas"
		return res, nil
	}
	if !hasMotion(in.Flow) {
		log.Warnf("No pixels with non-zero flow")
	}
	res.OccludedFraction = occlusion.OccludedFraction(in.Occlusion, alpha)

	n := min(npixels, len(rows))
	order := rng.Perm(len(rows))[:n]
	corr1 := make([]float32, in.Corr1.Channels)
	for _, i := range order {
		c := crossCheck(in, rows[i], cols[i], corr1)
		res.Counts[c.Category]++
		if !c.Sane {
			log.Debugf("(row,col) = (%v,%v) -> (%.3f,%.3f) is not sane: %v", rows[i], cols[i], c.Row1, c.Col1, c.Category)
		}
	}
	return res, nil
}

func hasMotion(f *grid.Flow) bool {
	for _, v := range f.Pix {
		if gen.Abs(v) > minFlow {
			return true
		}
	}
	return false
}

// Debug colors of each category
var categoryColors = [NumCategories][3]uint8{
	Sane:                     {0, 255, 0},
	FlowCorrAgreeButOccluded: {255, 255, 255},
	OutOfBoundsNotOccluded:   {255, 255, 0},
	IdsDisagreeNotOccluded:   {255, 150, 0},
	CorrDisagreeNotOccluded:  {255, 0, 0},
}

// CategoryColor returns the color used by DebugImage for c
func CategoryColor(c Category) [3]uint8 {
	return categoryColors[c]
}

// DebugImage checks every foreground pixel, and returns an RGB image with each
// pixel colored by its category. Background pixels are black.
// Sane is green, agree but occluded is white, out of bounds is yellow, id
// disagreement is orange and correspondence disagreement is red.
func DebugImage(in *PairData, alpha *grid.Image) (*grid.Image, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := grid.RequireSameSize("alpha", in.Flow.Size(), alpha.Size()); err != nil {
		return nil, err
	}
	res := grid.NewImage(in.Flow.Width, in.Flow.Height, 3)
	rows, cols := grid.NonZero(alpha)
	corr1 := make([]float32, in.Corr1.Channels)
	for i := range rows {
		c := crossCheck(in, rows[i], cols[i], corr1)
		color := categoryColors[c.Category]
		copy(res.Pixel(rows[i], cols[i]), color[:])
	}
	return res, nil
}
