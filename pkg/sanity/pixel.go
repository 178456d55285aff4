// Package sanity cross checks flow against object ids, correspondences and occlusions.
//
// Following the flow of a visible pixel in frame N must land on the same object in
// frame N+1, at roughly the same correspondence color. A pixel that fails this test
// must be marked as occluded, and a pixel that passes it must not be.
package sanity

import (
	"errors"
	"fmt"
	"math"

	"github.com/cyclopcam/flowcore/pkg/grid"
	"github.com/cyclopcam/flowcore/pkg/interp"
)

var ErrNoColor = errors.New("correspondences must have a color component")

// Occlusion values above this mean occluded
const OccludedValue = 200

// Relative tolerance of the id and correspondence comparisons
const relTolerance = 1e-5

type Category int

const (
	Sane                     Category = iota
	FlowCorrAgreeButOccluded          // Flow and correspondences agree, but the pixel is marked as occluded
	OutOfBoundsNotOccluded            // Flow leaves the frame, but the pixel is not marked as occluded
	IdsDisagreeNotOccluded            // Object ids differ, but the pixel is not marked as occluded
	CorrDisagreeNotOccluded           // Correspondences differ, but the pixel is not marked as occluded
	NumCategories
)

func (c Category) String() string {
	switch c {
	case Sane:
		return "sane"
	case FlowCorrAgreeButOccluded:
		return "flow_corr_agree_but_occluded"
	case OutOfBoundsNotOccluded:
		return "out_of_bounds_not_occluded"
	case IdsDisagreeNotOccluded:
		return "ids_disagree_not_occluded"
	case CorrDisagreeNotOccluded:
		return "corr_disagree_not_occluded"
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// Tolerances are the absolute tolerances of the id and correspondence comparisons
type Tolerances struct {
	Ids  float32
	Corr float32
}

// DefaultTolerances returns the tolerances for 8 bit images (0..255), or for
// float images normalized to 0..1.
func DefaultTolerances(idsIsByte, corrIsByte bool) Tolerances {
	t := Tolerances{Ids: 0.01, Corr: 0.016}
	if idsIsByte {
		t.Ids = 1
	}
	if corrIsByte {
		t.Corr = 4
	}
	return t
}

// PairData is everything needed to check frame N against frame N+1
type PairData struct {
	Flow       *grid.Flow           // Forward flow of frame N
	Ids0       *grid.Grid[float32]  // Object ids of frame N
	Ids1       *grid.Grid[float32]  // Object ids of frame N+1
	Corr0      *grid.Grid[float32]  // Correspondences of frame N
	Corr1      *grid.Grid[float32]  // Correspondences of frame N+1
	Occlusion  *grid.Image          // Occlusions of frame N
	Tolerances Tolerances
}

// NewPairData builds PairData from 8 bit images, with 8 bit tolerances
func NewPairData(flow *grid.Flow, ids0, ids1, corr0, corr1, occlusion *grid.Image) *PairData {
	return &PairData{
		Flow:       flow,
		Ids0:       grid.ToFloat(ids0),
		Ids1:       grid.ToFloat(ids1),
		Corr0:      grid.ToFloat(corr0),
		Corr1:      grid.ToFloat(corr1),
		Occlusion:  occlusion,
		Tolerances: DefaultTolerances(true, true),
	}
}

// Validate checks that all images have the same size, and compatible channels
func (p *PairData) Validate() error {
	if err := p.Flow.RequireChannels(2); err != nil {
		return err
	}
	if p.Corr0.Channels < 3 || p.Corr1.Channels < 3 {
		return fmt.Errorf("%w: shapes are %v and %v", ErrNoColor, p.Corr0.Shape(), p.Corr1.Shape())
	}
	if p.Ids0.Channels != p.Ids1.Channels || p.Corr0.Channels != p.Corr1.Channels {
		return fmt.Errorf("%w: frames have different channel counts (ids %v, %v; corr %v, %v)",
			grid.ErrChannels, p.Ids0.Channels, p.Ids1.Channels, p.Corr0.Channels, p.Corr1.Channels)
	}
	return grid.RequireSameSize("pair",
		p.Flow.Size(), p.Ids0.Size(), p.Ids1.Size(), p.Corr0.Size(), p.Corr1.Size(), p.Occlusion.Size())
}

// Check is the outcome of cross checking one pixel
type Check struct {
	Sane     bool
	Category Category
	Row1     float32 // Destination row in frame N+1
	Col1     float32 // Destination column in frame N+1
}

// allClose returns true if |a-b| <= atol + relTolerance*|b| for every element
func allClose(a, b []float32, atol float32) bool {
	for i := range a {
		if math.Abs(float64(a[i]-b[i])) > float64(atol)+relTolerance*math.Abs(float64(b[i])) {
			return false
		}
	}
	return true
}

// CrossCheckPixel checks the pixel (row0, col0) of frame N
func CrossCheckPixel(in *PairData, row0, col0 int) (Check, error) {
	if err := in.Validate(); err != nil {
		return Check{}, err
	}
	if !in.Flow.InBounds(row0, col0) {
		return Check{}, fmt.Errorf("%w: pixel (%v, %v) is outside %v", interp.ErrOutOfRange, row0, col0, in.Flow.Shape())
	}
	corr1 := make([]float32, in.Corr1.Channels)
	return crossCheck(in, row0, col0, corr1), nil
}

// crossCheck assumes that in has been validated.
// corr1 is scratch space with one element per correspondence channel.
func crossCheck(in *PairData, row0, col0 int, corr1 []float32) Check {
	ff := in.Flow.Pixel(row0, col0)
	row1 := float32(row0) + ff[1]
	col1 := float32(col0) + ff[0]
	occluded := in.Occlusion.At(row0, col0, 0) > OccludedValue

	inBounds := interp.InRange(in.Flow.Height, in.Flow.Width, row1, col1)
	idsAgree := false
	corrAgree := false
	if inBounds {
		r := int(math.RoundToEven(float64(row1)))
		c := int(math.RoundToEven(float64(col1)))
		idsAgree = allClose(in.Ids0.Pixel(row0, col0), in.Ids1.Pixel(r, c), in.Tolerances.Ids)
		if idsAgree {
			// Cannot fail, bounds were checked above
			interp.SampleBilinearInto(in.Corr1, row1, col1, corr1)
			corrAgree = allClose(in.Corr0.Pixel(row0, col0), corr1, in.Tolerances.Corr)
		}
	}
	agree := inBounds && idsAgree && corrAgree

	res := Check{
		Sane: (agree && !occluded) || (!agree && occluded),
		Row1: row1,
		Col1: col1,
	}
	if !res.Sane {
		switch {
		case agree:
			res.Category = FlowCorrAgreeButOccluded
		case !inBounds:
			res.Category = OutOfBoundsNotOccluded
		case !idsAgree:
			res.Category = IdsDisagreeNotOccluded
		default:
			res.Category = CorrDisagreeNotOccluded
		}
	}
	return res
}
