// Package occlusion finds pixels of frame 0 that are not visible in frame 1, by checking
// that forward flow and back flow are consistent.
//
// For a pixel p in frame 0 with forward flow f, we sample the back flow b of frame 1 at p+f.
// For a visible point, the round trip p -> p+f -> p+f+b returns to p, so |f + b| is ~0.
// If the round trip misses by more than a threshold, or p+f leaves the image, p is occluded.
// The same method was used for the MPI Sintel flow dataset.
package occlusion

import (
	"context"
	"runtime"

	"github.com/chewxy/math32"
	"github.com/cyclopcam/flowcore/pkg/grid"
	"github.com/cyclopcam/flowcore/pkg/interp"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultThreshold = 0.01 // Tolerance in pixels
	RenderThreshold  = 0.5  // Our renders are higher resolution than Sintel, so we allow more disagreement
)

// Values written to the occlusion mask
const (
	Visible  = 0
	Occluded = 255
)

// Number of rows in each parallel block of DetectVec
const rowsPerBlock = 32

func validate(forward, back *grid.Flow) error {
	if err := forward.RequireChannels(2); err != nil {
		return err
	}
	if err := back.RequireChannels(2); err != nil {
		return err
	}
	return grid.RequireSameSize("forward and back flow", forward.Size(), back.Size())
}

// isInconsistent returns true if the forward flow and the sampled back flow
// disagree by more than threshold pixels.
func isInconsistent(fx, fy, bx, by, threshold float32) bool {
	dx := fx + bx
	dy := fy + by
	return math32.Sqrt(dx*dx+dy*dy) > threshold
}

// Detect computes the occlusion mask one pixel at a time.
// The result is a single channel image where occluded pixels are 255 and visible pixels are 0.
func Detect(forward, back *grid.Flow, threshold float32) (*grid.Image, error) {
	if err := validate(forward, back); err != nil {
		return nil, err
	}
	rows := forward.Height
	cols := forward.Width
	res := grid.NewImage(cols, rows, 1)
	bf := make([]float32, 2)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			ff := forward.Pixel(r, c)
			r1 := float32(r) + ff[1] // row in frame 1
			c1 := float32(c) + ff[0] // col in frame 1
			occluded := false
			if err := interp.SampleBilinearInto(back, r1, c1, bf); err != nil {
				occluded = true
			} else if isInconsistent(ff[0], ff[1], bf[0], bf[1], threshold) {
				occluded = true
			}
			if occluded {
				res.Pix[r*cols+c] = Occluded
			}
		}
	}
	return res, nil
}

// DetectVec produces the same result as Detect, but computes the destination coordinates
// of a block of rows at once, samples them with a single batch call, and processes
// blocks in parallel.
func DetectVec(forward, back *grid.Flow, threshold float32) (*grid.Image, error) {
	if err := validate(forward, back); err != nil {
		return nil, err
	}
	rows := forward.Height
	cols := forward.Width
	res := grid.NewImage(cols, rows, 1)

	g := errgroup.Group{}
	g.SetLimit(runtime.NumCPU())
	for start := 0; start < rows; start += rowsPerBlock {
		end := min(start+rowsPerBlock, rows)
		g.Go(func() error {
			return detectBlock(forward, back, threshold, start, end, res)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// detectBlock writes rows [start, end) of res
func detectBlock(forward, back *grid.Flow, threshold float32, start, end int, res *grid.Image) error {
	cols := forward.Width
	n := (end - start) * cols
	bRows := make([]float32, n)
	bCols := make([]float32, n)
	for r := start; r < end; r++ {
		for c := 0; c < cols; c++ {
			i := (r-start)*cols + c
			ff := forward.Pixel(r, c)
			bRows[i] = float32(r) + ff[1]
			bCols[i] = float32(c) + ff[0]
		}
	}
	bf, invalid, err := interp.SampleBilinearBatch(back, bRows, bCols, 0)
	if err != nil {
		return err
	}
	base := start * cols
	for i := 0; i < n; i++ {
		ff := forward.Pix[(base+i)*2 : (base+i)*2+2]
		if invalid[i] || isInconsistent(ff[0], ff[1], bf[i*2], bf[i*2+1], threshold) {
			res.Pix[base+i] = Occluded
		}
	}
	return nil
}

// OccludedFraction returns the fraction of pixels in mask (restricted to pixels where
// alpha is non-zero, if alpha is not nil) that are marked as occluded (non-zero).
func OccludedFraction(mask, alpha *grid.Image) float64 {
	total := 0
	occluded := 0
	for p := 0; p < mask.Width*mask.Height; p++ {
		if alpha != nil && alpha.Pix[p*alpha.Channels] == 0 {
			continue
		}
		total++
		if mask.Pix[p*mask.Channels] != 0 {
			occluded++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(occluded) / float64(total)
}

// PairLoader loads the forward flow of frame N and the back flow of frame N+1
type PairLoader func() (forward, back *grid.Flow, err error)

// DetectSequence runs DetectVec on many frame pairs, using up to 'workers' goroutines.
// Frames are independent of each other, so they can be computed in any order.
// sink is called once per pair, with the index of the pair in loaders. It may be called
// concurrently from multiple goroutines.
// The first error stops the scheduling of further frames, and is returned.
func DetectSequence(ctx context.Context, loaders []PairLoader, threshold float32, workers int, sink func(i int, occ *grid.Image) error) error {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, load := range loaders {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			forward, back, err := load()
			if err != nil {
				return err
			}
			occ, err := DetectVec(forward, back, threshold)
			if err != nil {
				return err
			}
			return sink(i, occ)
		})
	}
	return g.Wait()
}
