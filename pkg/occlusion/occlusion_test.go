package occlusion

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/cyclopcam/flowcore/pkg/grid"
	"github.com/cyclopcam/flowcore/pkg/perfstats"
	"github.com/stretchr/testify/require"
)

func makeFlow(width, height int, x, y []float32) *grid.Flow {
	f := grid.NewFlow(width, height)
	for i := range x {
		f.Pix[i*2] = x[i]
		f.Pix[i*2+1] = y[i]
	}
	return f
}

// Frame 0:       Frame 1:
// * * * *        * * B B
// B B * *        * * B B
// B B * *        * * * *
// * * * *        * * * *
func blockExample() (forward, back *grid.Flow, expected []uint8) {
	forward = makeFlow(4, 4,
		[]float32{
			0, 0, 0, 0,
			2, 2, 0, 0,
			2, 2, 0, 0,
			0, 0, 0, 0,
		},
		[]float32{
			0, 0, 0, 0,
			-1, -1, 0, 0,
			-1, -1, 0, 0,
			0, 0, 0, 0,
		})
	back = makeFlow(4, 4,
		[]float32{
			0, 0, -2, -2,
			0, 0, -2, -2,
			0, 0, 0, 0,
			0, 0, 0, 0,
		},
		[]float32{
			0, 0, 1, 1,
			0, 0, 1, 1,
			0, 0, 0, 0,
			0, 0, 0, 0,
		})
	// Pixels in frame 0 that are not visible in frame 1
	expected = []uint8{
		0, 0, 255, 255,
		0, 0, 255, 255,
		0, 0, 0, 0,
		0, 0, 0, 0,
	}
	return
}

func TestBlockExample(t *testing.T) {
	forward, back, expected := blockExample()

	occ, err := Detect(forward, back, DefaultThreshold)
	require.NoError(t, err)
	require.Equal(t, 1, occ.Channels)
	require.Equal(t, expected, occ.Pix)

	occ, err = DetectVec(forward, back, DefaultThreshold)
	require.NoError(t, err)
	require.Equal(t, expected, occ.Pix)
}

func TestOutOfBounds(t *testing.T) {
	// Everything moves 3 pixels right, so the last 3 columns leave the image
	width, height := 5, 4
	forward := grid.NewFlow(width, height)
	back := grid.NewFlow(width, height)
	for r := 0; r < height; r++ {
		for c := 0; c < width; c++ {
			forward.Set(r, c, 0, 3)
			back.Set(r, c, 0, -3)
		}
	}
	for _, detect := range []func(f, b *grid.Flow, th float32) (*grid.Image, error){Detect, DetectVec} {
		occ, err := detect(forward, back, DefaultThreshold)
		require.NoError(t, err)
		for r := 0; r < height; r++ {
			for c := 0; c < width; c++ {
				if c+3 > width-1 {
					require.Equal(t, uint8(Occluded), occ.At(r, c, 0))
				} else {
					require.Equal(t, uint8(Visible), occ.At(r, c, 0))
				}
			}
		}
	}
}

func randomFlow(rng *rand.Rand, width, height int, scale float32) *grid.Flow {
	f := grid.NewFlow(width, height)
	for i := range f.Pix {
		f.Pix[i] = (rng.Float32() - 0.5) * scale
	}
	return f
}

func TestScalarVecEquivalence(t *testing.T) {
	rng := rand.New(rand.NewSource(41))
	sizes := [][2]int{{1, 1}, {7, 3}, {64, 70}, {33, 100}}
	for _, sz := range sizes {
		forward := randomFlow(rng, sz[0], sz[1], 6)
		back := randomFlow(rng, sz[0], sz[1], 6)
		for _, th := range []float32{DefaultThreshold, RenderThreshold, 2} {
			a, err := Detect(forward, back, th)
			require.NoError(t, err)
			b, err := DetectVec(forward, back, th)
			require.NoError(t, err)
			require.Equal(t, a.Pix, b.Pix, "size %v, threshold %v", sz, th)
		}
	}
}

func TestThreshold(t *testing.T) {
	forward := grid.NewFlow(3, 3)
	back := grid.NewFlow(3, 3)
	// Centre pixel's round trip misses by 0.3 pixels
	forward.Set(1, 1, 0, 0.3)
	back.Set(1, 1, 0, 0)
	occ, err := Detect(forward, back, RenderThreshold)
	require.NoError(t, err)
	require.Equal(t, uint8(Visible), occ.At(1, 1, 0))
	occ, err = Detect(forward, back, 0.2)
	require.NoError(t, err)
	require.Equal(t, uint8(Occluded), occ.At(1, 1, 0))
}

func TestValidation(t *testing.T) {
	_, err := Detect(grid.NewFlow(3, 3), grid.NewFlow(3, 4), DefaultThreshold)
	require.ErrorIs(t, err, grid.ErrShapeMismatch)
	_, err = DetectVec(grid.NewFlow(3, 3), grid.New[float32](3, 3, 3), DefaultThreshold)
	require.ErrorIs(t, err, grid.ErrChannels)
}

func TestOccludedFraction(t *testing.T) {
	mask := grid.NewImage(2, 2, 1)
	copy(mask.Pix, []uint8{255, 0, 255, 0})
	require.InDelta(t, 0.5, OccludedFraction(mask, nil), 1e-9)
	alpha := grid.NewImage(2, 2, 1)
	copy(alpha.Pix, []uint8{255, 255, 0, 0})
	require.InDelta(t, 0.5, OccludedFraction(mask, alpha), 1e-9)
	copy(alpha.Pix, []uint8{0, 0, 0, 0})
	require.Equal(t, 0.0, OccludedFraction(mask, alpha))
}

func TestDetectSequence(t *testing.T) {
	forward, back, expected := blockExample()
	loaders := []PairLoader{}
	for i := 0; i < 10; i++ {
		loaders = append(loaders, func() (*grid.Flow, *grid.Flow, error) {
			return forward, back, nil
		})
	}
	results := make([]*grid.Image, len(loaders))
	var mu sync.Mutex
	err := DetectSequence(context.Background(), loaders, DefaultThreshold, 3, func(i int, occ *grid.Image) error {
		mu.Lock()
		defer mu.Unlock()
		results[i] = occ
		return nil
	})
	require.NoError(t, err)
	for _, r := range results {
		require.NotNil(t, r)
		require.Equal(t, expected, r.Pix)
	}

	// A failing loader fails the whole sequence
	failure := errors.New("corrupt flow")
	loaders[4] = func() (*grid.Flow, *grid.Flow, error) {
		return nil, nil, failure
	}
	err = DetectSequence(context.Background(), loaders, DefaultThreshold, 2, func(i int, occ *grid.Image) error { return nil })
	require.ErrorIs(t, err, failure)
}

func TestDetectSequenceTiming(t *testing.T) {
	forward, back, _ := blockExample()
	loadTime := perfstats.TimeAccumulator{}
	saveTime := perfstats.TimeAccumulator{}
	loaders := []PairLoader{}
	for i := 0; i < 8; i++ {
		loaders = append(loaders, func() (f, b *grid.Flow, err error) {
			err = loadTime.Time(func() error {
				f, b = forward, back
				return nil
			})
			return f, b, err
		})
	}
	err := DetectSequence(context.Background(), loaders, DefaultThreshold, 4, func(i int, occ *grid.Image) error {
		return saveTime.Time(func() error { return nil })
	})
	require.NoError(t, err)
	require.EqualValues(t, 8, loadTime.Samples())
	require.EqualValues(t, 8, saveTime.Samples())
}
