package sanity

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/cyclopcam/flowcore/pkg/grid"
	"github.com/cyclopcam/flowcore/pkg/synth"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

// pair returns a 4x4 pair where everything moves one pixel to the right.
// Object ids are a single color, and correspondence red encodes the column.
func pair() *PairData {
	const W, H = 4, 4
	flow := grid.NewFlow(W, H)
	ids0 := grid.NewImage(W, H, 3)
	ids1 := grid.NewImage(W, H, 3)
	corr0 := grid.NewImage(W, H, 3)
	corr1 := grid.NewImage(W, H, 3)
	occ := grid.NewImage(W, H, 1)
	for r := 0; r < H; r++ {
		for c := 0; c < W; c++ {
			flow.Set(r, c, 0, 1)
			copy(ids0.Pixel(r, c), []uint8{200, 10, 10})
			copy(ids1.Pixel(r, c), []uint8{200, 10, 10})
			copy(corr0.Pixel(r, c), []uint8{uint8(20 + c*10), uint8(r * 10), 0})
			copy(corr1.Pixel(r, c), []uint8{uint8(20 + (c-1)*10), uint8(r * 10), 0})
		}
	}
	return NewPairData(flow, ids0, ids1, corr0, corr1, occ)
}

func check(t *testing.T, in *PairData, row, col int) Check {
	c, err := CrossCheckPixel(in, row, col)
	require.NoError(t, err)
	return c
}

func TestSanePixel(t *testing.T) {
	in := pair()
	c := check(t, in, 1, 1)
	require.True(t, c.Sane)
	require.Equal(t, Sane, c.Category)
	require.Equal(t, float32(1), c.Row1)
	require.Equal(t, float32(2), c.Col1)

	// Marking it occluded makes it insane
	in.Occlusion.Set(1, 1, 0, 255)
	c = check(t, in, 1, 1)
	require.False(t, c.Sane)
	require.Equal(t, FlowCorrAgreeButOccluded, c.Category)

	// Occlusion values of 200 or less are visible
	in.Occlusion.Set(1, 1, 0, 200)
	require.True(t, check(t, in, 1, 1).Sane)
}

func TestCategoryNames(t *testing.T) {
	require.Equal(t, "sane", Sane.String())
	require.Equal(t, "flow_corr_agree_but_occluded", FlowCorrAgreeButOccluded.String())
	require.Equal(t, "out_of_bounds_not_occluded", OutOfBoundsNotOccluded.String())
	require.Equal(t, "ids_disagree_not_occluded", IdsDisagreeNotOccluded.String())
	require.Equal(t, "corr_disagree_not_occluded", CorrDisagreeNotOccluded.String())
	require.Equal(t, "category(9)", Category(9).String())
}

func TestOutOfBounds(t *testing.T) {
	in := pair()
	c := check(t, in, 2, 3)
	require.False(t, c.Sane)
	require.Equal(t, OutOfBoundsNotOccluded, c.Category)

	in.Occlusion.Set(2, 3, 0, 255)
	require.True(t, check(t, in, 2, 3).Sane)

	in.Flow.Set(0, 0, 1, -0.01)
	require.Equal(t, OutOfBoundsNotOccluded, check(t, in, 0, 0).Category)
}

func TestIdsDisagree(t *testing.T) {
	in := pair()
	in.Ids1.Set(1, 2, 1, 11) // within tolerance of 10
	require.True(t, check(t, in, 1, 1).Sane)

	in.Ids1.Set(1, 2, 1, 50)
	c := check(t, in, 1, 1)
	require.False(t, c.Sane)
	require.Equal(t, IdsDisagreeNotOccluded, c.Category)

	in.Occlusion.Set(1, 1, 0, 255)
	require.True(t, check(t, in, 1, 1).Sane)
}

func TestIdsRounding(t *testing.T) {
	in := pair()
	in.Ids1.Set(0, 1, 0, 50)
	in.Ids1.Set(0, 2, 0, 50)
	in.Corr1.Set(0, 0, 0, 20)
	in.Corr1.Set(0, 1, 0, 20)

	// Halves round to even, so col 0.5 reads ids from col 0
	in.Flow.Set(0, 0, 0, 0.5)
	require.True(t, check(t, in, 0, 0).Sane)

	// and col 2.5 reads ids from col 2
	in.Flow.Set(0, 0, 0, 2.5)
	require.Equal(t, IdsDisagreeNotOccluded, check(t, in, 0, 0).Category)
}

func TestCorrDisagree(t *testing.T) {
	in := pair()
	in.Corr1.Set(1, 2, 0, in.Corr1.At(1, 2, 0)+3) // within tolerance of 4
	require.True(t, check(t, in, 1, 1).Sane)

	in.Corr1.Set(1, 2, 0, in.Corr1.At(1, 2, 0)+10)
	c := check(t, in, 1, 1)
	require.Equal(t, CorrDisagreeNotOccluded, c.Category)
	require.False(t, c.Sane)

	// Correspondences are interpolated at the fractional destination
	in = pair()
	in.Flow.Set(1, 1, 0, 1.5) // lands between columns 2 and 3, which average to corr0[1,1] + 5
	require.Equal(t, CorrDisagreeNotOccluded, check(t, in, 1, 1).Category)
	in.Corr1.Set(1, 2, 0, in.Corr1.At(1, 2, 0)-10)
	require.True(t, check(t, in, 1, 1).Sane)
}

func TestFloatTolerances(t *testing.T) {
	require.Equal(t, Tolerances{Ids: 1, Corr: 4}, DefaultTolerances(true, true))
	require.Equal(t, Tolerances{Ids: 0.01, Corr: 0.016}, DefaultTolerances(false, false))
	require.Equal(t, Tolerances{Ids: 0.01, Corr: 4}, DefaultTolerances(false, true))

	in := pair()
	for _, g := range []*grid.Grid[float32]{in.Ids0, in.Ids1, in.Corr0, in.Corr1} {
		for i := range g.Pix {
			g.Pix[i] /= 255
		}
	}
	in.Tolerances = DefaultTolerances(false, false)
	require.True(t, check(t, in, 1, 1).Sane)
	in.Corr1.Set(1, 2, 0, in.Corr1.At(1, 2, 0)+0.02)
	require.Equal(t, CorrDisagreeNotOccluded, check(t, in, 1, 1).Category)
}

func TestPixelErrors(t *testing.T) {
	in := pair()
	_, err := CrossCheckPixel(in, 4, 0)
	require.Error(t, err)

	in.Corr0 = grid.New[float32](4, 4, 1)
	_, err = CrossCheckPixel(in, 0, 0)
	require.ErrorIs(t, err, ErrNoColor)

	in = pair()
	in.Occlusion = grid.NewImage(3, 4, 1)
	_, err = CrossCheckPixel(in, 0, 0)
	require.ErrorIs(t, err, grid.ErrShapeMismatch)
}

func TestDebugImage(t *testing.T) {
	in := pair()
	in.Ids1.Set(2, 1, 0, 0)
	in.Corr1.Set(3, 1, 1, 100)
	in.Occlusion.Set(1, 0, 0, 255)
	alpha := grid.NewImage(4, 4, 1)
	for i := range alpha.Pix {
		alpha.Pix[i] = 1
	}
	alpha.Set(0, 0, 0, 0)

	img, err := DebugImage(in, alpha)
	require.NoError(t, err)
	require.Equal(t, 3, img.Channels)
	require.Equal(t, []uint8{0, 0, 0}, img.Pixel(0, 0))
	require.Equal(t, []uint8{0, 255, 0}, img.Pixel(0, 1))
	require.Equal(t, []uint8{255, 255, 255}, img.Pixel(1, 0))
	require.Equal(t, []uint8{255, 255, 0}, img.Pixel(0, 3))
	require.Equal(t, []uint8{255, 150, 0}, img.Pixel(2, 0))
	require.Equal(t, []uint8{255, 0, 0}, img.Pixel(3, 0))
}

func TestCheckFrame(t *testing.T) {
	log := logs.NewTestingLog(t)
	in := pair()
	alpha := grid.NewImage(4, 4, 1)
	res, err := CheckFrame(in, alpha, 100, rand.New(rand.NewSource(1)), log)
	require.NoError(t, err)
	require.NotEmpty(t, res.Skipped)
	require.Equal(t, 0, res.Counts.Tested())

	for r := 0; r < 4; r++ {
		alpha.Set(r, 2, 0, 255)
		alpha.Set(r, 3, 0, 255)
	}
	in.Occlusion.Set(0, 0, 0, 255)
	in.Occlusion.Set(0, 2, 0, 255)
	res, err = CheckFrame(in, alpha, 100, rand.New(rand.NewSource(1)), log)
	require.NoError(t, err)
	require.Empty(t, res.Skipped)
	require.Equal(t, 8, res.Counts.Tested())
	require.Equal(t, 3, res.Counts[Sane])
	require.Equal(t, 1, res.Counts[FlowCorrAgreeButOccluded])
	require.Equal(t, 4, res.Counts[OutOfBoundsNotOccluded])
	require.InDelta(t, 1.0/8, res.OccludedFraction, 1e-9)

	// Sampling without replacement
	res, err = CheckFrame(in, alpha, 5, rand.New(rand.NewSource(1)), log)
	require.NoError(t, err)
	require.Equal(t, 5, res.Counts.Tested())

	_, err = CheckFrame(in, alpha, -1, rand.New(rand.NewSource(1)), log)
	require.ErrorIs(t, err, ErrConfig)
}

func syntheticFrames(t *testing.T) []synth.Frame {
	frames, err := synth.Generate(synth.Scene{
		Width:  40,
		Height: 30,
		Frames: 6,
		Objects: []synth.Object{
			{X: 2, Y: 3, W: 10, H: 8, DX: 2, DY: 1},
			{X: 20, Y: 10, W: 12, H: 9, DX: -3, DY: 0},
			{X: 5, Y: 15, W: 8, H: 8, DX: 1, DY: -2},
			{X: 34, Y: 1, W: 5, H: 5, DX: 2, DY: 2},
		},
	})
	require.NoError(t, err)
	return frames
}

func sources(frames []synth.Frame) []FrameSource {
	src := []FrameSource{}
	for i := 0; i+1 < len(frames); i++ {
		a, b := frames[i], frames[i+1]
		src = append(src, FrameSource{
			Frame: i + 1,
			Load: func() (*PairData, *grid.Image, error) {
				return NewPairData(a.Flow, a.Ids, b.Ids, a.Corr, b.Corr, a.Occlusion), a.Alpha, nil
			},
		})
	}
	return src
}

func allPixelsConfig() Config {
	cfg := DefaultConfig()
	cfg.PixelsPerFrame = 1000000
	cfg.MaxFrames = -1
	cfg.MinTestedFraction = 0
	cfg.Workers = 3
	return cfg
}

func TestDatasetClean(t *testing.T) {
	cfg := allPixelsConfig()
	report, err := CheckDataset(context.Background(), sources(syntheticFrames(t)), cfg, rand.New(rand.NewSource(5)), logs.NewTestingLog(t))
	require.NoError(t, err)
	require.Equal(t, 5, len(report.Frames))
	require.Equal(t, 5, report.FramesTested)
	require.Greater(t, report.Tested(), 500)
	require.Equal(t, report.Tested(), report.Counts.Sane())
	require.Equal(t, 1.0, report.Ratio())
	require.NoError(t, report.Validate(cfg))
	for i, fr := range report.Frames {
		require.Equal(t, i+1, fr.Frame)
	}

	// Expecting a million pixels per frame fails the tested gate
	cfg.MinTestedFraction = 0.5
	err = report.Validate(cfg)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, GateTested, verr.Gate)
}

func TestDatasetCorrupted(t *testing.T) {
	frames := syntheticFrames(t)
	rng := rand.New(rand.NewSource(9))
	flipped := 0
	foreground := 0
	for i := range frames[:len(frames)-1] {
		flipped += synth.Corrupt(&frames[i], 0.1, rng)
		rows, _ := grid.NonZero(frames[i].Alpha)
		foreground += len(rows)
	}

	cfg := allPixelsConfig()
	report, err := CheckDataset(context.Background(), sources(frames), cfg, rand.New(rand.NewSource(5)), logs.NewTestingLog(t))
	require.NoError(t, err)
	require.Equal(t, foreground, report.Tested())
	require.Equal(t, foreground-flipped, report.Counts.Sane())
	require.InDelta(t, 0.9, report.Ratio(), 0.01)

	cfg.MinSanity = 0.8
	require.NoError(t, report.Validate(cfg))

	cfg.MinSanity = 0.95
	err = report.Validate(cfg)
	require.ErrorIs(t, err, ErrValidation)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, GateSanity, verr.Gate)
	require.Equal(t, 0.95, verr.Threshold)

	cfg.MinSanity = 0.8
	cfg.MaxOcclusionFraction = 0.01
	err = report.Validate(cfg)
	require.ErrorAs(t, err, &verr)
	require.Equal(t, GateOcclusion, verr.Gate)

	cfg.MaxOcclusionFraction = 0
	require.NoError(t, report.Validate(cfg))
}

func TestDatasetReproducible(t *testing.T) {
	frames := syntheticFrames(t)
	rng := rand.New(rand.NewSource(3))
	for i := range frames {
		synth.Corrupt(&frames[i], 0.3, rng)
	}
	cfg := DefaultConfig()
	cfg.PixelsPerFrame = 20
	cfg.MaxFrames = 3
	cfg.Workers = 4
	run := func() *Report {
		report, err := CheckDataset(context.Background(), sources(frames), cfg, rand.New(rand.NewSource(77)), logs.NewTestingLog(t))
		require.NoError(t, err)
		return report
	}
	a := run()
	b := run()
	require.Equal(t, a, b)
	require.Equal(t, 3, len(a.Frames))
	require.Equal(t, 60, a.Tested())
	require.Equal(t, 60, a.Expected)
}

func TestDatasetErrors(t *testing.T) {
	log := logs.NewTestingLog(t)
	_, err := CheckDataset(context.Background(), nil, DefaultConfig(), rand.New(rand.NewSource(1)), log)
	require.ErrorIs(t, err, ErrNoFrames)

	bad := []FrameSource{{Frame: 7, Load: func() (*PairData, *grid.Image, error) {
		return nil, nil, errors.New("file not found")
	}}}
	_, err = CheckDataset(context.Background(), bad, DefaultConfig(), rand.New(rand.NewSource(1)), log)
	require.ErrorContains(t, err, "frame 7")
}

func TestDatasetBadConfig(t *testing.T) {
	log := logs.NewTestingLog(t)
	frames := sources(syntheticFrames(t))
	for _, mod := range []func(c *Config){
		func(c *Config) { c.PixelsPerFrame = -1 },
		func(c *Config) { c.MinSanity = 1.5 },
		func(c *Config) { c.MinSanity = -0.1 },
		func(c *Config) { c.MinTestedFraction = 2 },
	} {
		cfg := allPixelsConfig()
		mod(&cfg)
		_, err := CheckDataset(context.Background(), frames, cfg, rand.New(rand.NewSource(1)), log)
		require.ErrorIs(t, err, ErrConfig)
	}
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}
