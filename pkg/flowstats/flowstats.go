// Package flowstats measures how much motion a sequence of flow fields contains.
package flowstats

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/chewxy/math32"
	"github.com/cyclopcam/flowcore/pkg/grid"
	"github.com/cyclopcam/flowcore/pkg/stats"
)

// DefaultThreshold is the magnitude (in pixels) above which a pixel is moving
const DefaultThreshold = 0.1

// PercentBins are the histogram edges, as a percentage of the larger frame dimension
var PercentBins = []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 20, 30, 40, 50}

// HistogramLen is the length that every frame histogram is padded to
var HistogramLen = len(PercentBins) + 3

// FrameStats describes the motion of one frame
type FrameStats struct {
	Pixels        int     // Total pixels in the frame
	Moving        int     // Pixels with magnitude above the threshold
	MaxMagnitude  float32 // Largest magnitude in the frame
	MeanMagnitude float64 // Mean magnitude of moving pixels
	StdMagnitude  float64 // Standard deviation of the magnitude of moving pixels
	Histogram     []int   // Counts of magnitudes between consecutive Bins edges, truncated at MaxMagnitude
}

// MovingFraction returns the fraction of pixels that are moving
func (f *FrameStats) MovingFraction() float64 {
	if f.Pixels == 0 {
		return 0
	}
	return float64(f.Moving) / float64(f.Pixels)
}

// Bins returns the histogram edges for a frame: the threshold, followed by
// PercentBins scaled by the larger of height and width.
func Bins(height, width int, threshold float64) []float64 {
	dim := float64(max(height, width))
	bins := []float64{threshold}
	for _, p := range PercentBins {
		bins = append(bins, p/100*dim)
	}
	return bins
}

// masked returns true if pixel i of mask has a non-zero color
func masked(mask *grid.Image, i int) bool {
	p := mask.Pix[i*mask.Channels : (i+1)*mask.Channels]
	sum := 0
	for _, v := range p[:min(3, len(p))] {
		sum += int(v)
	}
	return sum == 0
}

// Analyze computes the motion statistics of a flow field.
// If mask is not nil, pixels where the first three channels of mask are all zero
// are treated as having zero flow. This is used with object id images, where the
// background is black.
func Analyze(flow *grid.Flow, mask *grid.Image, threshold float64) (FrameStats, error) {
	if err := flow.RequireChannels(2); err != nil {
		return FrameStats{}, err
	}
	if mask != nil {
		if err := grid.RequireSameSize("flow and mask", flow.Size(), mask.Size()); err != nil {
			return FrameStats{}, err
		}
	}
	n := flow.Width * flow.Height
	fs := FrameStats{Pixels: n}
	mags := make([]float32, n)
	moving := []float32{}
	for i := 0; i < n; i++ {
		if mask != nil && masked(mask, i) {
			continue
		}
		x, y := flow.Pix[i*2], flow.Pix[i*2+1]
		m := math32.Sqrt(x*x + y*y)
		mags[i] = m
		fs.MaxMagnitude = max(fs.MaxMagnitude, m)
		if float64(m) > threshold {
			moving = append(moving, m)
		}
	}
	fs.Moving = len(moving)
	if fs.Moving != 0 {
		fs.MeanMagnitude, fs.StdMagnitude = stats.MeanVar(moving)
		fs.StdMagnitude = math.Sqrt(fs.StdMagnitude)

		edges := []float64{}
		for _, b := range Bins(flow.Height, flow.Width, threshold) {
			if b < float64(fs.MaxMagnitude) {
				edges = append(edges, b)
			}
		}
		edges = append(edges, float64(fs.MaxMagnitude))
		fs.Histogram = stats.Histogram(mags, edges)
	}
	for len(fs.Histogram) < HistogramLen {
		fs.Histogram = append(fs.Histogram, 0)
	}
	return fs, nil
}

// Summary aggregates the statistics of a sequence
type Summary struct {
	Height    int
	Width     int
	Threshold float64
	Frames    []FrameStats
}

// MotionFrames returns the number of frames with at least one moving pixel
func (s *Summary) MotionFrames() int {
	n := 0
	for i := range s.Frames {
		if s.Frames[i].Moving != 0 {
			n++
		}
	}
	return n
}

// MeanMovingFraction returns the average moving fraction of the frames that have motion
func (s *Summary) MeanMovingFraction() float64 {
	total := 0.0
	for i := range s.Frames {
		if s.Frames[i].Moving != 0 {
			total += s.Frames[i].MovingFraction()
		}
	}
	if n := s.MotionFrames(); n != 0 {
		return total / float64(n)
	}
	return 0
}

func joinInts(v []int) string {
	s := make([]string, len(v))
	for i, x := range v {
		s[i] = fmt.Sprint(x)
	}
	return strings.Join(s, " ")
}

// WriteReport writes the summary as text:
//
//	SHAPE: <height> <width>
//	FRAMES: <frames> <motion frames> <mean moving fraction>
//	BINS: <edges>
//	F<n> <moving percent> <histogram>   (one line per frame, starting at 1)
func WriteReport(w io.Writer, s *Summary) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "SHAPE: %d %d\n", s.Height, s.Width)
	fmt.Fprintf(bw, "FRAMES: %d %d %f\n", len(s.Frames), s.MotionFrames(), s.MeanMovingFraction())
	bins := []string{}
	if s.MotionFrames() != 0 {
		for _, b := range Bins(s.Height, s.Width, s.Threshold) {
			bins = append(bins, fmt.Sprintf("%g", b))
		}
	}
	fmt.Fprintf(bw, "BINS: %s\n", strings.Join(bins, " "))
	for i := range s.Frames {
		f := &s.Frames[i]
		fmt.Fprintf(bw, "F%d %0.5f %s\n", i+1, f.MovingFraction()*100, joinInts(f.Histogram))
	}
	return bw.Flush()
}
