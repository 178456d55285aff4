// Package synth renders small synthetic sequences of rigidly moving rectangles,
// with every pass that the sanity checker consumes.
package synth

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/cyclopcam/flowcore/pkg/flo"
	"github.com/cyclopcam/flowcore/pkg/grid"
	"github.com/cyclopcam/flowcore/pkg/imagefile"
	"github.com/cyclopcam/flowcore/pkg/occlusion"
	"github.com/cyclopcam/flowcore/pkg/palette"
)

var ErrEmptyScene = errors.New("scene has no frames or zero size")

// File name patterns written by WriteSequence. Frame numbers start at 1.
const (
	FlowPattern      = "flow%06d.flo"
	BackFlowPattern  = "backflow%06d.flo"
	ObjectIdPattern  = "objectid%06d.png"
	CorrespPattern   = "corr%06d.png"
	OcclusionPattern = "occlusions%06d.png"
	AlphaPattern     = "alpha%06d.png"
)

// Object is a rectangle that moves by (DX, DY) pixels per frame.
// Objects later in Scene.Objects are drawn in front of earlier ones.
type Object struct {
	X, Y   int // Top left corner in frame 0
	W, H   int
	DX, DY int
	Color  palette.RGB // Object id color. Zero picks a unique color.
}

type Scene struct {
	Width   int
	Height  int
	Frames  int
	Objects []Object
}

// Frame holds every pass of one frame
type Frame struct {
	Flow      *grid.Flow  // To the next frame
	BackFlow  *grid.Flow  // To the previous frame
	Ids       *grid.Image // RGB object id colors, black background
	Corr      *grid.Image // RGB position within the object
	Occlusion *grid.Image // 255 where the forward flow is occluded
	Alpha     *grid.Image // 255 on objects
}

// RandomScene creates a scene with nobj objects of random size, position and velocity
func RandomScene(width, height, frames, nobj int, rng *rand.Rand) Scene {
	s := Scene{Width: width, Height: height, Frames: frames}
	for i := 0; i < nobj; i++ {
		o := Object{
			W:  2 + rng.Intn(max(1, width/3)),
			H:  2 + rng.Intn(max(1, height/3)),
			DX: rng.Intn(7) - 3,
			DY: rng.Intn(7) - 3,
		}
		o.X = rng.Intn(max(1, width-o.W))
		o.Y = rng.Intn(max(1, height-o.H))
		s.Objects = append(s.Objects, o)
	}
	return s
}

// pass is the geometry of one frame: the index of the front object at every pixel, or -1
type pass struct {
	width, height int
	owner         []int
}

func (s *Scene) render(t int) pass {
	p := pass{width: s.Width, height: s.Height, owner: make([]int, s.Width*s.Height)}
	for i := range p.owner {
		p.owner[i] = -1
	}
	for i, o := range s.Objects {
		x0 := o.X + t*o.DX
		y0 := o.Y + t*o.DY
		for y := max(0, y0); y < min(s.Height, y0+o.H); y++ {
			for x := max(0, x0); x < min(s.Width, x0+o.W); x++ {
				p.owner[y*s.Width+x] = i
			}
		}
	}
	return p
}

// flow fills the flow of every object pixel with its velocity, multiplied by sign
func (s *Scene) flow(p pass, sign float32) *grid.Flow {
	f := grid.NewFlow(s.Width, s.Height)
	for i, owner := range p.owner {
		if owner >= 0 {
			f.Pix[i*2] = sign * float32(s.Objects[owner].DX)
			f.Pix[i*2+1] = sign * float32(s.Objects[owner].DY)
		}
	}
	return f
}

// corrColor encodes the position of (x, y) relative to the frame 0 box of object o
func corrColor(o Object, t, x, y int) [3]uint8 {
	lx := x - (o.X + t*o.DX)
	ly := y - (o.Y + t*o.DY)
	return [3]uint8{
		uint8(math.Round(float64(lx) * 255 / float64(max(1, o.W-1)))),
		uint8(math.Round(float64(ly) * 255 / float64(max(1, o.H-1)))),
		128,
	}
}

// Generate renders all frames of the scene. The output is deterministic.
// Occlusions are computed from the rendered flow and back flow with occlusion.DetectVec.
func Generate(scene Scene) ([]Frame, error) {
	if scene.Frames < 1 || scene.Width < 1 || scene.Height < 1 {
		return nil, ErrEmptyScene
	}
	s := scene
	s.Objects = append([]Object{}, scene.Objects...)
	picker := palette.NewPicker(len(s.Objects), true)
	for i := range s.Objects {
		if s.Objects[i].Color == (palette.RGB{}) {
			s.Objects[i].Color = picker.Pick()
		} else {
			picker.Pick()
		}
	}

	// One extra pass provides the back flow that the last frame's occlusions need
	passes := make([]pass, s.Frames+1)
	for t := range passes {
		passes[t] = s.render(t)
	}

	frames := make([]Frame, s.Frames)
	nextBack := s.flow(passes[0], -1)
	for t := range frames {
		p := passes[t]
		fr := Frame{
			Flow:     s.flow(p, 1),
			BackFlow: nextBack,
			Ids:      grid.NewImage(s.Width, s.Height, 3),
			Corr:     grid.NewImage(s.Width, s.Height, 3),
			Alpha:    grid.NewImage(s.Width, s.Height, 1),
		}
		for y := 0; y < s.Height; y++ {
			for x := 0; x < s.Width; x++ {
				owner := p.owner[y*s.Width+x]
				if owner < 0 {
					continue
				}
				o := s.Objects[owner]
				copy(fr.Ids.Pixel(y, x), o.Color[:])
				c := corrColor(o, t, x, y)
				copy(fr.Corr.Pixel(y, x), c[:])
				fr.Alpha.Set(y, x, 0, 255)
			}
		}
		nextBack = s.flow(passes[t+1], -1)
		occ, err := occlusion.DetectVec(fr.Flow, nextBack, occlusion.RenderThreshold)
		if err != nil {
			return nil, err
		}
		fr.Occlusion = occ
		frames[t] = fr
	}
	return frames, nil
}

// Corrupt inverts the occlusion value of a random fraction of the foreground pixels,
// and returns the number of pixels changed.
func Corrupt(fr *Frame, fraction float64, rng *rand.Rand) int {
	rows, cols := grid.NonZero(fr.Alpha)
	n := int(math.Round(fraction * float64(len(rows))))
	for _, i := range rng.Perm(len(rows))[:n] {
		if fr.Occlusion.At(rows[i], cols[i], 0) == occlusion.Visible {
			fr.Occlusion.Set(rows[i], cols[i], 0, occlusion.Occluded)
		} else {
			fr.Occlusion.Set(rows[i], cols[i], 0, occlusion.Visible)
		}
	}
	return n
}

// WriteSequence writes every pass of every frame into dir, numbering frames from 1
func WriteSequence(dir string, frames []Frame) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for i, fr := range frames {
		n := i + 1
		name := func(pattern string) string {
			return filepath.Join(dir, fmt.Sprintf(pattern, n))
		}
		if err := flo.WriteFile(name(FlowPattern), fr.Flow); err != nil {
			return err
		}
		if err := flo.WriteFile(name(BackFlowPattern), fr.BackFlow); err != nil {
			return err
		}
		images := []struct {
			pattern string
			img     *grid.Image
		}{
			{ObjectIdPattern, fr.Ids},
			{CorrespPattern, fr.Corr},
			{OcclusionPattern, fr.Occlusion},
			{AlphaPattern, fr.Alpha},
		}
		for _, im := range images {
			if err := imagefile.Save(name(im.pattern), im.img); err != nil {
				return err
			}
		}
	}
	return nil
}
