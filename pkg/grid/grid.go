// Package grid holds the dense H x W x C arrays that flow fields and images are stored in.
package grid

import (
	"errors"
	"fmt"
)

var ErrShapeMismatch = errors.New("shape mismatch")
var ErrChannels = errors.New("unexpected number of channels")

// Number is the set of element types a Grid can hold
type Number interface {
	~uint8 | ~float32
}

// Grid is a row-major array of Height rows, Width columns, and Channels interleaved values per pixel.
type Grid[T Number] struct {
	Width    int
	Height   int
	Channels int
	Pix      []T
}

// Flow is a 2 channel float field. Channel 0 is the x (column) displacement in pixels,
// and channel 1 is the y (row) displacement, where positive values move down the image.
type Flow = Grid[float32]

// Image is an 8-bit image with 1, 3 or 4 channels
type Image = Grid[uint8]

// New allocates a zeroed grid
func New[T Number](width, height, channels int) *Grid[T] {
	if width < 0 || height < 0 || channels < 1 {
		panic(fmt.Sprintf("Invalid grid dimensions %vx%vx%v", width, height, channels))
	}
	return &Grid[T]{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]T, width*height*channels),
	}
}

// NewFlow allocates a zeroed 2 channel flow field
func NewFlow(width, height int) *Flow {
	return New[float32](width, height, 2)
}

// NewImage allocates a zeroed 8-bit image
func NewImage(width, height, channels int) *Image {
	return New[uint8](width, height, channels)
}

// Wrap creates a grid around existing memory, which is not copied
func Wrap[T Number](width, height, channels int, pix []T) (*Grid[T], error) {
	if width < 0 || height < 0 || channels < 1 {
		return nil, fmt.Errorf("%w: invalid dimensions %vx%vx%v", ErrShapeMismatch, width, height, channels)
	}
	if len(pix) != width*height*channels {
		return nil, fmt.Errorf("%w: %vx%vx%v grid needs %v elements, but got %v", ErrShapeMismatch, width, height, channels, width*height*channels, len(pix))
	}
	return &Grid[T]{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      pix,
	}, nil
}

// Index returns the position of (row, col, channel) in Pix
func (g *Grid[T]) Index(row, col, ch int) int {
	return (row*g.Width+col)*g.Channels + ch
}

func (g *Grid[T]) At(row, col, ch int) T {
	return g.Pix[(row*g.Width+col)*g.Channels+ch]
}

func (g *Grid[T]) Set(row, col, ch int, v T) {
	g.Pix[(row*g.Width+col)*g.Channels+ch] = v
}

// Pixel returns a slice view of all channels at (row, col)
func (g *Grid[T]) Pixel(row, col int) []T {
	i := (row*g.Width + col) * g.Channels
	return g.Pix[i : i+g.Channels]
}

// InBounds returns true if (row, col) is a valid integer pixel coordinate
func (g *Grid[T]) InBounds(row, col int) bool {
	return row >= 0 && col >= 0 && row < g.Height && col < g.Width
}

// SameSize returns true if both grids have the same width and height.
// Channel counts are not compared.
func (g *Grid[T]) SameSize(width, height int) bool {
	return g.Width == width && g.Height == height
}

func (g *Grid[T]) Clone() *Grid[T] {
	c := *g
	c.Pix = make([]T, len(g.Pix))
	copy(c.Pix, g.Pix)
	return &c
}

// Shape returns the shape, eg "480x640x2" (height x width x channels)
func (g *Grid[T]) Shape() string {
	return fmt.Sprintf("%vx%vx%v", g.Height, g.Width, g.Channels)
}

// RequireSameSize returns ErrShapeMismatch if any of the sizes differ from the first.
// Each entry is a (width, height) pair, and name is used in the error message.
func RequireSameSize(name string, sizes ...[2]int) error {
	for i := 1; i < len(sizes); i++ {
		if sizes[i] != sizes[0] {
			return fmt.Errorf("%w: %v: %vx%v vs %vx%v", ErrShapeMismatch, name, sizes[0][1], sizes[0][0], sizes[i][1], sizes[i][0])
		}
	}
	return nil
}

// Size returns (width, height), for use with RequireSameSize
func (g *Grid[T]) Size() [2]int {
	return [2]int{g.Width, g.Height}
}

// RequireChannels returns ErrChannels if the grid does not have exactly n channels
func (g *Grid[T]) RequireChannels(n int) error {
	if g.Channels != n {
		return fmt.Errorf("%w: expected %v, but grid is %v", ErrChannels, n, g.Shape())
	}
	return nil
}
