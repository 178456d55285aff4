// Package imagefile converts between image files and grid.Image
package imagefile

import (
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/anthonynsimon/bild/clone"
	"github.com/anthonynsimon/bild/imgio"
	"github.com/cyclopcam/flowcore/pkg/grid"
	"github.com/cyclopcam/flowcore/pkg/iox"
)

// Load reads a PNG or JPEG file.
// Grayscale images produce 1 channel, opaque color images produce 3 channels (RGB),
// and everything else produces 4 channels (non-premultiplied RGBA).
func Load(filename string) (*grid.Image, error) {
	img, err := imgio.Open(filename)
	if err != nil {
		return nil, err
	}
	return FromImage(img, 0), nil
}

// LoadRGB reads an image file and always returns 3 channels.
// Alpha is dropped, and grayscale is replicated into R, G and B.
func LoadRGB(filename string) (*grid.Image, error) {
	img, err := imgio.Open(filename)
	if err != nil {
		return nil, err
	}
	return FromImage(img, 3), nil
}

// Save writes img as a PNG file.
// The file is written to a temporary name first, and renamed when complete.
func Save(filename string, img *grid.Image) error {
	std, err := ToImage(img)
	if err != nil {
		return err
	}
	encode := imgio.PNGEncoder()
	return iox.WriteFileAtomic(filename, func(w io.Writer) error {
		return encode(w, std)
	})
}

// NativeChannels returns the number of channels that best represents img
func NativeChannels(img image.Image) int {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return 1
	}
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return 3
	}
	return 4
}

// FromImage converts a Go image to a grid with the given number of channels (1, 3 or 4).
// If channels is 0, then NativeChannels(img) is used.
// One channel output from a color image takes the red channel.
func FromImage(img image.Image, channels int) *grid.Image {
	if channels == 0 {
		channels = NativeChannels(img)
	}
	b := img.Bounds()
	dst := grid.NewImage(b.Dx(), b.Dy(), channels)

	if gray, ok := img.(*image.Gray); ok {
		for y := 0; y < b.Dy(); y++ {
			src := gray.Pix[y*gray.Stride : y*gray.Stride+b.Dx()]
			for x, v := range src {
				p := dst.Pixel(y, x)
				for c := range p {
					if c < 3 {
						p[c] = v
					} else {
						p[c] = 255
					}
				}
			}
		}
		return dst
	}

	// Non-premultiplied colors are read directly, so that object id colors survive
	// in transparent regions. Other formats go through bild's RGBA clone.
	var pix []uint8
	var stride int
	if nrgba, ok := img.(*image.NRGBA); ok {
		pix = nrgba.Pix
		stride = nrgba.Stride
	} else {
		rgba := clone.AsRGBA(img)
		pix = rgba.Pix
		stride = rgba.Stride
	}
	for y := 0; y < b.Dy(); y++ {
		row := pix[y*stride : y*stride+b.Dx()*4]
		for x := 0; x < b.Dx(); x++ {
			copy(dst.Pixel(y, x), row[x*4:x*4+channels])
		}
	}
	return dst
}

// ToImage converts a 1, 3 or 4 channel grid to a Go image.
// 1 channel becomes *image.Gray, 3 and 4 channels become *image.NRGBA.
func ToImage(g *grid.Image) (image.Image, error) {
	rect := image.Rect(0, 0, g.Width, g.Height)
	switch g.Channels {
	case 1:
		gray := image.NewGray(rect)
		for y := 0; y < g.Height; y++ {
			copy(gray.Pix[y*gray.Stride:y*gray.Stride+g.Width], g.Pix[y*g.Width:(y+1)*g.Width])
		}
		return gray, nil
	case 3, 4:
		nrgba := image.NewNRGBA(rect)
		for y := 0; y < g.Height; y++ {
			for x := 0; x < g.Width; x++ {
				p := g.Pixel(y, x)
				c := color.NRGBA{R: p[0], G: p[1], B: p[2], A: 255}
				if g.Channels == 4 {
					c.A = p[3]
				}
				nrgba.SetNRGBA(x, y, c)
			}
		}
		return nrgba, nil
	default:
		return nil, fmt.Errorf("%w: cannot convert %v grid to an image", grid.ErrChannels, g.Shape())
	}
}
