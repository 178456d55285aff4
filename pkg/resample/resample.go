// Package resample changes the resolution of flow fields and label images.
package resample

import (
	"errors"
	"fmt"
	"math"

	"github.com/anthonynsimon/bild/transform"
	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/flowcore/pkg/gen"
	"github.com/cyclopcam/flowcore/pkg/grid"
	"github.com/cyclopcam/flowcore/pkg/imagefile"
)

var ErrInvalidSize = errors.New("invalid output size")

func checkSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %v x %v", ErrInvalidSize, width, height)
	}
	return nil
}

// Flow resamples a 2-channel flow field to width x height with bilinear weights,
// and scales the x and y components by the change in width and height respectively,
// so that vectors are expressed in the pixels of the new resolution.
// Source coordinates are clamped to the last row and column, so the right and
// bottom edges of an upsampled field replicate the edge vectors.
func Flow(f *grid.Flow, height, width int) (*grid.Flow, error) {
	if err := f.RequireChannels(2); err != nil {
		return nil, err
	}
	if err := checkSize(width, height); err != nil {
		return nil, err
	}
	inW, inH := f.Width, f.Height
	scaleX := float64(inW) / float64(width)
	scaleY := float64(inH) / float64(height)
	magX := float32(width) / float32(inW)
	magY := float32(height) / float32(inH)

	out := grid.NewFlow(width, height)
	for y := 0; y < height; y++ {
		y0, y1, fy := source(y, scaleY, inH)
		for x := 0; x < width; x++ {
			x0, x1, fx := source(x, scaleX, inW)
			wa := (1 - fx) * (1 - fy)
			wb := (1 - fx) * fy
			wc := fx * (1 - fy)
			wd := fx * fy
			a := f.Pixel(y0, x0)
			b := f.Pixel(y1, x0)
			c := f.Pixel(y0, x1)
			d := f.Pixel(y1, x1)
			p := out.Pixel(y, x)
			p[0] = (wa*a[0] + wb*b[0] + wc*c[0] + wd*d[0]) * magX
			p[1] = (wa*a[1] + wb*b[1] + wc*c[1] + wd*d[1]) * magY
		}
	}
	return out, nil
}

// source maps output index i to two source indices and the fractional weight of the second
func source(i int, scale float64, size int) (i0, i1 int, frac float32) {
	v := gen.Clamp(float64(i)*scale, 0, float64(size-1))
	fl := math.Floor(v)
	i0 = int(fl)
	i1 = min(i0+1, size-1)
	return i0, i1, float32(v - fl)
}

// ObjectIds resizes an object id image with nearest-neighbour sampling, so that
// no new colors are created. Images with 1, 3 or 4 channels are accepted, and the
// result has the same number of channels as the input.
func ObjectIds(ids *grid.Image, height, width int) (*grid.Image, error) {
	if err := checkSize(width, height); err != nil {
		return nil, err
	}
	switch ids.Channels {
	case 1:
		return grid.DropChannels(pointSampleRGB(grid.Expand(ids, 3), width, height), 1), nil
	case 3:
		return pointSampleRGB(ids, width, height), nil
	case 4:
		// Alpha is resized as a separate gray image, because the resizer would
		// otherwise premultiply the color channels.
		rgb := pointSampleRGB(grid.DropChannels(ids, 3), width, height)
		alpha := pointSampleRGB(grid.Expand(channel(ids, 3), 3), width, height)
		out := grid.NewImage(width, height, 4)
		for i := 0; i < width*height; i++ {
			copy(out.Pix[i*4:i*4+3], rgb.Pix[i*3:i*3+3])
			out.Pix[i*4+3] = alpha.Pix[i*3]
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: object ids must have 1, 3 or 4 channels, not %v", grid.ErrChannels, ids.Channels)
	}
}

func channel(img *grid.Image, ch int) *grid.Image {
	out := grid.NewImage(img.Width, img.Height, 1)
	for i := range out.Pix {
		out.Pix[i] = img.Pix[i*img.Channels+ch]
	}
	return out
}

func pointSampleRGB(rgb *grid.Image, width, height int) *grid.Image {
	src := cimg.WrapImage(rgb.Width, rgb.Height, cimg.PixelFormatRGB, rgb.Pix)
	dst := cimg.NewImage(width, height, cimg.PixelFormatRGB)
	params := cimg.ResizeParams{
		Filter:          cimg.ResizeFilterPointSample,
		CheapSRGBFilter: true,
	}
	cimg.Resize(src, dst, &params)

	out := grid.NewImage(width, height, 3)
	for y := 0; y < height; y++ {
		copy(out.Pix[y*width*3:(y+1)*width*3], dst.Pixels[y*dst.Stride:y*dst.Stride+width*3])
	}
	return out
}

// Image resizes a photographic image with a linear filter.
// The channel count of the result matches the input.
func Image(img *grid.Image, height, width int) (*grid.Image, error) {
	if err := checkSize(width, height); err != nil {
		return nil, err
	}
	std, err := imagefile.ToImage(img)
	if err != nil {
		return nil, err
	}
	resized := transform.Resize(std, width, height, transform.Linear)
	return imagefile.FromImage(resized, img.Channels), nil
}
