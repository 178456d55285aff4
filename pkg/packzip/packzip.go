// Package packzip stores a sequence of equally sized float32 grids as a single
// zip entry.
//
// Zipping a directory of .flo files compresses far worse than concatenating
// the raw values first, so all items are written back to back into one blob
// named data.<H>.<W>.<C>.binary, which is the only entry in the archive.
// Values are float32 little endian, in item, row, column, channel order.
package packzip

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/bits"
	"regexp"
	"strconv"

	"github.com/cyclopcam/flowcore/pkg/flo"
	"github.com/cyclopcam/flowcore/pkg/grid"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// ErrFormat is returned for archives that don't follow the packed layout.
// It wraps flo.ErrFormat, so callers can test for either.
var ErrFormat = fmt.Errorf("%w: bad packed archive", flo.ErrFormat)

var ErrEmpty = errors.New("nothing to pack")

type Method int

const (
	MethodDeflate Method = iota // Readable by any zip tool
	MethodZstd                  // zip method 93
)

type Options struct {
	Method Method
	Level  int // flate level when Method is MethodDeflate. 0 means flate.DefaultCompression
}

var entryRegex = regexp.MustCompile(`.*data\.([0-9]+)\.([0-9]+)\.([0-9]+)\.binary$`)

// EntryName returns the name of the single archive entry
func EntryName(height, width, channels int) string {
	return fmt.Sprintf("data.%d.%d.%d.binary", height, width, channels)
}

// ParseEntryName extracts the item shape from an entry name
func ParseEntryName(name string) (height, width, channels int, err error) {
	m := entryRegex.FindStringSubmatch(name)
	if m == nil {
		return 0, 0, 0, fmt.Errorf("%w: entry name '%v' does not match %v", ErrFormat, name, entryRegex)
	}
	dims := [3]int{}
	for i := range dims {
		dims[i], err = strconv.Atoi(m[i+1])
		if err != nil || dims[i] < 1 || dims[i] > flo.MaxDim {
			return 0, 0, 0, fmt.Errorf("%w: invalid dimension '%v' in entry name '%v'", ErrFormat, m[i+1], name)
		}
	}
	return dims[0], dims[1], dims[2], nil
}

// PackFlows writes flows as a packed archive
func PackFlows(w io.Writer, flows []*grid.Flow, opts *Options) error {
	for i, f := range flows {
		if f.Channels != 2 {
			return fmt.Errorf("%w: flow %v has shape %v", grid.ErrChannels, i, f.Shape())
		}
	}
	return PackArrays(w, flows, opts)
}

// UnpackFlows reads an archive written by PackFlows
func UnpackFlows(r io.ReaderAt, size int64) ([]*grid.Flow, error) {
	items, err := UnpackArrays(r, size)
	if err != nil {
		return nil, err
	}
	for _, f := range items {
		if f.Channels != 2 {
			return nil, fmt.Errorf("%w: archive holds %v items, not flow", ErrFormat, f.Shape())
		}
	}
	return items, nil
}

// PackArrays writes arrays of any channel count as a packed archive.
// All arrays must have the same shape.
func PackArrays(w io.Writer, arrays []*grid.Grid[float32], opts *Options) error {
	if len(arrays) == 0 {
		return ErrEmpty
	}
	if opts == nil {
		opts = &Options{}
	}
	first := arrays[0]
	for i, a := range arrays {
		if a.Width != first.Width || a.Height != first.Height || a.Channels != first.Channels {
			return fmt.Errorf("%w: item %v has shape %v, but item 0 has shape %v", grid.ErrShapeMismatch, i, a.Shape(), first.Shape())
		}
	}

	zw := zip.NewWriter(w)
	header := &zip.FileHeader{
		Name: EntryName(first.Height, first.Width, first.Channels),
	}
	switch opts.Method {
	case MethodDeflate:
		level := opts.Level
		if level == 0 {
			level = flate.DefaultCompression
		}
		zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(out, level)
		})
		header.Method = zip.Deflate
	case MethodZstd:
		zw.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor())
		header.Method = zstd.ZipMethodWinZip
	default:
		return fmt.Errorf("unknown compression method %v", opts.Method)
	}

	entry, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	for _, a := range arrays {
		if err := binary.Write(entry, binary.LittleEndian, a.Pix); err != nil {
			return err
		}
	}
	return zw.Close()
}

// Upper bound on the number of item slots allocated before any data is read
const maxPrealloc = 1024

// itemSize returns the number of bytes in one item, or ErrFormat if that overflows
func itemSize(height, width, channels int) (uint64, error) {
	size := uint64(4)
	for _, d := range []int{height, width, channels} {
		hi, lo := bits.Mul64(size, uint64(d))
		if hi != 0 || d < 1 || lo > math.MaxInt64 {
			return 0, fmt.Errorf("%w: item shape %vx%vx%v is too large", ErrFormat, height, width, channels)
		}
		size = lo
	}
	return size, nil
}

// UnpackArrays reads an archive written by PackArrays or PackFlows.
// A channel count of 1 is squeezed, so that the grids have Channels = 1.
func UnpackArrays(r io.ReaderAt, size int64) ([]*grid.Grid[float32], error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	zr.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())
	if len(zr.File) != 1 {
		return nil, fmt.Errorf("%w: expected one entry, but found %v", ErrFormat, len(zr.File))
	}
	file := zr.File[0]
	height, width, channels, err := ParseEntryName(file.Name)
	if err != nil {
		return nil, err
	}

	itemBytes, err := itemSize(height, width, channels)
	if err != nil {
		return nil, err
	}
	if file.UncompressedSize64%itemBytes != 0 {
		return nil, fmt.Errorf("%w: entry size %v is not a multiple of the item size %v", ErrFormat, file.UncompressedSize64, itemBytes)
	}
	nitems := file.UncompressedSize64 / itemBytes

	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	// The sizes in the zip header are not trusted until the data has been read,
	// so memory only grows as decompressed bytes arrive.
	items := make([]*grid.Grid[float32], 0, min(nitems, maxPrealloc))
	raw := bytes.Buffer{}
	for i := uint64(0); i < nitems; i++ {
		raw.Reset()
		if n, err := io.CopyN(&raw, rc, int64(itemBytes)); err != nil {
			return nil, fmt.Errorf("%w: item %v is truncated after %v bytes: %w", ErrFormat, i, n, err)
		}
		g := grid.New[float32](width, height, channels)
		if err := binary.Read(&raw, binary.LittleEndian, g.Pix); err != nil {
			return nil, fmt.Errorf("%w: item %v: %w", ErrFormat, i, err)
		}
		items = append(items, g)
	}
	// Reading to EOF verifies the checksum
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	return items, nil
}
