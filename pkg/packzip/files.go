package packzip

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/cyclopcam/flowcore/pkg/flo"
	"github.com/cyclopcam/flowcore/pkg/grid"
	"github.com/cyclopcam/flowcore/pkg/iox"
)

// Default output patterns for unpacked items. Frame numbers start at 1.
const (
	DefaultFlowPattern  = "flow%06d.flo"
	DefaultArrayPattern = "meta%06d.array"
)

// sortedGlob returns the files in dir with the given extension, in lexical order
func sortedGlob(dir, ext string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*"+ext))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no *%v files in %v", ErrEmpty, ext, dir)
	}
	sort.Strings(files)
	return files, nil
}

// PackFlowDir packs every .flo file in dir, in lexical filename order
func PackFlowDir(dir, zipFilename string, opts *Options) error {
	files, err := sortedGlob(dir, ".flo")
	if err != nil {
		return err
	}
	flows := make([]*grid.Flow, 0, len(files))
	for _, fn := range files {
		f, err := flo.ReadFile(fn)
		if err != nil {
			return err
		}
		flows = append(flows, f)
	}
	return iox.WriteFileAtomic(zipFilename, func(w io.Writer) error {
		return PackFlows(w, flows, opts)
	})
}

// UnpackFlowsFile reads a packed flow archive
func UnpackFlowsFile(zipFilename string) ([]*grid.Flow, error) {
	var flows []*grid.Flow
	err := withArchive(zipFilename, func(r io.ReaderAt, size int64) (err error) {
		flows, err = UnpackFlows(r, size)
		return
	})
	return flows, err
}

// UnpackFlowsToDir reads a packed flow archive, and writes each flow to outputDir,
// using pattern (eg "flow%06d.flo") with frame numbers starting at 1.
func UnpackFlowsToDir(zipFilename, outputDir, pattern string) ([]*grid.Flow, error) {
	flows, err := UnpackFlowsFile(zipFilename)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}
	for i, f := range flows {
		if err := flo.WriteFile(filepath.Join(outputDir, fmt.Sprintf(pattern, i+1)), f); err != nil {
			return nil, err
		}
	}
	return flows, nil
}

// PackArrayDir packs every file in dir with the given extension (eg ".array").
// Each file holds raw float32 little endian values, and shape is [height, width] or
// [height, width, channels].
func PackArrayDir(dir string, shape []int, zipFilename, ext string, opts *Options) error {
	if len(shape) < 2 || len(shape) > 3 {
		return fmt.Errorf("%w: array shape must have 2 or 3 dimensions, not %v", grid.ErrShapeMismatch, shape)
	}
	height, width, channels := shape[0], shape[1], 1
	if len(shape) == 3 {
		channels = shape[2]
	}
	files, err := sortedGlob(dir, ext)
	if err != nil {
		return err
	}
	arrays := make([]*grid.Grid[float32], 0, len(files))
	for _, fn := range files {
		a, err := ReadArrayFile(fn, height, width, channels)
		if err != nil {
			return err
		}
		arrays = append(arrays, a)
	}
	return iox.WriteFileAtomic(zipFilename, func(w io.Writer) error {
		return PackArrays(w, arrays, opts)
	})
}

// UnpackArraysFile reads a packed array archive
func UnpackArraysFile(zipFilename string) ([]*grid.Grid[float32], error) {
	var arrays []*grid.Grid[float32]
	err := withArchive(zipFilename, func(r io.ReaderAt, size int64) (err error) {
		arrays, err = UnpackArrays(r, size)
		return
	})
	return arrays, err
}

// UnpackArraysToDir reads a packed array archive, and writes each array as raw
// float32 values to outputDir, with frame numbers starting at 1.
func UnpackArraysToDir(zipFilename, outputDir, pattern string) ([]*grid.Grid[float32], error) {
	arrays, err := UnpackArraysFile(zipFilename)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}
	for i, a := range arrays {
		if err := WriteArrayFile(filepath.Join(outputDir, fmt.Sprintf(pattern, i+1)), a); err != nil {
			return nil, err
		}
	}
	return arrays, nil
}

// ReadArrayFile reads a headerless float32 little endian array of the given shape
func ReadArrayFile(filename string, height, width, channels int) (*grid.Grid[float32], error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	a := grid.New[float32](width, height, channels)
	if len(raw) != len(a.Pix)*4 {
		return nil, fmt.Errorf("%w: %v has %v bytes, but shape %v needs %v", grid.ErrShapeMismatch, filename, len(raw), a.Shape(), len(a.Pix)*4)
	}
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, a.Pix); err != nil {
		return nil, err
	}
	return a, nil
}

// WriteArrayFile writes the raw values of a, with no header
func WriteArrayFile(filename string, a *grid.Grid[float32]) error {
	return iox.WriteFileAtomic(filename, func(w io.Writer) error {
		return binary.Write(w, binary.LittleEndian, a.Pix)
	})
}

func withArchive(zipFilename string, read func(r io.ReaderAt, size int64) error) error {
	f, err := os.Open(zipFilename)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	if err := read(f, st.Size()); err != nil {
		return fmt.Errorf("%v: %w", zipFilename, err)
	}
	return nil
}
