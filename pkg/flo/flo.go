// Package flo reads and writes optical flow in the Middlebury .flo format.
//
// Layout (all little endian):
//
//	float32 tag (202021.25, which is "PIEH" when read as 4 bytes)
//	int32   width
//	int32   height
//	float32 flow[height][width][2]   (x then y for each pixel)
package flo

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/cyclopcam/flowcore/pkg/grid"
	"github.com/cyclopcam/flowcore/pkg/iox"
)

const (
	TagFloat   = 202021.25 // Check for this when reading
	TagString  = "PIEH"    // Same 4 bytes as TagFloat
	HeaderSize = 12
	MaxDim     = 99999
)

// Flow values above this magnitude are considered unknown
var UnknownFlowThreshold = float32(math.Exp(9))

// Value written for unknown flow
var UnknownFlow = float32(math.Exp(10))

var ErrFormat = errors.New("invalid flow format")

// Header is the fixed 12 byte prefix of a .flo file
type Header struct {
	Tag    float32
	Width  int32
	Height int32
}

// Validate returns ErrFormat if the header doesn't describe a sane flow file
func (h *Header) Validate() error {
	if math.Float32bits(h.Tag) != math.Float32bits(TagFloat) {
		return fmt.Errorf("%w: wrong tag %v (wrong endianness, or not a flow file)", ErrFormat, h.Tag)
	}
	if h.Width < 1 || h.Width > MaxDim {
		return fmt.Errorf("%w: wrong width %v", ErrFormat, h.Width)
	}
	if h.Height < 1 || h.Height > MaxDim {
		return fmt.Errorf("%w: wrong height %v", ErrFormat, h.Height)
	}
	return nil
}

// Decode reads a single flow field
func Decode(r io.Reader) (*grid.Flow, error) {
	hdr := Header{}
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrFormat, err)
	}
	if err := hdr.Validate(); err != nil {
		return nil, err
	}
	return decodePayload(r, &hdr)
}

// PayloadSize is the number of bytes that follow the header
func (h *Header) PayloadSize() int64 {
	return int64(h.Width) * int64(h.Height) * 2 * 4
}

func decodePayload(r io.Reader, hdr *Header) (*grid.Flow, error) {
	flow := grid.NewFlow(int(hdr.Width), int(hdr.Height))
	raw := make([]byte, len(flow.Pix)*4)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("%w: flow data is too short for %vx%v: %v", ErrFormat, hdr.Width, hdr.Height, err)
	}
	for i := range flow.Pix {
		flow.Pix[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return flow, nil
}

// Encode writes a single flow field.
// The flow must have exactly 2 channels.
func Encode(w io.Writer, flow *grid.Flow) error {
	if flow.Channels != 2 {
		return fmt.Errorf("%w: can only write flow with 2 channels, but input shape is %v", ErrFormat, flow.Shape())
	}
	hdr := Header{
		Tag:    TagFloat,
		Width:  int32(flow.Width),
		Height: int32(flow.Height),
	}
	if err := hdr.Validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, &hdr); err != nil {
		return err
	}
	var buf [4]byte
	for _, v := range flow.Pix {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		if _, err := bw.Write(buf[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func Unmarshal(data []byte) (*grid.Flow, error) {
	return Decode(bytes.NewReader(data))
}

func Marshal(flow *grid.Flow) ([]byte, error) {
	buf := bytes.Buffer{}
	buf.Grow(HeaderSize + len(flow.Pix)*4)
	if err := Encode(&buf, flow); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadFile loads a .flo file
func ReadFile(filename string) (*grid.Flow, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	flow, err := readFile(f)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", filename, err)
	}
	return flow, nil
}

// readFile checks the header against the file size before allocating the flow
func readFile(f *os.File) (*grid.Flow, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(f)
	hdr := Header{}
	if err := binary.Read(br, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrFormat, err)
	}
	if err := hdr.Validate(); err != nil {
		return nil, err
	}
	if want := HeaderSize + hdr.PayloadSize(); st.Size() != want {
		return nil, fmt.Errorf("%w: file size %v does not match %vx%v flow (%v bytes)", ErrFormat, st.Size(), hdr.Width, hdr.Height, want)
	}
	return decodePayload(br, &hdr)
}

// WriteFile saves a .flo file.
// The file is written to a temporary name first, so a failed write never leaves a partial file behind.
func WriteFile(filename string, flow *grid.Flow) error {
	return iox.WriteFileAtomic(filename, func(w io.Writer) error {
		return Encode(w, flow)
	})
}
