// Package frameset groups the per-frame files of a rendered sequence by frame number.
package frameset

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var ErrNoFrameNumber = errors.New("cannot parse frame number from filename")

// Kind identifies the role of a file within a frame
type Kind string

const (
	KindFlow      Kind = "flow"
	KindBackFlow  Kind = "backflow"
	KindObjectId  Kind = "objectid"
	KindCorresp   Kind = "corresp"
	KindOcclusion Kind = "occlusion"
	KindAlpha     Kind = "alpha"
)

var frameRegex = regexp.MustCompile(`^[a-z_]+([0-9]+)\.[a-zA-Z]+`)

// FrameNumber extracts the frame number from names such as "flow000012.flo".
// The basename must be lowercase letters or underscores, then digits, then an extension.
func FrameNumber(filename string) (int, bool) {
	m := frameRegex.FindStringSubmatch(filepath.Base(filename))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Bundle holds the files of one frame
type Bundle map[Kind]string

// Set maps frame number to the files of that frame
type Set map[int]Bundle

// Add records filename as the given kind of its frame
func (s Set) Add(filename string, kind Kind) error {
	n, ok := FrameNumber(filename)
	if !ok {
		return fmt.Errorf("%w: %v", ErrNoFrameNumber, filename)
	}
	b := s[n]
	if b == nil {
		b = Bundle{}
		s[n] = b
	}
	b[kind] = filename
	return nil
}

// AddGlob adds every file matching pattern, and returns the number of files added.
// If strict is true, a file without a frame number is an error. Otherwise such files are skipped.
func (s Set) AddGlob(pattern string, kind Kind, strict bool) (int, error) {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, f := range files {
		if err := s.Add(f, kind); err != nil {
			if strict {
				return n, err
			}
			continue
		}
		n++
	}
	return n, nil
}

// Has returns true if the frame has a file for every kind
func (s Set) Has(frame int, kinds ...Kind) bool {
	b, ok := s[frame]
	if !ok {
		return false
	}
	for _, k := range kinds {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// File returns the file of the given kind, or an empty string
func (s Set) File(frame int, kind Kind) string {
	return s[frame][kind]
}

// Frames returns all frame numbers in ascending order
func (s Set) Frames() []int {
	return s.filter(func(int) bool { return true })
}

// SanityFrames returns the frames that can be sanity checked against their successor.
// A frame needs flow, object ids, correspondence, occlusion and alpha, and the next
// frame needs object ids and correspondence.
func (s Set) SanityFrames() []int {
	return s.filter(func(n int) bool {
		return s.Has(n, KindFlow, KindObjectId, KindCorresp, KindOcclusion, KindAlpha) && s.Has(n+1, KindObjectId, KindCorresp)
	})
}

// OcclusionFrames returns the frames whose occlusions can be computed.
// A frame needs forward flow, and the next frame needs back flow.
func (s Set) OcclusionFrames() []int {
	return s.filter(func(n int) bool {
		return s.Has(n, KindFlow) && s.Has(n+1, KindBackFlow)
	})
}

func (s Set) filter(keep func(n int) bool) []int {
	frames := []int{}
	for n := range s {
		if keep(n) {
			frames = append(frames, n)
		}
	}
	sort.Ints(frames)
	return frames
}

// ParseFrameList parses a comma separated list of frame numbers, such as "1,5,7".
// An empty string returns nil.
func ParseFrameList(csv string) ([]int, error) {
	csv = strings.TrimSpace(csv)
	if csv == "" {
		return nil, nil
	}
	frames := []int{}
	for _, p := range strings.Split(csv, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid frame number '%v' in list '%v'", p, csv)
		}
		frames = append(frames, n)
	}
	return frames, nil
}

// Intersect returns the members of wanted that are also in available, in ascending order.
// A nil wanted list returns available unchanged.
func Intersect(available, wanted []int) []int {
	if wanted == nil {
		return available
	}
	have := map[int]bool{}
	for _, n := range available {
		have[n] = true
	}
	out := []int{}
	for _, n := range wanted {
		if have[n] {
			out = append(out, n)
			delete(have, n)
		}
	}
	sort.Ints(out)
	return out
}
