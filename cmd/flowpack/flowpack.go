package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/flowcore/pkg/gen"
	"github.com/cyclopcam/flowcore/pkg/kibi"
	"github.com/cyclopcam/flowcore/pkg/packzip"
	"github.com/cyclopcam/logs"
)

// Pack a directory of flows or raw float arrays into a single zip entry, or unpack one.
// Concatenating the raw values before compression gives a much better ratio than
// zipping individual files.

const (
	typeFlow  = "FLOW"
	typeArray = "ARRAY"
)

var inputTypes = []string{typeFlow, typeArray}

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	logger, err := logs.NewLog()
	check(err)

	parser := argparse.NewParser("flowpack", "Pack and unpack zip files of flows or float arrays")

	compress := parser.NewCommand("compress", "Pack every file in a directory")
	cInputType := compress.String("t", "input_type", &argparse.Options{Help: "FLOW or ARRAY", Required: true})
	cInputDir := compress.String("i", "input_dir", &argparse.Options{Help: "Directory containing input flows or arrays", Required: true})
	cOutput := compress.String("o", "output_zip", &argparse.Options{Help: "Output zip file", Required: true})
	cShape := compress.String("", "shape", &argparse.Options{Help: "Array shape, as H,W or H,W,C (ARRAY only)", Default: ""})
	cExt := compress.String("", "ext", &argparse.Options{Help: "Array file extension (ARRAY only)", Default: ".array"})
	cZstd := compress.Flag("", "zstd", &argparse.Options{Help: "Compress with zstd instead of deflate. Not all zip tools can read these.", Default: false})
	cLevel := compress.Int("", "level", &argparse.Options{Help: "Deflate level 1..9 (0 = default)", Default: 0})

	decompress := parser.NewCommand("decompress", "Unpack a zip into numbered files")
	dInput := decompress.String("i", "input_zip", &argparse.Options{Help: "Input zip file", Required: true})
	dInputType := decompress.String("t", "input_type", &argparse.Options{Help: "FLOW or ARRAY", Required: true})
	dPattern := decompress.String("o", "output_pattern", &argparse.Options{Help: "Output file pattern, eg /OUTDIR/flow%06d.flo. Frames start at 1.", Required: true})

	err = parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	if compress.Happened() {
		inputType := lookupType(logger, *cInputType)
		opts := &packzip.Options{Level: *cLevel}
		if *cZstd {
			opts.Method = packzip.MethodZstd
		}
		switch inputType {
		case typeFlow:
			err = packzip.PackFlowDir(*cInputDir, *cOutput, opts)
		case typeArray:
			shape, perr := parseShape(*cShape)
			if perr != nil {
				logger.Errorf("Invalid --shape: %v", perr)
				os.Exit(1)
			}
			err = packzip.PackArrayDir(*cInputDir, shape, *cOutput, *cExt, opts)
		}
		if err != nil {
			logger.Errorf("Failed to pack %v: %v", *cInputDir, err)
			os.Exit(1)
		}
		st, err := os.Stat(*cOutput)
		check(err)
		logger.Infof("Wrote %v (%v)", *cOutput, kibi.Bytes(st.Size()))
	} else if decompress.Happened() {
		inputType := lookupType(logger, *dInputType)
		odir := filepath.Dir(*dPattern)
		pattern := filepath.Base(*dPattern)
		raw := int64(0)
		n := 0
		switch inputType {
		case typeFlow:
			flows, err := packzip.UnpackFlowsToDir(*dInput, odir, pattern)
			if err != nil {
				logger.Errorf("Failed to unpack %v: %v", *dInput, err)
				os.Exit(1)
			}
			for _, f := range flows {
				raw += int64(len(f.Pix)) * 4
			}
			n = len(flows)
		case typeArray:
			arrays, err := packzip.UnpackArraysToDir(*dInput, odir, pattern)
			if err != nil {
				logger.Errorf("Failed to unpack %v: %v", *dInput, err)
				os.Exit(1)
			}
			for _, a := range arrays {
				raw += int64(len(a.Pix)) * 4
			}
			n = len(arrays)
		}
		st, err := os.Stat(*dInput)
		check(err)
		logger.Infof("Unpacked %v items (%v, %v compression) to %v", n, kibi.Bytes(raw), kibi.Ratio(raw, st.Size()), odir)
	}
}

// lookupType accepts a unique prefix or substring of a type name, in any case
func lookupType(logger logs.Log, t string) string {
	key, err := gen.LookupKey(inputTypes, strings.ToUpper(t))
	if err != nil {
		logger.Errorf("Unrecognized --input_type=%v (%v). Must use one of %v", t, err, inputTypes)
		os.Exit(1)
	}
	return key
}

func parseShape(s string) ([]int, error) {
	if s == "" {
		return nil, fmt.Errorf("--shape is required for ARRAY")
	}
	shape := []int{}
	for _, p := range strings.Split(s, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 1 {
			return nil, fmt.Errorf("invalid dimension '%v' in '%v'", p, s)
		}
		shape = append(shape, v)
	}
	return shape, nil
}
