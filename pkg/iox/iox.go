package iox

import (
	"io"
	"os"
	"path/filepath"
)

// WriteFileAtomic calls write with a temporary file in the same directory as dstFilename,
// and renames the temporary file to dstFilename only if write succeeds.
// On failure, the temporary file is removed and dstFilename is untouched.
func WriteFileAtomic(dstFilename string, write func(w io.Writer) error) error {
	dir, base := filepath.Split(dstFilename)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()
	if err := write(tmp); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, dstFilename); err != nil {
		return err
	}
	success = true
	return nil
}
