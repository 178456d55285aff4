package iox

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "out.bin")

	require.NoError(t, WriteFileAtomic(fn, func(w io.Writer) error {
		_, err := io.Copy(w, bytes.NewReader([]byte("hello")))
		return err
	}))
	raw, err := os.ReadFile(fn)
	require.NoError(t, err)
	require.Equal(t, "hello", string(raw))

	// A failed write must leave the previous file intact, and no temp files behind
	failure := errors.New("boom")
	err = WriteFileAtomic(fn, func(w io.Writer) error {
		w.Write([]byte("partial"))
		return failure
	})
	require.ErrorIs(t, err, failure)
	raw, err = os.ReadFile(fn)
	require.NoError(t, err)
	require.Equal(t, "hello", string(raw))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Equal(t, 1, len(entries))
}
