package kibi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBytes(t *testing.T) {
	require.Equal(t, "0 bytes", Bytes(0))
	require.Equal(t, "1023 bytes", Bytes(1023))
	require.Equal(t, "1 KB", Bytes(1024))
	require.Equal(t, "1 KB", Bytes(2047))
	require.Equal(t, "1 MB", Bytes(1024*1024))
	require.Equal(t, "3 GB", Bytes(3*1024*1024*1024))
	require.Equal(t, "2048 PB", Bytes(2048*1024*1024*1024*1024*1024))
}

func TestRatio(t *testing.T) {
	require.Equal(t, "4.00x", Ratio(400, 100))
	require.Equal(t, "-", Ratio(400, 0))
}
