package palette

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUniqueColors(t *testing.T) {
	for _, n := range []int{1, 2, 7, 8, 26, 27, 100} {
		for _, noBlack := range []bool{true, false} {
			colors := UniqueColors(n, noBlack)
			require.Equal(t, n, len(colors))
			seen := map[RGB]bool{}
			for _, c := range colors {
				require.False(t, seen[c])
				seen[c] = true
				if noBlack {
					require.NotEqual(t, RGB{}, c)
				}
			}
		}
	}

	// 7 colors + black fit in a 2x2x2 lattice
	require.Equal(t, []RGB{{0, 0, 255}, {0, 255, 0}, {0, 255, 255}}, UniqueColors(7, true)[:3])
	require.Equal(t, RGB{}, UniqueColors(3, false)[0])
	require.Nil(t, UniqueColors(0, true))
}

func TestPicker(t *testing.T) {
	p := NewPicker(3, true)
	a := p.Pick()
	b := p.Pick()
	c := p.Pick()
	require.NotEqual(t, a, b)
	require.NotEqual(t, b, c)
	require.Equal(t, a, p.Pick())
}
