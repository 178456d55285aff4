package grid

// ToFloat returns a float32 copy of the grid
func ToFloat[T Number](g *Grid[T]) *Grid[float32] {
	dst := New[float32](g.Width, g.Height, g.Channels)
	for i, v := range g.Pix {
		dst.Pix[i] = float32(v)
	}
	return dst
}

// Expand returns a copy of a single channel grid with n identical channels.
// Grids that don't have exactly one channel are returned unchanged.
func Expand[T Number](g *Grid[T], n int) *Grid[T] {
	if g.Channels != 1 || n == 1 {
		return g
	}
	dst := New[T](g.Width, g.Height, n)
	for i, v := range g.Pix {
		for c := 0; c < n; c++ {
			dst.Pix[i*n+c] = v
		}
	}
	return dst
}

// DropChannels returns a copy of the grid with only the first n channels.
// Grids with n or fewer channels are returned unchanged.
func DropChannels[T Number](g *Grid[T], n int) *Grid[T] {
	if g.Channels <= n {
		return g
	}
	dst := New[T](g.Width, g.Height, n)
	for p := 0; p < g.Width*g.Height; p++ {
		copy(dst.Pix[p*n:p*n+n], g.Pix[p*g.Channels:p*g.Channels+n])
	}
	return dst
}

// NonZero returns the (row, col) coordinates of every pixel whose first channel is non-zero,
// in row-major order.
func NonZero[T Number](g *Grid[T]) (rows, cols []int) {
	for r := 0; r < g.Height; r++ {
		for c := 0; c < g.Width; c++ {
			if g.Pix[(r*g.Width+c)*g.Channels] != 0 {
				rows = append(rows, r)
				cols = append(cols, c)
			}
		}
	}
	return
}
