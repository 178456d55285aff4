package imagefile

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/flowcore/pkg/grid"
	"github.com/stretchr/testify/require"
)

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()

	gray := grid.NewImage(3, 2, 1)
	copy(gray.Pix, []uint8{0, 10, 20, 30, 40, 255})
	require.NoError(t, Save(filepath.Join(dir, "gray.png"), gray))
	loaded, err := Load(filepath.Join(dir, "gray.png"))
	require.NoError(t, err)
	require.Equal(t, gray, loaded)

	rgb := grid.NewImage(2, 2, 3)
	copy(rgb.Pix, []uint8{255, 0, 0, 0, 255, 0, 0, 0, 255, 1, 2, 3})
	require.NoError(t, Save(filepath.Join(dir, "rgb.png"), rgb))
	loaded, err = Load(filepath.Join(dir, "rgb.png"))
	require.NoError(t, err)
	require.Equal(t, rgb, loaded)

	// Transparent pixels keep their color
	rgba := grid.NewImage(2, 1, 4)
	copy(rgba.Pix, []uint8{200, 100, 50, 0, 1, 2, 3, 255})
	require.NoError(t, Save(filepath.Join(dir, "rgba.png"), rgba))
	loaded, err = Load(filepath.Join(dir, "rgba.png"))
	require.NoError(t, err)
	require.Equal(t, rgba, loaded)

	loaded, err = LoadRGB(filepath.Join(dir, "rgba.png"))
	require.NoError(t, err)
	require.Equal(t, []uint8{200, 100, 50, 1, 2, 3}, loaded.Pix)

	loaded, err = LoadRGB(filepath.Join(dir, "gray.png"))
	require.NoError(t, err)
	require.Equal(t, 3, loaded.Channels)
	require.Equal(t, []uint8{10, 10, 10}, loaded.Pixel(0, 1))

	_, err = Load(filepath.Join(dir, "missing.png"))
	require.Error(t, err)
}

func TestToImageChannels(t *testing.T) {
	_, err := ToImage(grid.NewImage(2, 2, 2))
	require.ErrorIs(t, err, grid.ErrChannels)
}

func TestFromImagePaletted(t *testing.T) {
	pal := image.NewPaletted(image.Rect(0, 0, 2, 1), color.Palette{color.RGBA{0, 0, 0, 255}, color.RGBA{9, 8, 7, 255}})
	pal.SetColorIndex(1, 0, 1)
	g := FromImage(pal, 0)
	require.Equal(t, 3, g.Channels)
	require.Equal(t, []uint8{0, 0, 0, 9, 8, 7}, g.Pix)
}
