package extract

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/go-gum/unpack/errors"
	"github.com/go-gum/unpack/internal/binread"
	"github.com/go-gum/unpack/vfs"
	"github.com/stretchr/testify/require"
)

var iconPNG = []byte("\x89PNG\r\n\x1a\nicon")

// pngTexture writes a godot 4 texture with a base level and one mipmap.
func pngTexture(width, height uint16, format uint32) []byte {
	w := binread.NewWriter()
	w.Raw([]byte("GST2")...)
	w.U32(1)
	w.U32(64).U32(64)
	w.U32(0).I32(1)
	w.U32(0).U32(0).U32(0)
	w.U32(format)
	w.U16(width).U16(height)
	w.U32(1)
	w.U32(5)
	w.U32(uint32(len(iconPNG))).Raw(iconPNG...)
	w.U32(3).Raw('m', 'i', 'p')
	return w.Bytes()
}

func TestTextureConverter(t *testing.T) {
	var converter TextureConverter

	data := pngTexture(64, 64, 1)
	require.True(t, converter.Accepts(".godot/imported/icon.png-1234.ctex", data))
	require.False(t, converter.Accepts("icon.png", iconPNG))

	output, err := converter.Convert(".godot/imported/icon.png-1234.ctex", data)
	require.NoError(t, err)
	require.Equal(t, ".godot/imported/icon.png-1234.ctex.png", output.Path)
	require.Equal(t, iconPNG, output.Data)
	require.Empty(t, output.Warning)

	output, err = converter.Convert("icon.ctex", pngTexture(32, 16, 1))
	require.NoError(t, err)
	require.Equal(t, "image is 32x16, imported from 64x64", output.Warning)

	// basis universal data stays as it is
	_, err = converter.Convert("icon.ctex", pngTexture(64, 64, 3))
	require.True(t, errors.IsKind(err, errors.KindUnsupportedFeature))
}

func TestRunConvertsTextures(t *testing.T) {
	fsys := fstest.MapFS{
		".godot/imported/icon.png-1234.ctex": {Data: pngTexture(64, 64, 1)},
		".godot/imported/sky.hdr-5678.ctex":  {Data: pngTexture(64, 64, 3)},
	}

	p, logs := newPipeline(t, ModeOverwrite)

	report, err := p.Run(context.Background(), vfs.FromFS(fsys, "."))
	require.NoError(t, err)
	require.NoError(t, report.Err())
	require.Equal(t, 2, report.Written)
	require.Equal(t, 1, report.Converted)

	require.Equal(t, string(iconPNG), readOutput(t, p, ".godot/imported/icon.png-1234.ctex.png"))
	require.Equal(t, string(pngTexture(64, 64, 3)), readOutput(t, p, ".godot/imported/sky.hdr-5678.ctex"))

	require.Equal(t, 1, logs.FilterMessage("Conversion failed, writing file unchanged").Len())
}
