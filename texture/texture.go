// Package texture reads imported Godot textures. Only textures that embed their
// mipmaps as PNG or WebP images can be turned back into image files.
package texture

import (
	"bytes"
	"io"

	"github.com/go-gum/unpack/errors"
	"github.com/go-gum/unpack/internal/binread"
)

var (
	magicCompressed2D = []byte("GST2") // godot 4 .ctex
	magicStream2D     = []byte("GDST") // godot 3 .stex
)

// maxMips bounds the mipmap count, a 2^32 sized texture has 33 levels.
const maxMips = 33

// DataFormat is the encoding of the mipmap data.
type DataFormat uint32

const (
	DataImage DataFormat = iota
	DataPNG
	DataWebP
	DataBasisUniversal
)

func (f DataFormat) String() string {
	switch f {
	case DataImage:
		return "image"
	case DataPNG:
		return "png"
	case DataWebP:
		return "webp"
	case DataBasisUniversal:
		return "basis_universal"
	default:
		return "unknown"
	}
}

// godot 3 keeps the data format in the upper bits of the format field
const (
	stream2DPNG  uint32 = 1 << 20
	stream2DWebP uint32 = 1 << 21
)

// Texture is a decoded texture header with its embedded mipmaps.
type Texture struct {
	// Version is 3 or 4, the major engine version that wrote the file.
	Version int

	Width, Height                 int
	OriginalWidth, OriginalHeight int

	Format DataFormat

	// Mips holds the encoded image of each mipmap level, largest first.
	Mips [][]byte
}

// Detect reports whether the header starts with a texture magic.
func Detect(header []byte) bool {
	return bytes.HasPrefix(header, magicCompressed2D) || bytes.HasPrefix(header, magicStream2D)
}

// LoadBytes loads a texture from memory.
func LoadBytes(data []byte) (*Texture, error) {
	return Load(bytes.NewReader(data))
}

// Load reads a texture. Textures with image data other than PNG or WebP are
// reported as unsupported.
func Load(r io.Reader) (*Texture, error) {
	rd := binread.NewReader(r, errors.PhaseTexture)

	start := rd.Position()

	magic, err := rd.Bytes(4)
	if err != nil {
		return nil, err
	}

	switch {
	case bytes.Equal(magic, magicCompressed2D):
		return loadCompressed2D(rd)
	case bytes.Equal(magic, magicStream2D):
		return loadStream2D(rd)
	default:
		return nil, errors.New(errors.PhaseTexture, errors.KindMalformedHeader).
			At(start).
			Value(magic).
			Detail("not a texture").
			Build()
	}
}

// Image returns the largest mipmap and the file extension matching its encoding.
func (t *Texture) Image() (ext string, data []byte, err error) {
	if len(t.Mips) == 0 {
		return "", nil, errors.New(errors.PhaseTexture, errors.KindMalformedHeader).Detail("texture has no mipmaps").Build()
	}

	switch t.Format {
	case DataPNG:
		return "png", t.Mips[0], nil
	case DataWebP:
		return "webp", t.Mips[0], nil
	default:
		return "", nil, errors.New(errors.PhaseTexture, errors.KindUnsupportedFeature).Detail("%s texture data", t.Format).Build()
	}
}

func loadCompressed2D(rd *binread.Reader) (*Texture, error) {
	pos := rd.Position()

	version, err := rd.U32()
	if err != nil {
		return nil, err
	}

	if version != 1 {
		return nil, errors.UnsupportedFeature(errors.PhaseTexture, pos, "compressed texture version %d", version)
	}

	origWidth, err := rd.U32()
	if err != nil {
		return nil, err
	}

	origHeight, err := rd.U32()
	if err != nil {
		return nil, err
	}

	// flags, original mipmap count and three reserved fields
	if err := rd.Skip(4 + 4 + 3*4); err != nil {
		return nil, err
	}

	pos = rd.Position()

	format, err := rd.U32()
	if err != nil {
		return nil, err
	}

	width, err := rd.U16()
	if err != nil {
		return nil, err
	}

	height, err := rd.U16()
	if err != nil {
		return nil, err
	}

	mipCount, err := rd.U32()
	if err != nil {
		return nil, err
	}

	// pixel format, only meaningful for raw image data
	if _, err := rd.U32(); err != nil {
		return nil, err
	}

	t := &Texture{
		Version:        4,
		Width:          int(width),
		Height:         int(height),
		OriginalWidth:  int(origWidth),
		OriginalHeight: int(origHeight),
		Format:         DataFormat(format),
	}

	switch t.Format {
	case DataPNG, DataWebP:
	case DataImage, DataBasisUniversal:
		return nil, errors.UnsupportedFeature(errors.PhaseTexture, pos, "%s texture data", t.Format)
	default:
		return nil, errors.New(errors.PhaseTexture, errors.KindMalformedHeader).
			At(pos).
			Value(format).
			Detail("unknown data format").
			Build()
	}

	// the count excludes the base level
	t.Mips, err = readMips(rd, uint64(mipCount)+1, false)
	if err != nil {
		return nil, err
	}

	return t, nil
}

func loadStream2D(rd *binread.Reader) (*Texture, error) {
	var dims [4]uint16
	for idx := range dims {
		v, err := rd.U16()
		if err != nil {
			return nil, err
		}

		dims[idx] = v
	}

	// flags
	if err := rd.Skip(4); err != nil {
		return nil, err
	}

	pos := rd.Position()

	format, err := rd.U32()
	if err != nil {
		return nil, err
	}

	t := &Texture{
		Version:        3,
		Width:          int(dims[0]),
		OriginalWidth:  int(dims[1]),
		Height:         int(dims[2]),
		OriginalHeight: int(dims[3]),
	}

	switch {
	case format&stream2DPNG != 0:
		t.Format = DataPNG
	case format&stream2DWebP != 0:
		t.Format = DataWebP
	default:
		return nil, errors.UnsupportedFeature(errors.PhaseTexture, pos, "image texture data, format %#x", format)
	}

	mipCount, err := rd.U32()
	if err != nil {
		return nil, err
	}

	t.Mips, err = readMips(rd, uint64(mipCount), true)
	if err != nil {
		return nil, err
	}

	return t, nil
}

// readMips reads count length prefixed images. Godot 3 puts a four byte tag in
// front of every image that is counted in the length.
func readMips(rd *binread.Reader, count uint64, tagged bool) ([][]byte, error) {
	if count == 0 || count > maxMips {
		return nil, errors.New(errors.PhaseTexture, errors.KindMalformedHeader).
			At(rd.Position()).
			Value(count).
			Detail("invalid mipmap count").
			Build()
	}

	mips := make([][]byte, 0, count)

	for idx := uint64(0); idx < count; idx++ {
		pos := rd.Position()

		size, err := rd.U32()
		if err != nil {
			return nil, err
		}

		if tagged {
			if size < 4 {
				return nil, errors.MalformedHeader(errors.PhaseTexture, pos, "mipmap %d shorter than its tag", idx)
			}

			if err := rd.Skip(4); err != nil {
				return nil, err
			}

			size -= 4
		}

		data, err := rd.Bytes(uint64(size))
		if err != nil {
			return nil, err
		}

		mips = append(mips, data)
	}

	return mips, nil
}
