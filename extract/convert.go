package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-gum/unpack/renpy"
	"github.com/go-gum/unpack/resource"
	"github.com/go-gum/unpack/texture"
	"github.com/go-gum/unpack/vfs"
)

// Converter turns a file into a more accessible representation.
type Converter interface {
	// Name identifies the converter in logs.
	Name() string

	// Accepts reports whether the converter handles the file.
	Accepts(path string, data []byte) bool

	// Convert returns the converted file. An error makes the pipeline fall back
	// to the unconverted file.
	Convert(path string, data []byte) (Output, error)
}

// Output is the result of a conversion.
type Output struct {
	Path string
	Data []byte

	// Warning is logged, it does not stop the conversion.
	Warning string
}

// DefaultConverters returns the script, texture and resource converters.
func DefaultConverters() []Converter {
	return []Converter{ScriptConverter{}, TextureConverter{}, ResourceConverter{}}
}

// ScriptConverter prints compiled scripts back into source.
type ScriptConverter struct{}

func (ScriptConverter) Name() string {
	return "script"
}

func (ScriptConverter) Accepts(path string, data []byte) bool {
	switch vfs.Ext(path) {
	case "rpyc", "rpymc":
		return renpy.Detect(data)
	default:
		return false
	}
}

func (ScriptConverter) Convert(path string, data []byte) (Output, error) {
	script, err := renpy.LoadScript(bytes.NewReader(data))
	if err != nil {
		return Output{}, fmt.Errorf("load script: %w", err)
	}

	text, err := script.Decompile()
	if err != nil {
		return Output{}, fmt.Errorf("decompile: %w", err)
	}

	// script.rpyc becomes script.rpy
	return Output{Path: strings.TrimSuffix(path, "c"), Data: []byte(text)}, nil
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("extract: failed to create CBOR enc mode: %v", err))
	}

	cborEncMode = em
}

// ResourceConverter dumps resource containers as CBOR. The dump is written next to
// the container with a .cbor suffix.
type ResourceConverter struct{}

func (ResourceConverter) Name() string {
	return "resource"
}

func (ResourceConverter) Accepts(path string, data []byte) bool {
	return resource.Detect(data)
}

func (ResourceConverter) Convert(path string, data []byte) (Output, error) {
	container, err := resource.LoadBytes(data)
	if err != nil {
		return Output{}, fmt.Errorf("load resource: %w", err)
	}

	encoded, err := cborEncMode.Marshal(container.Plain())
	if err != nil {
		return Output{}, fmt.Errorf("encode resource: %w", err)
	}

	output := Output{Path: path + ".cbor", Data: encoded}

	if container.Compressed {
		output.Warning = "decoded from a compressed container"
	}

	return output, nil
}

// TextureConverter writes the base level of an imported texture as the image it
// embeds. icon.ctex becomes icon.ctex.png.
type TextureConverter struct{}

func (TextureConverter) Name() string {
	return "texture"
}

func (TextureConverter) Accepts(path string, data []byte) bool {
	return texture.Detect(data)
}

func (TextureConverter) Convert(path string, data []byte) (Output, error) {
	tex, err := texture.LoadBytes(data)
	if err != nil {
		return Output{}, fmt.Errorf("load texture: %w", err)
	}

	ext, image, err := tex.Image()
	if err != nil {
		return Output{}, err
	}

	output := Output{Path: path + "." + ext, Data: image}

	if tex.Width != tex.OriginalWidth || tex.Height != tex.OriginalHeight {
		output.Warning = fmt.Sprintf("image is %dx%d, imported from %dx%d",
			tex.Width, tex.Height, tex.OriginalWidth, tex.OriginalHeight)
	}

	return output, nil
}
