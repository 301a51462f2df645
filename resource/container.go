// Package resource loads binary resource containers.
//
// A container starts with a small header, followed by a string table, a table of
// external resources and an index of internal resources. Every internal resource is
// stored at the offset recorded in the index as a type name and a list of properties,
// each one a variant value. Compressed containers wrap everything after the magic
// in a block compressed stream.
package resource

import (
	"bytes"
	"fmt"
	"io"
	"slices"

	"github.com/go-gum/unpack/errors"
	"github.com/go-gum/unpack/internal/binread"
	"github.com/go-gum/unpack/variant"
)

var (
	magicUncompressed = []byte("RSRC")
	magicContainerZ   = []byte("RSCC")
)

const reservedFields = 11

// Flags is the bitmask stored in the container header.
type Flags uint32

const (
	FlagNamedSceneIDs  Flags = 1
	FlagUIDs           Flags = 2
	FlagRealIsDouble   Flags = 4
	FlagHasScriptClass Flags = 8
)

// Has reports whether all bits of flag are set.
func (f Flags) Has(flag Flags) bool {
	return f&flag == flag
}

type ExternalResource struct {
	Type string
	Path string

	// UID is only valid if HasUID is set.
	UID    uint64
	HasUID bool
}

type Property struct {
	NameIndex uint32
	Name      string
	Value     variant.Value
}

type InternalResource struct {
	// Name is the path of the resource, or a local reference like "local://1".
	Name       string
	Offset     uint64
	Type       string
	Properties []Property
}

// Property returns the value of the named property.
func (r *InternalResource) Property(name string) (variant.Value, bool) {
	idx := slices.IndexFunc(r.Properties, func(p Property) bool { return p.Name == name })
	if idx < 0 {
		return nil, false
	}

	return r.Properties[idx].Value, true
}

// Container is a fully decoded resource file.
type Container struct {
	Compressed bool

	// Real64 is set if real values are stored as eight byte floats.
	Real64 bool

	// Version is the engine major and minor version that wrote the file.
	Version [2]uint32

	// SchemaVersion is the version of the container layout, 3 or 5.
	SchemaVersion int32

	Type  string
	Flags Flags

	UID    uint64
	HasUID bool

	ScriptClass string

	Strings  []string
	External []ExternalResource
	Internal []InternalResource
}

// Main returns the resource the file describes, which is stored last.
func (c *Container) Main() (*InternalResource, bool) {
	if len(c.Internal) == 0 {
		return nil, false
	}

	return &c.Internal[len(c.Internal)-1], true
}

// Detect reports whether header starts with the magic of a plain or a compressed
// container.
func Detect(header []byte) bool {
	return bytes.HasPrefix(header, magicUncompressed) || bytes.HasPrefix(header, magicContainerZ)
}

// LoadBytes loads a container from memory.
func LoadBytes(data []byte) (*Container, error) {
	return Load(bytes.NewReader(data))
}

// Load reads a resource container. Decoding is all or nothing, no partially loaded
// container is returned on error.
func Load(r io.ReadSeeker) (*Container, error) {
	rd := binread.NewReader(r, errors.PhaseResource)

	start := rd.Position()

	magic, err := rd.Bytes(4)
	if err != nil {
		return nil, err
	}

	var c Container

	switch {
	case bytes.Equal(magic, magicUncompressed):

	case bytes.Equal(magic, magicContainerZ):
		decompressed, err := OpenAfterMagic(r)
		if err != nil {
			return nil, err
		}

		// offsets in the index are relative to the uncompressed stream
		rd = binread.NewReader(decompressed, errors.PhaseResource)
		c.Compressed = true

	default:
		return nil, errors.MalformedHeader(errors.PhaseResource, start, "unknown magic %q", magic)
	}

	if err := c.readHeader(rd); err != nil {
		return nil, err
	}

	if err := c.readTables(rd); err != nil {
		return nil, err
	}

	decoder := variant.Decoder{Real64: c.Real64, Strings: c.Strings}

	for idx := range c.Internal {
		if err := c.readInternal(rd, decoder, &c.Internal[idx]); err != nil {
			return nil, fmt.Errorf("internal resource %q: %w", c.Internal[idx].Name, err)
		}
	}

	return &c, nil
}

func (c *Container) readHeader(rd *binread.Reader) error {
	bigEndian, err := rd.U32()
	if err != nil {
		return err
	}

	if bigEndian != 0 {
		return errors.UnsupportedFeature(rd.Phase(), rd.Position()-4, "big endian containers")
	}

	real64, err := rd.U32()
	if err != nil {
		return err
	}

	c.Real64 = real64 != 0

	for idx := range c.Version {
		if c.Version[idx], err = rd.U32(); err != nil {
			return err
		}
	}

	if c.SchemaVersion, err = rd.I32(); err != nil {
		return err
	}

	if c.SchemaVersion != 3 && c.SchemaVersion != 5 {
		return errors.New(rd.Phase(), errors.KindUnsupportedFeature).
			At(rd.Position()-4).
			Value(c.SchemaVersion).
			Detail("unsupported version %d", c.SchemaVersion).
			Build()
	}

	if c.Type, err = rd.CString32(); err != nil {
		return err
	}

	// metadata offset, unused
	if err := rd.Skip(8); err != nil {
		return err
	}

	flags, err := rd.U32()
	if err != nil {
		return err
	}

	c.Flags = Flags(flags)

	if c.Flags.Has(FlagUIDs) {
		if c.UID, err = rd.U64(); err != nil {
			return err
		}

		c.HasUID = true
	} else if err := rd.Skip(4); err != nil {
		return err
	}

	if c.Flags.Has(FlagHasScriptClass) {
		if c.ScriptClass, err = rd.CString32(); err != nil {
			return err
		}
	}

	return rd.Skip(reservedFields * 4)
}

func (c *Container) readTables(rd *binread.Reader) error {
	stringCount, err := rd.U32()
	if err != nil {
		return err
	}

	c.Strings = make([]string, 0, min(stringCount, 4096))
	for range stringCount {
		s, err := rd.CString32()
		if err != nil {
			return err
		}

		c.Strings = append(c.Strings, s)
	}

	externalCount, err := rd.U32()
	if err != nil {
		return err
	}

	if c.SchemaVersion == 3 {
		// version 3 files store twice the number of entries
		externalCount /= 2
	}

	c.External = make([]ExternalResource, 0, min(externalCount, 4096))
	for range externalCount {
		var ext ExternalResource

		if ext.Type, err = rd.CString32(); err != nil {
			return err
		}

		if ext.Path, err = rd.CString32(); err != nil {
			return err
		}

		if c.Flags.Has(FlagUIDs) {
			if ext.UID, err = rd.U64(); err != nil {
				return err
			}

			ext.HasUID = true
		}

		c.External = append(c.External, ext)
	}

	if c.SchemaVersion == 3 {
		if err := rd.Skip(4); err != nil {
			return err
		}
	}

	internalCount, err := rd.U32()
	if err != nil {
		return err
	}

	c.Internal = make([]InternalResource, 0, min(internalCount, 4096))
	for range internalCount {
		var res InternalResource

		if res.Name, err = rd.CString32(); err != nil {
			return err
		}

		if c.SchemaVersion == 3 {
			offset, err := rd.U32()
			if err != nil {
				return err
			}

			res.Offset = uint64(offset)
		} else if res.Offset, err = rd.U64(); err != nil {
			return err
		}

		c.Internal = append(c.Internal, res)
	}

	return nil
}

func (c *Container) readInternal(rd *binread.Reader, decoder variant.Decoder, res *InternalResource) error {
	if res.Offset > 1<<62 {
		return errors.MalformedHeader(rd.Phase(), rd.Position(), "offset %d out of range", res.Offset)
	}

	if err := rd.Seek(int64(res.Offset)); err != nil {
		return err
	}

	var err error
	if res.Type, err = rd.CString32(); err != nil {
		return err
	}

	count, err := rd.U32()
	if err != nil {
		return err
	}

	res.Properties = make([]Property, 0, min(count, 1024))
	for range count {
		nameOffset := rd.Position()

		nameIndex, err := rd.U32()
		if err != nil {
			return err
		}

		if int(nameIndex) >= len(c.Strings) {
			return errors.MalformedHeader(rd.Phase(), nameOffset,
				"property name index %d out of range, table has %d entries", nameIndex, len(c.Strings))
		}

		prev := rd.SetPhase(errors.PhaseVariant)
		value, err := decoder.Read(rd)
		rd.SetPhase(prev)

		if err != nil {
			return fmt.Errorf("property %q: %w", c.Strings[nameIndex], err)
		}

		res.Properties = append(res.Properties, Property{
			NameIndex: nameIndex,
			Name:      c.Strings[nameIndex],
			Value:     value,
		})
	}

	return nil
}
