// Package rpa reads RPA archives.
//
// An archive starts with a single text line holding the format version, the offset
// of the index and, since version 3, a key. The index is a zlib compressed pickle
// of a dict mapping each path to a list of (offset, length[, prefix]) tuples. In
// version 3 offsets and lengths are obfuscated by xor with the key.
package rpa

import (
	"bytes"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/go-gum/unpack"
	"github.com/go-gum/unpack/errors"
	"github.com/go-gum/unpack/pickle"
	"github.com/go-gum/unpack/vfs"
	"github.com/klauspost/compress/zlib"
)

const (
	Version2 = "RPA-2.0"
	Version3 = "RPA-3.0"
)

const maxHeaderLength = 64

const maxIndexSize = 1 << 30

// Chunk is a slice of the archive holding part of a file.
type Chunk struct {
	Offset uint64
	Length uint64

	// Prefix is stored in the index, it precedes the bytes read from the archive
	// and counts towards Length.
	Prefix []byte
}

// indexEntry is the tuple stored in the index for every chunk.
type indexEntry struct {
	Offset uint64
	Length uint64
	Prefix []byte
}

// Archive is an opened archive. It implements vfs.Directory.
type Archive struct {
	Version string
	Key     uint64

	r     io.ReaderAt
	size  int64
	files []*File
}

var _ vfs.Directory = (*Archive)(nil)

// File is a file in an archive. It implements vfs.File. ReadData uses ReadAt on
// the archive, so files of the same archive can be read concurrently.
type File struct {
	archive *Archive
	path    string
	Chunks  []Chunk
}

var _ vfs.File = (*File)(nil)

// Options change how an archive is opened.
type Options struct {
	// Key replaces the key of the header if HasKey is set.
	Key    uint64
	HasKey bool
}

// Open reads the header and the index of the archive in r, which is size bytes long.
func Open(r io.ReaderAt, size int64) (*Archive, error) {
	return OpenWithOptions(r, size, Options{})
}

func OpenWithOptions(r io.ReaderAt, size int64, opts Options) (*Archive, error) {
	a := &Archive{r: r, size: size}

	indexOffset, err := a.readHeader()
	if err != nil {
		return nil, err
	}

	if opts.HasKey {
		a.Key = opts.Key
	}

	if indexOffset >= uint64(size) {
		return nil, errors.MalformedHeader(errors.PhaseArchive, 0,
			"index offset %d beyond end of archive (%d bytes)", indexOffset, size)
	}

	if err := a.readIndex(int64(indexOffset)); err != nil {
		return nil, err
	}

	return a, nil
}

// Detect reports whether header looks like the start of an archive.
func Detect(header []byte) bool {
	return bytes.HasPrefix(header, []byte(Version3+" ")) || bytes.HasPrefix(header, []byte(Version2+" "))
}

func (a *Archive) readHeader() (uint64, error) {
	buf := make([]byte, min(a.size, maxHeaderLength))

	n, err := a.r.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return 0, errors.Truncated(errors.PhaseArchive, 0, err)
	}

	line, _, found := bytes.Cut(buf[:n], []byte{'\n'})
	if !found {
		return 0, errors.MalformedHeader(errors.PhaseArchive, 0, "header line not terminated")
	}

	fields := strings.Fields(string(line))
	if len(fields) == 0 {
		return 0, errors.MalformedHeader(errors.PhaseArchive, 0, "empty header line")
	}

	a.Version = fields[0]

	var wantFields int
	switch a.Version {
	case Version3:
		wantFields = 3
	case Version2:
		wantFields = 2
	default:
		return 0, errors.MalformedHeader(errors.PhaseArchive, 0, "unknown archive version %q", a.Version)
	}

	if len(fields) != wantFields {
		return 0, errors.MalformedHeader(errors.PhaseArchive, 0, "expected %d header fields, got %d", wantFields, len(fields))
	}

	indexOffset, err := strconv.ParseUint(fields[1], 16, 64)
	if err != nil {
		return 0, errors.New(errors.PhaseArchive, errors.KindMalformedHeader).
			At(int64(len(a.Version) + 1)).
			Detail("index offset %q", fields[1]).
			Cause(err).
			Build()
	}

	if a.Version == Version3 {
		a.Key, err = strconv.ParseUint(fields[2], 16, 32)
		if err != nil {
			return 0, errors.New(errors.PhaseArchive, errors.KindMalformedHeader).
				At(int64(len(a.Version) + len(fields[1]) + 2)).
				Detail("key %q", fields[2]).
				Cause(err).
				Build()
		}
	}

	return indexOffset, nil
}

func (a *Archive) readIndex(offset int64) error {
	section := io.NewSectionReader(a.r, offset, a.size-offset)

	zr, err := zlib.NewReader(section)
	if err != nil {
		return errors.New(errors.PhaseArchive, errors.KindMalformedHeader).
			At(offset).
			Detail("open index").
			Cause(err).
			Build()
	}

	defer zr.Close()

	data, err := io.ReadAll(io.LimitReader(zr, maxIndexSize))
	if err != nil {
		return errors.New(errors.PhaseArchive, errors.KindMalformedHeader).
			At(offset).
			Detail("decompress index").
			Cause(err).
			Build()
	}

	value, err := pickle.ParseBytes(data)
	if err != nil {
		return fmt.Errorf("parse index: %w", err)
	}

	index, err := unpack.UnmarshalNew[map[string][]indexEntry](pickle.Source(value))
	if err != nil {
		return errors.New(errors.PhaseArchive, errors.KindTypeMismatch).
			At(offset).
			Detail("index layout").
			Cause(err).
			Build()
	}

	for path, entries := range index {
		file := &File{archive: a, path: path}

		for _, entry := range entries {
			chunk := Chunk{Offset: entry.Offset, Length: entry.Length, Prefix: entry.Prefix}

			if a.Version == Version3 {
				chunk.Offset ^= a.Key
				chunk.Length ^= a.Key
			}

			if uint64(len(chunk.Prefix)) > chunk.Length {
				return errors.MalformedHeader(errors.PhaseArchive, offset,
					"%q: prefix of %d bytes exceeds chunk length %d", path, len(chunk.Prefix), chunk.Length)
			}

			file.Chunks = append(file.Chunks, chunk)
		}

		a.files = append(a.files, file)
	}

	slices.SortFunc(a.files, func(lhs, rhs *File) int {
		return strings.Compare(lhs.path, rhs.path)
	})

	return nil
}

// Files returns all files of the archive ordered by path.
func (a *Archive) Files() []*File {
	return a.files
}

func (a *Archive) Path() string {
	return ""
}

func (a *Archive) ReadEntries() ([]vfs.Entry, error) {
	entries := make([]vfs.Entry, len(a.files))
	for idx, file := range a.files {
		entries[idx] = file
	}

	return entries, nil
}

func (f *File) Path() string {
	return f.path
}

// Size returns the size of the file content.
func (f *File) Size() uint64 {
	var size uint64
	for _, chunk := range f.Chunks {
		size += chunk.Length
	}

	return size
}

func (f *File) ReadData() ([]byte, error) {
	var buf bytes.Buffer

	for _, chunk := range f.Chunks {
		buf.Write(chunk.Prefix)

		n := chunk.Length - uint64(len(chunk.Prefix))
		if chunk.Offset > uint64(f.archive.size) || n > uint64(f.archive.size)-chunk.Offset {
			return nil, errors.MalformedHeader(errors.PhaseArchive, int64(min(chunk.Offset, uint64(f.archive.size))),
				"%q: chunk of %d bytes at %d beyond end of archive", f.path, n, chunk.Offset)
		}

		section := io.NewSectionReader(f.archive.r, int64(chunk.Offset), int64(n))
		if _, err := io.Copy(&buf, section); err != nil {
			return nil, errors.Truncated(errors.PhaseArchive, int64(chunk.Offset), err)
		}
	}

	return buf.Bytes(), nil
}
