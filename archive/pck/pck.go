// Package pck reads Godot PCK archives.
//
// A pack holds a flat directory table followed by the file contents. Paths in the
// table usually start with res://.
package pck

import (
	"bytes"
	"io"

	"github.com/go-gum/unpack/errors"
	"github.com/go-gum/unpack/internal/binread"
	"github.com/go-gum/unpack/vfs"
)

var magic = []byte("GDPC")

const reservedFields = 16

// maxFiles bounds the preallocation of the directory table.
const maxFiles = 1 << 16

type Flags uint32

const FlagEncryptedArchive Flags = 1 << 0

type FileFlags uint32

const FlagEncryptedFile FileFlags = 1 << 0

// Version is the pack format version followed by the engine version.
type Version struct {
	Format int32
	Major  int32
	Minor  int32
	Patch  int32
}

type Archive struct {
	Version Version
	Flags   Flags

	// FilesBase is added to every file offset. Only format 2 and later carry it.
	FilesBase int64

	r     io.ReaderAt
	size  int64
	files []*File
}

var _ vfs.Directory = (*Archive)(nil)

type File struct {
	archive *Archive
	path    string

	// Offset is absolute, FilesBase already included.
	Offset int64
	Size   int64
	MD5    [16]byte
	Flags  FileFlags
}

var _ vfs.File = (*File)(nil)

// Detect reports whether header starts with the pack magic.
func Detect(header []byte) bool {
	return bytes.HasPrefix(header, magic)
}

// Open reads the directory table of the pack in r, which is size bytes long.
func Open(r io.ReaderAt, size int64) (*Archive, error) {
	rd := binread.NewReader(io.NewSectionReader(r, 0, size), errors.PhaseArchive)

	ok, err := rd.Magic(magic)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, errors.MalformedHeader(errors.PhaseArchive, 0, "expected magic %q", magic)
	}

	a := &Archive{r: r, size: size}

	if err := a.readHeader(rd); err != nil {
		return nil, rd.WrapError("header", err)
	}

	if err := a.readFiles(rd); err != nil {
		return nil, rd.WrapError("directory", err)
	}

	return a, nil
}

func (a *Archive) readHeader(rd *binread.Reader) error {
	for _, field := range []*int32{&a.Version.Format, &a.Version.Major, &a.Version.Minor, &a.Version.Patch} {
		value, err := rd.I32()
		if err != nil {
			return err
		}

		*field = value
	}

	if a.Version.Format >= 2 {
		flags, err := rd.U32()
		if err != nil {
			return err
		}

		a.Flags = Flags(flags)

		a.FilesBase, err = rd.I64()
		if err != nil {
			return err
		}
	}

	if a.Flags&FlagEncryptedArchive != 0 {
		return errors.UnsupportedFeature(errors.PhaseArchive, rd.Position(), "encrypted directory")
	}

	return rd.Skip(reservedFields * 4)
}

func (a *Archive) readFiles(rd *binread.Reader) error {
	countPos := rd.Position()

	count, err := rd.I32()
	if err != nil {
		return err
	}

	if count < 0 {
		return errors.MalformedHeader(errors.PhaseArchive, countPos, "negative file count %d", count)
	}

	a.files = make([]*File, 0, min(count, maxFiles))

	for range count {
		file := &File{archive: a}

		file.path, err = rd.CString32()
		if err != nil {
			return err
		}

		offsetPos := rd.Position()

		offset, err := rd.I64()
		if err != nil {
			return err
		}

		file.Offset = offset + a.FilesBase

		file.Size, err = rd.I64()
		if err != nil {
			return err
		}

		if file.Offset < 0 || file.Size < 0 || file.Size > a.size || file.Offset > a.size-file.Size {
			return errors.MalformedHeader(errors.PhaseArchive, offsetPos,
				"%q: %d bytes at %d beyond end of archive (%d bytes)", file.path, file.Size, file.Offset, a.size)
		}

		if err := rd.ReadFull(file.MD5[:]); err != nil {
			return err
		}

		if a.Version.Format >= 2 {
			flags, err := rd.U32()
			if err != nil {
				return err
			}

			file.Flags = FileFlags(flags)
		}

		a.files = append(a.files, file)
	}

	return nil
}

// Files returns the files in the order of the directory table.
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

func (f *File) Encrypted() bool {
	return f.Flags&FlagEncryptedFile != 0
}

// ReadData reads the content of the file. The checksum is not verified.
func (f *File) ReadData() ([]byte, error) {
	if f.Encrypted() {
		return nil, errors.UnsupportedFeature(errors.PhaseArchive, f.Offset, "%q is encrypted", f.path)
	}

	buf := make([]byte, f.Size)

	n, err := f.archive.r.ReadAt(buf, f.Offset)
	if n < len(buf) {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}

		return nil, errors.Truncated(errors.PhaseArchive, f.Offset+int64(n), err)
	}

	return buf, nil
}
