// Package vpk reads Valve VPK archives.
//
// The directory file (pak01_dir.vpk) holds a tree of file entries. File contents
// are stored behind the tree, in numbered archives next to the directory file
// (pak01_000.vpk, ...) or as preload bytes inside the tree itself.
package vpk

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/go-gum/unpack/errors"
	"github.com/go-gum/unpack/internal/binread"
	"github.com/go-gum/unpack/vfs"
)

const signature uint32 = 0x55AA1234

const (
	headerSizeV1 = 12

	// version 2 adds the sizes of the data, md5 and signature sections
	headerSizeV2 = headerSizeV1 + 16
)

// DirArchive is the archive index of files stored in the directory file itself.
const DirArchive uint16 = 0x7FFF

const entryTerminator uint16 = 0xFFFF

// blank is used for an empty path or extension in the tree
const blank = " "

// Opener opens the numbered archive with the given index.
type Opener func(index uint16) (io.ReaderAt, error)

type Archive struct {
	Version  uint32
	TreeSize uint32

	// DataOffset is the start of the data stored in the directory file.
	DataOffset int64

	dir   io.ReaderAt
	open  Opener
	files []*File

	mu       sync.Mutex
	archives map[uint16]io.ReaderAt
}

var _ vfs.Directory = (*Archive)(nil)

type File struct {
	archive *Archive
	path    string

	CRC          uint32
	ArchiveIndex uint16

	// Offset is relative to the start of the archive, or to DataOffset for
	// files in the directory file.
	Offset uint32
	Length uint32

	// Preload is stored in the tree and comes before the archived bytes.
	Preload []byte
}

var _ vfs.File = (*File)(nil)

// Detect reports whether header starts with the VPK signature.
func Detect(header []byte) bool {
	return len(header) >= 4 && binary.LittleEndian.Uint32(header) == signature
}

// ArchivePath returns the path of the numbered archive belonging to the directory
// file at dirPath.
func ArchivePath(dirPath string, index uint16) string {
	base := strings.TrimSuffix(dirPath, ".vpk")
	base = strings.TrimSuffix(base, "_dir")
	return fmt.Sprintf("%s_%03d.vpk", base, index)
}

// FileOpener opens the numbered archives next to the directory file at dirPath.
func FileOpener(dirPath string) Opener {
	return func(index uint16) (io.ReaderAt, error) {
		return os.Open(ArchivePath(dirPath, index))
	}
}

// Open reads the tree of the directory file in dir, which is size bytes long.
// Numbered archives are opened on first use.
func Open(dir io.ReaderAt, size int64, open Opener) (*Archive, error) {
	rd := binread.NewReader(io.NewSectionReader(dir, 0, size), errors.PhaseArchive)

	sig, err := rd.U32()
	if err != nil {
		return nil, err
	}

	if sig != signature {
		return nil, errors.New(errors.PhaseArchive, errors.KindMalformedHeader).
			At(0).
			Value(sig).
			Detail("expected signature %#x", signature).
			Build()
	}

	a := &Archive{dir: dir, open: open, archives: map[uint16]io.ReaderAt{}}

	if err := a.readHeader(rd); err != nil {
		return nil, rd.WrapError("header", err)
	}

	if err := a.readTree(rd); err != nil {
		return nil, rd.WrapError("tree", err)
	}

	return a, nil
}

func (a *Archive) readHeader(rd *binread.Reader) error {
	pos := rd.Position()

	version, err := rd.U32()
	if err != nil {
		return err
	}

	a.Version = version

	a.TreeSize, err = rd.U32()
	if err != nil {
		return err
	}

	switch version {
	case 1:
		a.DataOffset = headerSizeV1 + int64(a.TreeSize)
		return nil

	case 2:
		a.DataOffset = headerSizeV2 + int64(a.TreeSize)
		return rd.Skip(headerSizeV2 - headerSizeV1)

	default:
		return errors.UnsupportedFeature(errors.PhaseArchive, pos, "version %d", version)
	}
}

// readTree reads the entries grouped by extension, then by directory. Every level
// ends with an empty string.
func (a *Archive) readTree(rd *binread.Reader) error {
	for {
		ext, err := rd.CString()
		if err != nil || ext == "" {
			return err
		}

		for {
			dir, err := rd.CString()
			if err != nil {
				return err
			}

			if dir == "" {
				break
			}

			for {
				name, err := rd.CString()
				if err != nil {
					return err
				}

				if name == "" {
					break
				}

				file, err := a.readEntry(rd, joinPath(dir, name, ext))
				if err != nil {
					return err
				}

				a.files = append(a.files, file)
			}
		}
	}
}

func joinPath(dir, name, ext string) string {
	path := name
	if ext != blank {
		path += "." + ext
	}

	if dir != blank {
		path = dir + "/" + path
	}

	return path
}

func (a *Archive) readEntry(rd *binread.Reader, path string) (*File, error) {
	file := &File{archive: a, path: path}

	var err error

	file.CRC, err = rd.U32()
	if err != nil {
		return nil, err
	}

	preloadSize, err := rd.U16()
	if err != nil {
		return nil, err
	}

	file.ArchiveIndex, err = rd.U16()
	if err != nil {
		return nil, err
	}

	file.Offset, err = rd.U32()
	if err != nil {
		return nil, err
	}

	file.Length, err = rd.U32()
	if err != nil {
		return nil, err
	}

	pos := rd.Position()

	terminator, err := rd.U16()
	if err != nil {
		return nil, err
	}

	if terminator != entryTerminator {
		return nil, errors.New(errors.PhaseArchive, errors.KindMalformedHeader).
			At(pos).
			Value(terminator).
			Detail("%q: entry not terminated", path).
			Build()
	}

	if preloadSize > 0 {
		file.Preload, err = rd.Bytes(uint64(preloadSize))
		if err != nil {
			return nil, err
		}
	}

	return file, nil
}

// Files returns the files in the order of the tree.
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

// Close closes the numbered archives opened so far. The directory file is owned
// by the caller.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var firstErr error
	for index, r := range a.archives {
		if closer, ok := r.(io.Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}

		delete(a.archives, index)
	}

	return firstErr
}

// reader returns the archive holding the data of index and the offset the file
// offsets are relative to.
func (a *Archive) reader(index uint16) (io.ReaderAt, int64, error) {
	if index == DirArchive {
		return a.dir, a.DataOffset, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if r, ok := a.archives[index]; ok {
		return r, 0, nil
	}

	if a.open == nil {
		return nil, 0, errors.UnsupportedFeature(errors.PhaseArchive, -1, "no opener for archive %d", index)
	}

	r, err := a.open(index)
	if err != nil {
		return nil, 0, fmt.Errorf("open archive %d: %w", index, err)
	}

	a.archives[index] = r
	return r, 0, nil
}

func (f *File) Path() string {
	return f.path
}

// ReadData returns the preload bytes followed by the archived bytes. The checksum
// is not verified.
func (f *File) ReadData() ([]byte, error) {
	buf := make([]byte, len(f.Preload)+int(f.Length))
	copy(buf, f.Preload)

	if f.Length == 0 {
		return buf, nil
	}

	r, base, err := f.archive.reader(f.ArchiveIndex)
	if err != nil {
		return nil, err
	}

	offset := base + int64(f.Offset)

	n, err := r.ReadAt(buf[len(f.Preload):], offset)
	if n < int(f.Length) {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}

		return nil, errors.Truncated(errors.PhaseArchive, offset+int64(n), err)
	}

	return buf, nil
}
