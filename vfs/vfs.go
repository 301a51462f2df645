// Package vfs describes a read-only tree of files, implemented by every archive
// backend. Extraction walks any backend through the same two capabilities.
package vfs

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownEntry is returned for an Entry that is neither a File nor a Directory.
var ErrUnknownEntry = errors.New("entry is neither a file nor a directory")

// Entry is a File or a Directory.
type Entry interface {
	// Path returns the slash separated path of the entry inside its tree.
	Path() string
}

// File is an entry with content.
type File interface {
	Entry

	// ReadData returns the full content of the file.
	ReadData() ([]byte, error)
}

// Directory is an entry with children.
type Directory interface {
	Entry

	// ReadEntries returns the direct children of the directory.
	ReadEntries() ([]Entry, error)
}

// Walk calls fn for every file below dir, depth first, in the order the entries are
// returned by ReadEntries. Walking stops at the first error.
func Walk(dir Directory, fn func(File) error) error {
	entries, err := dir.ReadEntries()
	if err != nil {
		return fmt.Errorf("read entries of %q: %w", dir.Path(), err)
	}

	for _, entry := range entries {
		switch entry := entry.(type) {
		case File:
			if err := fn(entry); err != nil {
				return err
			}

		case Directory:
			if err := Walk(entry, fn); err != nil {
				return err
			}

		default:
			return fmt.Errorf("%q: %w", entry.Path(), ErrUnknownEntry)
		}
	}

	return nil
}

// ReadFilesDeep flattens dir into the list of all files below it.
func ReadFilesDeep(dir Directory) ([]File, error) {
	var files []File

	err := Walk(dir, func(file File) error {
		files = append(files, file)
		return nil
	})

	if err != nil {
		return nil, err
	}

	return files, nil
}

// Name returns the last element of path. A trailing slash is ignored.
func Name(path string) string {
	path = strings.TrimSuffix(path, "/")

	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		return path[idx+1:]
	}

	return path
}

// Ext returns the extension of the last element of path without the leading dot,
// or an empty string if the name has no dot.
func Ext(path string) string {
	name := Name(path)

	idx := strings.LastIndexByte(name, '.')
	if idx < 0 {
		return ""
	}

	return name[idx+1:]
}
