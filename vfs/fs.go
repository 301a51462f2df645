package vfs

import (
	"io/fs"
	"path"
)

// FromFS exposes the directory root of fsys as a Directory. Use "." for the top.
func FromFS(fsys fs.FS, root string) Directory {
	return fsDirectory{fsys: fsys, path: root}
}

type fsDirectory struct {
	fsys fs.FS
	path string
}

func (d fsDirectory) Path() string {
	if d.path == "." {
		return ""
	}

	return d.path
}

func (d fsDirectory) ReadEntries() ([]Entry, error) {
	children, err := fs.ReadDir(d.fsys, d.path)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(children))
	for _, child := range children {
		childPath := path.Join(d.path, child.Name())

		if child.IsDir() {
			entries = append(entries, fsDirectory{fsys: d.fsys, path: childPath})
		} else {
			entries = append(entries, fsFile{fsys: d.fsys, path: childPath})
		}
	}

	return entries, nil
}

type fsFile struct {
	fsys fs.FS
	path string
}

func (f fsFile) Path() string {
	return f.path
}

func (f fsFile) ReadData() ([]byte, error) {
	return fs.ReadFile(f.fsys, f.path)
}
