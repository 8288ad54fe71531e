/*
Copyright (C) 2025  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package archive

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// FileArchive keeps snapshot generations as plain files below Dir, one
// file per key with slashes mapped to the OS separator. It is the
// default backend for single-node relay deployments that don't need S3
// or Ceph.
type FileArchive struct {
	Dir string
}

type FileFactory struct{}

func (FileFactory) Open(config map[string]string) (SnapshotArchive, error) {
	dir := config["dir"]
	if dir == "" {
		dir = "./snapshots"
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	return &FileArchive{Dir: dir}, nil
}

func (a *FileArchive) path(key string) string {
	return filepath.Join(a.Dir, filepath.FromSlash(key))
}

func (a *FileArchive) Put(ctx context.Context, key string, data []byte) error {
	p := a.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
		return err
	}
	// write to a temp file first so a crash mid-write never leaves a
	// half-written snapshot for a relay restart to pick up.
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

func (a *FileArchive) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(a.path(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return data, err
}

func (a *FileArchive) Delete(ctx context.Context, key string) error {
	err := os.Remove(a.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (a *FileArchive) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	root := a.Dir
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasSuffix(key, ".tmp") {
			return nil
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

var _ SnapshotArchive = (*FileArchive)(nil)
