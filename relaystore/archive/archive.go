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

// Package archive stores cold document snapshot generations behind a
// pluggable backend, mirroring the storage engine's PersistenceEngine
// split between hot column storage and cold blob backends.
package archive

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Get when the key has no snapshot.
var ErrNotFound = errors.New("archive: snapshot not found")

// SnapshotArchive stores one opaque, already-encrypted blob per
// (doc_id, generation) key. The relay never decrypts what it stores here;
// it only needs to put, fetch and garbage-collect old generations.
type SnapshotArchive interface {
	// Put stores data under key, replacing any previous blob at that key.
	Put(ctx context.Context, key string, data []byte) error

	// Get retrieves the blob stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the blob at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List enumerates keys starting with prefix, in no particular order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Factory constructs a SnapshotArchive from a backend-specific config map,
// the same shape the storage engine uses for PersistenceFactory.
type Factory interface {
	Open(config map[string]string) (SnapshotArchive, error)
}

// ErrorReadCloser reflects a fixed error to every Read call, for code
// that needs an io.ReadCloser for a key that turned out missing; the
// backends in this package report a missing key as ErrNotFound from Get.
type ErrorReadCloser struct {
	Err error
}

func (e ErrorReadCloser) Read([]byte) (int, error) {
	return 0, e.Err
}

func (e ErrorReadCloser) Close() error {
	return nil
}

var _ io.ReadCloser = ErrorReadCloser{}
