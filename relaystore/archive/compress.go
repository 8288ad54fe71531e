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
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
)

// Compressing wraps a SnapshotArchive with xz compression on the way in
// and decompression on the way out. Cold archive storage is billed by
// the byte and read far less often than it is written, so it trades the
// hot lz4 codec's speed for xz's much better ratio on snapshot
// generations that may sit untouched for months.
type Compressing struct {
	Inner SnapshotArchive
}

func (c Compressing) Put(ctx context.Context, key string, data []byte) error {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return fmt.Errorf("archive: new xz writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("archive: xz compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("archive: xz close: %w", err)
	}
	return c.Inner.Put(ctx, key, buf.Bytes())
}

func (c Compressing) Get(ctx context.Context, key string) ([]byte, error) {
	compressed, err := c.Inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	r, err := xz.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("archive: new xz reader: %w", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("archive: xz decompress: %w", err)
	}
	return data, nil
}

func (c Compressing) Delete(ctx context.Context, key string) error {
	return c.Inner.Delete(ctx, key)
}

func (c Compressing) List(ctx context.Context, prefix string) ([]string, error) {
	return c.Inner.List(ctx, prefix)
}

var _ SnapshotArchive = Compressing{}
