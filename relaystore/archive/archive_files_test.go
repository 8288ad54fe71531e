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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileArchivePutGetDelete(t *testing.T) {
	ctx := context.Background()
	a, err := FileFactory{}.Open(map[string]string{"dir": t.TempDir()})
	require.NoError(t, err)

	_, err = a.Get(ctx, "doc-1/0000000001")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, a.Put(ctx, "doc-1/0000000001", []byte("snapshot-one")))
	data, err := a.Get(ctx, "doc-1/0000000001")
	require.NoError(t, err)
	assert.Equal(t, []byte("snapshot-one"), data)

	require.NoError(t, a.Put(ctx, "doc-1/0000000002", []byte("snapshot-two")))
	keys, err := a.List(ctx, "doc-1/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"doc-1/0000000001", "doc-1/0000000002"}, keys)

	require.NoError(t, a.Delete(ctx, "doc-1/0000000001"))
	_, err = a.Get(ctx, "doc-1/0000000001")
	assert.ErrorIs(t, err, ErrNotFound)

	// deleting an already-missing key is not an error
	require.NoError(t, a.Delete(ctx, "doc-1/0000000001"))
}

func TestFileArchiveOverwrite(t *testing.T) {
	ctx := context.Background()
	a, err := FileFactory{}.Open(map[string]string{"dir": t.TempDir()})
	require.NoError(t, err)

	require.NoError(t, a.Put(ctx, "doc-1/0000000001", []byte("first")))
	require.NoError(t, a.Put(ctx, "doc-1/0000000001", []byte("second")))

	data, err := a.Get(ctx, "doc-1/0000000001")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)
}
