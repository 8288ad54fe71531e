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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressingRoundTrips(t *testing.T) {
	ctx := context.Background()
	inner, err := FileFactory{}.Open(map[string]string{"dir": t.TempDir()})
	require.NoError(t, err)
	a := Compressing{Inner: inner}

	payload := []byte(strings.Repeat("snapshot payload ", 200))
	require.NoError(t, a.Put(ctx, "doc-1/0000000001", payload))

	stored, err := inner.Get(ctx, "doc-1/0000000001")
	require.NoError(t, err)
	assert.Less(t, len(stored), len(payload), "xz should shrink a repetitive payload")
	assert.False(t, bytes.Equal(stored, payload))

	got, err := a.Get(ctx, "doc-1/0000000001")
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestCompressingGetMissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	inner, err := FileFactory{}.Open(map[string]string{"dir": t.TempDir()})
	require.NoError(t, err)
	a := Compressing{Inner: inner}

	_, err = a.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
