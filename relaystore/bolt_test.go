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

package relaystore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestBolt(t *testing.T) *BoltStore {
	t.Helper()
	s, err := OpenBolt(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPushChangesAssignsMonotonicIDs(t *testing.T) {
	ctx := context.Background()
	s := openTestBolt(t)
	docID := uuid.New()
	deviceID := uuid.New()

	first, last, err := s.PushChanges(ctx, "alice", docID, deviceID, [][]byte{[]byte("a"), []byte("b"), []byte("c")})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first)
	assert.Equal(t, uint64(3), last)

	first2, last2, err := s.PushChanges(ctx, "alice", docID, deviceID, [][]byte{[]byte("d")})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), first2)
	assert.Equal(t, uint64(4), last2)

	changes, err := s.RequestChanges(ctx, "alice", docID, 0, 0)
	require.NoError(t, err)
	require.Len(t, changes, 4)
	assert.Equal(t, []byte("a"), changes[0].EncChange)
	assert.Equal(t, uint64(4), changes[3].ChangeID)
}

func TestPushSnapshotPrunesChangesAtOrBelowCutoff(t *testing.T) {
	ctx := context.Background()
	s := openTestBolt(t)
	docID := uuid.New()
	deviceID := uuid.New()

	_, last, err := s.PushChanges(ctx, "alice", docID, deviceID, [][]byte{[]byte("a"), []byte("b"), []byte("c")})
	require.NoError(t, err)

	require.NoError(t, s.PushSnapshot(ctx, "alice", docID, []byte("snap"), last-1))

	changes, err := s.RequestChanges(ctx, "alice", docID, 0, 0)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, last, changes[0].ChangeID)

	snap, err := s.RequestSnapshot(ctx, "alice", docID)
	require.NoError(t, err)
	assert.Equal(t, []byte("snap"), snap)
}

func TestRequestDocumentListReflectsPushesWithoutSnapshot(t *testing.T) {
	ctx := context.Background()
	s := openTestBolt(t)
	docID := uuid.New()

	_, _, err := s.PushChanges(ctx, "alice", docID, uuid.New(), [][]byte{[]byte("a")})
	require.NoError(t, err)

	list, err := s.RequestDocumentList(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, docID, list[0].DocID)
	assert.False(t, list[0].HasSnapshot)
	assert.Equal(t, uint64(1), list[0].MaxChangeID)
}

func TestDeviceRevocation(t *testing.T) {
	ctx := context.Background()
	s := openTestBolt(t)
	deviceID := uuid.New()

	require.NoError(t, s.UpsertDevice(ctx, Device{UserID: "alice", DeviceID: deviceID, PublicKey: []byte("pk")}))

	revoked, err := s.IsRevoked(ctx, "alice", deviceID)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, s.RevokeDevice(ctx, "alice", deviceID))

	revoked, err = s.IsRevoked(ctx, "alice", deviceID)
	require.NoError(t, err)
	assert.True(t, revoked)

	devices, err := s.ListDevices(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.True(t, devices[0].Revoked)
}
