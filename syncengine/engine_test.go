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

package syncengine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launix-de/lstsync/crypto"
	"github.com/launix-de/lstsync/localstore"
	"github.com/launix-de/lstsync/transport"
	"github.com/launix-de/lstsync/watcher"
)

// recordingPusher captures every Send call instead of going over a real
// socket, letting tests assert on what the local-event pipeline would
// have pushed and feed it straight to a second Engine to emulate a peer.
type recordingPusher struct {
	mu    sync.Mutex
	sends []sentMessage
}

type sentMessage struct {
	msgType string
	body    any
}

func (p *recordingPusher) Send(ctx context.Context, msgType string, body any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sends = append(p.sends, sentMessage{msgType: msgType, body: body})
	return nil
}

func (p *recordingPusher) last() sentMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sends[len(p.sends)-1]
}

func newTestEngine(t *testing.T, deviceID string) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := localstore.Open(filepath.Join(dir, "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	key, err := crypto.NewMasterKey()
	require.NoError(t, err)
	keyring := crypto.NewKeyring(func() (crypto.MasterKey, error) { return key, nil })

	root := filepath.Join(dir, "content")
	require.NoError(t, os.MkdirAll(root, 0755))

	eng := New(store, keyring, root, deviceID, watcher.NewRecentlyWritten(), &recordingPusher{})
	return eng, root
}

func TestHandleLocalEventPushesDelta(t *testing.T) {
	eng, root := newTestEngine(t, "device-a")
	path := filepath.Join(root, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# hello\nworld\n"), 0644))

	err := eng.HandleLocalEvent(context.Background(), watcher.Event{Path: path, Kind: watcher.Modified})
	require.NoError(t, err)

	pusher := eng.Pusher.(*recordingPusher)
	require.Len(t, pusher.sends, 1)
	assert.Equal(t, transport.TypePushChanges, pusher.last().msgType)
}

func TestHandleLocalEventSkipsUnchangedContent(t *testing.T) {
	eng, root := newTestEngine(t, "device-a")
	path := filepath.Join(root, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("same content\n"), 0644))

	ctx := context.Background()
	require.NoError(t, eng.HandleLocalEvent(ctx, watcher.Event{Path: path, Kind: watcher.Modified}))
	pusher := eng.Pusher.(*recordingPusher)
	require.Len(t, pusher.sends, 1)

	// A second notification for the exact same bytes (e.g. a touch, or
	// our own write-back loopback) must not push a second, empty delta.
	require.NoError(t, eng.HandleLocalEvent(ctx, watcher.Event{Path: path, Kind: watcher.Modified}))
	require.Len(t, pusher.sends, 1)
}

// TestTwoDeviceConvergence drives the local pipeline on one engine, then
// feeds the resulting ciphertext into a second engine's remote pipeline
// as if a relay had relayed it, confirming the file lands with the same
// content on both sides.
func TestTwoDeviceConvergence(t *testing.T) {
	ctx := context.Background()
	a, rootA := newTestEngine(t, "device-a")
	b, rootB := newTestEngine(t, "device-b")

	// Both devices must agree on the master key to decrypt each other's
	// pushes; swap in a shared keyring for b built from a's key.
	keyA, release, err := a.Keyring.Get()
	require.NoError(t, err)
	release()
	b.Keyring = crypto.NewKeyring(func() (crypto.MasterKey, error) { return keyA, nil })

	pathA := filepath.Join(rootA, "shopping.md")
	require.NoError(t, os.WriteFile(pathA, []byte("- [ ] milk\n- [ ] eggs\n"), 0644))
	require.NoError(t, a.HandleLocalEvent(ctx, watcher.Event{Path: pathA, Kind: watcher.Modified}))

	pusherA := a.Pusher.(*recordingPusher)
	require.Len(t, pusherA.sends, 1)
	push := pusherA.last().body.(transport.PushChanges)

	docIDA, _, err := a.Store.ResolveDocID("shopping.md", localstore.KindNote)
	require.NoError(t, err)

	require.NoError(t, b.Store.AdoptServerDocID("shopping.md", docIDA))
	err = b.HandleRemoteChanges(ctx, docIDA, localstore.KindNote, []RemoteChange{
		{DocID: docIDA, ChangeID: 1, Ciphertext: push.Ciphertexts[0]},
	})
	require.NoError(t, err)

	rendered, err := os.ReadFile(filepath.Join(rootB, "shopping.md"))
	require.NoError(t, err)
	assert.Contains(t, string(rendered), "milk")
	assert.Contains(t, string(rendered), "eggs")
}

// TestDeviceBEditReachesDeviceAAfterInitialSync extends
// TestTwoDeviceConvergence: once b has received a's document, b edits a
// line a created and pushes the edit back. Before per-field mutation
// stamps, b's Heads already contained a's creation op (Apply observes
// every incoming op), so the edited node was filtered out of every
// delta b tried to extract and the edit never left b's Pusher.
func TestDeviceBEditReachesDeviceAAfterInitialSync(t *testing.T) {
	ctx := context.Background()
	a, rootA := newTestEngine(t, "device-a")
	b, rootB := newTestEngine(t, "device-b")

	keyA, release, err := a.Keyring.Get()
	require.NoError(t, err)
	release()
	b.Keyring = crypto.NewKeyring(func() (crypto.MasterKey, error) { return keyA, nil })

	pathA := filepath.Join(rootA, "shopping.md")
	require.NoError(t, os.WriteFile(pathA, []byte("- [ ] milk\n- [ ] eggs\n"), 0644))
	require.NoError(t, a.HandleLocalEvent(ctx, watcher.Event{Path: pathA, Kind: watcher.Modified}))

	pusherA := a.Pusher.(*recordingPusher)
	push := pusherA.last().body.(transport.PushChanges)

	docIDA, _, err := a.Store.ResolveDocID("shopping.md", localstore.KindNote)
	require.NoError(t, err)

	require.NoError(t, b.Store.AdoptServerDocID("shopping.md", docIDA))
	require.NoError(t, b.HandleRemoteChanges(ctx, docIDA, localstore.KindNote, []RemoteChange{
		{DocID: docIDA, ChangeID: 1, Ciphertext: push.Ciphertexts[0]},
	}))

	pathB := filepath.Join(rootB, "shopping.md")
	require.NoError(t, os.WriteFile(pathB, []byte("- [x] milk\n- [ ] eggs\n"), 0644))
	require.NoError(t, b.HandleLocalEvent(ctx, watcher.Event{Path: pathB, Kind: watcher.Modified}))

	pusherB := b.Pusher.(*recordingPusher)
	require.Len(t, pusherB.sends, 1, "b's edit to a's line must still be pushed")
	pushB := pusherB.last().body.(transport.PushChanges)

	require.NoError(t, a.HandleRemoteChanges(ctx, docIDA, localstore.KindNote, []RemoteChange{
		{DocID: docIDA, ChangeID: 2, Ciphertext: pushB.Ciphertexts[0]},
	}))

	rendered, err := os.ReadFile(pathA)
	require.NoError(t, err)
	assert.Contains(t, string(rendered), "[x] milk")
}

func TestHandleRemoteChangesQuarantinesAfterRepeatedTamper(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t, "device-a")
	docID, _, err := eng.Store.ResolveDocID("note.md", localstore.KindNote)
	require.NoError(t, err)

	bad := RemoteChange{DocID: docID, ChangeID: 1, Ciphertext: []byte("not a real ciphertext")}
	for i := 0; i < maxConsecutiveAEADFailures-1; i++ {
		err := eng.HandleRemoteChanges(ctx, docID, localstore.KindNote, []RemoteChange{bad})
		require.Error(t, err)
		assert.NotEqual(t, ConflictQuarantine, eng.State(docID))
	}
	err = eng.HandleRemoteChanges(ctx, docID, localstore.KindNote, []RemoteChange{bad})
	require.Error(t, err)
	assert.Equal(t, ConflictQuarantine, eng.State(docID))

	// Once quarantined, further remote changes are refused outright even
	// if they'd otherwise decrypt fine.
	err = eng.HandleRemoteChanges(ctx, docID, localstore.KindNote, []RemoteChange{bad})
	assert.Error(t, err)
}

func TestHandleCompactionRequestPushesSnapshot(t *testing.T) {
	ctx := context.Background()
	eng, root := newTestEngine(t, "device-a")
	path := filepath.Join(root, "note.md")
	require.NoError(t, os.WriteFile(path, []byte("content\n"), 0644))
	require.NoError(t, eng.HandleLocalEvent(ctx, watcher.Event{Path: path, Kind: watcher.Modified}))

	docID, _, err := eng.Store.ResolveDocID("note.md", localstore.KindNote)
	require.NoError(t, err)

	pusher := eng.Pusher.(*recordingPusher)
	pusher.sends = nil

	require.NoError(t, eng.HandleCompactionRequest(ctx, docID))
	require.Len(t, pusher.sends, 1)
	assert.Equal(t, transport.TypePushSnapshot, pusher.last().msgType)
}

func TestHandleDocumentListRequestsSnapshotForUnknownDoc(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t, "device-a")
	pusher := eng.Pusher.(*recordingPusher)

	err := eng.HandleDocumentList(ctx, transport.DocumentList{
		Documents: []transport.DocumentListEntry{
			{DocID: "11111111-1111-1111-1111-111111111111", HasSnapshot: true, MaxChangeID: 5},
		},
	})
	require.NoError(t, err)
	require.Len(t, pusher.sends, 1)
	assert.Equal(t, transport.TypeRequestSnapshot, pusher.last().msgType)
}
