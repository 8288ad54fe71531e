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
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/launix-de/lstsync/crdtdoc"
	"github.com/launix-de/lstsync/crypto"
	"github.com/launix-de/lstsync/localstore"
	"github.com/launix-de/lstsync/transport"
)

// sealEmptyDelta produces a valid ciphertext for docID under e's current
// master key, so tests can exercise handleChangesBody/handleNewChangesBody
// end to end without a real relay.
func sealEmptyDelta(t *testing.T, e *Engine, docID uuid.UUID) []byte {
	t.Helper()
	plaintext, err := crdtdoc.MarshalDelta(crdtdoc.Delta{Kind: crdtdoc.Note})
	require.NoError(t, err)
	key, release, err := e.Keyring.Get()
	require.NoError(t, err)
	defer release()
	ct, err := crypto.Seal(key, plaintext, docID[:])
	require.NoError(t, err)
	return ct
}

// TestHandleChangesBodyLabelsFirstCiphertextWithFromChangeID guards the
// relay's actual FromChangeID semantics: it names the true change_id of
// ciphertexts[0], not the id one before it. A batch of N ciphertexts
// starting at FromChangeID must advance last_seen_change_id to exactly
// FromChangeID+N-1, not FromChangeID+N.
func TestHandleChangesBodyLabelsFirstCiphertextWithFromChangeID(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, "device-a")

	docID, _, err := e.Store.ResolveDocID("note.md", localstore.KindNote)
	require.NoError(t, err)

	ct1 := sealEmptyDelta(t, e, docID)
	ct2 := sealEmptyDelta(t, e, docID)

	require.NoError(t, e.handleChangesBody(ctx, transport.Changes{
		DocID:        docID.String(),
		FromChangeID: 5,
		Ciphertexts:  [][]byte{ct1, ct2},
	}))

	state, found, err := e.Store.GetDocState(docID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(6), state.LastSeenChangeID)
}

func TestHandleNewChangesBodyLabelsFirstCiphertextWithFromChangeID(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, "device-a")

	docID, _, err := e.Store.ResolveDocID("note.md", localstore.KindNote)
	require.NoError(t, err)

	ct := sealEmptyDelta(t, e, docID)

	require.NoError(t, e.handleNewChangesBody(ctx, transport.NewChanges{
		DocID:        docID.String(),
		FromChangeID: 9,
		Ciphertexts:  [][]byte{ct},
	}))

	state, found, err := e.Store.GetDocState(docID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(9), state.LastSeenChangeID)
}
