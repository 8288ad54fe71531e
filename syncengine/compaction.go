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
	"fmt"

	"github.com/google/uuid"

	"github.com/launix-de/lstsync/crypto"
	"github.com/launix-de/lstsync/transport"
)

// HandleCompactionRequest answers a relay-initiated RequestCompaction:
// serialize the document's full current state, encrypt it once, and
// push it as a snapshot with the document's current last_seen_change_id
// as the cutoff so the relay can prune everything at or below it.
func (e *Engine) HandleCompactionRequest(ctx context.Context, docID uuid.UUID) error {
	blob, found, err := e.Store.GetCRDTState(docID)
	if err != nil {
		return fmt.Errorf("syncengine: load crdt state for compaction of %s: %w", docID, err)
	}
	if !found {
		return fmt.Errorf("syncengine: no local state for %s, cannot compact", docID)
	}

	state, _, err := e.Store.GetDocState(docID)
	if err != nil {
		return fmt.Errorf("syncengine: load doc state for compaction of %s: %w", docID, err)
	}

	key, release, err := e.Keyring.Get()
	if err != nil {
		return fmt.Errorf("syncengine: load master key: %w", err)
	}
	defer release()

	ciphertext, err := crypto.Seal(key, blob, docID[:])
	if err != nil {
		return fmt.Errorf("syncengine: encrypt snapshot for %s: %w", docID, err)
	}

	return e.Pusher.Send(ctx, transport.TypePushSnapshot, transport.PushSnapshot{
		DocID:       docID.String(),
		DeviceID:    e.DeviceID,
		EncSnapshot: ciphertext,
		CutoffID:    state.LastSeenChangeID,
	})
}
