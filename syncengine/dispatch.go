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

	"github.com/launix-de/lstsync/localstore"
	"github.com/launix-de/lstsync/transport"
)

// Catchup runs the reconnect sequence from §4.6: request the document
// list, then for every entry either pull a snapshot (first time seeing
// a doc_id) or pull changes since what we last saw.
func (e *Engine) Catchup(ctx context.Context) error {
	return e.Pusher.Send(ctx, transport.TypeRequestDocumentList, transport.RequestDocumentList{})
}

// HandleDocumentList is the response half of Catchup: for each entry,
// decide whether a Snapshot or an incremental Changes pull is cheaper.
func (e *Engine) HandleDocumentList(ctx context.Context, list transport.DocumentList) error {
	for _, entry := range list.Documents {
		docID, err := uuid.Parse(entry.DocID)
		if err != nil {
			continue
		}
		state, found, err := e.Store.GetDocState(docID)
		if err != nil {
			return fmt.Errorf("syncengine: load doc state for %s: %w", docID, err)
		}
		if !found || state.LastSeenChangeID == 0 {
			if entry.HasSnapshot {
				if err := e.Pusher.Send(ctx, transport.TypeRequestSnapshot, transport.RequestSnapshot{DocID: entry.DocID}); err != nil {
					return err
				}
				continue
			}
		}
		if entry.MaxChangeID <= state.LastSeenChangeID {
			continue // already caught up
		}
		if err := e.Pusher.Send(ctx, transport.TypeRequestChanges, transport.RequestChanges{
			DocID:         entry.DocID,
			SinceChangeID: state.LastSeenChangeID,
		}); err != nil {
			return err
		}
	}
	return nil
}

// HandleInboundEnvelope is the single entry point the daemon's read loop
// calls for every envelope off transport.Client.Inbound(). It decodes by
// Type and dispatches to the matching pipeline stage.
func (e *Engine) HandleInboundEnvelope(ctx context.Context, env transport.Envelope) error {
	switch env.Type {
	case transport.TypeDocumentList:
		var body transport.DocumentList
		if err := transport.Decode(env, &body); err != nil {
			return err
		}
		return e.HandleDocumentList(ctx, body)

	case transport.TypeChanges:
		var body transport.Changes
		if err := transport.Decode(env, &body); err != nil {
			return err
		}
		return e.handleChangesBody(ctx, body)

	case transport.TypeNewChanges:
		var body transport.NewChanges
		if err := transport.Decode(env, &body); err != nil {
			return err
		}
		return e.handleNewChangesBody(ctx, body)

	case transport.TypeSnapshot:
		var body transport.Snapshot
		if err := transport.Decode(env, &body); err != nil {
			return err
		}
		if !body.Found {
			return nil
		}
		docID, err := uuid.Parse(body.DocID)
		if err != nil {
			return err
		}
		return e.HandleSnapshot(ctx, docID, body.EncSnapshot, body.CutoffID)

	case transport.TypeRequestCompaction:
		var body transport.RequestCompaction
		if err := transport.Decode(env, &body); err != nil {
			return err
		}
		docID, err := uuid.Parse(body.DocID)
		if err != nil {
			return err
		}
		return e.HandleCompactionRequest(ctx, docID)

	case transport.TypeError:
		return nil // surfaced to the daemon control surface by the caller, not fatal here

	default:
		return nil
	}
}

func (e *Engine) handleChangesBody(ctx context.Context, body transport.Changes) error {
	docID, err := uuid.Parse(body.DocID)
	if err != nil {
		return err
	}
	kind, err := e.kindFor(docID)
	if err != nil {
		return err
	}
	changes := make([]RemoteChange, len(body.Ciphertexts))
	changeID := body.FromChangeID
	for i, ct := range body.Ciphertexts {
		if i > 0 {
			changeID++
		}
		changes[i] = RemoteChange{DocID: docID, ChangeID: changeID, Ciphertext: ct}
	}
	return e.HandleRemoteChanges(ctx, docID, kind, changes)
}

func (e *Engine) handleNewChangesBody(ctx context.Context, body transport.NewChanges) error {
	docID, err := uuid.Parse(body.DocID)
	if err != nil {
		return err
	}
	kind, err := e.kindFor(docID)
	if err != nil {
		return err
	}
	changes := make([]RemoteChange, len(body.Ciphertexts))
	changeID := body.FromChangeID
	for i, ct := range body.Ciphertexts {
		if i > 0 {
			changeID++
		}
		changes[i] = RemoteChange{DocID: docID, ChangeID: changeID, Ciphertext: ct}
	}
	return e.HandleRemoteChanges(ctx, docID, kind, changes)
}

func (e *Engine) kindFor(docID uuid.UUID) (localstore.DocKind, error) {
	state, found, err := e.Store.GetDocState(docID)
	if err != nil {
		return "", err
	}
	if !found {
		return localstore.KindNote, nil
	}
	return state.Kind, nil
}
