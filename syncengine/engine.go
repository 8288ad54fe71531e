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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/launix-de/lstsync/codec"
	"github.com/launix-de/lstsync/crdtdoc"
	"github.com/launix-de/lstsync/crypto"
	"github.com/launix-de/lstsync/localstore"
	"github.com/launix-de/lstsync/transport"
	"github.com/launix-de/lstsync/watcher"
)

// Pusher is the engine's outbound seam, satisfied by *transport.Client.
// Keeping it an interface lets tests push synchronously without a real
// WebSocket.
type Pusher interface {
	Send(ctx context.Context, msgType string, body any) error
}

// Engine owns the local-event and remote-event pipelines described in
// §4.5: it is the only component that touches both the Local Store and
// the master key.
type Engine struct {
	Store           *localstore.Store
	Keyring         *crypto.Keyring
	Root            string
	DeviceID        string
	RecentlyWritten *watcher.RecentlyWritten
	Pusher          Pusher
	Logger          zerolog.Logger

	tracker  *docTracker
	registry *docRegistry
}

func New(store *localstore.Store, keyring *crypto.Keyring, root, deviceID string, rw *watcher.RecentlyWritten, pusher Pusher) *Engine {
	return &Engine{
		Store:           store,
		Keyring:         keyring,
		Root:            root,
		DeviceID:        deviceID,
		RecentlyWritten: rw,
		Pusher:          pusher,
		Logger:          zerolog.Nop(),
		tracker:         newDocTracker(),
		registry:        newDocRegistry(),
	}
}

func (e *Engine) State(docID uuid.UUID) State { return e.tracker.get(docID) }

// HandleLocalEvent runs the local-event pipeline for one coalesced
// watcher.Event: resolve doc_id, skip unchanged content, apply the file
// to the CRDT, persist, extract the delta since heads_before, encrypt
// the delta as one ciphertext, and push.
func (e *Engine) HandleLocalEvent(ctx context.Context, ev watcher.Event) error {
	relPath, err := filepath.Rel(e.Root, ev.Path)
	if err != nil {
		return fmt.Errorf("syncengine: rel path: %w", err)
	}

	if ev.Kind == watcher.Deleted {
		// A deleted file still needs its doc_id resolved so the CRDT
		// transitions to a tombstoned-everything state; the codec has
		// no "delete a whole document" primitive, so for now a
		// deletion is represented by an empty-body apply, which
		// tombstones every surviving element via the normal diff.
		return e.applyBody(ctx, relPath, "")
	}

	raw, err := os.ReadFile(ev.Path)
	if err != nil {
		return fmt.Errorf("syncengine: read %s: %w", ev.Path, err)
	}
	return e.applyBody(ctx, relPath, string(raw))
}

func (e *Engine) applyBody(ctx context.Context, relPath, body string) error {
	kind := codec.DetectKind(relPath)
	docKind := localstore.KindNote
	if kind == crdtdoc.List {
		docKind = localstore.KindList
	}

	docID, _, err := e.Store.ResolveDocID(relPath, docKind)
	if err != nil {
		return fmt.Errorf("syncengine: resolve doc_id: %w", err)
	}

	digest := digestOf(body)
	state, found, err := e.Store.GetDocState(docID)
	if err != nil {
		return fmt.Errorf("syncengine: load doc state: %w", err)
	}
	if found && state.LastSyncHash == digest {
		return nil // unchanged since our own last write: feedback-loop guard
	}
	if !found {
		state = localstore.DocState{Kind: docKind}
	}

	doc, err := e.loadOrCreateDoc(docID, docKind)
	if err != nil {
		return err
	}
	headsBefore := doc.Heads.Clone()

	if err := codec.ApplyFileToDoc(doc, body); err != nil {
		return fmt.Errorf("syncengine: apply file to doc: %w", err)
	}

	blob, err := doc.Marshal()
	if err != nil {
		return fmt.Errorf("syncengine: marshal doc: %w", err)
	}
	if err := e.Store.PutCRDTState(docID, blob); err != nil {
		return fmt.Errorf("syncengine: persist crdt state: %w", err)
	}
	state.LastSyncHash = digest
	if err := e.Store.PutDocState(docID, state); err != nil {
		return fmt.Errorf("syncengine: persist doc state: %w", err)
	}

	e.tracker.transition(docID, Local)

	delta := doc.ExtractSince(headsBefore)
	if len(delta.ListElems) == 0 && len(delta.NoteChars) == 0 {
		return nil
	}
	return e.pushDelta(ctx, docID, delta)
}

func (e *Engine) pushDelta(ctx context.Context, docID uuid.UUID, delta crdtdoc.Delta) error {
	plaintext, err := crdtdoc.MarshalDelta(delta)
	if err != nil {
		return err
	}
	key, release, err := e.Keyring.Get()
	if err != nil {
		return fmt.Errorf("syncengine: load master key: %w", err)
	}
	defer release()

	docIDBytes := docID[:]
	ciphertext, err := crypto.Seal(key, plaintext, docIDBytes)
	if err != nil {
		return fmt.Errorf("syncengine: encrypt change: %w", err)
	}

	e.tracker.transition(docID, Syncing)
	return e.Pusher.Send(ctx, transport.TypePushChanges, transport.PushChanges{
		DocID:       docID.String(),
		DeviceID:    e.DeviceID,
		Ciphertexts: [][]byte{ciphertext},
	})
}

// loadOrCreateDoc consults the in-process registry before falling back
// to the Local Store, so a burst of edits to the same file only pays the
// lz4-decompress-plus-unmarshal cost once.
func (e *Engine) loadOrCreateDoc(docID uuid.UUID, kind localstore.DocKind) (*crdtdoc.Document, error) {
	if doc, ok := e.registry.get(docID); ok {
		return doc, nil
	}

	blob, found, err := e.Store.GetCRDTState(docID)
	if err != nil {
		return nil, fmt.Errorf("syncengine: load crdt state: %w", err)
	}
	var doc *crdtdoc.Document
	if found {
		doc, err = crdtdoc.Unmarshal(blob)
		if err != nil {
			return nil, err
		}
	} else if kind == localstore.KindList {
		doc = crdtdoc.NewListDocument(e.DeviceID)
	} else {
		doc = crdtdoc.NewNoteDocument(e.DeviceID)
	}
	e.registry.put(docID, doc)
	return doc, nil
}

func digestOf(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
