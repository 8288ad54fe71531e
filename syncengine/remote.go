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
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/launix-de/lstsync/codec"
	"github.com/launix-de/lstsync/crdtdoc"
	"github.com/launix-de/lstsync/crypto"
	"github.com/launix-de/lstsync/localstore"
)

// RemoteChange is one inbound ciphertext, already addressed to a known
// doc_id; it is the syncengine-facing shape of a transport.Changes or
// transport.NewChanges entry.
type RemoteChange struct {
	DocID      uuid.UUID
	ChangeID   uint64
	Ciphertext []byte
}

// HandleRemoteChanges decrypts and applies a batch of changes for one
// document, renders the result to disk, and advances last_seen_change_id.
// A decryption failure aborts the whole batch and counts as one AEAD
// failure toward quarantine; callers should stop requesting changes for
// a quarantined document until the user re-onboards it.
func (e *Engine) HandleRemoteChanges(ctx context.Context, docID uuid.UUID, kind localstore.DocKind, changes []RemoteChange) error {
	if e.tracker.get(docID) == ConflictQuarantine {
		return fmt.Errorf("syncengine: document %s is quarantined, refusing remote changes", docID)
	}
	if len(changes) == 0 {
		return nil
	}

	doc, err := e.loadOrCreateDoc(docID, kind)
	if err != nil {
		return err
	}

	key, release, err := e.Keyring.Get()
	if err != nil {
		return fmt.Errorf("syncengine: load master key: %w", err)
	}
	defer release()

	docIDBytes := docID[:]
	maxChangeID := uint64(0)
	for _, c := range changes {
		plaintext, err := crypto.Open(key, c.Ciphertext, docIDBytes)
		if err != nil {
			if e.tracker.recordAEADFailure(docID) {
				return fmt.Errorf("syncengine: document %s quarantined after repeated tamper detection: %w", docID, err)
			}
			return fmt.Errorf("syncengine: decrypt change %d for %s: %w", c.ChangeID, docID, err)
		}
		e.tracker.resetAEADFailures(docID)

		delta, err := crdtdoc.UnmarshalDelta(plaintext)
		if err != nil {
			return fmt.Errorf("syncengine: decode delta for %s: %w", docID, err)
		}
		if err := doc.Apply(delta); err != nil {
			return fmt.Errorf("syncengine: apply delta for %s: %w", docID, err)
		}
		if c.ChangeID > maxChangeID {
			maxChangeID = c.ChangeID
		}
	}

	return e.writeBack(docID, doc, maxChangeID)
}

// HandleSnapshot replaces a document's CRDT state wholesale with a
// decrypted snapshot (from an initial catch-up or post-compaction
// refresh) and renders it to disk.
func (e *Engine) HandleSnapshot(ctx context.Context, docID uuid.UUID, encSnapshot []byte, cutoffID uint64) error {
	if e.tracker.get(docID) == ConflictQuarantine {
		return fmt.Errorf("syncengine: document %s is quarantined, refusing snapshot", docID)
	}

	key, release, err := e.Keyring.Get()
	if err != nil {
		return fmt.Errorf("syncengine: load master key: %w", err)
	}
	defer release()

	plaintext, err := crypto.Open(key, encSnapshot, docID[:])
	if err != nil {
		if e.tracker.recordAEADFailure(docID) {
			return fmt.Errorf("syncengine: document %s quarantined after repeated tamper detection: %w", docID, err)
		}
		return fmt.Errorf("syncengine: decrypt snapshot for %s: %w", docID, err)
	}
	e.tracker.resetAEADFailures(docID)

	doc, err := crdtdoc.Unmarshal(plaintext)
	if err != nil {
		return fmt.Errorf("syncengine: unmarshal snapshot for %s: %w", docID, err)
	}
	e.registry.put(docID, doc)

	return e.writeBack(docID, doc, cutoffID)
}

// writeBack renders doc to its rel_path, marking the path as
// recently-written so the watcher's own notification for this write is
// not mistaken for an independent local edit, then persists the new
// CRDT state and advances last_seen_change_id.
func (e *Engine) writeBack(docID uuid.UUID, doc *crdtdoc.Document, seenChangeID uint64) error {
	relPath, found, err := e.Store.RelPathFor(docID)
	if err != nil {
		return fmt.Errorf("syncengine: look up rel_path for %s: %w", docID, err)
	}
	if !found {
		// No local rel_path yet (a document we've never seen on disk):
		// derive one from doc_id itself so the file has somewhere to
		// land; the user can rename it, which only changes rel_path,
		// never doc_id.
		relPath = docID.String() + ".md"
		if doc.Kind == crdtdoc.List {
			relPath = filepath.Join("lists", relPath)
		}
		if err := e.Store.AdoptServerDocID(relPath, docID); err != nil {
			return fmt.Errorf("syncengine: adopt doc_id for new rel_path: %w", err)
		}
	}

	rendered, err := codec.Render(doc)
	if err != nil {
		return fmt.Errorf("syncengine: render %s: %w", docID, err)
	}

	absPath := filepath.Join(e.Root, relPath)
	e.RecentlyWritten.Mark(absPath)
	if err := atomicWrite(absPath, []byte(rendered)); err != nil {
		return fmt.Errorf("syncengine: write %s: %w", absPath, err)
	}

	blob, err := doc.Marshal()
	if err != nil {
		return fmt.Errorf("syncengine: marshal %s: %w", docID, err)
	}
	if err := e.Store.PutCRDTState(docID, blob); err != nil {
		return fmt.Errorf("syncengine: persist crdt state for %s: %w", docID, err)
	}

	kind := localstore.KindNote
	if doc.Kind == crdtdoc.List {
		kind = localstore.KindList
	}
	state, found, err := e.Store.GetDocState(docID)
	if err != nil {
		return fmt.Errorf("syncengine: load doc state for %s: %w", docID, err)
	}
	if !found {
		state = localstore.DocState{Kind: kind}
	}
	state.LastSyncHash = digestOf(rendered)
	if seenChangeID > state.LastSeenChangeID {
		state.LastSeenChangeID = seenChangeID
	}
	if err := e.Store.PutDocState(docID, state); err != nil {
		return fmt.Errorf("syncengine: persist doc state for %s: %w", docID, err)
	}

	if state.LastSeenChangeID > 0 {
		e.tracker.transition(docID, Synced)
	} else {
		e.tracker.transition(docID, Syncing)
	}
	return nil
}

// atomicWrite writes data to a temp file in path's directory, fsyncs it,
// then renames over path, so a crash mid-write never leaves a
// half-written file where the user (or the watcher) can observe it.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".lstsync-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
