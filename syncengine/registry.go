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
	"github.com/google/uuid"

	nlrm "github.com/launix-de/NonLockingReadMap"

	"github.com/launix-de/lstsync/crdtdoc"
)

// docEntry is the cached, already-unmarshalled CRDT state for one
// document, keyed by doc_id. Every cooperative task (local-event worker,
// remote-event worker, compaction responder) reads this registry far
// more often than it writes it, which is exactly the access pattern
// NonLockingReadMap is built for.
type docEntry struct {
	docID string
	doc   *crdtdoc.Document
}

// GetKey and ComputeSize use value receivers, not pointer receivers: the
// map's type parameter is constrained to KeyGetter[TK] on the element
// type itself (not its pointer), so only methods in docEntry's own
// method set satisfy it.
func (e docEntry) GetKey() string { return e.docID }

// ComputeSize is a rough accounting hook the map uses for its own
// bookkeeping; an exact byte count isn't worth computing per update, so
// this reports a fixed per-entry estimate.
func (e docEntry) ComputeSize() uint { return 256 }

// docRegistry is the in-process open-document cache fronting the Local
// Store's compressed-and-encoded bbolt blobs, so a burst of edits to the
// same file doesn't pay an lz4-decompress-plus-JSON-unmarshal on every
// single keystroke's debounced event.
type docRegistry struct {
	m nlrm.NonLockingReadMap[docEntry, string]
}

func newDocRegistry() *docRegistry {
	return &docRegistry{m: nlrm.New[docEntry, string]()}
}

func (r *docRegistry) get(docID uuid.UUID) (*crdtdoc.Document, bool) {
	entry := r.m.Get(docID.String())
	if entry == nil {
		return nil, false
	}
	return entry.doc, true
}

func (r *docRegistry) put(docID uuid.UUID, doc *crdtdoc.Document) {
	r.m.Set(&docEntry{docID: docID.String(), doc: doc})
}
