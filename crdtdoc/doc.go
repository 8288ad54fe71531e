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

package crdtdoc

import (
	"encoding/json"
	"fmt"
)

// Kind is the Markdown flavor a Document was parsed from.
type Kind string

const (
	List Kind = "list"
	Note Kind = "note"
)

// Document is the in-memory CRDT state for one file, as addressed by
// doc_id from the local store. Exactly one of List/Note is populated,
// matching Kind.
type Document struct {
	Kind  Kind
	List  *ListDoc
	Note  *Text
	Heads Heads             // what this replica has incorporated from received deltas, per device; locally issued ops do not advance it
	Meta  map[string]string // mirrored frontmatter fields (title, id) for list documents; the raw frontmatter block under "frontmatter" for notes
}

// NewListDocument creates an empty list document for deviceID.
func NewListDocument(deviceID string) *Document {
	return &Document{Kind: List, List: NewListDoc(deviceID), Heads: Heads{}}
}

// NewNoteDocument creates an empty note document for deviceID.
func NewNoteDocument(deviceID string) *Document {
	return &Document{Kind: Note, Note: NewText(deviceID), Heads: Heads{}}
}

// clock returns whichever flavor's clock is live, used for minting new
// local OpIDs and for snapshot persistence.
func (d *Document) clock() *Clock {
	if d.Kind == List {
		return d.List.clock
	}
	return d.Note.clock
}

// Observe records that id has been incorporated into Heads, called by
// the sync engine after applying each remote op so catch-up requests
// never re-fetch already-applied changes.
func (d *Document) Observe(id OpID) {
	d.clock().Observe(id)
	d.Heads.Advance(id)
}

// docSnapshot is the on-the-wire/on-disk encoding of a Document.
type docSnapshot struct {
	Kind      Kind
	DeviceID  string
	Counter   uint64
	Heads     Heads
	Meta      map[string]string `json:",omitempty"`
	ListElems []elemSnapshot    `json:",omitempty"`
	NoteChars []charSnapshot    `json:",omitempty"`
}

// Marshal serializes the document to bytes, the format localstore
// compresses with lz4 and relaystore ships opaquely as a snapshot
// ciphertext payload (after encryption).
func (d *Document) Marshal() ([]byte, error) {
	snap := docSnapshot{Kind: d.Kind, Heads: d.Heads, Meta: d.Meta}
	switch d.Kind {
	case List:
		snap.DeviceID, snap.Counter, snap.ListElems = d.List.snapshot()
	case Note:
		snap.DeviceID, snap.Counter, snap.NoteChars = d.Note.snapshot()
	default:
		return nil, fmt.Errorf("crdtdoc: unknown kind %q", d.Kind)
	}
	return json.Marshal(snap)
}

// Unmarshal reconstructs a Document from bytes produced by Marshal.
func Unmarshal(data []byte) (*Document, error) {
	var snap docSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("crdtdoc: unmarshal: %w", err)
	}
	d := &Document{Kind: snap.Kind, Heads: snap.Heads, Meta: snap.Meta}
	if d.Heads == nil {
		d.Heads = Heads{}
	}
	switch snap.Kind {
	case List:
		d.List = restoreListDoc(snap.DeviceID, snap.Counter, snap.ListElems)
	case Note:
		d.Note = restoreText(snap.DeviceID, snap.Counter, snap.NoteChars)
	default:
		return nil, fmt.Errorf("crdtdoc: unknown kind %q", snap.Kind)
	}
	return d, nil
}
