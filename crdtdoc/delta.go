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

// Delta is the wire/storage form of "everything this replica has that
// heads_before does not": every element/char with at least one stamp
// (creation or a later field mutation) not yet reflected in the
// recipient's Heads. A node's position, text, status, and tombstone
// state are each their own Lamport-stamped register, so an edit made
// long after a node's creation op has already been incorporated by a
// peer still carries a fresh stamp that peer hasn't seen, and the node
// is re-sent in full. Applying a Delta is idempotent: Apply only keeps
// a field's value when the incoming stamp is newer than the one it
// already holds, so repeated or out-of-order delivery of the same
// snapshot converges to the same state.
type Delta struct {
	Kind      Kind
	ListElems []elemSnapshot `json:",omitempty"`
	NoteChars []charSnapshot `json:",omitempty"`
}

// ExtractSince computes the Delta containing every node with a stamp not
// yet reflected in sinceHeads, for shipping to a peer whose Heads are
// sinceHeads. A node is included whenever its creation op OR any of its
// per-field mutation stamps (AfterOp/TextOp/StatusOp/DeletedOp) is new
// to the peer, so an edit to a node the peer already has is never
// silently dropped.
func (d *Document) ExtractSince(sinceHeads Heads) Delta {
	delta := Delta{Kind: d.Kind}
	switch d.Kind {
	case List:
		for _, e := range d.List.elems {
			if !sinceHeads.Has(e.ID) || !sinceHeads.Has(e.AfterOp) || !sinceHeads.Has(e.TextOp) ||
				!sinceHeads.Has(e.StatusOp) || !sinceHeads.Has(e.DeletedOp) {
				delta.ListElems = append(delta.ListElems, elemSnapshot{
					ID: e.ID, After: e.After, AfterOp: e.AfterOp, Kind: e.Kind, Anchor: e.Anchor,
					Name: e.Name, Text: e.Text, TextOp: e.TextOp, Status: e.Status, StatusOp: e.StatusOp,
					Deleted: e.Deleted, DeletedOp: e.DeletedOp,
				})
			}
		}
	case Note:
		for _, n := range d.Note.nodes {
			if !sinceHeads.Has(n.ID) || !sinceHeads.Has(n.DeletedOp) {
				delta.NoteChars = append(delta.NoteChars, charSnapshot{
					ID: n.ID, After: n.After, Rune: n.Rune, Deleted: n.Deleted, DeletedOp: n.DeletedOp,
				})
			}
		}
	}
	return delta
}

// MarshalDelta/UnmarshalDelta are the encrypted-payload framing used by
// the sync engine and transport: a Change's plaintext is exactly an
// encoded Delta.
func MarshalDelta(d Delta) ([]byte, error) {
	return json.Marshal(d)
}

func UnmarshalDelta(data []byte) (Delta, error) {
	var d Delta
	if err := json.Unmarshal(data, &d); err != nil {
		return Delta{}, fmt.Errorf("crdtdoc: unmarshal delta: %w", err)
	}
	return d, nil
}

// Apply merges delta into the document. A node this replica has never
// seen is inserted wholesale; a node it already knows is merged field by
// field, last-writer-wins, keeping whichever of the incoming and
// existing stamp is newer per field. Every stamp the delta carries is
// observed into Heads regardless of whether it won the merge, so a
// stamp this replica has already incorporated is never re-requested.
func (d *Document) Apply(delta Delta) error {
	if delta.Kind != d.Kind {
		return fmt.Errorf("crdtdoc: delta kind %q does not match document kind %q", delta.Kind, d.Kind)
	}
	switch d.Kind {
	case List:
		for _, s := range delta.ListElems {
			if e, ok := d.List.elems[s.ID]; ok {
				if e.AfterOp.Less(s.AfterOp) {
					e.After, e.AfterOp = s.After, s.AfterOp
				}
				if e.TextOp.Less(s.TextOp) {
					e.Text, e.TextOp = s.Text, s.TextOp
				}
				if e.StatusOp.Less(s.StatusOp) {
					e.Status, e.StatusOp = s.Status, s.StatusOp
				}
				if e.DeletedOp.Less(s.DeletedOp) {
					e.Deleted, e.DeletedOp = s.Deleted, s.DeletedOp
				}
			} else {
				e := &elem{
					ID: s.ID, After: s.After, AfterOp: s.AfterOp, Kind: s.Kind, Anchor: s.Anchor,
					Name: s.Name, Text: s.Text, TextOp: s.TextOp, Status: s.Status, StatusOp: s.StatusOp,
					Deleted: s.Deleted, DeletedOp: s.DeletedOp,
				}
				d.List.elems[e.ID] = e
				if e.Kind == ElemItem {
					d.List.byAnchor[e.Anchor] = e.ID
				} else {
					d.List.byCategory[e.Name] = e.ID
				}
			}
			d.Observe(s.ID)
			d.Observe(s.AfterOp)
			d.Observe(s.TextOp)
			d.Observe(s.StatusOp)
			d.Observe(s.DeletedOp)
		}
	case Note:
		for _, s := range delta.NoteChars {
			if n, ok := d.Note.nodes[s.ID]; ok {
				if n.DeletedOp.Less(s.DeletedOp) {
					n.Deleted, n.DeletedOp = s.Deleted, s.DeletedOp
				}
			} else {
				d.Note.nodes[s.ID] = &charNode{ID: s.ID, After: s.After, Rune: s.Rune, Deleted: s.Deleted, DeletedOp: s.DeletedOp}
			}
			d.Observe(s.ID)
			d.Observe(s.DeletedOp)
		}
	}
	return nil
}
