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

// charNode is one character of a replicated-text object, RGA-ordered the
// same way list elements are. Character granularity keeps merges exact
// at the cost of one node per rune; note bodies are short enough (single
// Markdown files, not whole manuscripts) that this is not a concern.
type charNode struct {
	ID        OpID
	After     OpID
	Rune      rune
	Deleted   bool
	DeletedOp OpID // stamp of the delete op; zero value while live
}

// Text is the single replicated-text object every note document exposes
// at the fixed key "content".
type Text struct {
	clock *Clock
	nodes map[OpID]*charNode
}

func NewText(deviceID string) *Text {
	return &Text{clock: NewClock(deviceID), nodes: make(map[OpID]*charNode)}
}

// InsertRune inserts r immediately after afterID (zero value = document start).
func (t *Text) InsertRune(afterID OpID, r rune) OpID {
	id := t.clock.Next()
	t.nodes[id] = &charNode{ID: id, After: afterID, Rune: r}
	return id
}

// DeleteRune tombstones the rune at id.
func (t *Text) DeleteRune(id OpID) {
	if n := t.nodes[id]; n != nil {
		n.Deleted = true
		n.DeletedOp = t.clock.Next()
	}
}

// String renders the live text in visual order.
func (t *Text) String() string {
	ordered := resolveOrder(t.nodes)
	out := make([]rune, 0, len(ordered))
	for _, n := range ordered {
		if !n.Deleted {
			out = append(out, n.Rune)
		}
	}
	return string(out)
}

// Splice replaces the live text with newText by computing a minimal
// rune-level diff against the current rendering and issuing inserts and
// deletes only for the changed span, so concurrent edits elsewhere in
// the note do not get clobbered by a full rewrite.
func (t *Text) Splice(newText string) {
	oldRunes := []rune(t.String())
	newRunes := []rune(newText)

	ordered := resolveOrder(t.nodes)
	live := make([]*charNode, 0, len(ordered))
	for _, n := range ordered {
		if !n.Deleted {
			live = append(live, n)
		}
	}

	prefix := commonPrefixLen(oldRunes, newRunes)
	suffix := commonSuffixLen(oldRunes[prefix:], newRunes[prefix:])

	deleteFrom, deleteTo := prefix, len(oldRunes)-suffix
	for i := deleteFrom; i < deleteTo; i++ {
		live[i].Deleted = true
		live[i].DeletedOp = t.clock.Next()
	}

	insertAfter := OpID{}
	if prefix > 0 {
		insertAfter = live[prefix-1].ID
	}
	insertRunes := newRunes[prefix : len(newRunes)-suffix]
	for _, r := range insertRunes {
		insertAfter = t.InsertRune(insertAfter, r)
	}
}

func commonPrefixLen(a, b []rune) int {
	n := minInt(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func commonSuffixLen(a, b []rune) int {
	n := minInt(len(a), len(b))
	i := 0
	for i < n && a[len(a)-1-i] == b[len(b)-1-i] {
		i++
	}
	return i
}

type charSnapshot struct {
	ID        OpID
	After     OpID
	Rune      rune
	Deleted   bool
	DeletedOp OpID
}

func (t *Text) snapshot() (deviceID string, counter uint64, nodes []charSnapshot) {
	for _, n := range t.nodes {
		nodes = append(nodes, charSnapshot{ID: n.ID, After: n.After, Rune: n.Rune, Deleted: n.Deleted, DeletedOp: n.DeletedOp})
	}
	return t.clock.DeviceID(), t.clock.Counter(), nodes
}

func restoreText(deviceID string, counter uint64, nodes []charSnapshot) *Text {
	t := &Text{clock: RestoreClock(deviceID, counter), nodes: make(map[OpID]*charNode)}
	for _, s := range nodes {
		t.nodes[s.ID] = &charNode{ID: s.ID, After: s.After, Rune: s.Rune, Deleted: s.Deleted, DeletedOp: s.DeletedOp}
	}
	return t
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
