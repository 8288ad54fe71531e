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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func anchors(lines []Line) []string {
	var out []string
	for _, l := range lines {
		if l.Kind == ElemItem {
			out = append(out, l.Anchor)
		}
	}
	return out
}

func TestConcurrentInsertsConvergeIdentically(t *testing.T) {
	a := NewListDocument("device-a")
	b := NewListDocument("device-b")

	milk := a.List.InsertItem(OpID{}, "milk1", "Milk", Open)
	bread := b.List.InsertItem(OpID{}, "bred1", "Bread", Open)

	deltaA := a.ExtractSince(Heads{})
	deltaB := b.ExtractSince(Heads{})

	require.NoError(t, a.Apply(deltaB))
	require.NoError(t, b.Apply(deltaA))

	linesA := a.List.Lines()
	linesB := b.List.Lines()
	require.Equal(t, linesA, linesB)

	got := anchors(linesA)
	assert.ElementsMatch(t, []string{"milk1", "bred1"}, got)
	assert.NotEqual(t, milk, bread)
}

func TestApplyingSameDeltaTwiceIsIdempotent(t *testing.T) {
	a := NewListDocument("device-a")
	a.List.InsertItem(OpID{}, "milk1", "Milk", Open)
	delta := a.ExtractSince(Heads{})

	b := NewListDocument("device-b")
	require.NoError(t, b.Apply(delta))
	first := b.List.Lines()

	require.NoError(t, b.Apply(delta))
	second := b.List.Lines()

	assert.Equal(t, first, second)
}

func TestExtractSinceOnlyShipsUnseenNodes(t *testing.T) {
	a := NewListDocument("device-a")
	a.List.InsertItem(OpID{}, "milk1", "Milk", Open)
	first := a.ExtractSince(Heads{})

	b := NewListDocument("device-b")
	require.NoError(t, b.Apply(first))

	a.List.InsertItem(OpID{}, "bred1", "Bread", Open)
	second := a.ExtractSince(b.Heads)
	assert.Len(t, second.ListElems, 1)
	assert.Equal(t, "bred1", second.ListElems[0].Anchor)
}

func TestSetStatusAndDeleteAreReflectedAfterMerge(t *testing.T) {
	a := NewListDocument("device-a")
	a.List.InsertItem(OpID{}, "milk1", "Milk", Open)
	b := NewListDocument("device-b")
	require.NoError(t, b.Apply(a.ExtractSince(Heads{})))

	// b.Heads, not an empty Heads{}, is what ExtractSince would actually
	// be called with in the sync engine: it reflects everything b has
	// already incorporated, including milk1's creation op.
	a.List.SetStatus("milk1", Done)
	require.NoError(t, b.Apply(a.ExtractSince(b.Heads)))

	item, ok := b.List.ByAnchor("milk1")
	require.True(t, ok)
	assert.Equal(t, Done, item.Status)

	a.List.Delete("milk1")
	require.NoError(t, b.Apply(a.ExtractSince(b.Heads)))
	_, ok = b.List.ByAnchor("milk1")
	assert.False(t, ok)
}

// TestEditByNonCreatorDeviceIsShippedAfterCreationIsAlreadyObserved
// guards against a node's creation op being incorporated into a peer's
// Heads (via Apply's Observe on every received op) making a later edit
// to that same node, made by a different device, invisible to
// ExtractSince. Without per-field mutation stamps, b's SetStatus would
// reuse milk1's original creation OpID, which a's Heads already has
// once a received b's copy of the item, so the status flip would never
// be extracted for shipping back to a.
func TestEditByNonCreatorDeviceIsShippedAfterCreationIsAlreadyObserved(t *testing.T) {
	a := NewListDocument("device-a")
	a.List.InsertItem(OpID{}, "milk1", "Milk", Open)

	b := NewListDocument("device-b")
	require.NoError(t, b.Apply(a.ExtractSince(Heads{})))
	// b.Heads["device-a"] is now 1: Apply observed milk1's creation op.

	// Mirrors how the sync engine diffs a local edit: snapshot Heads
	// right before the mutation, then extract against that snapshot.
	headsBeforeEdit := b.Heads.Clone()
	b.List.SetStatus("milk1", Done)

	delta := b.ExtractSince(headsBeforeEdit)
	require.Len(t, delta.ListElems, 1, "b's status edit to a device-a-created item must still be shipped")
	require.NoError(t, a.Apply(delta))

	item, ok := a.List.ByAnchor("milk1")
	require.True(t, ok)
	assert.Equal(t, Done, item.Status)
}

func TestCategoryInterleavesWithItemsInOrder(t *testing.T) {
	d := NewListDocument("device-a")
	first := d.List.InsertItem(OpID{}, "a0001", "Top-level", Open)
	cat := d.List.InsertCategory(first, "Produce")
	d.List.InsertItem(cat, "a0002", "Apples", Open)

	lines := d.List.Lines()
	require.Len(t, lines, 3)
	assert.Equal(t, ElemItem, lines[0].Kind)
	assert.Equal(t, ElemCategory, lines[1].Kind)
	assert.Equal(t, "Produce", lines[1].Name)
	assert.Equal(t, "Apples", lines[2].Text)
}

func TestTextSpliceOnlyTouchesChangedSpan(t *testing.T) {
	text := NewText("device-a")
	text.Splice("hello world")
	assert.Equal(t, "hello world", text.String())

	text.Splice("hello brave world")
	assert.Equal(t, "hello brave world", text.String())
}

func TestConcurrentTextEditsMerge(t *testing.T) {
	a := NewNoteDocument("device-a")
	a.Note.Splice("hello world")
	shared := a.ExtractSince(Heads{})

	b := NewNoteDocument("device-b")
	require.NoError(t, b.Apply(shared))

	a.Note.Splice("hello brave world")
	b.Note.Splice("hello world!")

	deltaA := a.ExtractSince(b.Heads)
	deltaB := b.ExtractSince(a.Heads)
	require.NoError(t, a.Apply(deltaB))
	require.NoError(t, b.Apply(deltaA))

	assert.Equal(t, a.Note.String(), b.Note.String())
}

func TestDocumentMarshalRoundTrip(t *testing.T) {
	d := NewListDocument("device-a")
	d.List.InsertItem(OpID{}, "milk1", "Milk", Open)

	data, err := d.Marshal()
	require.NoError(t, err)

	restored, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, d.List.Lines(), restored.List.Lines())
}
