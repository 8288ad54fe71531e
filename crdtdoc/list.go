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

// Status is a list item's completion state.
type Status string

const (
	Open Status = "open"
	Done Status = "done"
)

// ElemKind distinguishes an ordered element as an item line or a
// category headline; both share the same RGA position space so a
// category and its members interleave correctly on render.
type ElemKind uint8

const (
	ElemItem ElemKind = iota
	ElemCategory
)

// elem is one RGA node: an item or a category header, ordered by the
// insertion-causality + tie-break rule in rga.go. Deleted elements are
// kept as tombstones (Deleted set) so concurrent operations referencing
// them by anchor still resolve.
//
// Position, text, status, and tombstone state are each their own
// last-writer-wins register, stamped with the OpID of whichever op last
// set them (initially the creation op). A plain SetStatus-after-SetText
// mutation would otherwise reuse the node's original creation OpID
// forever, which makes it invisible to ExtractSince once that creation
// op has been incorporated into a peer's Heads: the peer would never
// see the edit. Stamping each field separately means an edit is always
// "new" from the perspective of whichever Heads haven't seen that
// field's stamp yet, regardless of how old the node itself is.
type elem struct {
	ID OpID

	After   OpID // the ID of the element this was inserted after; zero value means "list head"
	AfterOp OpID // stamp of the op that last set After

	Kind   ElemKind
	Anchor string // stable anchor token; empty for category headers
	Name   string // category name, when Kind == ElemCategory

	Text   string
	TextOp OpID // stamp of the op that last set Text

	Status   Status
	StatusOp OpID // stamp of the op that last set Status

	Deleted   bool
	DeletedOp OpID // stamp of the delete op; zero value while live
}

// ListDoc is the ordered-sequence CRDT backing a list-flavored Markdown
// file: items plus interleaved category headers, addressed by anchor so
// concurrent edits to the same line merge instead of duplicating it.
type ListDoc struct {
	clock      *Clock
	elems      map[OpID]*elem
	byAnchor   map[string]OpID
	byCategory map[string]OpID
}

func NewListDoc(deviceID string) *ListDoc {
	return &ListDoc{
		clock:      NewClock(deviceID),
		elems:      make(map[OpID]*elem),
		byAnchor:   make(map[string]OpID),
		byCategory: make(map[string]OpID),
	}
}

// InsertItem adds a new item with anchor after the element identified by
// afterID (zero value = insert at the head of the list).
func (d *ListDoc) InsertItem(afterID OpID, anchor, text string, status Status) OpID {
	id := d.clock.Next()
	e := &elem{
		ID: id, After: afterID, AfterOp: id, Kind: ElemItem, Anchor: anchor,
		Text: text, TextOp: id, Status: status, StatusOp: id,
	}
	d.insert(e)
	return id
}

// InsertCategory adds a new category headline after afterID.
func (d *ListDoc) InsertCategory(afterID OpID, name string) OpID {
	id := d.clock.Next()
	e := &elem{ID: id, After: afterID, AfterOp: id, Kind: ElemCategory, Name: name}
	d.insert(e)
	return id
}

func (d *ListDoc) insert(e *elem) {
	d.elems[e.ID] = e
	if e.Kind == ElemItem {
		d.byAnchor[e.Anchor] = e.ID
	} else {
		d.byCategory[e.Name] = e.ID
	}
}

// SetText updates the text of the item at anchor, a no-op if the anchor
// is unknown or has been deleted.
func (d *ListDoc) SetText(anchor, text string) {
	if id, ok := d.byAnchor[anchor]; ok {
		if e := d.elems[id]; e != nil && !e.Deleted {
			e.Text = text
			e.TextOp = d.clock.Next()
		}
	}
}

func (d *ListDoc) SetStatus(anchor string, status Status) {
	if id, ok := d.byAnchor[anchor]; ok {
		if e := d.elems[id]; e != nil && !e.Deleted {
			e.Status = status
			e.StatusOp = d.clock.Next()
		}
	}
}

// Delete tombstones the item at anchor. The tombstone keeps its anchor,
// but ByAnchor and IDOf stop reporting it, so a later InsertItem with the
// same anchor creates a new element that takes the anchor over.
func (d *ListDoc) Delete(anchor string) {
	if id, ok := d.byAnchor[anchor]; ok {
		if e := d.elems[id]; e != nil {
			e.Deleted = true
			e.DeletedOp = d.clock.Next()
		}
	}
}

// IDOf returns the OpID of the live element at anchor, used by the
// codec to position subsequent inserts relative to an already-matched
// line during a diff.
func (d *ListDoc) IDOf(anchor string) (OpID, bool) {
	id, ok := d.byAnchor[anchor]
	if !ok {
		return OpID{}, false
	}
	if e := d.elems[id]; e == nil || e.Deleted {
		return OpID{}, false
	}
	return id, true
}

// MoveAfter repositions the live item at anchor to directly follow
// afterID. Concurrent moves of the same item on two devices are last-
// writer-wins by AfterOp stamp: Apply keeps whichever move has the
// higher OpID, independent of delivery order; this is a deliberate
// simplification (recorded as an accepted trade-off) since reordering
// is rare compared to text/status edits.
func (d *ListDoc) MoveAfter(anchor string, afterID OpID) {
	if id, ok := d.byAnchor[anchor]; ok {
		if e := d.elems[id]; e != nil && !e.Deleted {
			e.After = afterID
			e.AfterOp = d.clock.Next()
		}
	}
}

// CategoryIDOf returns the OpID of the live category header named name.
func (d *ListDoc) CategoryIDOf(name string) (OpID, bool) {
	id, ok := d.byCategory[name]
	if !ok {
		return OpID{}, false
	}
	if e := d.elems[id]; e == nil || e.Deleted {
		return OpID{}, false
	}
	return id, true
}

// MoveCategoryAfter repositions the category header named name to
// directly follow afterID, same trade-off as MoveAfter.
func (d *ListDoc) MoveCategoryAfter(name string, afterID OpID) {
	if id, ok := d.byCategory[name]; ok {
		if e := d.elems[id]; e != nil && !e.Deleted {
			e.After = afterID
			e.AfterOp = d.clock.Next()
		}
	}
}

// ByAnchor returns the live item at anchor, if any.
func (d *ListDoc) ByAnchor(anchor string) (Item, bool) {
	id, ok := d.byAnchor[anchor]
	if !ok {
		return Item{}, false
	}
	e := d.elems[id]
	if e == nil || e.Deleted {
		return Item{}, false
	}
	return Item{Anchor: e.Anchor, Text: e.Text, Status: e.Status}, true
}

// Item is the read-only view of a live list element.
type Item struct {
	Anchor string
	Text   string
	Status Status
}

// Line is one rendered element, item or category.
type Line struct {
	Kind   ElemKind
	Anchor string
	Name   string
	Text   string
	Status Status
}

// elemSnapshot flattens an elem for serialization, since OpID can't be a
// JSON map key.
type elemSnapshot struct {
	ID OpID

	After   OpID
	AfterOp OpID

	Kind   ElemKind
	Anchor string
	Name   string

	Text   string
	TextOp OpID

	Status   Status
	StatusOp OpID

	Deleted   bool
	DeletedOp OpID
}

func (d *ListDoc) snapshot() (deviceID string, counter uint64, elems []elemSnapshot) {
	for _, e := range d.elems {
		elems = append(elems, elemSnapshot{
			ID: e.ID, After: e.After, AfterOp: e.AfterOp, Kind: e.Kind, Anchor: e.Anchor,
			Name: e.Name, Text: e.Text, TextOp: e.TextOp, Status: e.Status, StatusOp: e.StatusOp,
			Deleted: e.Deleted, DeletedOp: e.DeletedOp,
		})
	}
	return d.clock.DeviceID(), d.clock.Counter(), elems
}

func restoreListDoc(deviceID string, counter uint64, elems []elemSnapshot) *ListDoc {
	d := &ListDoc{
		clock:      RestoreClock(deviceID, counter),
		elems:      make(map[OpID]*elem),
		byAnchor:   make(map[string]OpID),
		byCategory: make(map[string]OpID),
	}
	for _, s := range elems {
		e := &elem{
			ID: s.ID, After: s.After, AfterOp: s.AfterOp, Kind: s.Kind, Anchor: s.Anchor,
			Name: s.Name, Text: s.Text, TextOp: s.TextOp, Status: s.Status, StatusOp: s.StatusOp,
			Deleted: s.Deleted, DeletedOp: s.DeletedOp,
		}
		d.elems[e.ID] = e
		if e.Kind == ElemItem {
			d.byAnchor[e.Anchor] = e.ID
		} else {
			d.byCategory[e.Name] = e.ID
		}
	}
	return d
}

// Lines returns the document's live elements in visual order: the RGA
// list order, derived by walking each element's causal position and
// breaking concurrent-insert-at-same-spot ties by OpID, skipping
// tombstones.
func (d *ListDoc) Lines() []Line {
	ordered := resolveOrder(d.elems)
	out := make([]Line, 0, len(ordered))
	for _, e := range ordered {
		if e.Deleted {
			continue
		}
		out = append(out, Line{Kind: e.Kind, Anchor: e.Anchor, Name: e.Name, Text: e.Text, Status: e.Status})
	}
	return out
}
