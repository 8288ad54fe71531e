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

import "github.com/google/btree"

// rgaNode is the shape rga ordering needs from both list elem and text
// rune nodes: an identity, the node it was inserted after, and whether
// it has since been tombstoned (tombstones still occupy a position so
// later concurrent inserts relative to them resolve deterministically).
type rgaNode interface {
	id() OpID
	after() OpID
}

func (e *elem) id() OpID    { return e.ID }
func (e *elem) after() OpID { return e.After }

func (c *charNode) id() OpID    { return c.ID }
func (c *charNode) after() OpID { return c.After }

// resolveOrder linearizes a set of RGA nodes into visual order: each
// node is placed immediately after the node it names in After (zero
// value = document head), and siblings inserted after the same node
// are ordered with the highest OpID first. This is the standard RGA
// traversal: concurrent inserts at one position never interleave with
// each other's causal future, and every replica computes the same
// linearization from the same op set regardless of delivery order.
//
// Each node's sibling group is kept in a btree rather than an
// insertion-sorted slice: a document's longest-lived elements (like a
// category that accumulates hundreds of items after it) otherwise pay
// an O(n) shift on every single insert.
func resolveOrder[T rgaNode](nodes map[OpID]T) []T {
	less := func(a, b T) bool { return b.id().Less(a.id()) } // descending: highest OpID first

	children := make(map[OpID]*btree.BTreeG[T])
	for _, n := range nodes {
		parent := n.after()
		bt, ok := children[parent]
		if !ok {
			bt = btree.NewG[T](32, less)
			children[parent] = bt
		}
		bt.ReplaceOrInsert(n)
	}

	var out []T
	var walk func(OpID)
	walk = func(parent OpID) {
		bt, ok := children[parent]
		if !ok {
			return
		}
		bt.Ascend(func(n T) bool {
			out = append(out, n)
			walk(n.id())
			return true
		})
	}
	walk(OpID{})
	return out
}
