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

// Package crdtdoc holds the replicated data types the codec reads and
// writes: an anchor-addressed ordered sequence for lists (RGA-style,
// grounded on the Replicated Growable Array pattern) and a single
// replicated-text object for notes. Both converge regardless of the
// order operations are applied in, which is the whole point of syncing
// Markdown files edited concurrently on multiple devices.
package crdtdoc

import "fmt"

// OpID identifies an operation by the device that issued it and that
// device's local logical clock at the time, giving every op a globally
// unique, totally-orderable identity without a central counter.
type OpID struct {
	DeviceID string
	Counter  uint64
}

func (id OpID) String() string {
	return fmt.Sprintf("%s:%d", id.DeviceID, id.Counter)
}

// Less defines the tie-break order RGA uses when two ops were inserted
// at the same position: higher counter wins, device id breaks ties
// between ops issued at the same counter value by different devices
// (which cannot happen for a single well-behaved device, but multiple
// devices racing at the same logical time can produce equal counters
// before their clocks have synchronized).
func (id OpID) Less(other OpID) bool {
	if id.Counter != other.Counter {
		return id.Counter < other.Counter
	}
	return id.DeviceID < other.DeviceID
}

// Clock is a device's local Lamport-style counter: every op it issues
// gets the next value, and observing a remote op with a higher counter
// advances the local clock past it so freshly issued ops still sort after
// anything already seen.
type Clock struct {
	deviceID string
	counter  uint64
}

func NewClock(deviceID string) *Clock {
	return &Clock{deviceID: deviceID}
}

// RestoreClock rebuilds a clock from persisted state, used when loading
// a document back out of the local store.
func RestoreClock(deviceID string, counter uint64) *Clock {
	return &Clock{deviceID: deviceID, counter: counter}
}

func (c *Clock) DeviceID() string { return c.deviceID }
func (c *Clock) Counter() uint64  { return c.counter }

func (c *Clock) Next() OpID {
	c.counter++
	return OpID{DeviceID: c.deviceID, Counter: c.counter}
}

// Observe advances the clock past a remote op's counter so the next
// locally issued op sorts after it.
func (c *Clock) Observe(id OpID) {
	if id.Counter > c.counter {
		c.counter = id.Counter
	}
}

// Heads is a per-device version vector: the highest counter seen from
// each device. It is used to decide which ops a peer still needs. New
// local OpIDs come from Clock, not from Heads, and ops issued locally do
// not advance the local device's own row.
type Heads map[string]uint64

func (h Heads) Clone() Heads {
	out := make(Heads, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Has reports whether op id is already reflected in these heads.
func (h Heads) Has(id OpID) bool {
	return h[id.DeviceID] >= id.Counter
}

// Advance records that id has been incorporated.
func (h Heads) Advance(id OpID) {
	if id.Counter > h[id.DeviceID] {
		h[id.DeviceID] = id.Counter
	}
}
