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

// Package syncengine turns watcher events into pushes and transport
// messages into local writes, maintaining the per-document state
// machine and the at-most-once write-back guarantee (a remotely applied
// change is never pushed back out as if it were a local edit).
package syncengine

import (
	"sync"

	"github.com/google/uuid"
)

// State is one document's position in the Unknown -> Local -> Syncing
// <-> Synced machine, with the auxiliary ConflictQuarantine reachable
// from any state after repeated AEAD failures.
type State int

const (
	Unknown State = iota
	Local
	Syncing
	Synced
	ConflictQuarantine
)

func (s State) String() string {
	switch s {
	case Local:
		return "local"
	case Syncing:
		return "syncing"
	case Synced:
		return "synced"
	case ConflictQuarantine:
		return "conflict_quarantine"
	default:
		return "unknown"
	}
}

const maxConsecutiveAEADFailures = 3

// docTracker holds the per-document runtime state the engine needs
// beyond what's durable in the Local Store: current State and the
// consecutive-AEAD-failure counter that trips ConflictQuarantine.
type docTracker struct {
	mu                sync.Mutex
	states            map[uuid.UUID]State
	aeadFailureCounts map[uuid.UUID]int
}

func newDocTracker() *docTracker {
	return &docTracker{
		states:            map[uuid.UUID]State{},
		aeadFailureCounts: map[uuid.UUID]int{},
	}
}

func (t *docTracker) get(docID uuid.UUID) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[docID]
}

func (t *docTracker) set(docID uuid.UUID, s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[docID] = s
}

// transition moves docID to the target state unless it is already in
// ConflictQuarantine, which only re-onboarding can clear.
func (t *docTracker) transition(docID uuid.UUID, target State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.states[docID] == ConflictQuarantine {
		return
	}
	t.states[docID] = target
}

// recordAEADFailure increments docID's consecutive-failure counter and
// reports whether it has now tripped into ConflictQuarantine.
func (t *docTracker) recordAEADFailure(docID uuid.UUID) (quarantined bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.aeadFailureCounts[docID]++
	if t.aeadFailureCounts[docID] >= maxConsecutiveAEADFailures {
		t.states[docID] = ConflictQuarantine
		return true
	}
	return false
}

func (t *docTracker) resetAEADFailures(docID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.aeadFailureCounts[docID] = 0
}
