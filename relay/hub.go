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

package relay

import (
	"sync"

	"github.com/google/uuid"
	"github.com/launix-de/lstsync/transport"
)

// connection is one authenticated session together with the identity
// the hub needs to route broadcasts and compaction requests to it.
type connection struct {
	sess     *transport.Session
	userID   string
	deviceID uuid.UUID
}

// hub tracks every currently-connected session, grouped by user, so a
// PushChanges from one device can broadcast NewChanges to the user's
// other sessions and so RequestCompaction can be aimed at any one
// connected client.
type hub struct {
	mu    sync.Mutex
	byUser map[string]map[*connection]struct{}
}

func newHub() *hub {
	return &hub{byUser: map[string]map[*connection]struct{}{}}
}

func (h *hub) add(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.byUser[c.userID]
	if !ok {
		set = map[*connection]struct{}{}
		h.byUser[c.userID] = set
	}
	set[c] = struct{}{}
}

func (h *hub) remove(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.byUser[c.userID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.byUser, c.userID)
	}
}

// broadcastExcept sends env to every connected session of userID other
// than except.
func (h *hub) broadcastExcept(userID string, except *connection, env transport.Envelope) {
	h.mu.Lock()
	var targets []*connection
	for c := range h.byUser[userID] {
		if c != except {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.sess.WriteEnvelope(env)
	}
}

// anyConnection returns an arbitrary connected session for userID, used
// to pick a compaction responder.
func (h *hub) anyConnection(userID string) *connection {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.byUser[userID] {
		return c
	}
	return nil
}
