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

// Package onboard implements the four-step device-onboarding handoff:
// a new device requests a provisioning id, an existing device seals
// the master key to the new device's public key and posts the sealed
// blob under that id, the new device polls for it. The relay process
// hosting this package never sees a plaintext master key, only the
// sealed (NaCl box) ciphertext.
package onboard

import (
	"errors"
	"sync"
	"time"

	"github.com/launix-de/lstsync/localstore"
)

var (
	ErrNotFound = errors.New("onboard: provisioning id not found")
	ErrExpired  = errors.New("onboard: provisioning package expired")
	ErrPending  = errors.New("onboard: package not yet delivered")
)

type pendingRequest struct {
	publicKey    [32]byte
	sealedKey    []byte // nil until an existing device packages it
	createdAt    time.Time
	expiresAt    time.Time
}

// Registry holds in-flight provisioning requests. It is intentionally
// not persisted: a provisioning id that outlives a relay restart is
// supposed to expire anyway, and losing it early only costs the user a
// repeated QR scan.
type Registry struct {
	mu  sync.Mutex
	reqs map[string]*pendingRequest

	ttl time.Duration
}

func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Registry{reqs: map[string]*pendingRequest{}, ttl: ttl}
}

// Request starts a new provisioning flow for publicKey and returns the
// opaque id the new device displays as a QR code.
func (r *Registry) Request(publicKey [32]byte) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()

	id := localstore.NewProvisioningID().String()
	now := time.Now()
	r.reqs[id] = &pendingRequest{publicKey: publicKey, createdAt: now, expiresAt: now.Add(r.ttl)}
	return id
}

// PublicKey returns the new device's public key for provisioningID, so
// an existing device can seal the master key to it.
func (r *Registry) PublicKey(provisioningID string) ([32]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()

	req, ok := r.reqs[provisioningID]
	if !ok {
		return [32]byte{}, ErrNotFound
	}
	return req.publicKey, nil
}

// Package stores the sealed master key for provisioningID, submitted by
// an already-onboarded device.
func (r *Registry) Package(provisioningID string, sealedKey []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()

	req, ok := r.reqs[provisioningID]
	if !ok {
		return ErrNotFound
	}
	req.sealedKey = append([]byte(nil), sealedKey...)
	return nil
}

// Poll returns the sealed master key once an existing device has
// packaged it, ErrPending while still waiting, or ErrNotFound for an
// unknown, already-claimed or expired id (expired requests are swept
// before the lookup).
func (r *Registry) Poll(provisioningID string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()

	req, ok := r.reqs[provisioningID]
	if !ok {
		return nil, ErrNotFound
	}
	if req.sealedKey == nil {
		return nil, ErrPending
	}
	// Delivered exactly once: claim it and drop the request so a replay
	// of the poll (or an attacker who learned the id afterwards) gets
	// ErrNotFound, not a second copy of the sealed key.
	delete(r.reqs, provisioningID)
	return req.sealedKey, nil
}

// sweepLocked drops expired requests. Called with mu held.
func (r *Registry) sweepLocked() {
	now := time.Now()
	for id, req := range r.reqs {
		if now.After(req.expiresAt) {
			delete(r.reqs, id)
		}
	}
}
