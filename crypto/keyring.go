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

package crypto

import "sync"

// KeyState mirrors the storage engine's SharedState: COLD means the
// master key has not been loaded from disk yet, SHARED means it is
// resident and safe to read concurrently, WRITE means a caller is
// replacing it (key rotation) and holds exclusive access.
type KeyState uint8

const (
	KeyCold   KeyState = 0
	KeyShared KeyState = 1
	KeyWrite  KeyState = 2
)

// Keyring lazily loads the master key on first use and zeroes it from
// memory on Close, rather than keeping it resident (and swappable to
// disk by the OS) for the whole process lifetime.
type Keyring struct {
	mu    sync.RWMutex
	state KeyState
	key   MasterKey
	load  func() (MasterKey, error)
}

// NewKeyring wraps load, which is called the first time Get is called
// (and again on a later Get only if it returned an error; after a
// successful load it is not called again until Close), to actually fetch
// the master key (from the OS keychain,
// a passphrase-derived KEK, or wherever the daemon's config points).
func NewKeyring(load func() (MasterKey, error)) *Keyring {
	return &Keyring{load: load}
}

func (k *Keyring) GetState() KeyState {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.state
}

// Get returns the master key, loading it on first call. The returned
// release function must be called when the caller is done using the key.
func (k *Keyring) Get() (MasterKey, func(), error) {
	k.mu.RLock()
	if k.state != KeyCold {
		key := k.key
		return key, k.mu.RUnlock, nil
	}
	k.mu.RUnlock()

	k.mu.Lock()
	if k.state == KeyCold {
		key, err := k.load()
		if err != nil {
			k.mu.Unlock()
			return MasterKey{}, func() {}, err
		}
		k.key = key
		k.state = KeyShared
	}
	key := k.key
	k.mu.Unlock()
	k.mu.RLock()
	return key, k.mu.RUnlock, nil
}

// Rotate replaces the master key with newKey under an exclusive lock,
// used after a device revocation forces re-keying.
func (k *Keyring) Rotate(newKey MasterKey) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.state = KeyWrite
	k.key = newKey
	k.state = KeyShared
}

// Close zeroes the resident key so it does not linger in process memory
// (or a core dump) after shutdown.
func (k *Keyring) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for i := range k.key {
		k.key[i] = 0
	}
	k.state = KeyCold
}
