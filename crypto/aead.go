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

// Package crypto wraps the two primitives the rest of the daemon and
// relay need: a symmetric AEAD for changes and snapshots, encrypted
// under the user's master key, and a sealed-box for onboarding a new
// device to that master key.
package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrTampered is returned by Open when authentication fails, covering
// both bit-flips in transit and a wrong or rotated master key.
var ErrTampered = errors.New("crypto: ciphertext failed authentication")

// MasterKey is the 32-byte symmetric key every change and snapshot is
// encrypted under. It never leaves the device except sealed to a new
// device's public key during onboarding.
type MasterKey [chacha20poly1305.KeySize]byte

// Seal encrypts plaintext under key using XChaCha20-Poly1305, which
// tolerates a random 24-byte nonce without a birthday-bound collision
// risk across a device's whole lifetime the way the 12-byte ChaCha20
// nonce would not. aad is bound into the tag but not encrypted (the
// doc_id, so a ciphertext can never be replayed against a different
// document).
func Seal(key MasterKey, plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: init aead: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: read nonce: %w", err)
	}
	out := aead.Seal(nonce, nonce, plaintext, aad)
	return out, nil
}

// Open decrypts a blob produced by Seal with the same key and aad.
func Open(key MasterKey, ciphertext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: init aead: %w", err)
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, ErrTampered
	}
	nonce, body := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, body, aad)
	if err != nil {
		return nil, ErrTampered
	}
	return plaintext, nil
}

// NewMasterKey generates a fresh random master key for first-run setup.
func NewMasterKey() (MasterKey, error) {
	var key MasterKey
	if _, err := rand.Read(key[:]); err != nil {
		return key, fmt.Errorf("crypto: generate master key: %w", err)
	}
	return key, nil
}
