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

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// KeyPair is a device's onboarding keypair: public is shown (as a QR
// code) to whatever device is granting access, private decrypts the
// sealed master key that comes back.
type KeyPair struct {
	Public  [32]byte
	Private [32]byte
}

// NewKeyPair generates a fresh onboarding keypair for a new device.
func NewKeyPair() (KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("crypto: generate keypair: %w", err)
	}
	return KeyPair{Public: *pub, Private: *priv}, nil
}

// SealMasterKey encrypts key to recipientPublicKey using an anonymous
// sealed-box: only the new device's private key can open it, and not
// even the sender can be identified from the ciphertext, which is what
// lets the relay relay it without learning anything.
func SealMasterKey(key MasterKey, recipientPublicKey [32]byte) ([]byte, error) {
	sealed, err := box.SealAnonymous(nil, key[:], &recipientPublicKey, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: seal master key: %w", err)
	}
	return sealed, nil
}

// OpenMasterKey decrypts a sealed-box produced by SealMasterKey using
// this device's own keypair.
func OpenMasterKey(sealed []byte, kp KeyPair) (MasterKey, error) {
	var key MasterKey
	opened, ok := box.OpenAnonymous(nil, sealed, &kp.Public, &kp.Private)
	if !ok {
		return key, ErrTampered
	}
	if len(opened) != len(key) {
		return key, fmt.Errorf("crypto: unexpected master key length %d", len(opened))
	}
	copy(key[:], opened)
	return key, nil
}
