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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	key, err := NewMasterKey()
	require.NoError(t, err)

	ciphertext, err := Seal(key, []byte("buy milk"), []byte("doc-42"))
	require.NoError(t, err)

	plaintext, err := Open(key, ciphertext, []byte("doc-42"))
	require.NoError(t, err)
	assert.Equal(t, []byte("buy milk"), plaintext)
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	key, err := NewMasterKey()
	require.NoError(t, err)

	ciphertext, err := Seal(key, []byte("buy milk"), []byte("doc-42"))
	require.NoError(t, err)
	ciphertext[len(ciphertext)-1] ^= 0xFF

	_, err = Open(key, ciphertext, []byte("doc-42"))
	assert.ErrorIs(t, err, ErrTampered)
}

func TestOpenRejectsMismatchedAAD(t *testing.T) {
	key, err := NewMasterKey()
	require.NoError(t, err)

	ciphertext, err := Seal(key, []byte("buy milk"), []byte("doc-42"))
	require.NoError(t, err)

	_, err = Open(key, ciphertext, []byte("doc-99"))
	assert.ErrorIs(t, err, ErrTampered)
}

func TestOpenRejectsWrongKey(t *testing.T) {
	key, err := NewMasterKey()
	require.NoError(t, err)
	other, err := NewMasterKey()
	require.NoError(t, err)

	ciphertext, err := Seal(key, []byte("buy milk"), []byte("doc-42"))
	require.NoError(t, err)

	_, err = Open(other, ciphertext, []byte("doc-42"))
	assert.ErrorIs(t, err, ErrTampered)
}

func TestSealedBoxOnboardingRoundTrip(t *testing.T) {
	newDevice, err := NewKeyPair()
	require.NoError(t, err)

	masterKey, err := NewMasterKey()
	require.NoError(t, err)

	sealed, err := SealMasterKey(masterKey, newDevice.Public)
	require.NoError(t, err)

	recovered, err := OpenMasterKey(sealed, newDevice)
	require.NoError(t, err)
	assert.Equal(t, masterKey, recovered)
}

func TestSealedBoxRejectsWrongRecipient(t *testing.T) {
	newDevice, err := NewKeyPair()
	require.NoError(t, err)
	wrongDevice, err := NewKeyPair()
	require.NoError(t, err)

	masterKey, err := NewMasterKey()
	require.NoError(t, err)

	sealed, err := SealMasterKey(masterKey, newDevice.Public)
	require.NoError(t, err)

	_, err = OpenMasterKey(sealed, wrongDevice)
	assert.ErrorIs(t, err, ErrTampered)
}

func TestKeyringLoadsLazilyOnce(t *testing.T) {
	want, err := NewMasterKey()
	require.NoError(t, err)

	loads := 0
	kr := NewKeyring(func() (MasterKey, error) {
		loads++
		return want, nil
	})

	assert.Equal(t, KeyCold, kr.GetState())

	got, release, err := kr.Get()
	require.NoError(t, err)
	release()
	assert.Equal(t, want, got)
	assert.Equal(t, KeyShared, kr.GetState())

	_, release2, err := kr.Get()
	require.NoError(t, err)
	release2()
	assert.Equal(t, 1, loads)
}

func TestKeyringCloseZeroesKey(t *testing.T) {
	want, err := NewMasterKey()
	require.NoError(t, err)
	kr := NewKeyring(func() (MasterKey, error) { return want, nil })

	_, release, err := kr.Get()
	require.NoError(t, err)
	release()

	kr.Close()
	assert.Equal(t, KeyCold, kr.GetState())
	assert.Equal(t, MasterKey{}, kr.key)
}
