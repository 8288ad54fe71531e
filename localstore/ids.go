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

package localstore

import (
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DocIDFor derives the deterministic document identity for a
// POSIX-normalized path relative to the content root, as
// UUIDv5(NAMESPACE_URL, "lst://" + rel_path), so that two daemons
// pointed at the same rel_path independently compute the same doc_id
// without ever talking to each other first. It must never be called
// with an absolute path: two devices with different home directories
// would then mint different ids for the same document.
func DocIDFor(relPath string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("lst://"+relPath))
}

var idCounter uint64 = uint64(time.Now().UnixNano())

// newRandomID returns a UUIDv4-like identifier without blocking on
// crypto/rand, used for device_id and provisioning_id generation where
// low-entropy startup stalls (first boot, containers, VMs) would
// otherwise be user-visible and cryptographic unguessability is not
// required (both ids are communicated openly during onboarding).
func newRandomID() uuid.UUID {
	ctr := atomic.AddUint64(&idCounter, 1)
	now := uint64(time.Now().UnixNano())
	var b [16]byte
	binary.LittleEndian.PutUint64(b[0:8], ctr)
	binary.LittleEndian.PutUint64(b[8:16], ctr^now^(now<<17))
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return uuid.UUID(b)
}

// NewDeviceID returns a fresh random device_id for first-run provisioning.
func NewDeviceID() uuid.UUID {
	return newRandomID()
}

// NewProvisioningID returns a fresh random, short-lived id handed out by
// the relay's /api/provision/request endpoint and displayed as a QR code.
func NewProvisioningID() uuid.UUID {
	return newRandomID()
}
