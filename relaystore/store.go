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

// Package relaystore is the relay server's metadata store: the
// document registry, the append-only per-document change log, and the
// device registry used for revocation. It never sees plaintext; every
// ciphertext column is opaque bytes as far as this package is concerned.
package relaystore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("relaystore: not found")

// DocumentSummary is what RequestDocumentList answers with: enough to
// let a client decide what it still needs.
type DocumentSummary struct {
	DocID       uuid.UUID
	HasSnapshot bool
	MaxChangeID uint64
	EncFilename []byte
}

// Change is one append-only entry in a document's change log.
type Change struct {
	DocID     uuid.UUID
	ChangeID  uint64
	DeviceID  uuid.UUID
	EncChange []byte
	CreatedAt time.Time
}

// Device is a record of a device that has ever pushed changes for a
// user, kept so onboarding can detect a second device impersonating an
// existing identity and so an operator can revoke a lost device.
type Device struct {
	DeviceID  uuid.UUID
	UserID    string
	PublicKey []byte
	Revoked   bool
	CreatedAt time.Time
}

// Store is the relay's pluggable metadata backend. Implementations:
// bbolt (default, single-node), Postgres and MySQL (via the same
// interface, for operators who already run a managed database).
type Store interface {
	// PushChanges appends each ciphertext for docID, assigning
	// increasing change_ids, and returns the range assigned.
	PushChanges(ctx context.Context, userID string, docID uuid.UUID, deviceID uuid.UUID, ciphertexts [][]byte) (firstID, lastID uint64, err error)

	// PushSnapshot atomically replaces the snapshot for docID and
	// prunes every change with change_id <= cutoff.
	PushSnapshot(ctx context.Context, userID string, docID uuid.UUID, encSnapshot []byte, cutoff uint64) error

	// RequestDocumentList returns a summary for every doc owned by userID.
	RequestDocumentList(ctx context.Context, userID string) ([]DocumentSummary, error)

	// RequestChanges streams changes with change_id > sinceChangeID, ordered.
	RequestChanges(ctx context.Context, userID string, docID uuid.UUID, sinceChangeID uint64, limit int) ([]Change, error)

	// RequestSnapshot returns the current snapshot ciphertext, or ErrNotFound.
	RequestSnapshot(ctx context.Context, userID string, docID uuid.UUID) ([]byte, error)

	// SetFilenameHint records the encrypted relative-path hint a new
	// device uses to recreate rel_path for a doc_id it has never seen on
	// disk before, per the "infer rel_path from a server-provided
	// encrypted filename hint" remote-event step. Creates the document
	// row if it does not exist yet.
	SetFilenameHint(ctx context.Context, userID string, docID uuid.UUID, encFilename []byte) error

	// UpsertDevice records a device's public key the first time it is
	// seen, and is a no-op if the device is already known.
	UpsertDevice(ctx context.Context, dev Device) error

	// ListDevices returns every device ever seen for userID.
	ListDevices(ctx context.Context, userID string) ([]Device, error)

	// RevokeDevice marks deviceID as revoked so future pushes from it are rejected.
	RevokeDevice(ctx context.Context, userID string, deviceID uuid.UUID) error

	// IsRevoked reports whether deviceID has been revoked for userID.
	IsRevoked(ctx context.Context, userID string, deviceID uuid.UUID) (bool, error)

	Close() error
}
