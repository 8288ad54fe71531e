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

// Package localstore is the device-local durable mapping of rel_path to
// doc_id plus per-document CRDT state, backed by a single embedded
// bbolt database so the daemon never needs an external dependency to
// remember what it has already synced.
package localstore

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pierrec/lz4/v4"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketDocuments = []byte("documents") // rel_path -> doc_id
	bucketDocState  = []byte("doc_state") // doc_id -> DocState (json)
	bucketCRDTBlobs = []byte("crdt_blobs") // doc_id -> lz4(crdt bytes)
	bucketDevices   = []byte("devices")    // "self" -> DeviceIdentity (json)
)

// DocKind distinguishes the two content flavors the codec understands.
type DocKind string

const (
	KindList DocKind = "list"
	KindNote DocKind = "note"
)

// DocState is the small per-document bookkeeping record kept alongside
// the (much larger, compressed) CRDT blob.
type DocState struct {
	Kind             DocKind `json:"kind"`
	LastSyncHash     string  `json:"last_sync_hash"`
	LastSeenChangeID uint64  `json:"last_seen_change_id"`
}

// DeviceIdentity is this daemon's own stable identity, generated once on
// first run and never silently rotated.
type DeviceIdentity struct {
	DeviceID  uuid.UUID `json:"device_id"`
	PublicKey []byte    `json:"public_key"`
}

// Store is the device-local persistence surface. All methods are safe
// for concurrent use; bbolt serializes writers internally.
type Store struct {
	db *bolt.DB
}

// Open creates or opens the bbolt database at path, creating buckets as
// needed.
func Open(path string) (*Store, error) {
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("localstore: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketDocuments, bucketDocState, bucketCRDTBlobs, bucketDevices} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("localstore: create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	return mkdirAll(dir)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ResolveDocID implements the document identity rule: look up rel_path
// first; if absent, derive doc_id = UUIDv5(NAMESPACE_URL, "lst://"+rel_path)
// and insert the mapping. Returns the doc_id and whether it was newly
// created.
func (s *Store) ResolveDocID(relPath string, kind DocKind) (uuid.UUID, bool, error) {
	var id uuid.UUID
	created := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		docs := tx.Bucket(bucketDocuments)
		if existing := docs.Get([]byte(relPath)); existing != nil {
			parsed, err := uuid.FromBytes(existing)
			if err != nil {
				return err
			}
			id = parsed
			return nil
		}
		id = DocIDFor(relPath)
		if err := docs.Put([]byte(relPath), id[:]); err != nil {
			return err
		}
		state := DocState{Kind: kind}
		encoded, err := json.Marshal(state)
		if err != nil {
			return err
		}
		created = true
		return tx.Bucket(bucketDocState).Put(id[:], encoded)
	})
	return id, created, err
}

// AdoptServerDocID persists a doc_id handed down by the server when it
// differs from the locally derived value, per the document identity
// rule's tie-break (the server's doc_id wins).
func (s *Store) AdoptServerDocID(relPath string, docID uuid.UUID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDocuments).Put([]byte(relPath), docID[:])
	})
}

// RelPathFor reverse-looks-up the rel_path owning docID, used when a
// remote snapshot arrives for a document this device has never observed
// on disk yet.
func (s *Store) RelPathFor(docID uuid.UUID) (string, bool, error) {
	var relPath string
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDocuments).ForEach(func(k, v []byte) error {
			if found {
				return nil
			}
			if uuid.UUID(v) == docID {
				relPath = string(k)
				found = true
			}
			return nil
		})
	})
	return relPath, found, err
}

func (s *Store) GetDocState(docID uuid.UUID) (DocState, bool, error) {
	var state DocState
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketDocState).Get(docID[:])
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &state)
	})
	return state, found, err
}

func (s *Store) PutDocState(docID uuid.UUID, state DocState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDocState).Put(docID[:], data)
	})
}

// PutCRDTState compresses blob with lz4 before writing it, since CRDT
// encodings carry repeated structure (anchors, tombstones) that
// compresses well and local disk I/O, not CPU, is the bottleneck on
// typical end-user hardware.
func (s *Store) PutCRDTState(docID uuid.UUID, blob []byte) error {
	compressed := make([]byte, lz4.CompressBlockBound(len(blob)))
	var c lz4.Compressor
	n, err := c.CompressBlock(blob, compressed)
	if err != nil {
		return fmt.Errorf("localstore: compress crdt state: %w", err)
	}
	framed := encodeFrame(len(blob), compressed[:n])
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCRDTBlobs).Put(docID[:], framed)
	})
}

func (s *Store) GetCRDTState(docID uuid.UUID) ([]byte, bool, error) {
	var framed []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCRDTBlobs).Get(docID[:])
		if data == nil {
			return nil
		}
		framed = append([]byte(nil), data...)
		return nil
	})
	if err != nil || framed == nil {
		return nil, framed != nil, err
	}
	rawLen, compressed := decodeFrame(framed)
	raw := make([]byte, rawLen)
	n, err := lz4.UncompressBlock(compressed, raw)
	if err != nil {
		return nil, true, fmt.Errorf("localstore: decompress crdt state: %w", err)
	}
	return raw[:n], true, nil
}

// encodeFrame prefixes the compressed payload with the uncompressed
// length lz4.UncompressBlock needs to size its destination buffer.
func encodeFrame(rawLen int, compressed []byte) []byte {
	out := make([]byte, 8+len(compressed))
	putUint64(out, uint64(rawLen))
	copy(out[8:], compressed)
	return out
}

func decodeFrame(framed []byte) (int, []byte) {
	return int(getUint64(framed)), framed[8:]
}

// Device returns this daemon's own identity, or ok=false on first run
// before one has been provisioned.
func (s *Store) Device() (DeviceIdentity, bool, error) {
	var id DeviceIdentity
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketDevices).Get([]byte("self"))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &id)
	})
	return id, found, err
}

func (s *Store) PutDevice(id DeviceIdentity) error {
	data, err := json.Marshal(id)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDevices).Put([]byte("self"), data)
	})
}
