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

package relaystore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketDocuments = []byte("documents")        // userID|docID -> documentRecord
	bucketChanges   = []byte("document_changes") // userID|docID|changeID(8 BE) -> changeRecord
	bucketDevices   = []byte("devices")          // userID|deviceID -> Device
)

type documentRecord struct {
	HasSnapshot bool      `json:"has_snapshot"`
	EncSnapshot []byte    `json:"enc_snapshot,omitempty"`
	EncFilename []byte    `json:"enc_filename,omitempty"`
	MaxChangeID uint64    `json:"max_change_id"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type changeRecord struct {
	ChangeID  uint64    `json:"change_id"`
	DeviceID  uuid.UUID `json:"device_id"`
	EncChange []byte    `json:"enc_change"`
	CreatedAt time.Time `json:"created_at"`
}

// BoltStore is the default single-node relay metadata backend.
type BoltStore struct {
	db *bolt.DB
}

func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("relaystore: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketDocuments, bucketChanges, bucketDevices} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("relaystore: create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func docKey(userID string, docID uuid.UUID) []byte {
	return append([]byte(userID+"|"), docID[:]...)
}

func changePrefix(userID string, docID uuid.UUID) []byte {
	return append([]byte(userID+"|"), docID[:]...)
}

func changeKey(userID string, docID uuid.UUID, changeID uint64) []byte {
	k := changePrefix(userID, docID)
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], changeID)
	return append(append(k, '|'), n[:]...)
}

func deviceKey(userID string, deviceID uuid.UUID) []byte {
	return append([]byte(userID+"|"), deviceID[:]...)
}

func (s *BoltStore) PushChanges(ctx context.Context, userID string, docID uuid.UUID, deviceID uuid.UUID, ciphertexts [][]byte) (uint64, uint64, error) {
	var first, last uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		docs := tx.Bucket(bucketDocuments)
		changes := tx.Bucket(bucketChanges)

		rec, err := getDocumentRecord(docs, userID, docID)
		if err != nil {
			return err
		}
		now := time.Now()
		for i, ct := range ciphertexts {
			rec.MaxChangeID++
			if i == 0 {
				first = rec.MaxChangeID
			}
			last = rec.MaxChangeID
			cr := changeRecord{ChangeID: rec.MaxChangeID, DeviceID: deviceID, EncChange: ct, CreatedAt: now}
			data, err := json.Marshal(cr)
			if err != nil {
				return err
			}
			if err := changes.Put(changeKey(userID, docID, rec.MaxChangeID), data); err != nil {
				return err
			}
		}
		rec.UpdatedAt = now
		return putDocumentRecord(docs, userID, docID, rec)
	})
	return first, last, err
}

func (s *BoltStore) PushSnapshot(ctx context.Context, userID string, docID uuid.UUID, encSnapshot []byte, cutoff uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		docs := tx.Bucket(bucketDocuments)
		rec, err := getDocumentRecord(docs, userID, docID)
		if err != nil {
			return err
		}
		rec.HasSnapshot = true
		rec.EncSnapshot = encSnapshot
		rec.UpdatedAt = time.Now()
		if err := putDocumentRecord(docs, userID, docID, rec); err != nil {
			return err
		}

		changes := tx.Bucket(bucketChanges)
		cur := changes.Cursor()
		prefix := changePrefix(userID, docID)
		var toDelete [][]byte
		for k, _ := cur.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = cur.Next() {
			var cr changeRecord
			data := changes.Get(k)
			if err := json.Unmarshal(data, &cr); err != nil {
				return err
			}
			if cr.ChangeID <= cutoff {
				toDelete = append(toDelete, append([]byte(nil), k...))
			}
		}
		for _, k := range toDelete {
			if err := changes.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) RequestDocumentList(ctx context.Context, userID string) ([]DocumentSummary, error) {
	var out []DocumentSummary
	err := s.db.View(func(tx *bolt.Tx) error {
		docs := tx.Bucket(bucketDocuments)
		cur := docs.Cursor()
		prefix := []byte(userID + "|")
		for k, v := cur.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = cur.Next() {
			var rec documentRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			docID, err := uuid.FromBytes(k[len(prefix):])
			if err != nil {
				return err
			}
			out = append(out, DocumentSummary{DocID: docID, HasSnapshot: rec.HasSnapshot, MaxChangeID: rec.MaxChangeID, EncFilename: rec.EncFilename})
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].DocID.String() < out[j].DocID.String() })
	return out, err
}

func (s *BoltStore) RequestChanges(ctx context.Context, userID string, docID uuid.UUID, sinceChangeID uint64, limit int) ([]Change, error) {
	var out []Change
	err := s.db.View(func(tx *bolt.Tx) error {
		changes := tx.Bucket(bucketChanges)
		cur := changes.Cursor()
		prefix := changePrefix(userID, docID)
		for k, v := cur.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = cur.Next() {
			var cr changeRecord
			if err := json.Unmarshal(v, &cr); err != nil {
				return err
			}
			if cr.ChangeID <= sinceChangeID {
				continue
			}
			out = append(out, Change{DocID: docID, ChangeID: cr.ChangeID, DeviceID: cr.DeviceID, EncChange: cr.EncChange, CreatedAt: cr.CreatedAt})
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ChangeID < out[j].ChangeID })
	return out, err
}

func (s *BoltStore) RequestSnapshot(ctx context.Context, userID string, docID uuid.UUID) ([]byte, error) {
	var snap []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		rec, err := getDocumentRecord(tx.Bucket(bucketDocuments), userID, docID)
		if err != nil {
			return err
		}
		if !rec.HasSnapshot {
			return ErrNotFound
		}
		snap = rec.EncSnapshot
		return nil
	})
	return snap, err
}

func (s *BoltStore) SetFilenameHint(ctx context.Context, userID string, docID uuid.UUID, encFilename []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		docs := tx.Bucket(bucketDocuments)
		rec, err := getDocumentRecord(docs, userID, docID)
		if err != nil {
			return err
		}
		rec.EncFilename = encFilename
		rec.UpdatedAt = time.Now()
		return putDocumentRecord(docs, userID, docID, rec)
	})
}

func (s *BoltStore) UpsertDevice(ctx context.Context, dev Device) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDevices)
		key := deviceKey(dev.UserID, dev.DeviceID)
		if b.Get(key) != nil {
			return nil
		}
		if dev.CreatedAt.IsZero() {
			dev.CreatedAt = time.Now()
		}
		data, err := json.Marshal(dev)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

func (s *BoltStore) ListDevices(ctx context.Context, userID string) ([]Device, error) {
	var out []Device
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDevices)
		cur := b.Cursor()
		prefix := []byte(userID + "|")
		for k, v := cur.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = cur.Next() {
			var dev Device
			if err := json.Unmarshal(v, &dev); err != nil {
				return err
			}
			out = append(out, dev)
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) RevokeDevice(ctx context.Context, userID string, deviceID uuid.UUID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDevices)
		key := deviceKey(userID, deviceID)
		data := b.Get(key)
		if data == nil {
			return ErrNotFound
		}
		var dev Device
		if err := json.Unmarshal(data, &dev); err != nil {
			return err
		}
		dev.Revoked = true
		encoded, err := json.Marshal(dev)
		if err != nil {
			return err
		}
		return b.Put(key, encoded)
	})
}

func (s *BoltStore) IsRevoked(ctx context.Context, userID string, deviceID uuid.UUID) (bool, error) {
	var revoked bool
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketDevices).Get(deviceKey(userID, deviceID))
		if data == nil {
			return nil
		}
		var dev Device
		if err := json.Unmarshal(data, &dev); err != nil {
			return err
		}
		revoked = dev.Revoked
		return nil
	})
	return revoked, err
}

func getDocumentRecord(b *bolt.Bucket, userID string, docID uuid.UUID) (documentRecord, error) {
	var rec documentRecord
	data := b.Get(docKey(userID, docID))
	if data == nil {
		return rec, nil
	}
	return rec, json.Unmarshal(data, &rec)
}

func putDocumentRecord(b *bolt.Bucket, userID string, docID uuid.UUID, rec documentRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.Put(docKey(userID, docID), data)
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

var _ Store = (*BoltStore)(nil)
