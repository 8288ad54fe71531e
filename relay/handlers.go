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
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/launix-de/lstsync/relaystore"
	"github.com/launix-de/lstsync/transport"
)

const requestChangesBatchSize = 256

func (s *Server) handle(ctx context.Context, conn *connection, env transport.Envelope) error {
	switch env.Type {
	case transport.TypePushChanges:
		return s.handlePushChanges(ctx, conn, env)
	case transport.TypePushSnapshot:
		return s.handlePushSnapshot(ctx, conn, env)
	case transport.TypeRequestDocumentList:
		return s.handleRequestDocumentList(ctx, conn)
	case transport.TypeRequestChanges:
		return s.handleRequestChanges(ctx, conn, env)
	case transport.TypeRequestSnapshot:
		return s.handleRequestSnapshot(ctx, conn, env)
	case transport.TypeAckChanges:
		return nil // hint only, no correctness dependency
	default:
		return fmt.Errorf("relay: unhandled message type %q", env.Type)
	}
}

func (s *Server) handlePushChanges(ctx context.Context, conn *connection, env transport.Envelope) error {
	var msg transport.PushChanges
	if err := transport.Decode(env, &msg); err != nil {
		return err
	}
	docID, err := uuid.Parse(msg.DocID)
	if err != nil {
		return fmt.Errorf("relay: bad doc_id: %w", err)
	}

	if err := s.Store.UpsertDevice(ctx, relaystore.Device{DeviceID: conn.deviceID, UserID: conn.userID}); err != nil {
		return err
	}

	first, last, err := s.Store.PushChanges(ctx, conn.userID, docID, conn.deviceID, msg.Ciphertexts)
	if err != nil {
		return err
	}

	broadcast := transport.NewChanges{
		DocID:        msg.DocID,
		FromDeviceID: conn.deviceID.String(),
		FromChangeID: first,
		ToChangeID:   last,
		Ciphertexts:  msg.Ciphertexts,
	}
	if bEnv, err := transport.Encode(transport.TypeNewChanges, broadcast); err == nil {
		s.hub.broadcastExcept(conn.userID, conn, bEnv)
	}

	s.maybeTriggerCompaction(ctx, conn.userID, docID, last)
	return nil
}

func (s *Server) handlePushSnapshot(ctx context.Context, conn *connection, env transport.Envelope) error {
	var msg transport.PushSnapshot
	if err := transport.Decode(env, &msg); err != nil {
		return err
	}
	docID, err := uuid.Parse(msg.DocID)
	if err != nil {
		return fmt.Errorf("relay: bad doc_id: %w", err)
	}
	if err := s.Store.PushSnapshot(ctx, conn.userID, docID, msg.EncSnapshot, msg.CutoffID); err != nil {
		return err
	}
	if s.Archive != nil {
		key := fmt.Sprintf("%s/%s/%d", conn.userID, docID, msg.CutoffID)
		// Best-effort long-term archival: a failure here must not
		// undo the snapshot compaction that already landed in Store.
		_ = s.Archive.Put(ctx, key, msg.EncSnapshot)
	}
	return nil
}

func (s *Server) handleRequestDocumentList(ctx context.Context, conn *connection) error {
	docs, err := s.Store.RequestDocumentList(ctx, conn.userID)
	if err != nil {
		return err
	}
	entries := make([]transport.DocumentListEntry, 0, len(docs))
	for _, d := range docs {
		entries = append(entries, transport.DocumentListEntry{
			DocID:       d.DocID.String(),
			HasSnapshot: d.HasSnapshot,
			MaxChangeID: d.MaxChangeID,
			EncFilename: d.EncFilename,
		})
	}
	return conn.sess.Send(transport.TypeDocumentList, transport.DocumentList{Documents: entries})
}

func (s *Server) handleRequestChanges(ctx context.Context, conn *connection, env transport.Envelope) error {
	var msg transport.RequestChanges
	if err := transport.Decode(env, &msg); err != nil {
		return err
	}
	docID, err := uuid.Parse(msg.DocID)
	if err != nil {
		return fmt.Errorf("relay: bad doc_id: %w", err)
	}
	changes, err := s.Store.RequestChanges(ctx, conn.userID, docID, msg.SinceChangeID, requestChangesBatchSize)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return conn.sess.Send(transport.TypeChanges, transport.Changes{DocID: msg.DocID, FromChangeID: msg.SinceChangeID})
	}
	cts := make([][]byte, len(changes))
	for i, c := range changes {
		cts[i] = c.EncChange
	}
	return conn.sess.Send(transport.TypeChanges, transport.Changes{
		DocID:        msg.DocID,
		FromChangeID: changes[0].ChangeID,
		Ciphertexts:  cts,
	})
}

func (s *Server) handleRequestSnapshot(ctx context.Context, conn *connection, env transport.Envelope) error {
	var msg transport.RequestSnapshot
	if err := transport.Decode(env, &msg); err != nil {
		return err
	}
	docID, err := uuid.Parse(msg.DocID)
	if err != nil {
		return fmt.Errorf("relay: bad doc_id: %w", err)
	}
	snap, err := s.Store.RequestSnapshot(ctx, conn.userID, docID)
	if err == relaystore.ErrNotFound {
		return conn.sess.Send(transport.TypeSnapshot, transport.Snapshot{DocID: msg.DocID, Found: false})
	}
	if err != nil {
		return err
	}
	return conn.sess.Send(transport.TypeSnapshot, transport.Snapshot{DocID: msg.DocID, EncSnapshot: snap, Found: true})
}

// maybeTriggerCompaction asks a currently-connected session of userID to
// compact docID once its pending (un-snapshotted) change count reaches
// the configured threshold. This is advisory and fire-and-forget: the
// relay does not wait for a PushSnapshot reply. If no session is
// connected nothing is sent; every later PushChanges on this doc checks
// the threshold again and, while it is still reached, sends another
// RequestCompaction.
func (s *Server) maybeTriggerCompaction(ctx context.Context, userID string, docID uuid.UUID, _ uint64) {
	pending, err := s.Store.RequestChanges(ctx, userID, docID, 0, 0)
	if err != nil || len(pending) < s.CompactionThreshold {
		return
	}
	target := s.hub.anyConnection(userID)
	if target == nil {
		return
	}
	_ = target.sess.Send(transport.TypeRequestCompaction, transport.RequestCompaction{DocID: docID.String()})
}
