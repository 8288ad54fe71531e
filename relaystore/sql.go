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

// sqlStore implements Store against any database/sql driver that speaks
// either Postgres or MySQL placeholder syntax. OpenPostgres (postgres.go)
// and OpenMySQL (mysql.go) differ in driver name, and the dialect each
// sets selects the placeholder style, the schema DDL and the timestamp
// expression.
package relaystore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type dialect int

const (
	dialectPostgres dialect = iota
	dialectMySQL
)

type sqlStore struct {
	db      *sql.DB
	dialect dialect
}

// placeholder returns the n-th (1-indexed) bind placeholder for this dialect.
func (s *sqlStore) placeholder(n int) string {
	if s.dialect == dialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS documents (
	user_id TEXT NOT NULL,
	doc_id BYTEA NOT NULL,
	enc_snapshot BYTEA,
	enc_filename BYTEA,
	has_snapshot BOOLEAN NOT NULL DEFAULT FALSE,
	max_change_id BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, doc_id)
);
CREATE TABLE IF NOT EXISTS document_changes (
	user_id TEXT NOT NULL,
	doc_id BYTEA NOT NULL,
	change_id BIGINT NOT NULL,
	device_id BYTEA NOT NULL,
	enc_change BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, doc_id, change_id)
);
CREATE TABLE IF NOT EXISTS devices (
	user_id TEXT NOT NULL,
	device_id BYTEA NOT NULL,
	public_key BYTEA NOT NULL,
	revoked BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, device_id)
);`

const schemaMySQL = `
CREATE TABLE IF NOT EXISTS documents (
	user_id VARCHAR(255) NOT NULL,
	doc_id BINARY(16) NOT NULL,
	enc_snapshot LONGBLOB,
	enc_filename BLOB,
	has_snapshot BOOLEAN NOT NULL DEFAULT FALSE,
	max_change_id BIGINT NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, doc_id)
);
CREATE TABLE IF NOT EXISTS document_changes (
	user_id VARCHAR(255) NOT NULL,
	doc_id BINARY(16) NOT NULL,
	change_id BIGINT NOT NULL,
	device_id BINARY(16) NOT NULL,
	enc_change LONGBLOB NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, doc_id, change_id)
);
CREATE TABLE IF NOT EXISTS devices (
	user_id VARCHAR(255) NOT NULL,
	device_id BINARY(16) NOT NULL,
	public_key LONGBLOB NOT NULL,
	revoked BOOLEAN NOT NULL DEFAULT FALSE,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, device_id)
);`

func (s *sqlStore) migrate(ctx context.Context) error {
	schema := schemaPostgres
	if s.dialect == dialectMySQL {
		schema = schemaMySQL
	}
	for _, stmt := range splitStatements(schema) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("relaystore: migrate: %w", err)
		}
	}
	return nil
}

func splitStatements(schema string) []string {
	var out []string
	start := 0
	for i, c := range schema {
		if c == ';' {
			if stmt := trimSpace(schema[start:i]); stmt != "" {
				out = append(out, stmt)
			}
			start = i + 1
		}
	}
	return out
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool { return b == ' ' || b == '\n' || b == '\t' || b == '\r' }

func (s *sqlStore) Close() error { return s.db.Close() }

func (s *sqlStore) PushChanges(ctx context.Context, userID string, docID uuid.UUID, deviceID uuid.UUID, ciphertexts [][]byte) (uint64, uint64, error) {
	var first, last uint64
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	var maxID sql.NullInt64
	q := fmt.Sprintf("SELECT max_change_id FROM documents WHERE user_id=%s AND doc_id=%s", s.placeholder(1), s.placeholder(2))
	err = tx.QueryRowContext(ctx, q, userID, docID[:]).Scan(&maxID)
	if err == sql.ErrNoRows {
		insertDoc := fmt.Sprintf("INSERT INTO documents (user_id, doc_id, max_change_id) VALUES (%s, %s, 0)", s.placeholder(1), s.placeholder(2))
		if _, err := tx.ExecContext(ctx, insertDoc, userID, docID[:]); err != nil {
			return 0, 0, err
		}
		maxID.Int64 = 0
	} else if err != nil {
		return 0, 0, err
	}

	cur := uint64(maxID.Int64)
	for i, ct := range ciphertexts {
		cur++
		if i == 0 {
			first = cur
		}
		last = cur
		insertChange := fmt.Sprintf(
			"INSERT INTO document_changes (user_id, doc_id, change_id, device_id, enc_change) VALUES (%s, %s, %s, %s, %s)",
			s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5))
		if _, err := tx.ExecContext(ctx, insertChange, userID, docID[:], cur, deviceID[:], ct); err != nil {
			return 0, 0, err
		}
	}

	update := fmt.Sprintf("UPDATE documents SET max_change_id=%s, updated_at=%s WHERE user_id=%s AND doc_id=%s",
		s.placeholder(1), timeNowExpr(s.dialect), s.placeholder(2), s.placeholder(3))
	if s.dialect == dialectMySQL {
		update = fmt.Sprintf("UPDATE documents SET max_change_id=%s, updated_at=CURRENT_TIMESTAMP WHERE user_id=%s AND doc_id=%s",
			s.placeholder(1), s.placeholder(2), s.placeholder(3))
	}
	if _, err := tx.ExecContext(ctx, update, cur, userID, docID[:]); err != nil {
		return 0, 0, err
	}

	return first, last, tx.Commit()
}

func timeNowExpr(d dialect) string {
	if d == dialectPostgres {
		return "now()"
	}
	return "CURRENT_TIMESTAMP"
}

func (s *sqlStore) PushSnapshot(ctx context.Context, userID string, docID uuid.UUID, encSnapshot []byte, cutoff uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	update := fmt.Sprintf(
		"UPDATE documents SET enc_snapshot=%s, has_snapshot=true WHERE user_id=%s AND doc_id=%s",
		s.placeholder(1), s.placeholder(2), s.placeholder(3))
	if _, err := tx.ExecContext(ctx, update, encSnapshot, userID, docID[:]); err != nil {
		return err
	}

	del := fmt.Sprintf(
		"DELETE FROM document_changes WHERE user_id=%s AND doc_id=%s AND change_id<=%s",
		s.placeholder(1), s.placeholder(2), s.placeholder(3))
	if _, err := tx.ExecContext(ctx, del, userID, docID[:], cutoff); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *sqlStore) RequestDocumentList(ctx context.Context, userID string) ([]DocumentSummary, error) {
	q := fmt.Sprintf("SELECT doc_id, has_snapshot, max_change_id, enc_filename FROM documents WHERE user_id=%s", s.placeholder(1))
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DocumentSummary
	for rows.Next() {
		var raw []byte
		var rec DocumentSummary
		if err := rows.Scan(&raw, &rec.HasSnapshot, &rec.MaxChangeID, &rec.EncFilename); err != nil {
			return nil, err
		}
		docID, err := uuid.FromBytes(raw)
		if err != nil {
			return nil, err
		}
		rec.DocID = docID
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqlStore) SetFilenameHint(ctx context.Context, userID string, docID uuid.UUID, encFilename []byte) error {
	q := fmt.Sprintf("SELECT 1 FROM documents WHERE user_id=%s AND doc_id=%s", s.placeholder(1), s.placeholder(2))
	var exists int
	err := s.db.QueryRowContext(ctx, q, userID, docID[:]).Scan(&exists)
	if err == sql.ErrNoRows {
		insert := fmt.Sprintf("INSERT INTO documents (user_id, doc_id, enc_filename, max_change_id) VALUES (%s, %s, %s, 0)",
			s.placeholder(1), s.placeholder(2), s.placeholder(3))
		_, err = s.db.ExecContext(ctx, insert, userID, docID[:], encFilename)
		return err
	}
	if err != nil {
		return err
	}
	update := fmt.Sprintf("UPDATE documents SET enc_filename=%s WHERE user_id=%s AND doc_id=%s",
		s.placeholder(1), s.placeholder(2), s.placeholder(3))
	_, err = s.db.ExecContext(ctx, update, encFilename, userID, docID[:])
	return err
}

func (s *sqlStore) RequestChanges(ctx context.Context, userID string, docID uuid.UUID, sinceChangeID uint64, limit int) ([]Change, error) {
	q := fmt.Sprintf(
		"SELECT change_id, device_id, enc_change, created_at FROM document_changes WHERE user_id=%s AND doc_id=%s AND change_id>%s ORDER BY change_id ASC",
		s.placeholder(1), s.placeholder(2), s.placeholder(3))
	args := []any{userID, docID[:], sinceChangeID}
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %s", s.placeholder(4))
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Change
	for rows.Next() {
		var deviceRaw []byte
		var c Change
		var createdAt time.Time
		if err := rows.Scan(&c.ChangeID, &deviceRaw, &c.EncChange, &createdAt); err != nil {
			return nil, err
		}
		deviceID, err := uuid.FromBytes(deviceRaw)
		if err != nil {
			return nil, err
		}
		c.DocID = docID
		c.DeviceID = deviceID
		c.CreatedAt = createdAt
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *sqlStore) RequestSnapshot(ctx context.Context, userID string, docID uuid.UUID) ([]byte, error) {
	q := fmt.Sprintf("SELECT enc_snapshot, has_snapshot FROM documents WHERE user_id=%s AND doc_id=%s", s.placeholder(1), s.placeholder(2))
	var snap []byte
	var has bool
	err := s.db.QueryRowContext(ctx, q, userID, docID[:]).Scan(&snap, &has)
	if err == sql.ErrNoRows || (err == nil && !has) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *sqlStore) UpsertDevice(ctx context.Context, dev Device) error {
	q := fmt.Sprintf("SELECT 1 FROM devices WHERE user_id=%s AND device_id=%s", s.placeholder(1), s.placeholder(2))
	var exists int
	err := s.db.QueryRowContext(ctx, q, dev.UserID, dev.DeviceID[:]).Scan(&exists)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return err
	}
	insert := fmt.Sprintf(
		"INSERT INTO devices (user_id, device_id, public_key) VALUES (%s, %s, %s)",
		s.placeholder(1), s.placeholder(2), s.placeholder(3))
	_, err = s.db.ExecContext(ctx, insert, dev.UserID, dev.DeviceID[:], dev.PublicKey)
	return err
}

func (s *sqlStore) ListDevices(ctx context.Context, userID string) ([]Device, error) {
	q := fmt.Sprintf("SELECT device_id, public_key, revoked, created_at FROM devices WHERE user_id=%s", s.placeholder(1))
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Device
	for rows.Next() {
		var raw []byte
		var dev Device
		if err := rows.Scan(&raw, &dev.PublicKey, &dev.Revoked, &dev.CreatedAt); err != nil {
			return nil, err
		}
		deviceID, err := uuid.FromBytes(raw)
		if err != nil {
			return nil, err
		}
		dev.DeviceID = deviceID
		dev.UserID = userID
		out = append(out, dev)
	}
	return out, rows.Err()
}

func (s *sqlStore) RevokeDevice(ctx context.Context, userID string, deviceID uuid.UUID) error {
	q := fmt.Sprintf("UPDATE devices SET revoked=true WHERE user_id=%s AND device_id=%s", s.placeholder(1), s.placeholder(2))
	res, err := s.db.ExecContext(ctx, q, userID, deviceID[:])
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlStore) IsRevoked(ctx context.Context, userID string, deviceID uuid.UUID) (bool, error) {
	q := fmt.Sprintf("SELECT revoked FROM devices WHERE user_id=%s AND device_id=%s", s.placeholder(1), s.placeholder(2))
	var revoked bool
	err := s.db.QueryRowContext(ctx, q, userID, deviceID[:]).Scan(&revoked)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return revoked, err
}

var _ Store = (*sqlStore)(nil)
