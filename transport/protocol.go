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

// Package transport is the single multiplexed authenticated WebSocket
// connection a device daemon keeps with one relay, and the wire
// envelopes both sides exchange over it. Binary fields are base64
// inside the JSON envelope, as required by the wire protocol; Go's
// encoding/json already does this for []byte fields, so the message
// structs just declare them as []byte.
package transport

import "encoding/json"

// Envelope is the outer frame every message is wrapped in; Type names
// which of the message structs below Body holds as raw JSON.
type Envelope struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body,omitempty"`
}

func encode(msgType string, body any) (Envelope, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: msgType, Body: raw}, nil
}

// Authenticate is the mandatory first client message.
type Authenticate struct {
	Token string `json:"token"`
}

// Authenticated is the mandatory first server reply.
type Authenticated struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

type RequestDocumentList struct{}

type DocumentListEntry struct {
	DocID        string `json:"doc_id"`
	HasSnapshot  bool   `json:"has_snapshot"`
	MaxChangeID  uint64 `json:"max_change_id"`
	EncFilename  []byte `json:"enc_filename,omitempty"`
}

type DocumentList struct {
	Documents []DocumentListEntry `json:"documents"`
}

type RequestChanges struct {
	DocID         string `json:"doc_id"`
	SinceChangeID uint64 `json:"since_change_id"`
}

type Changes struct {
	DocID         string   `json:"doc_id"`
	FromChangeID  uint64   `json:"from_change_id"`
	Ciphertexts   [][]byte `json:"ciphertexts"`
}

type RequestSnapshot struct {
	DocID string `json:"doc_id"`
}

type Snapshot struct {
	DocID       string `json:"doc_id"`
	EncSnapshot []byte `json:"enc_snapshot"`
	CutoffID    uint64 `json:"cutoff_change_id"`
	Found       bool   `json:"found"`
}

type PushChanges struct {
	DocID       string   `json:"doc_id"`
	DeviceID    string   `json:"device_id"`
	Ciphertexts [][]byte `json:"ciphertexts"`
}

type PushSnapshot struct {
	DocID       string `json:"doc_id"`
	DeviceID    string `json:"device_id"`
	EncSnapshot []byte `json:"enc_snapshot"`
	CutoffID    uint64 `json:"cutoff_change_id"`
}

// NewChanges is server-pushed, broadcast to every other connected
// session of the same user when one device's PushChanges lands.
type NewChanges struct {
	DocID         string   `json:"doc_id"`
	FromDeviceID  string   `json:"from_device_id"`
	FromChangeID  uint64   `json:"change_id_from"`
	ToChangeID    uint64   `json:"change_id_to"`
	Ciphertexts   [][]byte `json:"ciphertexts"`
}

type RequestCompaction struct {
	DocID string `json:"doc_id"`
}

type AckChanges struct {
	DocID      string `json:"doc_id"`
	UpToChange uint64 `json:"up_to_change_id"`
}

// ErrorMessage is sent by either side to report a handling failure for
// one envelope without tearing down the connection.
type ErrorMessage struct {
	InReplyTo string `json:"in_reply_to,omitempty"`
	Message   string `json:"message"`
}

const (
	TypeAuthenticate       = "Authenticate"
	TypeAuthenticated      = "Authenticated"
	TypeRequestDocumentList = "RequestDocumentList"
	TypeDocumentList       = "DocumentList"
	TypeRequestChanges     = "RequestChanges"
	TypeChanges            = "Changes"
	TypeRequestSnapshot    = "RequestSnapshot"
	TypeSnapshot           = "Snapshot"
	TypePushChanges        = "PushChanges"
	TypePushSnapshot       = "PushSnapshot"
	TypeNewChanges         = "NewChanges"
	TypeRequestCompaction  = "RequestCompaction"
	TypeAckChanges         = "AckChanges"
	TypeError              = "Error"
	TypePing               = "Ping"
	TypePong               = "Pong"
)
