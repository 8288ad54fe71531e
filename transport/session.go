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

package transport

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Session is the relay side of one device's connection: upgraded from
// an HTTP request, it reads and writes the same Envelope frames that
// Client exchanges on the device side.
type Session struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

// Upgrade promotes an HTTP request to a WebSocket and returns the
// Session wrapping it. Upgrade performs no bearer-token check; the
// token arrives afterwards in the first Authenticate envelope, and a
// rejection is sent as Authenticated{ok:false} over the socket.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Session, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &Session{conn: conn}, nil
}

// ReadEnvelope blocks for the next client message.
func (s *Session) ReadEnvelope() (Envelope, error) {
	var env Envelope
	err := s.conn.ReadJSON(&env)
	return env, err
}

// WriteEnvelope is safe for concurrent use: the relay's broadcast path
// and its per-session reply path both call it from different
// goroutines.
func (s *Session) WriteEnvelope(env Envelope) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(env)
}

func (s *Session) Send(msgType string, body any) error {
	env, err := Encode(msgType, body)
	if err != nil {
		return err
	}
	return s.WriteEnvelope(env)
}

func (s *Session) Close() error {
	return s.conn.Close()
}
