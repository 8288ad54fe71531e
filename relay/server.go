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
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/launix-de/lstsync/relaystore"
	"github.com/launix-de/lstsync/relaystore/archive"
	"github.com/launix-de/lstsync/transport"
)

// Server is the relay's WebSocket endpoint plus its message handlers.
// It is deliberately thin: all durable state lives in the Store and
// Archive it is constructed with.
type Server struct {
	Store    relaystore.Store
	Archive  archive.SnapshotArchive // optional: nil disables long-term snapshot archival
	Verifier TokenVerifier
	Logger   zerolog.Logger

	// CompactionThreshold is how many pending changes on a doc trigger a
	// RequestCompaction to a connected client for that user.
	CompactionThreshold int
	// CompactionTimeout is carried in the configuration but not read:
	// the relay does not wait for or track a PushSnapshot reply, and it
	// does not re-issue a RequestCompaction when a session starts.
	CompactionTimeout time.Duration

	hub *hub
}

func NewServer(store relaystore.Store, verifier TokenVerifier) *Server {
	return &Server{
		Store:               store,
		Verifier:            verifier,
		Logger:              zerolog.Nop(),
		CompactionThreshold: 500,
		CompactionTimeout:   60 * time.Second,
		hub:                 newHub(),
	}
}

// ServeHTTP upgrades /api/sync connections. The bearer token is read
// only from the first Authenticate envelope on the socket; an
// Authorization header on the upgrade request is not consulted.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sess, err := transport.Upgrade(w, r)
	if err != nil {
		s.Logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	go s.serveSession(r.Context(), sess)
}

func (s *Server) serveSession(ctx context.Context, sess *transport.Session) {
	defer sess.Close()

	userID, deviceID, err := s.authenticate(ctx, sess)
	if err != nil {
		s.Logger.Info().Err(err).Msg("authentication failed")
		return
	}

	conn := &connection{sess: sess, userID: userID, deviceID: deviceID}
	s.hub.add(conn)
	defer s.hub.remove(conn)

	log := s.Logger.With().Str("user_id", userID).Str("device_id", deviceID.String()).Logger()
	for {
		env, err := sess.ReadEnvelope()
		if err != nil {
			log.Debug().Err(err).Msg("session closed")
			return
		}
		if err := s.handle(ctx, conn, env); err != nil {
			log.Warn().Err(err).Str("type", env.Type).Msg("message handling failed")
			sess.Send(transport.TypeError, transport.ErrorMessage{InReplyTo: env.Type, Message: err.Error()})
		}
	}
}

func (s *Server) authenticate(ctx context.Context, sess *transport.Session) (userID string, deviceID uuid.UUID, err error) {
	env, err := sess.ReadEnvelope()
	if err != nil {
		return "", uuid.UUID{}, err
	}
	if env.Type != transport.TypeAuthenticate {
		sess.Send(transport.TypeAuthenticated, transport.Authenticated{OK: false, Reason: "expected Authenticate"})
		return "", uuid.UUID{}, fmt.Errorf("relay: expected Authenticate, got %s", env.Type)
	}
	var auth transport.Authenticate
	if err := transport.Decode(env, &auth); err != nil {
		return "", uuid.UUID{}, err
	}

	userID, err = s.Verifier.Verify(ctx, auth.Token)
	if err != nil {
		sess.Send(transport.TypeAuthenticated, transport.Authenticated{OK: false, Reason: "invalid token"})
		return "", uuid.UUID{}, fmt.Errorf("relay: authenticate: %w", err)
	}
	deviceID, err = parseDeviceFromToken(auth.Token)
	if err != nil {
		sess.Send(transport.TypeAuthenticated, transport.Authenticated{OK: false, Reason: "invalid token"})
		return "", uuid.UUID{}, fmt.Errorf("relay: authenticate: %w", err)
	}

	if revoked, _ := s.Store.IsRevoked(ctx, userID, deviceID); revoked {
		sess.Send(transport.TypeAuthenticated, transport.Authenticated{OK: false, Reason: "device revoked"})
		return "", uuid.UUID{}, fmt.Errorf("relay: device %s revoked", deviceID)
	}

	if err := sess.Send(transport.TypeAuthenticated, transport.Authenticated{OK: true}); err != nil {
		return "", uuid.UUID{}, err
	}
	return userID, deviceID, nil
}

// parseDeviceFromToken extracts the device id a token authenticates,
// assuming the "<user-opaque>:<device-id>" bearer token convention.
// Verify itself only resolves the user id; this
// keeps TokenVerifier minimal and testable in isolation from device
// identity.
func parseDeviceFromToken(token string) (uuid.UUID, error) {
	parts := strings.SplitN(token, ":", 2)
	if len(parts) != 2 {
		return uuid.UUID{}, fmt.Errorf("relay: token missing device id suffix")
	}
	return uuid.Parse(parts[1])
}
