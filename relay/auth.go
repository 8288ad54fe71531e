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

// Package relay is the server half of the sync protocol: it terminates
// one WebSocket session per device, authenticates it, and serves
// PushChanges/PushSnapshot/RequestDocumentList/RequestChanges/
// RequestSnapshot/AckChanges against a relaystore.Store, broadcasting
// NewChanges to every other connected session of the same user. It
// never decrypts anything it stores or forwards.
package relay

import "context"

// TokenVerifier checks a bearer token minted by the external auth flow
// (§6) and resolves it to a user id. The core does not implement the
// auth flow itself, only this narrow verification seam.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}

// StaticVerifier is a TokenVerifier backed by a fixed token->user map,
// useful for tests and for single-operator deployments that mint
// long-lived tokens out of band.
type StaticVerifier map[string]string

func (v StaticVerifier) Verify(ctx context.Context, token string) (string, error) {
	userID, ok := v[token]
	if !ok {
		return "", errAuthFailed
	}
	return userID, nil
}

var errAuthFailed = authError("relay: invalid bearer token")

type authError string

func (e authError) Error() string { return string(e) }
