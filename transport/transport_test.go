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
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrips(t *testing.T) {
	env, err := Encode(TypePushChanges, PushChanges{DocID: "d1", DeviceID: "dev1", Ciphertexts: [][]byte{[]byte("ct")}})
	require.NoError(t, err)
	assert.Equal(t, TypePushChanges, env.Type)

	var got PushChanges
	require.NoError(t, Decode(env, &got))
	assert.Equal(t, "d1", got.DocID)
	assert.Equal(t, [][]byte{[]byte("ct")}, got.Ciphertexts)
}

func TestSessionRoundTripsOverRealWebSocket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := Upgrade(w, r)
		require.NoError(t, err)
		env, err := sess.ReadEnvelope()
		require.NoError(t, err)
		var auth Authenticate
		require.NoError(t, Decode(env, &auth))
		require.NoError(t, sess.Send(TypeAuthenticated, Authenticated{OK: auth.Token == "secret"}))
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	authEnv, err := Encode(TypeAuthenticate, Authenticate{Token: "secret"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(authEnv))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply Envelope
	require.NoError(t, conn.ReadJSON(&reply))

	var auth Authenticated
	require.NoError(t, Decode(reply, &auth))
	assert.True(t, auth.OK)
}
