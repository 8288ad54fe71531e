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

package onboard

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launix-de/lstsync/crypto"
)

func TestRegistryRequestPackagePollRoundTrip(t *testing.T) {
	reg := NewRegistry(time.Minute)
	newDevice, err := crypto.NewKeyPair()
	require.NoError(t, err)

	id := reg.Request(newDevice.Public)

	pk, err := reg.PublicKey(id)
	require.NoError(t, err)
	assert.Equal(t, newDevice.Public, pk)

	sealed, err := crypto.SealMasterKey(crypto.MasterKey{1, 2, 3}, pk)
	require.NoError(t, err)
	require.NoError(t, reg.Package(id, sealed))

	got, err := reg.Poll(id)
	require.NoError(t, err)
	assert.Equal(t, sealed, got)
}

func TestPollBeforePackageIsPending(t *testing.T) {
	reg := NewRegistry(time.Minute)
	kp, err := crypto.NewKeyPair()
	require.NoError(t, err)
	id := reg.Request(kp.Public)

	_, err = reg.Poll(id)
	assert.Equal(t, ErrPending, err)
}

func TestPollIsOneShot(t *testing.T) {
	reg := NewRegistry(time.Minute)
	kp, _ := crypto.NewKeyPair()
	id := reg.Request(kp.Public)
	sealed, _ := crypto.SealMasterKey(crypto.MasterKey{9}, kp.Public)
	require.NoError(t, reg.Package(id, sealed))

	_, err := reg.Poll(id)
	require.NoError(t, err)

	_, err = reg.Poll(id)
	assert.Equal(t, ErrNotFound, err)
}

func TestExpiredRequestIsSwept(t *testing.T) {
	reg := NewRegistry(10 * time.Millisecond)
	kp, _ := crypto.NewKeyPair()
	id := reg.Request(kp.Public)
	time.Sleep(30 * time.Millisecond)

	_, err := reg.PublicKey(id)
	assert.Equal(t, ErrNotFound, err)
}

func TestHandlersEndToEnd(t *testing.T) {
	reg := NewRegistry(time.Minute)
	h := NewHandler(reg)

	kp, err := crypto.NewKeyPair()
	require.NoError(t, err)

	reqBody, _ := json.Marshal(requestBody{PublicKey: base64.StdEncoding.EncodeToString(kp.Public[:])})
	rr := httptest.NewRecorder()
	h.HandleRequest(rr, httptest.NewRequest(http.MethodPost, "/api/provision/request", bytes.NewReader(reqBody)))
	require.Equal(t, http.StatusOK, rr.Code)

	var reqResp requestResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &reqResp))
	require.NotEmpty(t, reqResp.ProvisioningID)

	sealed, err := crypto.SealMasterKey(crypto.MasterKey{7, 7, 7}, kp.Public)
	require.NoError(t, err)
	pkgBody, _ := json.Marshal(packageBody{ProvisioningID: reqResp.ProvisioningID, SealedMasterKey: base64.StdEncoding.EncodeToString(sealed)})
	rr2 := httptest.NewRecorder()
	h.HandlePackage(rr2, httptest.NewRequest(http.MethodPost, "/api/provision/package", bytes.NewReader(pkgBody)))
	require.Equal(t, http.StatusOK, rr2.Code)

	rr3 := httptest.NewRecorder()
	h.HandlePoll(rr3, httptest.NewRequest(http.MethodGet, "/api/provision/package/"+reqResp.ProvisioningID, nil))
	require.Equal(t, http.StatusOK, rr3.Code)

	var pollResp pollResponse
	require.NoError(t, json.Unmarshal(rr3.Body.Bytes(), &pollResp))
	gotSealed, err := base64.StdEncoding.DecodeString(pollResp.SealedMasterKey)
	require.NoError(t, err)
	assert.Equal(t, sealed, gotSealed)
}
