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

package daemonctl

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	status Status
}

func (f fakeSource) Status() Status { return f.status }

func TestServerStatusOverUnixSocket(t *testing.T) {
	network, address := Addr(filepath.Join(t.TempDir(), "lstsyncd.sock"))
	ln, err := Listen(network, address)
	require.NoError(t, err)

	source := fakeSource{status: Status{Connected: true, PendingChanges: 3}}
	srv := NewServer(source, NewMetrics())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	client := NewClient(network, address)
	status, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Connected)
	assert.Equal(t, 3, status.PendingChanges)

	require.NoError(t, client.Stop(context.Background()))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down after Stop")
	}
}

func TestListenRemovesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lstsyncd.sock")
	network, address := Addr(path)

	ln1, err := Listen(network, address)
	require.NoError(t, err)
	if ul, ok := ln1.(*net.UnixListener); ok {
		// leave the socket file behind, as an unclean shutdown would
		ul.SetUnlinkOnClose(false)
	}
	ln1.Close()

	ln2, err := Listen(network, address)
	require.NoError(t, err)
	defer ln2.Close()
}

func TestMetricsRegistersWithoutPanic(t *testing.T) {
	m := NewMetrics()
	m.Connected.Set(1)
	m.PendingChanges.Set(5)
	m.ChangeIDHighWater.Set(42)
	m.DecryptFailures.Inc()

	families, err := m.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
