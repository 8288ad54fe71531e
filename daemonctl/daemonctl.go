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

// Package daemonctl is the device daemon's local control surface: three
// verbs (start, stop, status) reachable over a unix-domain socket, or a
// loopback TCP port on platforms without one, plus a /metrics endpoint
// for the daemon's own process (the relay exposes its own, separate,
// /metrics in package relay).
package daemonctl

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status is the JSON payload returned by the status verb.
type Status struct {
	Connected      bool      `json:"connected"`
	LastSync       time.Time `json:"last_sync,omitempty"`
	PendingChanges int       `json:"pending_changes"`
	LastError      string    `json:"last_error,omitempty"`
}

// StatusSource is whatever the daemon wires in to answer a status query;
// satisfied by a small adapter around transport.Client and syncengine.Engine.
type StatusSource interface {
	Status() Status
}

// Metrics is the minimal Prometheus registry the spec calls for:
// connection state, pending-change gauge, change_id high-water mark, and
// a decrypt-failure counter, all scoped under the daemon's own registry
// so it never collides with the relay's.
type Metrics struct {
	Registry         *prometheus.Registry
	Connected        prometheus.Gauge
	PendingChanges   prometheus.Gauge
	ChangeIDHighWater prometheus.Gauge
	DecryptFailures  prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lstsyncd", Name: "connected", Help: "1 if the transport is authenticated and connected",
		}),
		PendingChanges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lstsyncd", Name: "pending_changes", Help: "Local changes not yet acknowledged by the relay",
		}),
		ChangeIDHighWater: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lstsyncd", Name: "change_id_high_water", Help: "Highest change_id seen from the relay",
		}),
		DecryptFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lstsyncd", Name: "decrypt_failures_total", Help: "AEAD decryption failures across all documents",
		}),
	}
	reg.MustRegister(m.Connected, m.PendingChanges, m.ChangeIDHighWater, m.DecryptFailures)
	return m
}

// Server answers control-surface requests over a listener (unix socket
// preferred; loopback TCP on platforms without one) plus an HTTP
// /metrics endpoint on the same listener.
type Server struct {
	Source  StatusSource
	Metrics *Metrics

	mu       sync.Mutex
	stopped  bool
	shutdown context.CancelFunc
}

// Addr picks a unix-domain socket path on platforms that support one
// (everything but Windows), falling back to a loopback TCP address.
func Addr(socketPath string) (network, address string) {
	if runtime.GOOS == "windows" {
		return "tcp", "127.0.0.1:0"
	}
	return "unix", socketPath
}

// Listen opens the control-surface listener, removing a stale socket
// file left behind by an unclean shutdown first.
func Listen(network, address string) (net.Listener, error) {
	if network == "unix" {
		if err := removeStaleSocket(address); err != nil {
			return nil, err
		}
	}
	return net.Listen(network, address)
}

func removeStaleSocket(path string) error {
	if _, err := os.Stat(path); err == nil {
		return os.Remove(path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func NewServer(source StatusSource, metrics *Metrics) *Server {
	return &Server{Source: source, Metrics: metrics}
}

// Serve runs the control HTTP server on ln until ctx is cancelled or
// Stop is called; it always returns http.ErrServerClosed on a clean stop.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/start", s.handleStart)
	mux.HandleFunc("/stop", s.handleStop)
	if s.Metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	srv := &http.Server{Handler: mux}
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.shutdown = cancel
	s.mu.Unlock()

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		srv.Close()
		<-errc
		return http.ErrServerClosed
	case err := <-errc:
		return err
	}
}

// Stop requests a graceful shutdown of a running Serve call.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	if s.shutdown != nil {
		s.shutdown()
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.Source.Status()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	// The daemon process itself is what "start" launches; once the
	// control server is already serving requests, the daemon is by
	// definition started, so this is an idempotent acknowledgement.
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	go s.Stop()
}
