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

// Command lstrelay is the multi-tenant relay server: it brokers
// end-to-end encrypted changes and snapshots between a user's devices
// without ever holding the key to decrypt them.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/launix-de/lstsync/config"
	"github.com/launix-de/lstsync/onboard"
	"github.com/launix-de/lstsync/relay"
	"github.com/launix-de/lstsync/relaystore"
	"github.com/launix-de/lstsync/relaystore/archive"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "lstrelay",
	Short:   "Multi-tenant relay for end-to-end encrypted list and note sync",
	Version: "dev",
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to the relay's TOML config file (required)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateBackendCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay's WebSocket and onboarding HTTP endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := rootCmd.PersistentFlags().GetString("config")
		if configPath == "" {
			return fmt.Errorf("--config is required")
		}
		return serve(configPath)
	},
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("lstrelay: load config: %w", err)
	}
	logger := newLogger(cfg.Logger)
	logger.Info().Str("config", configPath).Msg("starting lstrelay")

	ctx, cancel := signalContext()
	defer cancel()

	store, err := relaystore.Open(ctx, cfg.Relay.Backend, cfg.Relay.DSN)
	if err != nil {
		return fmt.Errorf("lstrelay: open store: %w", err)
	}
	defer store.Close()

	arch, err := archive.Open(cfg.Relay.ArchiveBackend, map[string]string{"dir": cfg.Relay.ArchiveDir})
	if err != nil {
		return fmt.Errorf("lstrelay: open archive: %w", err)
	}

	verifier := relay.StaticVerifier{} // operators wire a real verifier (email/token service) in front of this
	srv := relay.NewServer(store, verifier)
	srv.Archive = arch
	srv.Logger = logger.With().Str("component", "relay").Logger()
	srv.CompactionThreshold = cfg.Relay.CompactionThreshold

	registry := onboard.NewRegistry(0)
	onboardHandler := onboard.NewHandler(registry)

	metrics := newRelayMetrics()
	registryProm := prometheus.NewRegistry()
	registryProm.MustRegister(metrics.connections, metrics.pendingChanges)

	mux := http.NewServeMux()
	mux.Handle("/api/sync", srv)
	mux.HandleFunc("/api/provision/request", onboardHandler.HandleRequest)
	mux.HandleFunc("/api/provision/package", onboardHandler.HandlePackage)
	mux.HandleFunc("/api/provision/package/", onboardHandler.HandlePoll)
	mux.Handle("/metrics", promhttp.HandlerFor(registryProm, promhttp.HandlerOpts{}))

	httpSrv := &http.Server{Addr: cfg.Relay.ListenAddr, Handler: mux}
	errc := make(chan error, 1)
	go func() { errc <- httpSrv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer shutdownCancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errc:
		return err
	}
}

const httpShutdownTimeout = 10 * 1e9 // 10s expressed in nanoseconds to avoid importing time just for this constant

type relayMetrics struct {
	connections    prometheus.Gauge
	pendingChanges prometheus.Gauge
}

func newRelayMetrics() *relayMetrics {
	return &relayMetrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lstrelay", Name: "connections", Help: "Currently connected device sessions",
		}),
		pendingChanges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lstrelay", Name: "pending_changes", Help: "Changes not yet covered by a snapshot, across all documents",
		}),
	}
}

var migrateBackendCmd = &cobra.Command{
	Use:   "migrate-backend --user <id> --from <backend>:<dsn> --to <backend>:<dsn>",
	Short: "Copy one user's change log and snapshots between two relay store backends",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		if userID == "" || from == "" || to == "" {
			return fmt.Errorf("--user, --from and --to are all required")
		}
		return migrateBackend(userID, from, to)
	},
}

func init() {
	migrateBackendCmd.Flags().String("user", "", "User id to migrate")
	migrateBackendCmd.Flags().String("from", "", "Source backend:dsn, e.g. bbolt:/var/lib/lstrelay/relay.db")
	migrateBackendCmd.Flags().String("to", "", "Destination backend:dsn, e.g. postgres:postgres://...")
}

// migrateBackend copies every document's full change log and current
// snapshot for one user from one RelayStore backend to another,
// exercising the backend abstraction end to end: it never looks at a
// ciphertext's contents, only its (doc_id, change_id) addressing.
func migrateBackend(userID, from, to string) error {
	ctx := context.Background()
	src, err := openBackendSpec(ctx, from)
	if err != nil {
		return fmt.Errorf("lstrelay: open source backend: %w", err)
	}
	defer src.Close()
	dst, err := openBackendSpec(ctx, to)
	if err != nil {
		return fmt.Errorf("lstrelay: open destination backend: %w", err)
	}
	defer dst.Close()

	docs, err := src.RequestDocumentList(ctx, userID)
	if err != nil {
		return fmt.Errorf("lstrelay: list documents: %w", err)
	}

	for _, doc := range docs {
		if doc.HasSnapshot {
			snap, err := src.RequestSnapshot(ctx, userID, doc.DocID)
			if err != nil {
				return fmt.Errorf("lstrelay: read snapshot for %s: %w", doc.DocID, err)
			}
			if err := dst.PushSnapshot(ctx, userID, doc.DocID, snap, 0); err != nil {
				return fmt.Errorf("lstrelay: write snapshot for %s: %w", doc.DocID, err)
			}
		}
		if len(doc.EncFilename) > 0 {
			if err := dst.SetFilenameHint(ctx, userID, doc.DocID, doc.EncFilename); err != nil {
				return fmt.Errorf("lstrelay: write filename hint for %s: %w", doc.DocID, err)
			}
		}

		changes, err := src.RequestChanges(ctx, userID, doc.DocID, 0, 0)
		if err != nil {
			return fmt.Errorf("lstrelay: read changes for %s: %w", doc.DocID, err)
		}
		for _, ch := range changes {
			if _, _, err := dst.PushChanges(ctx, userID, doc.DocID, ch.DeviceID, [][]byte{ch.EncChange}); err != nil {
				return fmt.Errorf("lstrelay: write change for %s: %w", doc.DocID, err)
			}
		}
	}

	devices, err := src.ListDevices(ctx, userID)
	if err != nil {
		return fmt.Errorf("lstrelay: list devices: %w", err)
	}
	for _, dev := range devices {
		if err := dst.UpsertDevice(ctx, dev); err != nil {
			return fmt.Errorf("lstrelay: upsert device %s: %w", dev.DeviceID, err)
		}
		if dev.Revoked {
			if err := dst.RevokeDevice(ctx, userID, dev.DeviceID); err != nil {
				return fmt.Errorf("lstrelay: revoke device %s: %w", dev.DeviceID, err)
			}
		}
	}

	fmt.Printf("migrated %d documents and %d devices for user %s\n", len(docs), len(devices), userID)
	return nil
}

func openBackendSpec(ctx context.Context, spec string) (relaystore.Store, error) {
	backend, dsn, ok := splitSpec(spec)
	if !ok {
		return nil, fmt.Errorf("lstrelay: malformed backend spec %q, want backend:dsn", spec)
	}
	return relaystore.Open(ctx, backend, dsn)
}

func splitSpec(spec string) (backend, dsn string, ok bool) {
	for i := 0; i < len(spec); i++ {
		if spec[i] == ':' {
			return spec[:i], spec[i+1:], true
		}
	}
	return "", "", false
}

func newLogger(cfg config.LoggerConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := log.Logger.Level(level)
	if !cfg.JSON {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}
