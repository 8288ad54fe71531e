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

// Command lstsyncd is the per-device sync daemon: it watches a content
// directory, mirrors local edits to the relay, and applies changes the
// relay forwards from other devices.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/launix-de/lstsync/config"
	"github.com/launix-de/lstsync/crypto"
	"github.com/launix-de/lstsync/daemonctl"
	"github.com/launix-de/lstsync/internal/taskctx"
	"github.com/launix-de/lstsync/localstore"
	"github.com/launix-de/lstsync/syncengine"
	"github.com/launix-de/lstsync/transport"
	"github.com/launix-de/lstsync/watcher"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "lstsyncd",
	Short:   "Device-local daemon for end-to-end encrypted list and note sync",
	Version: "dev",
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to the daemon's TOML config file (required)")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the daemon in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		if configPath == "" {
			configPath, _ = rootCmd.PersistentFlags().GetString("config")
		}
		if configPath == "" {
			return fmt.Errorf("--config is required")
		}
		return run(configPath)
	},
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("lstsyncd: load config: %w", err)
	}

	logger := newLogger(cfg.Logger)
	logger.Info().Str("config", configPath).Msg("starting lstsyncd")

	store, err := localstore.Open(cfg.Syncd.DatabasePath)
	if err != nil {
		return fmt.Errorf("lstsyncd: open local store: %w", err)
	}
	defer store.Close()

	identity, found, err := store.Device()
	if err != nil {
		return fmt.Errorf("lstsyncd: load device identity: %w", err)
	}
	if !found {
		newID := localstore.NewDeviceID()
		kp, err := crypto.NewKeyPair()
		if err != nil {
			return fmt.Errorf("lstsyncd: generate device key: %w", err)
		}
		identity = localstore.DeviceIdentity{DeviceID: newID, PublicKey: kp.Public[:]}
		if err := store.PutDevice(identity); err != nil {
			return fmt.Errorf("lstsyncd: persist device identity: %w", err)
		}
		logger.Info().Str("device_id", newID.String()).Msg("provisioned new device identity")
	}
	deviceID := identity.DeviceID.String()

	keyring := crypto.NewKeyring(func() (crypto.MasterKey, error) {
		return loadMasterKeyFromCredentialRef(cfg.Syncd.EncryptionKeyRef)
	})

	ctx, cancel := signalContext()
	defer cancel()

	client := transport.NewClient(cfg.Syncd.URL, func() string {
		return cfg.Syncd.DeviceID + ":" + deviceID
	})

	recentlyWritten := watcher.NewRecentlyWritten()
	engine := syncengine.New(store, keyring, cfg.Paths.ContentDir, deviceID, recentlyWritten, client)
	engine.Logger = logger.With().Str("component", "syncengine").Logger()

	watchCfg := watcher.Config{
		Root:            cfg.Paths.ContentDir,
		MaxFileSize:     cfg.Sync.MaxFileSizeBytes(),
		ExcludePatterns: cfg.Sync.ExcludePatterns,
		RecentlyWritten: recentlyWritten,
	}
	w, err := watcher.New(watchCfg)
	if err != nil {
		return fmt.Errorf("lstsyncd: start watcher: %w", err)
	}

	metrics := daemonctl.NewMetrics()
	statusSource := &daemonStatus{client: client}
	network, address := daemonctl.Addr(filepath.Join(filepath.Dir(cfg.Syncd.DatabasePath), "lstsyncd.sock"))
	ln, err := daemonctl.Listen(network, address)
	if err != nil {
		return fmt.Errorf("lstsyncd: listen on control socket: %w", err)
	}
	ctlServer := daemonctl.NewServer(statusSource, metrics)

	errc := make(chan error, 4)
	go func() { errc <- ctlServer.Serve(ctx, ln) }()
	go func() { errc <- <-taskctx.Go("transport", func() { client.Run(ctx) }) }()
	go func() { errc <- <-taskctx.Go("watcher", func() { w.Run(ctx) }) }()
	go func() {
		errc <- <-taskctx.Go("local-events", func() { runLocalEventLoop(ctx, engine, w, logger) })
	}()
	go func() {
		errc <- <-taskctx.Go("remote-events", func() { runRemoteEventLoop(ctx, engine, client, metrics, logger) })
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		return nil
	case err := <-errc:
		if err != nil {
			logger.Error().Err(err).Msg("fatal task failure")
		}
		return err
	}
}

func runLocalEventLoop(ctx context.Context, engine *syncengine.Engine, w *watcher.Watcher, logger zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-w.Events():
			if err := engine.HandleLocalEvent(ctx, ev); err != nil {
				logger.Error().Err(err).Str("path", ev.Path).Msg("local event handling failed")
			}
		}
	}
}

func runRemoteEventLoop(ctx context.Context, engine *syncengine.Engine, client *transport.Client, metrics *daemonctl.Metrics, logger zerolog.Logger) {
	if err := engine.Catchup(ctx); err != nil {
		logger.Error().Err(err).Msg("initial catch-up request failed")
	}
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-client.Inbound():
			if err := engine.HandleInboundEnvelope(ctx, env); err != nil {
				logger.Error().Err(err).Str("type", env.Type).Msg("inbound envelope handling failed")
				metrics.DecryptFailures.Inc()
			}
		}
	}
}

// daemonStatus adapts transport.Client into daemonctl.StatusSource.
type daemonStatus struct {
	client *transport.Client
}

func (d *daemonStatus) Status() daemonctl.Status {
	return daemonctl.Status{
		Connected: d.client.Status() == transport.Connected,
	}
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

// loadMasterKeyFromCredentialRef resolves a syncd.encryption_key_ref to
// an actual master key. The core never implements a specific OS
// keychain/secret-manager integration; ref is passed through to
// whichever external credential helper the deployment configures, kept
// as a seam so that integration doesn't have to live in this binary.
func loadMasterKeyFromCredentialRef(ref string) (crypto.MasterKey, error) {
	if ref == "" {
		return crypto.MasterKey{}, fmt.Errorf("lstsyncd: syncd.encryption_key_ref is not set")
	}
	return crypto.MasterKey{}, fmt.Errorf("lstsyncd: no credential helper configured for ref %q", ref)
}
