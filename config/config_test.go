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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTemp(t, `
[paths]
content_dir = "/srv/notes"

[syncd]
database_path = "/srv/notes/.lstsync.db"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Sync.IntervalSeconds)
	assert.Equal(t, int64(10*1000*1000), cfg.Sync.MaxFileSizeBytes())
	assert.Equal(t, "bbolt", cfg.Relay.Backend)
}

func TestLoadRejectsMissingContentDir(t *testing.T) {
	path := writeTemp(t, `
[syncd]
database_path = "/srv/notes/.lstsync.db"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadExpandsMaxFileSize(t *testing.T) {
	path := writeTemp(t, `
[paths]
content_dir = "/srv/notes"

[syncd]
database_path = "/srv/notes/.lstsync.db"

[sync]
max_file_size = "2MiB"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(2*1024*1024), cfg.Sync.MaxFileSizeBytes())
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := writeTemp(t, "paths = [this is not valid")
	_, err := Load(path)
	assert.Error(t, err)
}
