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

package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialScanEmitsModifiedForExistingFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("hi"), 0o644))

	w, err := New(Config{Root: root})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	select {
	case ev := <-w.Events():
		assert.Equal(t, filepath.Join(root, "a.md"), ev.Path)
		assert.Equal(t, Modified, ev.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial scan event")
	}
}

func TestRecentlyWrittenConsumeOnce(t *testing.T) {
	rw := NewRecentlyWritten()
	rw.Mark("/a/b.md")
	assert.True(t, rw.Consume("/a/b.md"))
	assert.False(t, rw.Consume("/a/b.md"))
}

func TestIgnoresHiddenAndExcludedFiles(t *testing.T) {
	root := t.TempDir()
	w, err := New(Config{Root: root, ExcludePatterns: []string{"secret/*"}})
	require.NoError(t, err)

	assert.True(t, w.ignored(filepath.Join(root, ".hidden.md")))
	assert.True(t, w.ignored(filepath.Join(root, "a.md~")))
	require.NoError(t, os.Mkdir(filepath.Join(root, "secret"), 0o755))
	assert.True(t, w.ignored(filepath.Join(root, "secret", "x.md")))
	assert.False(t, w.ignored(filepath.Join(root, "plain.md")))
}

func TestDebounceCoalescesRepeatedEvents(t *testing.T) {
	root := t.TempDir()
	w, err := New(Config{Root: root, DebounceMin: 50 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(root, "a.md")
	for i := 0; i < 5; i++ {
		w.schedule(ctx, path, Modified)
	}

	select {
	case ev := <-w.events:
		assert.Equal(t, path, ev.Path)
	case <-time.After(time.Second):
		t.Fatal("expected one coalesced event")
	}
	select {
	case ev := <-w.events:
		t.Fatalf("expected no second event, got %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}
