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

// Package taskctx propagates a goroutine-local task name across the
// daemon's cooperative tasks (watcher, local-event worker, transport
// reader/writer, compaction responder, snapshot trigger) so log lines
// and panic reports say which task they came from without threading a
// parameter through every call.
package taskctx

import (
	"runtime/debug"

	"github.com/jtolds/gls"
)

var mgr = gls.NewContextManager()

const taskKey = "task"

// Go spawns fn in a new goroutine tagged with name, recovering any
// panic into the returned error channel rather than crashing the
// daemon; each of the six task kinds in the concurrency model isolates
// faults this way so one failing task never takes down the others.
func Go(name string, fn func()) <-chan error {
	done := make(chan error, 1)
	gls.Go(func() {
		mgr.SetValues(gls.Values{taskKey: name}, func() {
			defer func() {
				if r := recover(); r != nil {
					done <- &PanicError{Task: name, Value: r, Stack: string(debug.Stack())}
					return
				}
				done <- nil
			}()
			fn()
		})
	})
	return done
}

// Current returns the task name set by the nearest enclosing Go call,
// or "" outside of one.
func Current() string {
	if v, ok := mgr.GetValue(taskKey); ok {
		return v.(string)
	}
	return ""
}

// PanicError wraps a recovered panic with the task it occurred in.
type PanicError struct {
	Task  string
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return "taskctx: task " + e.Task + " panicked: " + formatValue(e.Value)
}

func formatValue(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "non-string panic value"
}
