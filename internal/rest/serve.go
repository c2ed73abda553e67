// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package rest exposes a read-only view of an in-flight stacking run's
// progress over HTTP, plus the process sandboxing helpers used by the CLI.
package rest

import (
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/mlnoga/luckystack/internal/pipeline"
)

// Tracker records the most recent progress update from a running
// pipeline.Stack call, safe for concurrent reads from HTTP handlers while the
// stacking goroutine writes to it.
type Tracker struct {
	mu       sync.RWMutex
	activity string
	percent  float64
	done     bool
}

// NewTracker returns an empty Tracker, ready to be passed as a
// pipeline.ProgressFunc-compatible callback via Tracker.Update.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Update implements pipeline.ProgressFunc: call it directly as the progress
// argument to Pipeline.Stack.
func (t *Tracker) Update(activity string, percent float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.activity = activity
	t.percent = percent
	if activity == "emit" && percent >= 100 {
		t.done = true
	}
}

// Snapshot is the current progress state, safe to marshal to JSON.
type Snapshot struct {
	Activity string  `json:"activity"`
	Percent  float64 `json:"percent"`
	Done     bool    `json:"done"`
}

func (t *Tracker) snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Snapshot{Activity: t.activity, Percent: t.percent, Done: t.done}
}

var _ pipeline.ProgressFunc = (*Tracker)(nil).Update

// Serve starts a minimal HTTP server exposing GET /progress, reporting the
// latest state published on tracker. It blocks until the listener fails.
func Serve(tracker *Tracker, addr string) error {
	r := gin.Default()
	r.GET("/progress", func(c *gin.Context) {
		c.JSON(200, tracker.snapshot())
	})
	return r.Run(addr)
}
