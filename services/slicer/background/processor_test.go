// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package background

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"cogentcore.org/core/math32"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSlice/services/slicer/config"
	"github.com/AleutianAI/AleutianSlice/services/slicer/geometry"
	"github.com/AleutianAI/AleutianSlice/services/slicer/model"
	"github.com/AleutianAI/AleutianSlice/services/slicer/sla"
)

var plain = config.Bundle{
	"supports_enable":      false,
	"pad_enable":           false,
	"layer_height":         1.0,
	"initial_layer_height": 1.0,
}

func cubes(t *testing.T, n int) *model.Model {
	t.Helper()
	m := model.New()
	for i := range n {
		o := m.AddObjectFromMesh(fmt.Sprintf("cube%d", i), "", geometry.MakeCube(10, 10, 10))
		o.AddInstance()
		require.NoError(t, o.SetInstanceOffset(0, math32.Vec3(float32(5+20*i), 10, 0)))
	}
	return m
}

// collector records events and forwards the non-status ones.
type collector struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newCollector() *collector {
	return &collector{ch: make(chan Event, 64)}
}

func (c *collector) handle(e Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	if e.Kind != EventStatus {
		c.ch <- e
	}
}

func (c *collector) next(t *testing.T) Event {
	t.Helper()
	select {
	case e := <-c.ch:
		return e
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for an event")
		return Event{}
	}
}

func (c *collector) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func startProcessor(t *testing.T, cfg Config, opts ...Option) *Processor {
	t.Helper()
	p := New(cfg, nil, opts...)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(p.Stop)
	return p
}

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "status", EventStatus.String())
	assert.Equal(t, "finished", EventFinished.String())
	assert.Equal(t, "unknown", EventKind(42).String())
}

func TestProcessor_Lifecycle(t *testing.T) {
	p := New(Config{}, nil)
	assert.ErrorIs(t, p.Apply(cubes(t, 1), plain), ErrNotRunning)
	assert.ErrorIs(t, p.Apply(nil, plain), sla.ErrNilModel)

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.Running())
	assert.ErrorIs(t, p.Start(context.Background()), ErrRunning)

	p.Stop()
	p.Stop()
	assert.False(t, p.Running())
}

func TestProcessor_ContextStopsLoop(t *testing.T) {
	ctx, cancelFn := context.WithCancel(context.Background())
	p := New(Config{}, nil)
	require.NoError(t, p.Start(ctx))
	cancelFn()
	assert.Eventually(t, func() bool { return !p.Running() }, 5*time.Second, 10*time.Millisecond)
}

func TestProcessor_ApplyProcesses(t *testing.T) {
	c := newCollector()
	p := startProcessor(t, Config{}, WithEventHandler(c.handle))

	m := cubes(t, 1)
	require.NoError(t, p.Apply(m, plain))
	// The caller keeps editing its own model.
	m.ClearObjects()

	applied := c.next(t)
	require.Equal(t, EventApplied, applied.Kind)
	assert.Equal(t, sla.ApplyChanged, applied.Apply)
	_, err := uuid.Parse(applied.Round)
	assert.NoError(t, err)

	finished := c.next(t)
	require.Equal(t, EventFinished, finished.Kind)
	assert.Equal(t, applied.Round, finished.Round)

	assert.True(t, p.Print().Finished())
	assert.Len(t, p.Print().Objects(), 1)
	assert.Len(t, p.Print().PrinterInput(), 10)
}

func TestProcessor_LatestSnapshotWins(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	c := newCollector()
	handler := func(e Event) {
		if e.Kind == EventApplied {
			once.Do(func() { <-release })
		}
		c.handle(e)
	}
	p := startProcessor(t, Config{}, WithEventHandler(handler))
	before := testutil.ToFloat64(snapshotsReplacedTotal)

	require.NoError(t, p.Apply(cubes(t, 1), plain))
	// Wait for the loop to take the first snapshot and block in the handler.
	require.Eventually(t, func() bool { return !p.hasPending() }, 5*time.Second, time.Millisecond)

	require.NoError(t, p.Apply(cubes(t, 2), plain))
	require.NoError(t, p.Apply(cubes(t, 3), plain))
	assert.Equal(t, before+1, testutil.ToFloat64(snapshotsReplacedTotal))
	close(release)

	var applied, finished int
	for finished < 2 {
		switch e := c.next(t); e.Kind {
		case EventApplied:
			applied++
		case EventFinished:
			finished++
		case EventFailed:
			t.Fatalf("unexpected failure: %v", e.Err)
		}
	}
	assert.Equal(t, 2, applied)
	assert.Len(t, p.Print().Objects(), 3)
	assert.True(t, p.Print().Finished())
}

func TestProcessor_RejectedSnapshot(t *testing.T) {
	c := newCollector()
	p := startProcessor(t, Config{}, WithEventHandler(c.handle))

	require.NoError(t, p.Apply(cubes(t, 1), config.Bundle{"layer_height": -1.0}))
	e := c.next(t)
	require.Equal(t, EventFailed, e.Kind)
	assert.ErrorIs(t, e.Err, sla.ErrInvalidConfig)
	assert.True(t, p.Print().Empty())
}

func TestProcessor_StatusThrottled(t *testing.T) {
	c := newCollector()
	p := startProcessor(t, Config{StatusInterval: time.Hour, StatusBurst: 1}, WithEventHandler(c.handle))

	require.NoError(t, p.Apply(cubes(t, 3), plain))
	for e := c.next(t); e.Kind != EventFinished; e = c.next(t) {
	}

	partial := 0
	for _, e := range c.snapshot() {
		if e.Kind == EventStatus && e.Percent < 100 {
			partial++
		}
	}
	assert.LessOrEqual(t, partial, 1)
}
