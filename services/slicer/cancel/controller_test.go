// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cancel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelType_String(t *testing.T) {
	tests := []struct {
		ct       CancelType
		expected string
	}{
		{CancelUser, "user"},
		{CancelSuperseded, "superseded"},
		{CancelStopCondition, "stop_condition"},
		{CancelParent, "parent"},
		{CancelShutdown, "shutdown"},
		{CancelType(99), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.ct.String())
		})
	}
}

func TestController_RunningCheck(t *testing.T) {
	c := NewController(context.Background())
	assert.NoError(t, c.Check())
	assert.Equal(t, StateRunning, c.State())
	_, ok := c.Reason()
	assert.False(t, ok)
}

func TestController_Cancel(t *testing.T) {
	var calls atomic.Int32
	c := NewController(context.Background(), WithCancelCallback(func(CancelReason) {
		calls.Add(1)
	}))
	before := testutil.ToFloat64(cancellationsTotal.WithLabelValues("superseded"))

	c.Cancel(CancelReason{Type: CancelSuperseded, Message: "new snapshot"})
	c.Cancel(CancelReason{Type: CancelUser})

	err := c.Check()
	require.Error(t, err)
	assert.True(t, IsCanceled(err))

	var ce *CanceledError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, CancelSuperseded, ce.Reason.Type)
	assert.False(t, ce.Reason.Timestamp.IsZero())
	assert.Contains(t, err.Error(), "new snapshot")

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, StateCanceled, c.State())
	assert.Error(t, c.Context().Err())
	assert.Equal(t, before+1, testutil.ToFloat64(cancellationsTotal.WithLabelValues("superseded")))
}

func TestController_ParentCanceled(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	c := NewController(parent)
	cancelParent()

	err := c.Check()
	require.Error(t, err)
	reason, ok := c.Reason()
	require.True(t, ok)
	assert.Equal(t, CancelParent, reason.Type)
	assert.True(t, c.Canceled())
}

func TestController_StopCondition(t *testing.T) {
	var stop atomic.Bool
	c := NewController(context.Background(), WithStopCondition(stop.Load))
	assert.NoError(t, c.Check())

	stop.Store(true)
	err := c.Check()
	require.Error(t, err)
	reason, _ := c.Reason()
	assert.Equal(t, CancelStopCondition, reason.Type)

	// Latched even after the predicate clears.
	stop.Store(false)
	assert.Error(t, c.Check())
}

func TestController_Nil(t *testing.T) {
	var c *Controller
	assert.NoError(t, c.Check())
	assert.False(t, c.Canceled())
	c.Cancel(CancelReason{})
	c.Status(50, "noop")
	assert.NotNil(t, c.Context())
}

func TestController_Status(t *testing.T) {
	var got []Status
	var mu sync.Mutex
	c := NewController(nil, WithStatus(func(s Status) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	}))
	c.Status(10, "slicing")
	c.Status(100, "done")
	require.Len(t, got, 2)
	assert.Equal(t, Status{Percent: 10, Message: "slicing"}, got[0])
}

func TestIsCanceled(t *testing.T) {
	assert.True(t, IsCanceled(context.Canceled))
	assert.True(t, IsCanceled(fmt.Errorf("step: %w", &CanceledError{})))
	assert.False(t, IsCanceled(errors.New("boom")))
	assert.False(t, IsCanceled(nil))
}

func TestController_ConcurrentCancel(t *testing.T) {
	var calls atomic.Int32
	c := NewController(context.Background(), WithCancelCallback(func(CancelReason) {
		calls.Add(1)
	}))
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Cancel(CancelReason{Type: CancelUser})
			_ = c.Check()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestController_Release(t *testing.T) {
	c := NewController(context.Background())
	c.Release()

	select {
	case <-c.Done():
	default:
		t.Fatal("released controller context still open")
	}
	assert.Equal(t, StateRunning, c.State())
	_, ok := c.Reason()
	assert.False(t, ok)

	var nilCtl *Controller
	nilCtl.Release()
}
