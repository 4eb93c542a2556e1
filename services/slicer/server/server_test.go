// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cogentcore.org/core/math32"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSlice/services/slicer/background"
	"github.com/AleutianAI/AleutianSlice/services/slicer/config"
	"github.com/AleutianAI/AleutianSlice/services/slicer/geometry"
	"github.com/AleutianAI/AleutianSlice/services/slicer/model"
	"github.com/AleutianAI/AleutianSlice/services/slicer/sla"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSource struct {
	print   *sla.Print
	running bool
}

func (f *fakeSource) Print() *sla.Print { return f.print }
func (f *fakeSource) Running() bool     { return f.running }

func processedSource(t *testing.T) *fakeSource {
	t.Helper()
	m := model.New()
	o := m.AddObjectFromMesh("cube", "", geometry.MakeCube(10, 10, 10))
	o.AddInstance()
	require.NoError(t, o.SetInstanceOffset(0, math32.Vec3(20, 20, 0)))

	p := sla.New()
	_, err := p.Apply(m, config.Bundle{
		"supports_enable":      false,
		"pad_enable":           false,
		"layer_height":         1.0,
		"initial_layer_height": 1.0,
	})
	require.NoError(t, err)
	require.NoError(t, p.Process(context.Background()))
	return &fakeSource{print: p, running: true}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	h.ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	s := New(&fakeSource{print: sla.New(), running: true}, "test")
	w := get(t, s.Handler(), "/healthz")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["running"])
}

func TestServer_StatusEmpty(t *testing.T) {
	s := New(&fakeSource{print: sla.New()}, "test")
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(get(t, s.Handler(), "/status").Body.Bytes(), &resp))
	assert.False(t, resp.Running)
	assert.Empty(t, resp.Objects)
	assert.Nil(t, resp.LastEvent)
}

func TestServer_StatusProcessed(t *testing.T) {
	s := New(processedSource(t), "test")
	s.Publish(background.Event{Round: "r1", Kind: background.EventFinished, Percent: 100, Time: time.Unix(10, 0)})

	w := get(t, s.Handler(), "/status")
	require.Equal(t, http.StatusOK, w.Code)
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.True(t, resp.UpToDate)
	assert.True(t, resp.Finished)
	assert.Equal(t, 10, resp.PrinterLayers)
	require.Len(t, resp.Objects, 1)
	obj := resp.Objects[0]
	assert.Equal(t, "cube", obj.Name)
	assert.Equal(t, 1, obj.Instances)
	assert.Equal(t, 10, obj.Layers)
	assert.True(t, obj.Steps["object_slice"])
	assert.True(t, obj.Steps["index_slices"])
	assert.Len(t, obj.Steps, len(sla.ObjectSteps()))

	require.NotNil(t, resp.LastEvent)
	assert.Equal(t, "finished", resp.LastEvent.Kind)
	assert.Equal(t, "r1", resp.LastEvent.Round)
}

func TestServer_Metrics(t *testing.T) {
	s := New(&fakeSource{print: sla.New()}, "test")
	w := get(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "aleutian_slicer_server_event_clients")
}

func TestNewEventView(t *testing.T) {
	v := NewEventView(background.Event{Kind: background.EventApplied, Apply: sla.ApplyInvalidated})
	assert.Equal(t, "applied", v.Kind)
	assert.Equal(t, sla.ApplyInvalidated.String(), v.Apply)
	assert.Empty(t, v.Error)

	v = NewEventView(background.Event{Kind: background.EventFailed, Err: errors.New("boom")})
	assert.Equal(t, "failed", v.Kind)
	assert.Empty(t, v.Apply)
	assert.Equal(t, "boom", v.Error)
}

func readEvent(t *testing.T, conn *websocket.Conn) EventView {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var v EventView
	require.NoError(t, conn.ReadJSON(&v))
	return v
}

func TestServer_EventStream(t *testing.T) {
	s := New(&fakeSource{print: sla.New()}, "test")
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	s.Publish(background.Event{Round: "r1", Kind: background.EventApplied, Apply: sla.ApplyChanged})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	first := readEvent(t, conn)
	assert.Equal(t, "applied", first.Kind, "late joiners get the latest event")

	require.Eventually(t, func() bool { return s.hub.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	s.Publish(background.Event{Round: "r1", Kind: background.EventStatus, Percent: 40, Message: "support_tree"})
	next := readEvent(t, conn)
	assert.Equal(t, "status", next.Kind)
	assert.Equal(t, 40, next.Percent)
	assert.Equal(t, "support_tree", next.Message)

	s.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Equal(t, 0, s.hub.count())
}

func TestServer_EventStreamAfterClose(t *testing.T) {
	s := New(&fakeSource{print: sla.New()}, "test")
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	s.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestServer_EventsRequireUpgrade(t *testing.T) {
	s := New(&fakeSource{print: sla.New()}, "test")
	w := get(t, s.Handler(), "/events")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_Run(t *testing.T) {
	s := New(&fakeSource{print: sla.New()}, "test")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
