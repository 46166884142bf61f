package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w1xm/pathway_interface/internal/logger"
	"github.com/w1xm/pathway_interface/pathway"
)

type fakeRotator struct {
	mu    sync.Mutex
	moves [][2]float64
}

func (f *fakeRotator) MoveTo(ctx context.Context, az, el float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves = append(f.moves, [2]float64{az, el})
	return nil
}

func (f *fakeRotator) GetPosition(ctx context.Context) (float64, float64) {
	return 0, 0
}

func (f *fakeRotator) recorded() [][2]float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][2]float64(nil), f.moves...)
}

func TestStatusHandler(t *testing.T) {
	s := NewServer(&fakeRotator{}, logger.Discard())
	s.statusCallback(pathway.Status{AzPos: 12.5, ElPos: 30, Initialized: true})
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var got pathway.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, 12.5, got.AzPos)
	assert.Equal(t, 30.0, got.ElPos)
	assert.True(t, got.Initialized)
}

func TestStatusSocket(t *testing.T) {
	f := &fakeRotator{}
	s := NewServer(f, logger.Discard())
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var got pathway.Status
	require.NoError(t, conn.ReadJSON(&got))
	assert.False(t, got.Initialized)

	s.statusCallback(pathway.Status{AzPos: 90, ElPos: 45})
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, 90.0, got.AzPos)
	assert.Equal(t, 45.0, got.ElPos)

	require.NoError(t, conn.WriteJSON(Command{Command: "move", Azimuth: 180, Elevation: 10}))
	assert.Eventually(t, func() bool {
		return len(f.recorded()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, [][2]float64{{180, 10}}, f.recorded())
}
