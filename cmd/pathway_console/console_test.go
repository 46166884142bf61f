package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w1xm/pathway_interface/internal/logger"
	"github.com/w1xm/pathway_interface/pathway"
	"github.com/w1xm/pathway_interface/pathway/simulator"
)

func newSession(t *testing.T) (*pathway.Session, *simulator.Simulator) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	sim, conn := simulator.New(simulator.WithSlewRate(0), simulator.WithLogger(logger.Discard()))
	go sim.Run(ctx)
	s := pathway.New(conn, pathway.WithLogger(logger.Discard()), pathway.WithTiming(pathway.Timing{
		Settle:       10 * time.Millisecond,
		Poll:         20 * time.Millisecond,
		AxisDelay:    10 * time.Millisecond,
		MaxDrain:     time.Second,
		QueueTimeout: 5 * time.Second,
	}))
	t.Cleanup(func() {
		s.Close()
		cancel()
	})
	return s, sim
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	s, sim := newSession(t)
	var out bytes.Buffer

	require.NoError(t, run(ctx, &out, s, ":init"))
	assert.True(t, sim.InMenu())

	require.NoError(t, run(ctx, &out, s, ":move 90 30"))
	az, el := sim.Target()
	assert.Equal(t, 90.0, az)
	assert.Equal(t, 30.0, el)

	out.Reset()
	require.NoError(t, run(ctx, &out, s, ":pos"))
	assert.Equal(t, "azimuth 90.00 elevation 30.00\n", out.String())

	out.Reset()
	require.NoError(t, run(ctx, &out, s, "a 0"))
	assert.Contains(t, out.String(), "Angle[0]")

	assert.Error(t, run(ctx, &out, s, ":move 1"))
	assert.Error(t, run(ctx, &out, s, ":move x 1"))
	assert.Error(t, run(ctx, &out, s, ":bogus"))
}
