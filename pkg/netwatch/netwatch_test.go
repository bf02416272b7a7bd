package netwatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_ReconnectFiresOncePerEdge(t *testing.T) {
	m := NewMonitor(true, nil)
	var fired atomic.Int32
	m.OnReconnect(func() { fired.Add(1) })

	m.Set(true) // online -> online
	m.Set(false)
	m.Set(false)
	assert.False(t, m.IsOnline())
	m.Set(true)
	m.Set(true)

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestMonitor_ForceOverridesReachability(t *testing.T) {
	m := NewMonitor(true, nil)
	var fired atomic.Int32
	m.OnReconnect(func() { fired.Add(1) })
	changes := make(chan bool, 4)
	m.OnChange(func(online bool) { changes <- online })

	m.Force(true)
	assert.False(t, m.IsOnline())
	m.Set(false)
	m.Set(true) // still forced
	assert.False(t, m.IsOnline())

	m.Force(false)
	assert.True(t, m.IsOnline())

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	// Change handlers run concurrently, so only the set of transitions is fixed.
	assert.ElementsMatch(t, []bool{false, true}, []bool{<-changes, <-changes})
}

type fakePinger struct {
	down atomic.Bool
}

func (f *fakePinger) Ping(context.Context) error {
	if f.down.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func TestProber(t *testing.T) {
	m := NewMonitor(false, nil)
	p := &fakePinger{}
	prober := NewProber(p, m, 10*time.Millisecond, 0, nil)

	assert.True(t, prober.Probe(context.Background()))
	assert.True(t, m.IsOnline())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go prober.Run(ctx)

	p.down.Store(true)
	assert.Eventually(t, func() bool { return !m.IsOnline() }, time.Second, 5*time.Millisecond)

	p.down.Store(false)
	assert.Eventually(t, m.IsOnline, time.Second, 5*time.Millisecond)
}

func TestSignalWatcher(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, MarkOffline(dir))

	m := NewMonitor(true, nil)
	sw, err := NewSignalWatcher(dir, m, nil)
	require.NoError(t, err)
	require.NoError(t, sw.Start())
	defer sw.Stop()

	assert.False(t, m.IsOnline(), "marker present at start")

	require.NoError(t, MarkOnline(dir))
	assert.Eventually(t, m.IsOnline, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, MarkOffline(dir))
	assert.Eventually(t, func() bool { return !m.IsOnline() }, 2*time.Second, 10*time.Millisecond)

	// Removing twice is fine.
	require.NoError(t, MarkOnline(dir))
	require.NoError(t, MarkOnline(dir))
}
