package monitor

import (
	"context"
	"encoding/json"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundMB(t *testing.T) {
	cases := map[uint64]float64{
		0:                 0,
		1024 * 1024:       1,
		1536 * 1024:       1.5,
		1024*1024 + 5243:  1.01,
		16*1024*1024*1024: 16384,
	}
	for bytes, want := range cases {
		assert.Equal(t, want, roundMB(bytes), bytes)
	}
}

func TestMemoryStatsWireShape(t *testing.T) {
	raw, err := json.Marshal(MemoryStats{Total: 16384, Available: 8192.25, Used: 8191.75})
	require.NoError(t, err)
	assert.JSONEq(t, `{"memory_total":16384,"memory_available":8192.25,"memory_used":8191.75}`, string(raw))
}

func TestMemorySnapshot(t *testing.T) {
	stats, err := Memory()
	require.NoError(t, err)
	assert.Greater(t, stats.Total, 0.0)
	assert.GreaterOrEqual(t, stats.Total, stats.Used)
}

func TestSelfMonitor(t *testing.T) {
	m, err := Self(500, time.Second)
	require.NoError(t, err)

	used, err := m.residentMB()
	require.NoError(t, err)
	assert.Greater(t, used, 0.0)
}

func TestWatchDisabledWaitsForContext(t *testing.T) {
	m, err := Self(0, time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Watch(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not return after cancel")
	}
}

func TestWithSignalCancelMapsCauses(t *testing.T) {
	ctx, stop := WithSignalCancel(context.Background())
	defer stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR2))

	select {
	case <-ctx.Done():
		assert.ErrorIs(t, context.Cause(ctx), ErrTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("signal did not cancel the context")
	}
}

func TestWithSignalCancelStopReleases(t *testing.T) {
	ctx, stop := WithSignalCancel(context.Background())
	stop()
	<-ctx.Done()
	assert.ErrorIs(t, context.Cause(ctx), context.Canceled)
}
