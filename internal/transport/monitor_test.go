package transport

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/ratlink/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestMonitorFiresExactlyOnce(t *testing.T) {
	testlog.Start(t)
	var fired atomic.Int32
	m := NewMonitor(MonitorConfig{Interval: 5 * time.Millisecond, Threshold: 20 * time.Millisecond}, func() {
		fired.Add(1)
	})
	m.Start()
	defer m.Stop()

	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(1), fired.Load())
	require.True(t, m.Expired())
}

func TestMonitorTouchJustUnderThresholdResets(t *testing.T) {
	testlog.Start(t)
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	var fired atomic.Int32
	m := NewMonitor(MonitorConfig{Interval: 2 * time.Millisecond, Threshold: time.Second}, func() {
		fired.Add(1)
	})
	m.now = clock.Now
	m.Start()
	defer m.Stop()

	clock.Advance(999 * time.Millisecond)
	m.Touch()
	clock.Advance(999 * time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, int32(0), fired.Load(), "frame under threshold must reset the timer")

	clock.Advance(2 * time.Millisecond)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 2*time.Millisecond)
}

func TestMonitorStopPreventsExpiry(t *testing.T) {
	testlog.Start(t)
	var fired atomic.Int32
	m := NewMonitor(MonitorConfig{Interval: 2 * time.Millisecond, Threshold: 10 * time.Millisecond}, func() {
		fired.Add(1)
	})
	m.Start()
	m.Stop()
	m.Stop()
	time.Sleep(40 * time.Millisecond)
	require.Equal(t, int32(0), fired.Load())
	require.False(t, m.Expired())
}

func TestMonitorConfigDefaults(t *testing.T) {
	testlog.Start(t)
	cfg := MonitorConfig{}.WithDefaults()
	require.Equal(t, time.Second, cfg.Interval)
	require.Equal(t, time.Second, cfg.Threshold)
}
