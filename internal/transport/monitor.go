package transport

import (
	"sync"
	"sync/atomic"
	"time"
)

// MonitorConfig configures inactivity detection.
type MonitorConfig struct {
	Interval  time.Duration
	Threshold time.Duration
}

func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:  time.Second,
		Threshold: time.Second,
	}
}

func (c MonitorConfig) WithDefaults() MonitorConfig {
	d := DefaultMonitorConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	return c
}

// Monitor infers link death from traffic recency. BLE notify links give no disconnect
// signal when the peer drops out of range, so silence is the only evidence.
type Monitor struct {
	cfg      MonitorConfig
	now      func() time.Time
	onExpire func()

	last     atomic.Int64
	fired    atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	start    sync.Once
}

func NewMonitor(cfg MonitorConfig, onExpire func()) *Monitor {
	return &Monitor{
		cfg:      cfg.WithDefaults(),
		now:      time.Now,
		onExpire: onExpire,
		stop:     make(chan struct{}),
	}
}

// Start records the current time as the last activity and begins periodic checks.
func (m *Monitor) Start() {
	m.start.Do(func() {
		m.Touch()
		go m.loop()
	})
}

// Touch records inbound activity.
func (m *Monitor) Touch() {
	m.last.Store(m.now().UnixNano())
}

// Stop cancels the periodic check. It never blocks and may be called from onExpire.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Expired reports whether the monitor fired.
func (m *Monitor) Expired() bool {
	return m.fired.Load()
}

// Idle returns the time since the last recorded activity.
func (m *Monitor) Idle() time.Duration {
	return m.now().Sub(time.Unix(0, m.last.Load()))
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			select {
			case <-m.stop:
				return
			default:
			}
			if m.Idle() <= m.cfg.Threshold {
				continue
			}
			if m.fired.CompareAndSwap(false, true) && m.onExpire != nil {
				m.onExpire()
			}
			return
		}
	}
}
