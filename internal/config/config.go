package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/ratlink/internal/logging"
	"github.com/danmuck/ratlink/internal/protocol"
	"github.com/danmuck/ratlink/internal/protocol/frame"
	"github.com/danmuck/ratlink/internal/protocol/session"
	"github.com/danmuck/ratlink/internal/transport"
)

var ErrInvalidConfig = errors.New("config: invalid")

// Link names the physical transport.
type Link string

const (
	LinkWebSocket Link = "websocket"
	LinkSerial    Link = "serial"
)

// Config is everything ratctl needs to reach one robot.
type Config struct {
	Link      Link
	WebSocket transport.WebSocketConfig
	// WebSocketMonitor enables inactivity detection on the Wi-Fi link. Serial links
	// always monitor.
	WebSocketMonitor bool
	Serial           transport.SerialConfig
	Session          session.Config
	Redial           bool
	LogLevel         string
	MetricsAddr      string
}

func Default() Config {
	return Config{
		Link:      LinkWebSocket,
		WebSocket: transport.DefaultWebSocketConfig(),
		Serial:    transport.DefaultSerialConfig(),
		Session:   session.DefaultConfig(),
		LogLevel:  "info",
	}
}

type fileConfig struct {
	Transport   string `toml:"transport"`
	LogLevel    string `toml:"log_level"`
	MetricsAddr string `toml:"metrics_addr"`

	WebSocket struct {
		URL                   string `toml:"url"`
		ConnectTimeout        string `toml:"connect_timeout"`
		ConnectTimeoutMS      int64  `toml:"connect_timeout_ms"`
		WriteTimeout          string `toml:"write_timeout"`
		WriteTimeoutMS        int64  `toml:"write_timeout_ms"`
		Monitor               bool   `toml:"monitor"`
		TLSCAFile             string `toml:"tls_ca_file"`
		TLSServerName         string `toml:"tls_server_name"`
		TLSInsecureSkipVerify bool   `toml:"tls_insecure_skip_verify"`
	} `toml:"websocket"`

	Serial struct {
		Device        string `toml:"device"`
		Baud          int    `toml:"baud"`
		ReadTimeout   string `toml:"read_timeout"`
		ReadTimeoutMS int64  `toml:"read_timeout_ms"`
		Framing       string `toml:"framing"`
		NotifySize    int    `toml:"notify_size"`
		MaxFrameBytes int    `toml:"max_frame_bytes"`
	} `toml:"serial"`

	Session struct {
		MonitorInterval       string `toml:"monitor_interval"`
		MonitorIntervalMS     int64  `toml:"monitor_interval_ms"`
		InactivityThreshold   string `toml:"inactivity_threshold"`
		InactivityThresholdMS int64  `toml:"inactivity_threshold_ms"`
		Trailing              string `toml:"trailing"`
		MaxDecodeFailures     int    `toml:"max_decode_failures"`
	} `toml:"session"`

	Redial struct {
		Enabled      bool    `toml:"enabled"`
		MaxAttempts  int     `toml:"max_attempts"`
		InitialDelay string  `toml:"initial_delay"`
		MaxDelay     string  `toml:"max_delay"`
		Multiplier   float64 `toml:"multiplier"`
		Jitter       bool    `toml:"jitter"`
	} `toml:"redial"`
}

// Load reads a TOML file over Default. Keys absent from the file keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load ratlink config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q", ErrInvalidConfig, undecoded[0].String())
	}

	if meta.IsDefined("transport") {
		cfg.Link = Link(strings.ToLower(strings.TrimSpace(raw.Transport)))
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}

	ws := raw.WebSocket
	if meta.IsDefined("websocket", "url") {
		cfg.WebSocket.URL = strings.TrimSpace(ws.URL)
	}
	if err := duration(meta, "websocket", "connect_timeout", ws.ConnectTimeout, ws.ConnectTimeoutMS, &cfg.WebSocket.ConnectTimeout); err != nil {
		return Config{}, err
	}
	if err := duration(meta, "websocket", "write_timeout", ws.WriteTimeout, ws.WriteTimeoutMS, &cfg.WebSocket.WriteTimeout); err != nil {
		return Config{}, err
	}
	if meta.IsDefined("websocket", "monitor") {
		cfg.WebSocketMonitor = ws.Monitor
	}
	if meta.IsDefined("websocket", "tls_ca_file") {
		cfg.WebSocket.TLS.CAFile = strings.TrimSpace(ws.TLSCAFile)
	}
	if meta.IsDefined("websocket", "tls_server_name") {
		cfg.WebSocket.TLS.ServerName = strings.TrimSpace(ws.TLSServerName)
	}
	if meta.IsDefined("websocket", "tls_insecure_skip_verify") {
		cfg.WebSocket.TLS.InsecureSkipVerify = ws.TLSInsecureSkipVerify
	}

	sr := raw.Serial
	if meta.IsDefined("serial", "device") {
		cfg.Serial.Device = strings.TrimSpace(sr.Device)
	}
	if meta.IsDefined("serial", "baud") {
		cfg.Serial.Baud = sr.Baud
	}
	if err := duration(meta, "serial", "read_timeout", sr.ReadTimeout, sr.ReadTimeoutMS, &cfg.Serial.ReadTimeout); err != nil {
		return Config{}, err
	}
	if meta.IsDefined("serial", "framing") {
		f, err := frame.ParseFraming(sr.Framing)
		if err != nil {
			return Config{}, fmt.Errorf("parse serial.framing: %w", err)
		}
		cfg.Serial.Framing = f
	}
	if meta.IsDefined("serial", "notify_size") {
		cfg.Serial.NotifySize = sr.NotifySize
	}
	if meta.IsDefined("serial", "max_frame_bytes") {
		cfg.Serial.Limits.MaxFrameBytes = sr.MaxFrameBytes
	}

	ss := raw.Session
	if err := duration(meta, "session", "monitor_interval", ss.MonitorInterval, ss.MonitorIntervalMS, &cfg.Session.MonitorInterval); err != nil {
		return Config{}, err
	}
	if err := duration(meta, "session", "inactivity_threshold", ss.InactivityThreshold, ss.InactivityThresholdMS, &cfg.Session.InactivityThreshold); err != nil {
		return Config{}, err
	}
	if meta.IsDefined("session", "trailing") {
		p, err := protocol.ParseTrailingPolicy(ss.Trailing)
		if err != nil {
			return Config{}, fmt.Errorf("parse session.trailing: %w", err)
		}
		cfg.Session.Trailing = p
	}
	if meta.IsDefined("session", "max_decode_failures") {
		cfg.Session.MaxDecodeFailures = ss.MaxDecodeFailures
	}

	rd := raw.Redial
	if meta.IsDefined("redial", "enabled") {
		cfg.Redial = rd.Enabled
	}
	if meta.IsDefined("redial", "max_attempts") {
		cfg.Session.MaxAttempts = rd.MaxAttempts
	}
	if err := duration(meta, "redial", "initial_delay", rd.InitialDelay, 0, &cfg.Session.Backoff.InitialDelay); err != nil {
		return Config{}, err
	}
	if err := duration(meta, "redial", "max_delay", rd.MaxDelay, 0, &cfg.Session.Backoff.MaxDelay); err != nil {
		return Config{}, err
	}
	if meta.IsDefined("redial", "multiplier") {
		cfg.Session.Backoff.Multiplier = rd.Multiplier
	}
	if meta.IsDefined("redial", "jitter") {
		cfg.Session.Backoff.Jitter = rd.Jitter
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// duration applies table.key (a Go duration string) or table.key_ms, in that order.
func duration(meta toml.MetaData, table, key, s string, ms int64, dst *time.Duration) error {
	if meta.IsDefined(table, key) {
		d, err := time.ParseDuration(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("parse %s.%s: %w", table, key, err)
		}
		*dst = d
	}
	if meta.IsDefined(table, key+"_ms") {
		*dst = time.Duration(ms) * time.Millisecond
	}
	return nil
}

func (c Config) Validate() error {
	switch c.Link {
	case LinkWebSocket:
		if strings.TrimSpace(c.WebSocket.URL) == "" {
			return fmt.Errorf("%w: websocket.url is required", ErrInvalidConfig)
		}
	case LinkSerial:
		if err := c.Serial.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		// Fixed framing hands the decoder whole zero-padded notifications.
		if c.Serial.Framing == frame.FramingFixed && c.Session.Trailing == protocol.TrailingReject {
			return fmt.Errorf("%w: session.trailing = %q drops every padded notification with serial.framing = %q",
				ErrInvalidConfig, c.Session.Trailing, c.Serial.Framing)
		}
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, c.Link)
	}
	if c.Session.MaxDecodeFailures < 0 {
		return fmt.Errorf("%w: session.max_decode_failures must not be negative", ErrInvalidConfig)
	}
	if c.Session.MaxAttempts < 0 {
		return fmt.Errorf("%w: redial.max_attempts must not be negative", ErrInvalidConfig)
	}
	if c.Session.MonitorInterval < 0 || c.Session.InactivityThreshold < 0 {
		return fmt.Errorf("%w: monitor durations must not be negative", ErrInvalidConfig)
	}
	if c.LogLevel != "" {
		if _, ok := logging.ParseLevel(c.LogLevel); !ok {
			return fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, c.LogLevel)
		}
	}
	return nil
}

// Factory returns a constructor for fresh channels of the configured link. A
// Redialer calls it once per attempt.
func (c Config) Factory() func() transport.Channel {
	monitor := c.Session.WithDefaults().Monitor()
	switch c.Link {
	case LinkSerial:
		sc := c.Serial
		sc.Monitor = monitor
		return func() transport.Channel { return transport.NewSerial(sc) }
	default:
		wc := c.WebSocket
		var opts []transport.Option
		if c.WebSocketMonitor {
			opts = append(opts, transport.WithMonitor(monitor))
		}
		return func() transport.Channel { return transport.NewWebSocket(wc, opts...) }
	}
}
