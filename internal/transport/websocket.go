package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrInvalidURL = errors.New("transport: invalid websocket url")

// WebSocketConfig configures the Wi-Fi link. The firmware serves a bare websocket on
// port 9999 and exchanges one frame per binary message.
type WebSocketConfig struct {
	URL            string
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	TLS            TLSConfig
	Header         http.Header
}

func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		URL:            "ws://192.168.4.1:9999",
		ConnectTimeout: 5 * time.Second,
		WriteTimeout:   5 * time.Second,
	}
}

func (c WebSocketConfig) WithDefaults() WebSocketConfig {
	d := DefaultWebSocketConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	return c
}

// WebSocket is a Channel over a gorilla websocket connection.
type WebSocket struct {
	*Conn
	cfg WebSocketConfig

	mu  sync.Mutex
	ws  *websocket.Conn
	wmu sync.Mutex
}

var _ Channel = (*WebSocket)(nil)

func NewWebSocket(cfg WebSocketConfig, opts ...Option) *WebSocket {
	w := &WebSocket{
		Conn: newConn("websocket", buildOptions(opts)),
		cfg:  cfg.WithDefaults(),
	}
	w.isClean = isWebSocketClean
	return w
}

func (w *WebSocket) Open(ctx context.Context) error {
	ctx, err := w.beginOpen(ctx)
	if err != nil {
		return err
	}
	defer w.endOpen()

	dialer, err := w.dialer()
	if err != nil {
		w.fail(err)
		return err
	}
	dialCtx, cancel := context.WithTimeout(ctx, w.cfg.ConnectTimeout)
	defer cancel()
	conn, resp, err := dialer.DialContext(dialCtx, w.cfg.URL, w.cfg.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		err = fmt.Errorf("%w: %s: %v", ErrConnect, w.cfg.URL, err)
		w.fail(err)
		return err
	}
	if !w.attach(func() error { return closeWebSocket(conn) }) {
		_ = conn.Close()
		return ErrChannelClosed
	}
	w.mu.Lock()
	w.ws = conn
	w.mu.Unlock()
	w.log.Debug().Str("url", w.cfg.URL).Msg("transport.WebSocket dialed")
	return w.connected(func() ([]byte, error) {
		return readBinary(conn)
	})
}

func (w *WebSocket) Write(ctx context.Context, frame []byte) error {
	if err := w.writable(); err != nil {
		return err
	}
	w.mu.Lock()
	conn := w.ws
	w.mu.Unlock()

	w.wmu.Lock()
	defer w.wmu.Unlock()
	deadline := time.Now().Add(w.cfg.WriteTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		w.lost(err)
		return fmt.Errorf("transport: websocket write: %w", err)
	}
	w.wrote(len(frame))
	return nil
}

func (w *WebSocket) dialer() (*websocket.Dialer, error) {
	u, err := url.Parse(strings.TrimSpace(w.cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	d := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: w.cfg.ConnectTimeout,
	}
	switch u.Scheme {
	case "ws":
	case "wss":
		tlsCfg, err := w.cfg.TLS.ClientConfig(u.Host)
		if err != nil {
			return nil, err
		}
		d.TLSClientConfig = tlsCfg
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	return d, nil
}

// readBinary skips text messages; the firmware only speaks binary frames.
func readBinary(conn *websocket.Conn) ([]byte, error) {
	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.BinaryMessage {
			return msg, nil
		}
	}
}

func closeWebSocket(conn *websocket.Conn) error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return conn.Close()
}

func isWebSocketClean(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
