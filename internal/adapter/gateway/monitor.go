package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"uiagent/internal/domain"
)

const (
	monitorQueueSize    = 64
	monitorWriteTimeout = 5 * time.Second
)

var localOrigins = []string{
	"localhost",
	"localhost:*",
	"127.0.0.1",
	"127.0.0.1:*",
	"[::1]",
	"[::1]:*",
}

// monitorConn is one connected monitor client.
type monitorConn struct {
	info      *ClientInfo
	ws        *websocket.Conn
	sendCh    chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

func (c *monitorConn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Monitor streams every bus event to authenticated WebSocket clients. It is
// read-only: frames sent by clients are ignored.
type Monitor struct {
	auth     Authenticator
	logger   *slog.Logger
	patterns []string
	clients  sync.Map // uint64 -> *monitorConn
	nextID   atomic.Uint64
	dropped  atomic.Int64
	unsub    func()
}

// NewMonitor subscribes to bus. origins are the browser origins allowed to
// connect in addition to localhost.
func NewMonitor(bus domain.EventBus, auth Authenticator, origins []string, logger *slog.Logger) *Monitor {
	m := &Monitor{
		auth:     auth,
		logger:   logger,
		patterns: originPatterns(origins),
	}
	m.unsub = bus.SubscribeAll(m.broadcast)
	return m
}

func (m *Monitor) broadcast(_ context.Context, event domain.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	frame := Frame{Type: FrameTypeEvent, Payload: payload}
	m.clients.Range(func(_, value any) bool {
		cc := value.(*monitorConn)
		select {
		case cc.sendCh <- frame:
		default:
			m.dropped.Add(1)
			m.logger.Warn("monitor: dropped event for slow client", "client", cc.info.Name, "event", event.Type)
		}
		return true
	})
}

// ServeHTTP upgrades an authenticated request and writes frames until the
// client goes away or the monitor closes.
func (m *Monitor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	info, err := m.auth.Authenticate(requestToken(r))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: m.patterns})
	if err != nil {
		m.logger.Warn("websocket accept failed", "error", err)
		return
	}

	connID := m.nextID.Add(1)
	cc := &monitorConn{
		info:   info,
		ws:     ws,
		sendCh: make(chan Frame, monitorQueueSize),
		done:   make(chan struct{}),
	}
	cc.sendCh <- Frame{Type: FrameTypeHello, Client: info.Name}
	m.clients.Store(connID, cc)
	m.logger.Info("monitor client connected", "conn_id", connID, "client", info.Name)

	ctx := ws.CloseRead(r.Context())
	m.writeLoop(ctx, cc)

	cc.close()
	m.clients.Delete(connID)
	ws.Close(websocket.StatusNormalClosure, "")
	m.logger.Info("monitor client disconnected", "conn_id", connID)
}

func (m *Monitor) writeLoop(ctx context.Context, cc *monitorConn) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-cc.done:
			return
		case frame := <-cc.sendCh:
			wctx, cancel := context.WithTimeout(ctx, monitorWriteTimeout)
			err := wsjson.Write(wctx, cc.ws, frame)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// Clients returns the number of connected clients.
func (m *Monitor) Clients() int {
	n := 0
	m.clients.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Dropped returns how many frames were discarded for slow clients.
func (m *Monitor) Dropped() int64 { return m.dropped.Load() }

// Close unsubscribes from the bus and disconnects every client.
func (m *Monitor) Close() {
	if m.unsub != nil {
		m.unsub()
	}
	m.clients.Range(func(key, value any) bool {
		cc := value.(*monitorConn)
		cc.close()
		cc.ws.Close(websocket.StatusGoingAway, "server shutting down")
		m.clients.Delete(key)
		return true
	})
}

// originPatterns converts CORS origins ("http://host:port") to the host
// patterns websocket.Accept matches against.
func originPatterns(origins []string) []string {
	patterns := append([]string(nil), localOrigins...)
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}
		patterns = append(patterns, u.Host)
	}
	return patterns
}
