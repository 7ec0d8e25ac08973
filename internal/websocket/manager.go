// Package websocket delivers propagation events to open browser tabs.
//
// Every accepted connection becomes one subscriber on the propagation
// channel. Events are forwarded as JSON text frames through a bounded
// per-client queue; a tab that falls behind loses events rather than
// slowing anyone else down. Tabs treat every event as a hint to refetch.
package websocket

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/conneroisu/trattoria/internal/logging"
	"github.com/conneroisu/trattoria/internal/metrics"
	"github.com/conneroisu/trattoria/internal/pubsub"
)

const (
	sendBuffer   = 32
	writeTimeout = 10 * time.Second
	pingInterval = 54 * time.Second
	// Inbound frames are not expected; a chatty client is cut off.
	inboundRate  = 5
	inboundBurst = 10
)

// Manager accepts live connections and tracks connected clients.
//
// Invariants:
//   - clients is only touched by the hub goroutine and under clientsMutex
//   - a client's done channel closes exactly once, after which it receives nothing
type Manager struct {
	clients      map[string]*Client
	clientsMutex sync.RWMutex

	register   chan *Client
	unregister chan *Client

	source          Subscriber
	originValidator OriginValidator
	rateLimiter     *IPRateLimiter
	logger          logging.Logger

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	isShutdown   atomic.Bool
	hubDone      chan struct{}
}

// NewManager creates a manager forwarding events from source. rateLimiter
// may be nil to disable connection rate limiting.
func NewManager(source Subscriber, originValidator OriginValidator, rateLimiter *IPRateLimiter, logger logging.Logger) *Manager {
	if originValidator == nil {
		panic("websocket.Manager: originValidator cannot be nil")
	}
	if logger == nil {
		logger = logging.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		clients:         make(map[string]*Client),
		register:        make(chan *Client, 32),
		unregister:      make(chan *Client, 32),
		source:          source,
		originValidator: originValidator,
		rateLimiter:     rateLimiter,
		logger:          logger.WithComponent("websocket"),
		ctx:             ctx,
		cancel:          cancel,
		hubDone:         make(chan struct{}),
	}

	go m.runHub()
	return m
}

// ServeHTTP upgrades the request and starts forwarding events.
//
// Responses before the upgrade:
//   - 503 once the manager is shut down
//   - 403 for a disallowed Origin
//   - 429 when the client IP exceeds its connection rate
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if m.IsShutdown() {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	origin := r.Header.Get("Origin")
	if !m.originValidator.IsAllowedOrigin(origin) {
		m.logger.Warn(r.Context(), nil, "Live connection rejected: origin not allowed", "origin", origin)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	ip := clientIP(r)
	if m.rateLimiter != nil && !m.rateLimiter.Allow(ip) {
		m.logger.Warn(r.Context(), nil, "Live connection rejected: rate limit exceeded", "ip", ip)
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Origin has already been validated above.
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		m.logger.Warn(r.Context(), err, "Live connection upgrade failed", "ip", ip)
		return
	}

	client := &Client{
		id:          uuid.NewString(),
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		done:        make(chan struct{}),
		remoteIP:    ip,
		connectedAt: time.Now().UTC(),
		messages:    rate.NewLimiter(rate.Limit(inboundRate), inboundBurst),
	}

	select {
	case m.register <- client:
	case <-m.ctx.Done():
		conn.Close(websocket.StatusServiceRestart, "server shutting down")
		return
	}

	if m.source != nil {
		client.unsubscribe = m.source.Subscribe(func(ev pubsub.Event) {
			m.deliver(client, ev)
		})
	}

	go m.writePump(client)
	m.readPump(client)
}

func (m *Manager) deliver(client *Client, ev pubsub.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		m.logger.Error(m.ctx, err, "Failed to encode event", "type", ev.Type)
		return
	}
	select {
	case <-client.done:
	case client.send <- data:
	default:
		metrics.EventsDroppedTotal.Inc()
		m.logger.Debug(m.ctx, "Live client queue full, dropping event", "client", client.id, "type", ev.Type)
	}
}

func (m *Manager) runHub() {
	defer close(m.hubDone)
	for {
		select {
		case client := <-m.register:
			m.clientsMutex.Lock()
			m.clients[client.id] = client
			count := len(m.clients)
			m.clientsMutex.Unlock()
			metrics.LiveClients.Set(float64(count))
			m.logger.Debug(m.ctx, "Live client connected", "client", client.id, "clients", count)

		case client := <-m.unregister:
			m.clientsMutex.Lock()
			_, ok := m.clients[client.id]
			delete(m.clients, client.id)
			count := len(m.clients)
			m.clientsMutex.Unlock()
			if ok {
				client.stop()
				metrics.LiveClients.Set(float64(count))
				m.logger.Debug(m.ctx, "Live client disconnected", "client", client.id, "clients", count)
			}

		case <-m.ctx.Done():
			return
		}
	}
}

// readPump consumes inbound frames until the connection ends. Browsers only
// send control frames; anything else counts against the client's limiter.
func (m *Manager) readPump(client *Client) {
	defer func() {
		select {
		case m.unregister <- client:
		case <-m.ctx.Done():
			client.stop()
		}
		client.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, _, err := client.conn.Read(m.ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure &&
				websocket.CloseStatus(err) != websocket.StatusGoingAway && m.ctx.Err() == nil {
				m.logger.Debug(m.ctx, "Live client read ended", "client", client.id, "error", err.Error())
			}
			return
		}
		if !client.messages.Allow() {
			m.logger.Warn(m.ctx, nil, "Live client exceeded inbound message rate", "client", client.id)
			client.conn.Close(websocket.StatusPolicyViolation, "too many messages")
			return
		}
	}
}

func (m *Manager) writePump(client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-client.send:
			ctx, cancel := context.WithTimeout(m.ctx, writeTimeout)
			err := client.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				client.conn.Close(websocket.StatusInternalError, "write failed")
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(m.ctx, writeTimeout)
			err := client.conn.Ping(ctx)
			cancel()
			if err != nil {
				client.conn.Close(websocket.StatusGoingAway, "ping failed")
				return
			}

		case <-client.done:
			return
		case <-m.ctx.Done():
			return
		}
	}
}

// ConnectedClients returns the number of connected tabs.
func (m *Manager) ConnectedClients() int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	return len(m.clients)
}

// Clients returns a description of every connected tab.
func (m *Manager) Clients() []ClientInfo {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	infos := make([]ClientInfo, 0, len(m.clients))
	for _, c := range m.clients {
		infos = append(infos, ClientInfo{ID: c.id, RemoteIP: c.remoteIP, ConnectedAt: c.connectedAt})
	}
	return infos
}

// Shutdown closes every connection and stops the hub.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.shutdownOnce.Do(func() {
		m.isShutdown.Store(true)
		m.cancel()

		m.clientsMutex.Lock()
		for id, client := range m.clients {
			client.stop()
			client.conn.Close(websocket.StatusGoingAway, "server shutdown")
			delete(m.clients, id)
		}
		m.clientsMutex.Unlock()
		metrics.LiveClients.Set(0)
	})

	select {
	case <-m.hubDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsShutdown reports whether Shutdown has been called.
func (m *Manager) IsShutdown() bool {
	return m.isShutdown.Load()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
