package websocket

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/conneroisu/trattoria/internal/pubsub"
)

// Subscriber is the read side of the propagation channel.
type Subscriber interface {
	Subscribe(handler pubsub.Handler) (unsubscribe func())
}

// OriginValidator decides which browser origins may open a live connection.
type OriginValidator interface {
	IsAllowedOrigin(origin string) bool
}

// Client is one connected browser tab.
type Client struct {
	id          string
	conn        *websocket.Conn
	send        chan []byte
	done        chan struct{}
	closeOnce   sync.Once
	remoteIP    string
	connectedAt time.Time
	unsubscribe func()
	messages    *rate.Limiter
}

// ID returns the client's connection id.
func (c *Client) ID() string { return c.id }

func (c *Client) stop() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
	})
}

// ClientInfo describes a connected client for monitoring.
type ClientInfo struct {
	ID          string    `json:"id"`
	RemoteIP    string    `json:"remoteIp"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// AllowList accepts same-origin requests (no Origin header) and the listed
// origins. Entries are compared by scheme and host.
type AllowList struct {
	origins map[string]struct{}
}

// NewAllowList builds a validator from configured origins. The host:port the
// server listens on is always allowed over http.
func NewAllowList(host string, port int, origins []string) *AllowList {
	al := &AllowList{origins: make(map[string]struct{})}
	al.add(fmt.Sprintf("http://%s:%d", host, port))
	if host == "0.0.0.0" || host == "" {
		al.add(fmt.Sprintf("http://localhost:%d", port))
		al.add(fmt.Sprintf("http://127.0.0.1:%d", port))
	}
	for _, o := range origins {
		al.add(o)
	}
	return al
}

func (al *AllowList) add(origin string) {
	if key, ok := originKey(origin); ok {
		al.origins[key] = struct{}{}
	}
}

// IsAllowedOrigin implements OriginValidator.
func (al *AllowList) IsAllowedOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	key, ok := originKey(origin)
	if !ok {
		return false
	}
	_, allowed := al.origins[key]
	return allowed
}

func originKey(origin string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), true
}

// IPRateLimiter limits new connections per client IP.
type IPRateLimiter struct {
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	mu       sync.Mutex
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewIPRateLimiter allows perMinute connections per IP with the given burst.
func NewIPRateLimiter(perMinute, burst int) *IPRateLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &IPRateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    burst,
	}
}

// Allow reports whether ip may open another connection now.
func (rl *IPRateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	entry, ok := rl.limiters[ip]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[ip] = entry
	}
	entry.lastAccess = time.Now()
	limiter := entry.limiter
	rl.mu.Unlock()

	return limiter.Allow()
}

// Cleanup drops limiters idle for longer than maxIdle.
func (rl *IPRateLimiter) Cleanup(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	threshold := time.Now().Add(-maxIdle)
	for ip, entry := range rl.limiters {
		if entry.lastAccess.Before(threshold) {
			delete(rl.limiters, ip)
		}
	}
}
