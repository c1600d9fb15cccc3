// Package ratelimit throttles login attempts and invite-code guessing.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const sweepInterval = 5 * time.Minute

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type Config struct {
	LoginMaxAttempts  int           // failures per identifier before lockout
	LoginLockout      time.Duration // how long a locked identifier waits
	LoginMaxIPPerHour int           // failures per IP per hour

	JoinMaxPerHour   int // bad invite codes per user per hour
	JoinMaxIPPerHour int // bad invite codes per IP per hour

	Clock Clock // nil uses the system clock
}

func DefaultConfig() *Config {
	return &Config{
		LoginMaxAttempts:  5,
		LoginLockout:      15 * time.Minute,
		LoginMaxIPPerHour: 30,
		JoinMaxPerHour:    10,
		JoinMaxIPPerHour:  30,
	}
}

// LimitResult reports whether an attempt may proceed. Reason is for logs only.
type LimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
	Reason     string
}

// window counts failures since start. locked is set once a lockout begins.
type window struct {
	count  int
	start  time.Time
	last   time.Time
	locked time.Time
}

// counters maps hashed keys to their failure windows.
type counters map[string]*window

func (c counters) overHourly(key string, now time.Time, max int, reason string) (LimitResult, bool) {
	w := c[key]
	if w == nil || w.count < max {
		return LimitResult{}, false
	}
	age := now.Sub(w.start)
	if age >= time.Hour {
		return LimitResult{}, false
	}
	return LimitResult{RetryAfter: time.Hour - age, Reason: reason}, true
}

func (c counters) bumpHourly(key string, now time.Time) {
	w := c[key]
	if w == nil || now.Sub(w.start) >= time.Hour {
		c[key] = &window{count: 1, start: now, last: now}
		return
	}
	w.count++
	w.last = now
}

func (c counters) sweep(now time.Time, maxAge time.Duration) {
	for key, w := range c {
		if now.Sub(w.last) > maxAge {
			delete(c, key)
		}
	}
}

// Limiter keeps failure counters in memory. Keys are hashed so raw emails and
// IPs never sit in the maps.
type Limiter struct {
	cfg   Config
	clock Clock

	mu       sync.Mutex
	logins   counters
	loginIPs counters
	joins    counters
	joinIPs  counters

	stop context.CancelFunc
	done chan struct{}
}

// New starts a limiter and its sweeper. Call Close to stop it.
func New(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	l := &Limiter{
		cfg:      *cfg,
		clock:    cfg.Clock,
		logins:   counters{},
		loginIPs: counters{},
		joins:    counters{},
		joinIPs:  counters{},
		done:     make(chan struct{}),
	}
	if l.clock == nil {
		l.clock = systemClock{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.stop = cancel
	go l.sweepLoop(ctx)
	return l
}

func (l *Limiter) Close() {
	l.stop()
	<-l.done
}

// CheckLogin reports whether identifier may try to log in from ip. It does not
// count the attempt; call RecordLoginFailure after a wrong password.
func (l *Limiter) CheckLogin(identifier, ip string) LimitResult {
	now := l.clock.Now()
	idKey, ipKey := key("login", normalizeIdentifier(identifier)), key("login-ip", ip)

	l.mu.Lock()
	defer l.mu.Unlock()

	if w := l.logins[idKey]; w != nil && !w.locked.IsZero() {
		if elapsed := now.Sub(w.locked); elapsed < l.cfg.LoginLockout {
			return LimitResult{RetryAfter: l.cfg.LoginLockout - elapsed, Reason: "lockout"}
		}
	}
	if res, over := l.loginIPs.overHourly(ipKey, now, l.cfg.LoginMaxIPPerHour, "ip_hourly_limit"); over {
		return res
	}
	return LimitResult{Allowed: true}
}

// RecordLoginFailure counts a wrong password and reports whether it started a
// lockout. An expired lockout starts a fresh window.
func (l *Limiter) RecordLoginFailure(identifier, ip string) bool {
	now := l.clock.Now()
	idKey, ipKey := key("login", normalizeIdentifier(identifier)), key("login-ip", ip)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.loginIPs.bumpHourly(ipKey, now)

	w := l.logins[idKey]
	if w == nil || (!w.locked.IsZero() && now.Sub(w.locked) >= l.cfg.LoginLockout) {
		w = &window{start: now}
		l.logins[idKey] = w
	}
	w.count++
	w.last = now
	if w.locked.IsZero() && w.count >= l.cfg.LoginMaxAttempts {
		w.locked = now
		return true
	}
	return false
}

// ResetLogin forgets an identifier's failures after a successful login.
func (l *Limiter) ResetLogin(identifier string) {
	l.mu.Lock()
	delete(l.logins, key("login", normalizeIdentifier(identifier)))
	l.mu.Unlock()
}

// CheckJoin reports whether a user may try another invite code.
func (l *Limiter) CheckJoin(identifier, ip string) LimitResult {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if res, over := l.joins.overHourly(key("join", normalizeIdentifier(identifier)), now, l.cfg.JoinMaxPerHour, "hourly_limit"); over {
		return res
	}
	if res, over := l.joinIPs.overHourly(key("join-ip", ip), now, l.cfg.JoinMaxIPPerHour, "ip_hourly_limit"); over {
		return res
	}
	return LimitResult{Allowed: true}
}

// RecordJoinFailure counts an unknown invite code.
func (l *Limiter) RecordJoinFailure(identifier, ip string) {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.joins.bumpHourly(key("join", normalizeIdentifier(identifier)), now)
	l.joinIPs.bumpHourly(key("join-ip", ip), now)
}

func (l *Limiter) sweepLoop(ctx context.Context) {
	defer close(l.done)
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *Limiter) sweep() {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logins.sweep(now, l.cfg.LoginLockout+time.Hour)
	for _, c := range []counters{l.loginIPs, l.joins, l.joinIPs} {
		c.sweep(now, time.Hour)
	}
}

func key(scope, value string) string {
	sum := sha256.Sum256([]byte(value))
	return scope + ":" + hex.EncodeToString(sum[:8])
}

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// GetClientIP returns the caller's address. Forwarding headers are honored
// only when trustProxy is set; X-Forwarded-For is read right to left and the
// first public hop wins.
func GetClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			hops := strings.Split(xff, ",")
			for i := len(hops) - 1; i >= 0; i-- {
				if hop := strings.TrimSpace(hops[i]); hop != "" && !isPrivateIP(hop) {
					return hop
				}
			}
			return strings.TrimSpace(hops[len(hops)-1])
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// isPrivateIP covers RFC 1918, unique-local, loopback and link-local
// addresses, including IPv4-mapped IPv6 forms.
func isPrivateIP(raw string) bool {
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast()
}

// SanitizeIdentifier masks an email or phone for logging.
func SanitizeIdentifier(identifier string) string {
	identifier = normalizeIdentifier(identifier)
	if local, domain, ok := strings.Cut(identifier, "@"); ok {
		if len(local) > 2 {
			return local[:2] + "***@" + domain
		}
		return "***@" + domain
	}
	if len(identifier) >= 4 {
		return "***" + identifier[len(identifier)-4:]
	}
	return "***"
}

func LogRateLimitExceeded(limitType, identifier, ip, reason string) {
	log.Warn().
		Str("event", "rate_limit_exceeded").
		Str("type", limitType).
		Str("identifier", SanitizeIdentifier(identifier)).
		Str("ip", ip).
		Str("reason", reason).
		Msg("Rate limit exceeded")
}
