package chat

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultPostsPerSecond = 1
	defaultPostBurst      = 5

	minIdleTTL = time.Minute
)

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// postLimiter is a token bucket per user. A bucket idle for idleTTL has
// refilled completely, so it is dropped and recreated on the next post.
type postLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	buckets   map[int64]*bucket
}

func newPostLimiter(perSecond float64, burst int) *postLimiter {
	if perSecond <= 0 {
		perSecond = defaultPostsPerSecond
	}
	if burst <= 0 {
		burst = defaultPostBurst
	}
	refill := time.Duration(float64(burst) / perSecond * float64(time.Second))
	return &postLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idleTTL: max(refill, minIdleTTL),
		buckets: make(map[int64]*bucket),
	}
}

// Allow takes a token for userID at now. When the bucket is empty it returns
// false and how long until the next token.
func (p *postLimiter) Allow(userID int64, now time.Time) (bool, time.Duration) {
	p.mu.Lock()
	if now.Sub(p.lastSweep) >= p.idleTTL {
		p.sweepLocked(now)
	}
	b, ok := p.buckets[userID]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(p.limit, p.burst)}
		p.buckets[userID] = b
	}
	b.lastSeen = now
	p.mu.Unlock()

	res := b.lim.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (p *postLimiter) sweepLocked(now time.Time) {
	for id, b := range p.buckets {
		if now.Sub(b.lastSeen) >= p.idleTTL {
			delete(p.buckets, id)
		}
	}
	p.lastSweep = now
}

func (p *postLimiter) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buckets)
}
