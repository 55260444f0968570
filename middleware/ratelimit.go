package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const visitorTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type visitorTable struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	lastGC   time.Time
}

// get returns the limiter for ip, pruning idle entries opportunistically
// so the table never needs a background goroutine.
func (t *visitorTable) get(ip string) *rate.Limiter {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	if now.Sub(t.lastGC) > visitorTTL {
		for k, v := range t.visitors {
			if now.Sub(v.lastSeen) > visitorTTL {
				delete(t.visitors, k)
			}
		}
		t.lastGC = now
	}

	v, ok := t.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

// RateLimit provides per-client-IP token-bucket rate limiting.
// r is the sustained requests per second, b the burst size.
func RateLimit(r rate.Limit, b int) gin.HandlerFunc {
	table := &visitorTable{
		visitors: make(map[string]*visitor),
		limit:    r,
		burst:    b,
		lastGC:   time.Now(),
	}
	return func(c *gin.Context) {
		if !table.get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
