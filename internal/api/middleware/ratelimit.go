package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"greendrake/chambers/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Limits are token bucket settings, rates in tokens per second.
type Limits struct {
	SoftRate  int
	SoftBurst int
	HardRate  int
	HardBurst int
}

// clientLimiter stores rate limiters for a specific client.
type clientLimiter struct {
	softLimiter *rate.Limiter
	hardLimiter *rate.Limiter
	lastSeen    time.Time
}

// RateLimiterMiddleware manages rate limiting for API endpoints.
type RateLimiterMiddleware struct {
	clients  map[string]*clientLimiter
	mu       sync.Mutex
	defaults Limits
	done     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiterMiddleware creates a new RateLimiterMiddleware with the
// configured default limits.
func NewRateLimiterMiddleware(cfg *config.Config) *RateLimiterMiddleware {
	rm := &RateLimiterMiddleware{
		clients: make(map[string]*clientLimiter),
		defaults: Limits{
			SoftRate:  cfg.RateLimitSoftRefillRate,
			SoftBurst: cfg.RateLimitSoftBucketSize,
			HardRate:  cfg.RateLimitHardRefillRate,
			HardBurst: cfg.RateLimitHardBucketSize,
		},
		done: make(chan struct{}),
	}
	go rm.cleanupClients()
	return rm
}

// Stop ends the cleanup goroutine.
func (rm *RateLimiterMiddleware) Stop() {
	rm.stopOnce.Do(func() { close(rm.done) })
}

// getClientIdentifier creates a unique key based on IP, Fingerprint, and SPA Session ID.
func getClientIdentifier(c *gin.Context) string {
	return fmt.Sprintf("%s|%s|%s", c.ClientIP(), c.GetHeader("X-BFP"), c.GetHeader("X-SPA"))
}

func (rm *RateLimiterMiddleware) getClientLimiter(identifier string, l Limits) *clientLimiter {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	limiter, exists := rm.clients[identifier]
	if !exists {
		limiter = &clientLimiter{
			softLimiter: rate.NewLimiter(rate.Limit(l.SoftRate), l.SoftBurst),
			hardLimiter: rate.NewLimiter(rate.Limit(l.HardRate), l.HardBurst),
		}
		rm.clients[identifier] = limiter
	}
	limiter.lastSeen = time.Now()
	return limiter
}

// cleanupClients periodically removes old client entries from the map.
func (rm *RateLimiterMiddleware) cleanupClients() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rm.done:
			return
		case <-ticker.C:
		}
		rm.mu.Lock()
		count := 0
		for id, client := range rm.clients {
			if time.Since(client.lastSeen) > 30*time.Minute {
				delete(rm.clients, id)
				count++
			}
		}
		rm.mu.Unlock()
		if count > 0 {
			log.Debug().Int("removed", count).Msg("rate limiter cleanup")
		}
	}
}

// Limit applies the default limits.
func (rm *RateLimiterMiddleware) Limit() gin.HandlerFunc {
	return rm.LimitWith(rm.defaults)
}

// LimitWith applies the given limits. Buckets are kept per client and route
// so a tight route does not drain the budget of the others.
func (rm *RateLimiterMiddleware) LimitWith(l Limits) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := getClientIdentifier(c)
		limiter := rm.getClientLimiter(clientKey+"|"+c.FullPath(), l)

		if !limiter.hardLimiter.Allow() {
			log.Warn().Str("client", clientKey).Str("route", c.FullPath()).Msg("hard rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}

		// CaptchaMiddleware marks verified humans, who skip the soft limit.
		isHuman := c.GetBool(ContextKeyIsHumanVerified)
		if !isHuman && !limiter.softLimiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTeapot, gin.H{"error": "Captcha validation required"})
			return
		}

		c.Next()
	}
}
