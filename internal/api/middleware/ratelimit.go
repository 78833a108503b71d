package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/movesintl/moves-study-hub-sub001/internal/config"
	"github.com/movesintl/moves-study-hub-sub001/internal/logger"
)

// Bucket is a token bucket: Size tokens, refilled at Refill per second.
type Bucket struct {
	Size   int
	Refill int
}

// RouteLimits overrides the default buckets for one route.
type RouteLimits struct {
	Soft Bucket
	Hard Bucket
}

type clientLimiter struct {
	softLimiter *rate.Limiter
	hardLimiter *rate.Limiter
	lastSeen    time.Time
}

// RateLimiterMiddleware keeps a soft and a hard bucket per client and route.
// Exhausting the hard bucket is a 429; exhausting the soft one asks for a
// captcha (418) unless the client is already verified as human.
type RateLimiterMiddleware struct {
	mu       sync.Mutex
	clients  map[string]*clientLimiter
	defaults RouteLimits
	routes   map[string]RouteLimits
}

// NewRateLimiterMiddleware creates a limiter with the configured defaults.
func NewRateLimiterMiddleware(cfg *config.Config) *RateLimiterMiddleware {
	rm := &RateLimiterMiddleware{
		clients: make(map[string]*clientLimiter),
		defaults: RouteLimits{
			Soft: Bucket{Size: cfg.RateLimitSoftBucketSize, Refill: cfg.RateLimitSoftRefillRate},
			Hard: Bucket{Size: cfg.RateLimitHardBucketSize, Refill: cfg.RateLimitHardRefillRate},
		},
		routes: make(map[string]RouteLimits),
	}
	go rm.cleanupClients()
	return rm
}

// SetRouteLimits overrides the buckets for a route path as gin reports it
// (e.g. "/v1/bookings").
func (rm *RateLimiterMiddleware) SetRouteLimits(fullPath string, limits RouteLimits) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.routes[fullPath] = limits
}

// getClientIdentifier combines IP, fingerprint and SPA session.
func getClientIdentifier(c *gin.Context) string {
	return c.ClientIP() + "|" + c.GetHeader("X-BFP") + "|" + c.GetHeader("X-SPA")
}

func (rm *RateLimiterMiddleware) getClientLimiter(client, route string) *clientLimiter {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	limits, ok := rm.routes[route]
	if !ok {
		limits = rm.defaults
	}
	key := client + "|" + route
	limiter, exists := rm.clients[key]
	if !exists {
		limiter = &clientLimiter{
			softLimiter: rate.NewLimiter(rate.Limit(limits.Soft.Refill), limits.Soft.Size),
			hardLimiter: rate.NewLimiter(rate.Limit(limits.Hard.Refill), limits.Hard.Size),
		}
		rm.clients[key] = limiter
	}
	limiter.lastSeen = time.Now()
	return limiter
}

func (rm *RateLimiterMiddleware) cleanupClients() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		rm.mu.Lock()
		removed := 0
		for id, client := range rm.clients {
			if time.Since(client.lastSeen) > 30*time.Minute {
				delete(rm.clients, id)
				removed++
			}
		}
		rm.mu.Unlock()
		if removed > 0 {
			logger.Debug().Int("removed", removed).Msg("rate limiter cleanup")
		}
	}
}

// Limit creates the Gin middleware handler. It must run after
// CaptchaMiddleware.
func (rm *RateLimiterMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		client := getClientIdentifier(c)
		route := c.FullPath()
		limiter := rm.getClientLimiter(client, route)

		if !limiter.hardLimiter.Allow() {
			logger.Info().Str("client", client).Str("route", route).Msg("hard rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded", "code": "rate_limited"})
			return
		}

		if !c.GetBool(ContextKeyIsHumanVerified) && !limiter.softLimiter.Allow() {
			logger.Info().Str("client", client).Str("route", route).Msg("soft rate limit exceeded, captcha required")
			c.AbortWithStatusJSON(http.StatusTeapot, gin.H{"error": "Captcha validation required", "code": "captcha_required"})
			return
		}

		c.Next()
	}
}
