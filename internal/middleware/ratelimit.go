package middleware

import (
	"net/http"

	"github.com/sio-engine/socketio/internal/logging"
	"github.com/sio-engine/socketio/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// ConnectionRateLimiter gates how often a single IP may open a new
// upgrade connection, guarding against a client opening sessions faster
// than they can be torn down. It uses a Redis-backed store (shared across
// processes) when given a Redis client and an in-memory store otherwise.
// If the store returns an error for a request, that request is let through.
type ConnectionRateLimiter struct {
	limiter *limiter.Limiter
}

// NewConnectionRateLimiter builds a limiter enforcing rate (ulule/limiter
// formatted, e.g. "20-M" for 20 per minute). redisClient may be nil, in
// which case the limiter falls back to an in-process memory store.
func NewConnectionRateLimiter(rate string, redisClient *redis.Client) (*ConnectionRateLimiter, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, err
	}

	var store limiter.Store
	if redisClient != nil {
		store, err = sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: "socketio:connlimit:"})
		if err != nil {
			return nil, err
		}
	} else {
		store = memory.NewStore()
	}

	return &ConnectionRateLimiter{limiter: limiter.New(store, r)}, nil
}

// Middleware returns a gin.HandlerFunc that rejects a request with 429 once
// the calling IP exceeds its connection rate.
func (rl *ConnectionRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ip := c.ClientIP()

		limiterCtx, err := rl.limiter.Get(ctx, ip)
		if err != nil {
			logging.Warn(ctx, "connection rate limiter store failed, failing open")
			c.Next()
			return
		}

		if limiterCtx.Reached {
			metrics.UpgradesTotal.WithLabelValues("rate_limited").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many connection attempts, slow down",
			})
			return
		}
		c.Next()
	}
}
