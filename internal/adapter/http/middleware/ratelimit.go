package middleware

import (
	"strconv"
	"time"

	"reseller-ledger/config"
	redisStore "reseller-ledger/internal/adapter/storage/redis"
	"reseller-ledger/pkg/apperror"
	"reseller-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimitRule is the request budget of one endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// RulesFromConfig builds a rule for every group with a positive budget.
func RulesFromConfig(cfg config.RateLimitConfig) map[string]RateLimitRule {
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	rules := make(map[string]RateLimitRule)
	for group, limit := range cfg.Groups() {
		if limit > 0 {
			rules[group] = RateLimitRule{Limit: limit, Window: window}
		}
	}
	return rules
}

// RateLimiter counts requests per caller and group in fixed windows.
// A Redis failure lets the request through.
func RateLimiter(store *redisStore.RateLimitStore, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := store.Allow(c.Request.Context(), callerKey(c)+":"+group, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			retryAfter := max(result.ResetAt-time.Now().Unix(), 1)
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.Error(c, apperror.ErrRateLimitExceeded())
			c.Abort()
			return
		}

		c.Next()
	}
}

// callerKey keys authenticated callers by seller and the rest by client IP.
func callerKey(c *gin.Context) string {
	if id, ok := SellerID(c); ok {
		return "seller-" + id.String()
	}
	return "ip-" + c.ClientIP()
}
