package http

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/campus-server/internal/ratelimit"
)

type rateRule struct {
	limit  int
	window time.Duration
}

var (
	registerRule = rateRule{limit: 5, window: time.Hour}
	loginRule    = rateRule{limit: 10, window: 5 * time.Minute}
	refreshRule  = rateRule{limit: 50, window: time.Minute}
)

// RateLimitResponse is the body of a 429 response.
type RateLimitResponse struct {
	RetryAfter int `json:"retry_after"`
	Remaining  int `json:"remaining"`
}

// allow checks key against rule and writes a 429 when the window is exhausted.
// A failing limiter backend lets the request through.
func allow(c *gin.Context, limiter ratelimit.Limiter, key string, rule rateRule, logger *zerolog.Logger) bool {
	if limiter == nil {
		return true
	}

	res, err := limiter.Check(c.Request.Context(), key, rule.limit, rule.window)
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable")
		return true
	}
	if res.Allowed {
		return true
	}

	retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
	if retryAfter <= 0 {
		retryAfter = int(rule.window.Seconds())
	}
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, RateLimitResponse{
		RetryAfter: retryAfter,
		Remaining:  res.Remaining,
	})
	return false
}
