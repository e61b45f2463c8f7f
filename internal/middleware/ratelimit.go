package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	libredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

// RateLimit throttles requests per client IP. With a Redis client the
// counters are shared across replicas; without one they are in-process.
func RateLimit(redisClient *libredis.Client, perMinute int) echo.MiddlewareFunc {
	rate := limiter.Rate{
		Period: 1 * time.Minute,
		Limit:  int64(perMinute),
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := redisstore.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "convene:ratelimit",
		})
		if err != nil {
			log.Warn().Err(err).Msg("redis rate limit store unavailable, falling back to memory")
		} else {
			store = s
		}
	}
	if store == nil {
		store = memory.NewStore()
	}

	return rateLimitWithStore(store, rate)
}

func rateLimitWithStore(store limiter.Store, rate limiter.Rate) echo.MiddlewareFunc {
	instance := limiter.New(store, rate)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			lctx, err := instance.Get(c.Request().Context(), c.RealIP())
			if err != nil {
				// A broken limiter store should not take the API down.
				log.Warn().Err(err).Msg("rate limiter unavailable")
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

			if lctx.Reached {
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
