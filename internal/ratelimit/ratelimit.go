package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/venkatram-2005/Quick-Share/internal/shared/httpx"
)

// Allower decides whether one more hit on key fits within limit per window.
type Allower interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Limiter counts hits per key in Redis. The window starts at the first hit
// and is not extended by later ones.
type Limiter struct {
	R *redis.Client
}

func New(r *redis.Client) *Limiter { return &Limiter{R: r} }

func (l *Limiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	k := "rl:" + key
	pipe := l.R.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}
	n := incr.Val()
	return n <= limit, n, nil
}

// Middleware limits next per client IP under scope. A limiter failure lets
// the request through; losing the store must not take room creation down.
func Middleware(a Allower, scope string, limit int64, window time.Duration, log *slog.Logger, next http.Handler) http.Handler {
	if limit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := scope + ":" + httpx.ClientIP(r)
		ok, n, err := a.Allow(r.Context(), key, limit, window)
		if err != nil {
			log.Warn("rate limiter unavailable", "scope", scope, "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
			httpx.WriteError(w, http.StatusTooManyRequests,
				fmt.Errorf("rate limit exceeded (count=%d, limit=%d)", n, limit),
				"rate_limited")
			return
		}
		next.ServeHTTP(w, r)
	})
}
