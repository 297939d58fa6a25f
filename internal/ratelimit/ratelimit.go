// Package ratelimit enforces per-caller request budgets over fixed windows.
// Counters live in a pluggable store so limits hold across replicas when
// backed by Redis.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EndpointClass groups endpoints that share one budget.
type EndpointClass string

const (
	ClassSearch  EndpointClass = "search"
	ClassSuggest EndpointClass = "suggest"
	ClassTrack   EndpointClass = "track"
	ClassAdmin   EndpointClass = "admin"
)

// Rule is the budget for one endpoint class.
type Rule struct {
	Limit  int
	Window time.Duration
}

// DefaultRules returns the per-class budgets. Suggest runs hotter than
// search because every keystroke fires a request.
func DefaultRules() map[EndpointClass]Rule {
	return map[EndpointClass]Rule{
		ClassSearch:  {Limit: 60, Window: time.Minute},
		ClassSuggest: {Limit: 120, Window: time.Minute},
		ClassTrack:   {Limit: 120, Window: time.Minute},
		ClassAdmin:   {Limit: 30, Window: time.Minute},
	}
}

// Decision is the outcome of one budget check.
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is how long the caller should wait before the window
	// resets. Only set on denied decisions.
	RetryAfter time.Duration
}

// CounterStore increments a window counter and reports its remaining
// lifetime. The first increment of a key starts the window.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

var rateLimitedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "search_rate_limited_total",
		Help: "Total number of requests rejected by the rate limiter",
	},
	[]string{"class"},
)

// Limiter checks caller budgets against a counter store.
type Limiter struct {
	store  CounterStore
	rules  map[EndpointClass]Rule
	logger *slog.Logger
}

// NewLimiter creates a limiter with the given rules. Classes without a rule
// are unlimited.
func NewLimiter(store CounterStore, rules map[EndpointClass]Rule, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{store: store, rules: rules, logger: logger}
}

// Allow checks whether the caller identified by key may make one more
// request in the class. A store failure allows the request: losing a little
// protection beats failing every caller when the counter backend is down.
func (l *Limiter) Allow(ctx context.Context, class EndpointClass, key string) Decision {
	rule, ok := l.rules[class]
	if !ok || rule.Limit <= 0 {
		return Decision{Allowed: true, Remaining: -1}
	}

	counterKey := fmt.Sprintf("ratelimit:%s:%s", class, key)
	count, ttl, err := l.store.Incr(ctx, counterKey, rule.Window)
	if err != nil {
		l.logger.WarnContext(ctx, "rate limit store unavailable, allowing request",
			slog.String("class", string(class)),
			slog.String("error", err.Error()),
		)
		return Decision{Allowed: true, Remaining: -1}
	}

	if count > int64(rule.Limit) {
		rateLimitedTotal.WithLabelValues(string(class)).Inc()
		retryAfter := ttl
		if retryAfter <= 0 {
			retryAfter = rule.Window
		}
		return Decision{Allowed: false, Remaining: 0, RetryAfter: retryAfter}
	}

	return Decision{Allowed: true, Remaining: rule.Limit - int(count)}
}
