// Package poll waits for remote resources to reach a status.
package poll

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"slices"
	"time"

	"github.com/rmax-ai/proximl/pkg/client"
)

const (
	// DefaultTimeout is used by callers that do not pick a timeout.
	DefaultTimeout = 300 * time.Second
	// MaxTimeout is the longest wait accepted.
	MaxTimeout = 24 * time.Hour
	// MinInterval and MaxInterval bound the adaptive poll interval.
	MinInterval = 5 * time.Second
	MaxInterval = 60 * time.Second
)

// Entity is a resource snapshot with a status.
type Entity interface {
	ID() string
	Status() string
}

// Spec lists the wait targets of one resource type.
type Spec struct {
	// Kind names the resource in errors, e.g. "dataset".
	Kind string
	// Valid are the accepted wait targets.
	Valid []string
	// Terminal is the status whose wait succeeds when the resource is gone (404).
	Terminal string
	// Failed short-circuits any other wait with *client.EntityError. Empty disables it.
	Failed string
}

// Poller runs status waits.
type Poller struct {
	sleep  func(ctx context.Context, d time.Duration) error
	logger *slog.Logger
}

// Option customizes a Poller.
type Option func(*Poller)

// WithSleep replaces the inter-poll sleep.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Poller) { p.sleep = sleep }
}

// WithLogger sets the poller's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) { p.logger = logger }
}

// New creates a Poller.
func New(opts ...Option) *Poller {
	p := &Poller{
		sleep:  client.SleepContext,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Interval returns the poll interval used for a timeout: timeout/60 clamped
// to [MinInterval, MaxInterval].
func Interval(timeout time.Duration) time.Duration {
	interval := timeout / 60
	if interval > MaxInterval {
		interval = MaxInterval
	}
	if interval < MinInterval {
		interval = MinInterval
	}
	return interval
}

// Budget returns the number of polls allowed for a timeout.
func Budget(timeout time.Duration) int {
	return int(math.Ceil(float64(timeout) / float64(Interval(timeout))))
}

// Until polls refresh until the entity reaches target.
//
// It returns current without any call if it already has the target status.
// When target is spec.Terminal, a 404 from refresh means the resource is gone
// and Until returns the zero E with a nil error. The budget is counted in
// polls, so slow refresh calls can stretch the real elapsed time past timeout.
func Until[E Entity](ctx context.Context, p *Poller, spec Spec, current E, target string, timeout time.Duration, refresh func(context.Context) (E, error)) (E, error) {
	var zero E
	if p == nil {
		p = New()
	}
	if current.Status() == target {
		return current, nil
	}
	if !slices.Contains(spec.Valid, target) {
		return zero, &client.SpecificationError{
			Attribute: "status",
			Message:   fmt.Sprintf("invalid wait status %q, valid statuses are: %v", target, spec.Valid),
		}
	}
	if timeout > MaxTimeout {
		return zero, &client.SpecificationError{
			Attribute: "timeout",
			Message:   fmt.Sprintf("timeout must be at most %v", MaxTimeout),
		}
	}
	if timeout < 0 {
		return zero, &client.SpecificationError{
			Attribute: "timeout",
			Message:   "timeout must not be negative",
		}
	}

	interval := Interval(timeout)
	budget := Budget(timeout)
	id := current.ID()
	for count := 0; count < budget; count++ {
		if err := p.sleep(ctx, interval); err != nil {
			return zero, err
		}
		next, err := refresh(ctx)
		if err != nil {
			if target == spec.Terminal && client.IsStatus(err, http.StatusNotFound) {
				return zero, nil
			}
			return zero, err
		}
		status := next.Status()
		if status == target {
			return next, nil
		}
		if spec.Failed != "" && status == spec.Failed && target != spec.Failed {
			return next, &client.EntityError{Kind: spec.Kind, Status: status, Entity: id}
		}
		p.logger.Debug("waiting for status", "kind", spec.Kind, "id", id, "target", target, "status", status, "count", count+1)
	}

	return zero, &client.TimeoutError{Target: target}
}
