// Package listener implements the periodic producers of spec.md §4.3:
// each tick queries chain state, diffs against a local cache, and
// publishes topic events for new state. The shared poll loop is
// grounded on drand's ticker (chain/beacon/ticker.go), swapped from a
// round-based beacon ticker to a generic jittered interval ticker driven
// by clockwork.Clock for deterministic tests.
package listener

import (
	"context"
	"math/rand"
	"time"

	cl "github.com/jonboulle/clockwork"

	"github.com/arpa-network/randcast-node/log"
)

// Config is a listener's tick/backoff configuration (spec.md §4.3).
type Config struct {
	Interval            time.Duration
	UseJitter           bool
	ProviderResetAttempts int           // consecutive tick failures before reconnect is triggered
	ProviderResetInterval time.Duration // sleep between reconnect attempts
}

// Reconnector is implemented by chain.Identity: listeners call Reconnect
// after ProviderResetAttempts consecutive failures (spec.md §4.1 "Provider
// reset").
type Reconnector interface {
	Reconnect(ctx context.Context, endpoint string) error
}

// Loop runs tick repeatedly on cfg's interval (optionally jittered)
// until ctx is cancelled. On repeated tick errors it calls reconnect
// after ProviderResetAttempts consecutive failures, then keeps polling;
// the loop itself never returns except via ctx cancellation (spec.md
// §4.3: "listener loop itself does not terminate until the process
// shuts down").
func Loop(ctx context.Context, clock cl.Clock, cfg Config, l log.Logger, reconnect func(ctx context.Context) error, tick func(ctx context.Context) error) {
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := tick(ctx); err != nil {
			failures++
			l.Warnw("listener tick failed", "err", err, "consecutive_failures", failures)
			if cfg.ProviderResetAttempts > 0 && failures >= cfg.ProviderResetAttempts {
				if reconnect != nil {
					l.Errorw("resetting provider after repeated failures", "failures", failures)
					if err := reconnect(ctx); err != nil {
						l.Errorw("provider reconnect failed", "err", err)
					} else {
						failures = 0
					}
				}
				clock.Sleep(cfg.ProviderResetInterval)
			}
		} else {
			failures = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-clock.After(interval(cfg)):
		}
	}
}

func interval(cfg Config) time.Duration {
	if !cfg.UseJitter || cfg.Interval <= 0 {
		return cfg.Interval
	}
	// uniform[0.5*I, I], spec.md §4.3, avoids herd calls across many
	// chains/listeners ticking at the same configured interval.
	half := float64(cfg.Interval) / 2
	return time.Duration(half + rand.Float64()*half)
}
