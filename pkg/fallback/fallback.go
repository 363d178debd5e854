// Package fallback implements the generic composite fallback source
// described in §4.E: an ordered chain of sub-sources consulted in turn,
// used by the transaction-boundary, transaction-offset, and attribute
// lookups. See parallel.go for the ArNS-specific parallel variant.
package fallback

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ar-io/gateway-dataplane/pkg/logging"
)

// Source is one sub-source in a chain. Name identifies it for logging and
// per-source concurrency capping; Fetch performs the actual lookup.
// MaxConcurrent, when nonzero, bounds how many in-flight calls to this
// particular source the composite permits across overlapping Resolve
// calls; zero means unlimited.
type Source[T any] struct {
	Name          string
	Fetch         func(ctx context.Context) (T, error)
	MaxConcurrent int
}

// ValidityFunc reports whether a fetched result counts as a usable hit.
// For boolean-shaped sources this is typically "not the zero value"; for
// richer types (e.g. TxBoundary) it checks that required fields are set.
type ValidityFunc[T any] func(T) bool

// Sequential tries each source in order and returns the first valid
// result, per §4.E steps 1-5.
type Sequential[T any] struct {
	sources           []Source[T]
	validity          ValidityFunc[T]
	perAttemptTimeout time.Duration
	sems              map[string]chan struct{}
	log               zerolog.Logger
}

// NewSequential builds a Sequential composite over sources, tried in the
// given order. perAttemptTimeout of zero disables the per-attempt
// deadline.
func NewSequential[T any](name string, sources []Source[T], validity ValidityFunc[T], perAttemptTimeout time.Duration) *Sequential[T] {
	sems := make(map[string]chan struct{})
	for _, s := range sources {
		if s.MaxConcurrent > 0 {
			sems[s.Name] = make(chan struct{}, s.MaxConcurrent)
		}
	}
	return &Sequential[T]{
		sources:           sources,
		validity:          validity,
		perAttemptTimeout: perAttemptTimeout,
		sems:              sems,
		log:               logging.Component("fallback." + name),
	}
}

// Resolve walks the source chain. It returns (result, true, nil) on the
// first valid hit; (bestKnown, false, nil) when every source was
// exhausted or skipped without a valid hit; and (zero, false, err) only
// when ctx was cancelled or its deadline exceeded — that signal is always
// rethrown, never swallowed as "empty".
func (s *Sequential[T]) Resolve(ctx context.Context) (T, bool, error) {
	var zero, best T
	var haveBest bool

	for _, src := range s.sources {
		if err := ctx.Err(); err != nil {
			return zero, false, err
		}

		var release func()
		if sem, capped := s.sems[src.Name]; capped {
			select {
			case sem <- struct{}{}:
				release = func() { <-sem }
			default:
				s.log.Debug().Str("source", src.Name).Msg("concurrency cap saturated, skipping source")
				continue
			}
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if s.perAttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, s.perAttemptTimeout)
		}

		v, err := src.Fetch(attemptCtx)

		if cancel != nil {
			cancel()
		}
		if release != nil {
			release()
		}

		if err != nil {
			if ctx.Err() != nil {
				return zero, false, ctx.Err()
			}
			s.log.Debug().Str("source", src.Name).Err(err).Msg("source failed, trying next")
			continue
		}

		if s.validity(v) {
			return v, true, nil
		}

		best, haveBest = v, true
		s.log.Debug().Str("source", src.Name).Msg("source result did not pass validity check, trying next")
	}

	if haveBest {
		return best, false, nil
	}
	return zero, false, nil
}
