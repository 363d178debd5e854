package fallback

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ar-io/gateway-dataplane/pkg/logging"
)

// Parallel implements the §4.E "Composite ArNS Resolver" special case:
// every source is started under a shared concurrency cap (a source beyond
// the cap waits for a free slot rather than being skipped); the first
// valid result wins; every source has been invoked before a "not found"
// is returned. "Not found" here is a well-formed negative result, not an
// error.
type Parallel[T any] struct {
	sources        []Source[T]
	validity       ValidityFunc[T]
	concurrencyCap int
	log            zerolog.Logger
}

// NewParallel builds a Parallel composite. concurrencyCap bounds how many
// of the sources run at once; pass 0 or a negative value for "all of
// them, no cap" (errgroup.SetLimit(-1)).
func NewParallel[T any](name string, sources []Source[T], validity ValidityFunc[T], concurrencyCap int) *Parallel[T] {
	return &Parallel[T]{
		sources:        sources,
		validity:       validity,
		concurrencyCap: concurrencyCap,
		log:            logging.Component("fallback." + name),
	}
}

// Resolve fans every source out in parallel and returns the first valid
// result. Once a valid result is found, the shared context is cancelled
// so outstanding sources may stop early — a best-effort optimization, not
// a correctness requirement, since every source has still been invoked
// before Resolve observes "not found".
func (p *Parallel[T]) Resolve(ctx context.Context) (T, bool, error) {
	var zero T

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(raceCtx)
	limit := p.concurrencyCap
	if limit <= 0 {
		limit = -1
	}
	g.SetLimit(limit)

	var mu sync.Mutex
	var result T
	var found bool

	for _, src := range p.sources {
		src := src
		g.Go(func() error {
			v, err := src.Fetch(gctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.log.Debug().Str("source", src.Name).Err(err).Msg("resolver failed, treating as empty")
				return nil
			}
			if !p.validity(v) {
				return nil
			}

			mu.Lock()
			if !found {
				found = true
				result = v
				cancel()
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return zero, false, err
	}

	if found {
		return result, true, nil
	}
	return zero, false, nil
}
