package ratelimit

import (
	"context"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ar-io/gateway-dataplane/pkg/gwerrors"
	"github.com/ar-io/gateway-dataplane/pkg/logging"
)

const bytesPerToken = 1024

// Config configures a Limiter's two bucket classes and allow-list.
// Enabled false makes CheckRequest always allow, while still running the
// predictive/corrective accounting (§4.J "pass through with no
// consumption" is the disabled-limits variant at the resource step; here
// we keep accounting running so re-enabling mid-flight sees a warm
// bucket rather than a cold one).
type Config struct {
	ResourceClass BucketClass
	IPClass       BucketClass
	AllowList     map[string]struct{}
	Enabled       bool
}

// Limiter implements the §4.J middleware contract over a Store.
type Limiter struct {
	store Store
	cfg   Config
	log   zerolog.Logger
}

// New builds a Limiter.
func New(store Store, cfg Config) *Limiter {
	return &Limiter{store: store, cfg: cfg, log: logging.Component("ratelimit")}
}

// Decision is the predictive-phase outcome, carrying what FinishRequest
// needs to run the corrective phase.
type Decision struct {
	Bypassed                bool
	Allowed                 bool
	LimitType               gwerrors.LimitType
	Domain                  string
	ResourceKey             string
	IPKey                   string
	InitialResourceConsumed int
	InitialIPConsumed       int
}

// CheckRequest runs §4.J steps 1-3: allow-list bypass, predictive
// resource consumption, then IP consumption with rollback on failure.
func (l *Limiter) CheckRequest(ctx context.Context, method, host, base, path, domain string, candidateIPs []string, clientIP string) (Decision, error) {
	requestsTotal.WithLabelValues(domain).Inc()

	for _, ip := range candidateIPs {
		if _, ok := l.cfg.AllowList[ip]; ok {
			return Decision{Bypassed: true, Allowed: true, Domain: domain}, nil
		}
	}

	resourceKey := ResourceKey(method, host, CanonicalPath(base, path))
	ipKey := clientIP

	resourceBucket, consumed, ok, err := l.store.GetOrCreateAndConsume(ctx, resourceKey, l.cfg.ResourceClass, 1, 0)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		exceededTotal.WithLabelValues(string(gwerrors.LimitTypeResource), domain).Inc()
		if resourceBucket.ContentLength > 0 {
			bytesBlockedTotal.WithLabelValues(domain).Add(float64(resourceBucket.ContentLength))
		}
		if !l.cfg.Enabled {
			return Decision{Allowed: true, Domain: domain, ResourceKey: resourceKey, IPKey: ipKey}, nil
		}
		return Decision{Allowed: false, LimitType: gwerrors.LimitTypeResource, Domain: domain, ResourceKey: resourceKey, IPKey: ipKey}, nil
	}

	actual := 1
	if resourceBucket.ContentLength > 0 {
		actual = int(math.Max(1, math.Ceil(float64(resourceBucket.ContentLength)/bytesPerToken)))
	}

	_, ipConsumed, ipOK, err := l.store.GetOrCreateAndConsume(ctx, ipKey, l.cfg.IPClass, actual, 0)
	if err != nil {
		return Decision{}, err
	}
	if !ipOK {
		if _, rollbackErr := l.store.ConsumeTokens(ctx, resourceKey, l.cfg.ResourceClass, -consumed, 0); rollbackErr != nil {
			l.log.Warn().Err(rollbackErr).Str("key", resourceKey).Msg("resource bucket rollback failed")
		}
		exceededTotal.WithLabelValues(string(gwerrors.LimitTypeIP), domain).Inc()
		if !l.cfg.Enabled {
			return Decision{Allowed: true, Domain: domain, ResourceKey: resourceKey, IPKey: ipKey, InitialResourceConsumed: consumed}, nil
		}
		return Decision{Allowed: false, LimitType: gwerrors.LimitTypeIP, Domain: domain, ResourceKey: resourceKey, IPKey: ipKey, InitialResourceConsumed: consumed}, nil
	}

	return Decision{
		Allowed:                 true,
		Domain:                  domain,
		ResourceKey:             resourceKey,
		IPKey:                   ipKey,
		InitialResourceConsumed: consumed,
		InitialIPConsumed:       ipConsumed,
	}, nil
}

// FinishRequest runs the §4.J corrective phase once the actual response
// size is known. The two bucket adjustments run concurrently with
// partial-failure tolerance: one failing does not roll back the other.
func (l *Limiter) FinishRequest(ctx context.Context, d Decision, responseSize int64) {
	if d.Bypassed {
		return
	}

	needed := int(math.Max(1, math.Ceil(float64(responseSize)/bytesPerToken)))
	resourceAdj := needed - d.InitialResourceConsumed
	ipAdj := needed - d.InitialIPConsumed

	var wg sync.WaitGroup
	if resourceAdj != 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.store.ConsumeTokens(ctx, d.ResourceKey, l.cfg.ResourceClass, resourceAdj, responseSize); err != nil {
				l.log.Warn().Err(err).Str("key", d.ResourceKey).Msg("resource bucket corrective adjustment failed")
			}
		}()
	}
	if ipAdj != 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.store.ConsumeTokens(ctx, d.IPKey, l.cfg.IPClass, ipAdj, 0); err != nil {
				l.log.Warn().Err(err).Str("key", d.IPKey).Msg("IP bucket corrective adjustment failed")
			}
		}()
	}
	wg.Wait()
}
