// Command gateway-dataplane wires the chunk retrieval service, the
// rate limiter, the rebroadcast wrapper, and the ArNS resolution cache
// into a single demo HTTP server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/ar-io/gateway-dataplane/pkg/arns"
	"github.com/ar-io/gateway-dataplane/pkg/chunkstore"
	"github.com/ar-io/gateway-dataplane/pkg/config"
	"github.com/ar-io/gateway-dataplane/pkg/logging"
	"github.com/ar-io/gateway-dataplane/pkg/ratelimit"
	"github.com/ar-io/gateway-dataplane/pkg/rebroadcast"
	"github.com/ar-io/gateway-dataplane/pkg/retrieval"
)

var version = "dev"

func main() {
	cmd := &cli.Command{
		Name:    "gateway-dataplane",
		Usage:   "Run the Arweave gateway chunk retrieval data plane",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a TOML config file (defaults applied if omitted)"},
			&cli.StringFlag{Name: "listen", Value: ":8080", Usage: "HTTP listen address"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "zerolog level: debug, info, warn, error"},
		},
		Action: runServe,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "gateway-dataplane:", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	level, err := zerolog.ParseLevel(cmd.String("log-level"))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logging.Configure(level, os.Stderr)
	log := logging.Component("main")

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	server := newServer(cfg, log)

	log.Info().Str("addr", cmd.String("listen")).Msg("gateway-dataplane listening")
	httpServer := &http.Server{
		Addr:              cmd.String("listen"),
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return httpServer.ListenAndServe()
}

// server bundles the data-plane components behind an http.Handler. It is
// a demo wiring, not a production gateway: the boundary lookup and ArNS
// upstream below are in-memory stubs a real deployment would replace with
// network-backed sources composed via pkg/fallback.
type server struct {
	mux       *http.ServeMux
	retrieval *retrieval.Service
	limiter   *ratelimit.Limiter
	arns      *arns.Cache
	log       zerolog.Logger
}

func newServer(cfg *config.Config, log zerolog.Logger) *server {
	dataStore := chunkstore.NewMemoryDataStore()
	metaStore := chunkstore.NewMemoryMetadataStore()

	boundary := func(ctx context.Context, absoluteOffset uint64) (retrieval.TxBoundary, bool, error) {
		return retrieval.TxBoundary{}, false, nil
	}

	baseSource := &unreachableChunkSource{}

	var rateStore ratelimit.Store
	if cfg.RateLimit.RedisAddr != "" {
		rateStore = ratelimit.NewRedisStore(redis.NewClient(&redis.Options{Addr: cfg.RateLimit.RedisAddr}))
	} else {
		rateStore = ratelimit.NewMemStore()
	}

	allowList := make(map[string]struct{}, len(cfg.RateLimit.AllowListIPs))
	for _, ip := range cfg.RateLimit.AllowListIPs {
		allowList[ip] = struct{}{}
	}

	limiter := ratelimit.New(rateStore, ratelimit.Config{
		ResourceClass: ratelimit.BucketClass{
			Capacity:   cfg.RateLimit.ResourceBucketCapacity,
			RefillRate: cfg.RateLimit.ResourceBucketRefill,
			TTL:        cfg.RateLimit.BucketTTL,
		},
		IPClass: ratelimit.BucketClass{
			Capacity:   cfg.RateLimit.IPBucketCapacity,
			RefillRate: cfg.RateLimit.IPBucketRefill,
			TTL:        cfg.RateLimit.BucketTTL,
		},
		AllowList: allowList,
		Enabled:   cfg.RateLimit.Enabled,
	})

	rebroadcastBucket := rebroadcast.NewLocalTokenBucket(
		cfg.Rebroadcast.MaxConcurrent*4,
		float64(cfg.Rebroadcast.MaxConcurrent),
	)
	chunkSource := rebroadcast.New(baseSource, &loggingBroadcaster{log: log}, rebroadcastBucket, rebroadcast.Config{
		AllowedSources:   cfg.Rebroadcast.AllowedSources,
		DedupTTL:         cfg.Rebroadcast.DedupTTL,
		MaxConcurrent:    cfg.Rebroadcast.MaxConcurrent,
		MinSuccessCount:  cfg.Rebroadcast.MinSuccessCount,
		BroadcastTimeout: 10 * time.Second,
	})

	retrievalService := retrieval.New(dataStore, metaStore, boundary, chunkSource)

	arnsCache := arns.New(&unreachableArNSUpstream{}, lastUpdatedWins, arns.Config{
		HitDebounceTTL:  cfg.ArNS.CacheHitDebounce,
		MissDebounceTTL: cfg.ArNS.CacheMissDebounce,
	})

	s := &server{
		mux:       http.NewServeMux(),
		retrieval: retrievalService,
		limiter:   limiter,
		arns:      arnsCache,
		log:       log,
	}
	s.mux.HandleFunc("/chunk/", s.handleChunk)
	s.mux.HandleFunc("/arns/", s.handleArNS)
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	return s
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func lastUpdatedWins(name string, records []arns.Record) (arns.Record, bool) {
	if len(records) == 0 {
		return arns.Record{}, false
	}
	best := records[0]
	for _, r := range records[1:] {
		if r.ResolvedAt.After(best.ResolvedAt) {
			best = r
		}
	}
	return best, true
}

// unreachableChunkSource and unreachableArNSUpstream stand in for the
// network-backed sub-sources (peer fetch, trusted gateway fetch, ArNS
// registry) a real deployment composes via pkg/fallback; this demo
// binary exercises the retrieval/rate-limit/rebroadcast/ArNS wiring
// without requiring live network dependencies.
type unreachableChunkSource struct{}

func (unreachableChunkSource) GetChunkByAny(ctx context.Context, params retrieval.ChunkFetchParams) (retrieval.Chunk, error) {
	return retrieval.Chunk{}, fmt.Errorf("gateway-dataplane: no chunk source configured for this deployment")
}

type unreachableArNSUpstream struct{}

func (unreachableArNSUpstream) FetchPage(ctx context.Context, name, cursor string) (arns.Page, error) {
	return arns.Page{}, fmt.Errorf("gateway-dataplane: no ArNS upstream configured for this deployment")
}

// loggingBroadcaster stands in for a peer broadcaster backed by a real
// transport client; it logs the payload size and reports zero successes.
type loggingBroadcaster struct {
	log zerolog.Logger
}

func (b *loggingBroadcaster) Broadcast(ctx context.Context, payload []byte) (int, error) {
	b.log.Debug().Int("bytes", len(payload)).Msg("rebroadcast: no peer transport configured, dropping")
	return 0, nil
}
