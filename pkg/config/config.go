// Package config loads the per-subsystem limits (bucket capacities, refill
// rates, concurrency caps, TTLs, debounce intervals, allow-lists) that §6
// leaves to the environment, sourced from a TOML file with sane defaults.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults scale to this domain's chunk size (256 KiB) and rate-limit axes.
const (
	DefaultChunkSize            = 256 * 1024
	DefaultConcurrentChunkFetch = 4

	DefaultResourceBucketCapacity = 100
	DefaultResourceBucketRefill   = 10.0 // tokens/sec
	DefaultIPBucketCapacity       = 100
	DefaultIPBucketRefill         = 10.0 // tokens/sec
	DefaultBucketTTL              = 5 * time.Minute

	DefaultRebroadcastMaxConcurrent   = 4
	DefaultRebroadcastDedupTTL        = 30 * time.Second
	DefaultRebroadcastMinSuccessCount = 1

	DefaultArNSCacheHitDebounce  = 30 * time.Second
	DefaultArNSCacheMissDebounce = 5 * time.Second

	DefaultAttributeCacheSize = 8192
	DefaultDedupLRUSize       = 65536
)

// Config is the root configuration object for the gateway data-plane core.
type Config struct {
	ChunkSize            int               `toml:"chunk_size"`
	ConcurrentChunkFetch int               `toml:"concurrent_chunk_fetch"`
	RateLimit            RateLimitConfig   `toml:"rate_limit"`
	Rebroadcast          RebroadcastConfig `toml:"rebroadcast"`
	ArNS                 ArNSConfig        `toml:"arns"`
	CDB64                CDB64Config       `toml:"cdb64"`
}

type RateLimitConfig struct {
	Enabled                bool          `toml:"enabled"`
	ResourceBucketCapacity int           `toml:"resource_bucket_capacity"`
	ResourceBucketRefill   float64       `toml:"resource_bucket_refill"`
	IPBucketCapacity       int           `toml:"ip_bucket_capacity"`
	IPBucketRefill         float64       `toml:"ip_bucket_refill"`
	BucketTTL              time.Duration `toml:"bucket_ttl"`
	AllowListIPs           []string      `toml:"allow_list_ips"`
	RedisAddr              string        `toml:"redis_addr"`
}

type RebroadcastConfig struct {
	MaxConcurrent   int           `toml:"max_concurrent"`
	DedupTTL        time.Duration `toml:"dedup_ttl"`
	MinSuccessCount int           `toml:"min_success_count"`
	AllowedSources  []string      `toml:"allowed_sources"`
}

type ArNSConfig struct {
	CacheHitDebounce  time.Duration `toml:"cache_hit_debounce"`
	CacheMissDebounce time.Duration `toml:"cache_miss_debounce"`
}

type CDB64Config struct {
	ShardDirs []string `toml:"shard_dirs"`
	Watch     bool     `toml:"watch"`
}

// Default returns a Config populated with this package's defaults.
func Default() *Config {
	return &Config{
		ChunkSize:            DefaultChunkSize,
		ConcurrentChunkFetch: DefaultConcurrentChunkFetch,
		RateLimit: RateLimitConfig{
			Enabled:                true,
			ResourceBucketCapacity: DefaultResourceBucketCapacity,
			ResourceBucketRefill:   DefaultResourceBucketRefill,
			IPBucketCapacity:       DefaultIPBucketCapacity,
			IPBucketRefill:         DefaultIPBucketRefill,
			BucketTTL:              DefaultBucketTTL,
		},
		Rebroadcast: RebroadcastConfig{
			MaxConcurrent:   DefaultRebroadcastMaxConcurrent,
			DedupTTL:        DefaultRebroadcastDedupTTL,
			MinSuccessCount: DefaultRebroadcastMinSuccessCount,
			AllowedSources:  []string{"peer", "trusted-peer"},
		},
		ArNS: ArNSConfig{
			CacheHitDebounce:  DefaultArNSCacheHitDebounce,
			CacheMissDebounce: DefaultArNSCacheMissDebounce,
		},
	}
}

// Load reads a TOML config file and applies it over Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to decode %s: %w", path, err)
	}
	return cfg, nil
}
