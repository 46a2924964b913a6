// Package cache is a Redis-backed cache of full match.Result values, keyed
// on a fingerprint of the input sample sequence, so replaying an identical
// trajectory against an unchanged network and config skips the matcher
// entirely. It is ambient infrastructure, not part of the matching
// algorithm.
//
// Adapted from the teacher-adjacent passbi_core repo's internal/cache/
// redis.go (env-var config, singleton client, SHA-256 key fingerprinting);
// RouteKey/GetRoute/SetRoute there become Fingerprint/GetResult/SetResult
// here, the same shape retargeted at match.Result instead of a routed path.
package cache

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"roadmatch/internal/match"
)

var (
	client     *redis.Client
	clientOnce sync.Once
	clientErr  error
)

// Config holds the Redis client configuration.
type Config struct {
	Host      string
	Port      int
	Password  string
	DB        int
	TTL       time.Duration
	TLSEnable bool
}

// LoadConfigFromEnv loads Config from the environment.
func LoadConfigFromEnv() *Config {
	port, _ := strconv.Atoi(getEnv("ROADMATCH_REDIS_PORT", "6379"))
	db, _ := strconv.Atoi(getEnv("ROADMATCH_REDIS_DB", "0"))
	ttl, _ := time.ParseDuration(getEnv("ROADMATCH_CACHE_TTL", "24h"))

	return &Config{
		Host:      getEnv("ROADMATCH_REDIS_HOST", "localhost"),
		Port:      port,
		Password:  getEnv("ROADMATCH_REDIS_PASSWORD", ""),
		DB:        db,
		TTL:       ttl,
		TLSEnable: getEnv("ROADMATCH_REDIS_TLS_ENABLED", "false") == "true",
	}
}

// Client returns the global Redis client, initializing it on first use.
func Client() (*redis.Client, error) {
	clientOnce.Do(func() {
		config := LoadConfigFromEnv()

		opts := &redis.Options{
			Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
			Password:     config.Password,
			DB:           config.DB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
			MinIdleConns: 2,
		}
		if config.TLSEnable {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}

		client = redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			clientErr = fmt.Errorf("cache: connect to redis: %w", err)
		}
	})
	return client, clientErr
}

// Close closes the global Redis client.
func Close() {
	if client != nil {
		client.Close()
	}
}

// Fingerprint returns the cache key for a sample sequence: a SHA-256 digest
// of each sample's (x, y, timestamp), prefixed by networkName so the same
// trajectory against two different networks never collides.
func Fingerprint(networkName string, samples []match.Sample) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s;", networkName)
	for _, s := range samples {
		fmt.Fprintf(h, "%.6f,%.6f,%d;", s.X, s.Y, s.Timestamp)
	}
	return fmt.Sprintf("match:%x", h.Sum(nil))
}

// GetResult retrieves a cached match.Result, or (nil, nil) on a cache miss.
func GetResult(ctx context.Context, key string) (*match.Result, error) {
	c, err := Client()
	if err != nil {
		return nil, err
	}

	data, err := c.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get: %w", err)
	}

	var cached cachedResult
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("cache: unmarshal cached result: %w", err)
	}
	return &match.Result{MatchRecords: cached.MatchRecords, Path: cached.Path}, nil
}

// SetResult caches result under key with the given ttl.
func SetResult(ctx context.Context, key string, result *match.Result, ttl time.Duration) error {
	c, err := Client()
	if err != nil {
		return err
	}

	data, err := json.Marshal(cachedResult{MatchRecords: result.MatchRecords, Path: result.Path})
	if err != nil {
		return fmt.Errorf("cache: marshal result: %w", err)
	}
	return c.Set(ctx, key, data, ttl).Err()
}

// cachedResult mirrors match.Result's exported fields; Result itself also
// carries an unexported *network.Network reference that json.Marshal
// silently drops, but spelling out the cached shape keeps the wire format
// independent of match.Result's internal layout.
type cachedResult struct {
	MatchRecords []match.MatchRecord `json:"match_records"`
	Path         []match.PathStep    `json:"path"`
}

// HealthCheck confirms the Redis connection is reachable.
func HealthCheck(ctx context.Context) error {
	c, err := Client()
	if err != nil {
		return fmt.Errorf("cache: client not initialized: %w", err)
	}
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache: ping failed: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
