// Package store is the Postgres-backed archive of completed match runs: one
// MatchRun row plus its point-match and route-match rows. It is ambient
// persistence, not part of the matching algorithm, and sits at the same
// boundary internal/iotable does.
//
// Adapted from the teacher-adjacent passbi_core repo's internal/db
// connection-pool pattern (env-var config, sync.Once singleton pool,
// pgxpool.ParseConfig, health check via a trivial query) rather than
// anything in the routing teacher, which has no persistence layer at all.
package store

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"roadmatch/internal/match"
)

var (
	pool     *pgxpool.Pool
	poolOnce sync.Once
	poolErr  error
)

// Config holds the connection-pool configuration.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	MinConns int32
	MaxConns int32
}

// LoadConfigFromEnv loads Config from the environment, the way the teacher
// adjacent repo's db package does, with the same variable names generalized
// to this repo's ROADMATCH_ prefix.
func LoadConfigFromEnv() *Config {
	port, _ := strconv.Atoi(getEnv("ROADMATCH_DB_PORT", "5432"))
	minConns, _ := strconv.Atoi(getEnv("ROADMATCH_DB_MIN_CONNS", "2"))
	maxConns, _ := strconv.Atoi(getEnv("ROADMATCH_DB_MAX_CONNS", "10"))

	return &Config{
		Host:     getEnv("ROADMATCH_DB_HOST", "localhost"),
		Port:     port,
		Database: getEnv("ROADMATCH_DB_NAME", "roadmatch"),
		User:     getEnv("ROADMATCH_DB_USER", "postgres"),
		Password: getEnv("ROADMATCH_DB_PASSWORD", ""),
		SSLMode:  getEnv("ROADMATCH_DB_SSLMODE", "disable"),
		MinConns: int32(minConns),
		MaxConns: int32(maxConns),
	}
}

// Pool returns the global connection pool, initializing it on first use.
func Pool() (*pgxpool.Pool, error) {
	poolOnce.Do(func() {
		pool, poolErr = initPool(LoadConfigFromEnv())
	})
	return pool, poolErr
}

func initPool(config *Config) (*pgxpool.Pool, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		config.Host, config.Port, config.Database, config.User, config.Password, config.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("store: parse connection string: %w", err)
	}
	poolConfig.MinConns = config.MinConns
	poolConfig.MaxConns = config.MaxConns
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("store: create connection pool: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return p, nil
}

// Close closes the global connection pool.
func Close() {
	if pool != nil {
		pool.Close()
	}
}

// HealthCheck confirms the pool is reachable and the match_run table exists.
func HealthCheck(ctx context.Context) error {
	p, err := Pool()
	if err != nil {
		return fmt.Errorf("store: pool not initialized: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("store: ping failed: %w", err)
	}
	var exists bool
	err = p.QueryRow(ctx, "SELECT to_regclass('public.match_run') IS NOT NULL").Scan(&exists)
	if err != nil {
		return fmt.Errorf("store: schema check: %w", err)
	}
	if !exists {
		return fmt.Errorf("store: match_run table not found, run migrations")
	}
	return nil
}

// Schema is the DDL for the three archive tables, applied by callers via a
// migration tool; store itself never executes DDL.
const Schema = `
CREATE TABLE IF NOT EXISTS match_run (
    id            BIGSERIAL PRIMARY KEY,
    network_name  TEXT NOT NULL,
    sample_count  INT NOT NULL,
    started_at    TIMESTAMPTZ NOT NULL,
    finished_at   TIMESTAMPTZ NOT NULL,
    fingerprint   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS point_match (
    run_id              BIGINT NOT NULL REFERENCES match_run(id) ON DELETE CASCADE,
    sample_index        INT NOT NULL,
    timestamp           BIGINT NOT NULL,
    matched_x           DOUBLE PRECISION NOT NULL,
    matched_y           DOUBLE PRECISION NOT NULL,
    chosen_edge         INT NOT NULL,
    edge_reversed       BOOLEAN NOT NULL,
    decision            TEXT NOT NULL,
    PRIMARY KEY (run_id, sample_index)
);

CREATE TABLE IF NOT EXISTS route_match (
    run_id               BIGINT NOT NULL REFERENCES match_run(id) ON DELETE CASCADE,
    seq                  INT NOT NULL,
    edge                 INT NOT NULL,
    edge_reversed        BOOLEAN NOT NULL,
    departure            BIGINT NOT NULL,
    arrival              BIGINT NOT NULL,
    travel_time          BIGINT NOT NULL,
    stop_time            INT NOT NULL,
    PRIMARY KEY (run_id, seq)
);
`

// MatchRun identifies one archived match invocation.
type MatchRun struct {
	ID          int64
	NetworkName string
	SampleCount int
	StartedAt   time.Time
	FinishedAt  time.Time
	Fingerprint string
}

// SaveResult archives run and the full result, in one transaction.
func SaveResult(ctx context.Context, run MatchRun, result *match.Result) (int64, error) {
	p, err := Pool()
	if err != nil {
		return 0, fmt.Errorf("store: pool not initialized: %w", err)
	}

	tx, err := p.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var runID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO match_run (network_name, sample_count, started_at, finished_at, fingerprint)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		run.NetworkName, run.SampleCount, run.StartedAt, run.FinishedAt, run.Fingerprint,
	).Scan(&runID)
	if err != nil {
		return 0, fmt.Errorf("store: insert match_run: %w", err)
	}

	for _, r := range result.MatchRecords {
		_, err = tx.Exec(ctx,
			`INSERT INTO point_match (run_id, sample_index, timestamp, matched_x, matched_y, chosen_edge, edge_reversed, decision)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			runID, r.SampleIndex, r.Timestamp, r.MatchedX, r.MatchedY, r.ChosenEdge, r.EdgeReversed, r.Decision.String(),
		)
		if err != nil {
			return 0, fmt.Errorf("store: insert point_match: %w", err)
		}
	}

	for seq, r := range result.Routes() {
		_, err = tx.Exec(ctx,
			`INSERT INTO route_match (run_id, seq, edge, edge_reversed, departure, arrival, travel_time, stop_time)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			runID, seq, r.Edge, r.EdgeReversed, r.Departure, r.Arrival, r.TravelTime, r.StopTime,
		)
		if err != nil {
			return 0, fmt.Errorf("store: insert route_match: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("store: commit: %w", err)
	}
	return runID, nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
