package constants

import "time"

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
	DBBatchSize       = 100
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	TokenTTL          = 24 * time.Hour
	MinPasswordLength = 6
)

const (
	// Statistics retry: post-commit rating/ranking updates are re-applied
	// until they stick (at-least-once).
	StatsQueueSize     = 256
	StatsRetryBase     = 1 * time.Second
	StatsRetryAttempts = 5

	// Sweep: committed games with no rating history row are replayed from
	// storage, covering restarts and a full retry queue. The grace period
	// keeps the sweep off games whose first update is still in flight.
	StatsSweepInterval = 1 * time.Minute
	StatsSweepGrace    = 30 * time.Second
)

const (
	MmrHistoryLimit  = 50
	GameHistoryLimit = 100
)
