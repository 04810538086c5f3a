package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

type PoolStats struct {
	MaxOpenConns      int           `json:"max_open_connections"`
	OpenConns         int           `json:"open_connections"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
}

type HealthCheck struct {
	Status       string        `json:"status"`
	ResponseTime time.Duration `json:"response_time"`
	Error        string        `json:"error,omitempty"`
	Stats        PoolStats     `json:"stats"`
	Timestamp    time.Time     `json:"timestamp"`
}

func (db *DB) GetPoolStats() PoolStats {
	stats := db.Stats()
	return PoolStats{
		MaxOpenConns:      stats.MaxOpenConnections,
		OpenConns:         stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
	}
}

func (db *DB) HealthCheck(ctx context.Context) HealthCheck {
	start := time.Now()
	healthCheck := HealthCheck{
		Timestamp: start,
		Stats:     db.GetPoolStats(),
	}

	// Perform database ping with timeout
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := db.PingContext(pingCtx)
	healthCheck.ResponseTime = time.Since(start)

	if err != nil {
		healthCheck.Status = "unhealthy"
		healthCheck.Error = err.Error()
		slog.Error("Database health check failed", "error", err)
	} else {
		healthCheck.Status = "healthy"
	}

	return healthCheck
}

// ValidateConnectionPool logs warnings when the pool looks saturated.
func (db *DB) ValidateConnectionPool() {
	for _, w := range poolWarnings(db.Stats()) {
		slog.Warn("Database pool warning", "detail", w)
	}
}

// poolWarnings inspects pool statistics for leaked connections, long waits
// and idle churn.
func poolWarnings(stats sql.DBStats) []string {
	var warnings []string
	if stats.MaxOpenConnections > 0 && stats.InUse > stats.MaxOpenConnections*9/10 {
		warnings = append(warnings, fmt.Sprintf("%d of %d connections in use", stats.InUse, stats.MaxOpenConnections))
	}
	if stats.WaitCount > 0 && stats.WaitDuration > time.Second {
		warnings = append(warnings, fmt.Sprintf("%d waits totalling %s", stats.WaitCount, stats.WaitDuration))
	}
	if stats.MaxIdleClosed > 1000 {
		warnings = append(warnings, fmt.Sprintf("%d idle connections closed, consider raising DB_MAX_IDLE_CONNS", stats.MaxIdleClosed))
	}
	return warnings
}
