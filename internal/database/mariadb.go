// Package database provides connection setup for the backing services:
// MariaDB, Redis and Firestore. Connections are created once at startup and
// shared across the application via dependency injection. This package owns
// the connection lifecycle (open, configure pool, ping, close).
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	// MariaDB driver -- imported for side effect of registering the driver.
	_ "github.com/go-sql-driver/mysql"

	"github.com/keyxmakerx/adpilot/internal/config"
)

// pingAttempts bounds how many times NewMariaDB pings before giving up.
const pingAttempts = 10

// NewMariaDB creates a new MariaDB connection pool configured with the
// settings from the provided config. It pings the database to verify
// connectivity before returning.
func NewMariaDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening mariadb connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// MariaDB may still be starting when the app container launches, so
	// ping with exponential backoff instead of crash-looping.
	if err := pingWithBackoff(ctx, "mariadb", db.PingContext); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// pingWithBackoff retries ping with a 1s doubling delay capped at 30s.
func pingWithBackoff(ctx context.Context, name string, ping func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	attempt := 0
	op := func() error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return ping(pingCtx)
	}
	notify := func(err error, wait time.Duration) {
		slog.Warn(name+" not ready, retrying...",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", pingAttempts),
			slog.Duration("backoff", wait),
			slog.Any("error", err),
		)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, pingAttempts-1), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return fmt.Errorf("pinging %s after %d attempts: %w", name, attempt, err)
	}
	return nil
}
