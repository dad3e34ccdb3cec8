// Package redis implements db.Store on rueidis. Redis and Valkey speak the
// same protocol for the plain key commands the result store issues, so both
// drivers share this package.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/nqdecode/internal/db"
)

var _ db.Store = (*Store)(nil)

const defaultPollInterval = 100 * time.Millisecond

// Config holds connection parameters.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int
	// PollInterval spaces readiness pings. Zero means 100ms.
	PollInterval time.Duration
}

// Store keeps raw results as plain string keys.
type Store struct {
	client rueidis.Client
	poll   time.Duration
}

// NewStore connects a rueidis client. Client side caching stays off: every
// result is read once per run.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect %v: %w", cfg.Addrs, err)
	}
	return newStore(client, cfg.PollInterval), nil
}

func newStore(client rueidis.Client, poll time.Duration) *Store {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &Store{client: client, poll: poll}
}

// Ping sends PING.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() { s.client.Close() }

// WaitForReady pings right away and then every poll interval until a ping
// succeeds. On timeout the error carries the last ping failure.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		lastErr := s.Ping(ctx)
		if lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("store not ready after %s: %w", timeout, errors.Join(ctx.Err(), lastErr))
		case <-ticker.C:
		}
	}
}
