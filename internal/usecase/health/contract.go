package health

import "context"

// DBPinger checks result store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// CheckFunc is an extra named health check.
type CheckFunc func(ctx context.Context) error
