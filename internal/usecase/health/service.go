package health

import (
	"context"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates every check failed.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

const checkTimeout = 2 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

type namedCheck struct {
	name string
	fn   CheckFunc
}

// Service coordinates health checks.
type Service struct {
	checks []namedCheck
}

// New creates a Service. db can be nil when no result store is configured.
func New(db DBPinger) *Service {
	s := &Service{}
	if db != nil {
		s.checks = append(s.checks, namedCheck{name: "database", fn: db.Ping})
	}
	return s
}

// WithCheck adds a named check.
func (s *Service) WithCheck(name string, fn CheckFunc) *Service {
	s.checks = append(s.checks, namedCheck{name: name, fn: fn})
	return s
}

// Check runs every check with a per-check timeout.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult, len(s.checks))
	failed := 0

	for _, c := range s.checks {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.fn(cctx)
		cancel()
		if err != nil {
			checks[c.name] = CheckError
			failed++
		} else {
			checks[c.name] = CheckOK
		}
	}

	status := Healthy
	switch {
	case failed > 0 && failed == len(s.checks):
		status = Unhealthy
	case failed > 0:
		status = Degraded
	}

	return Report{Status: status, Checks: checks}
}
