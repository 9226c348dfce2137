package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// DefaultCheckTimeout bounds the whole Check call.
const DefaultCheckTimeout = 10 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	store     Pinger
	cache     Pinger
	providers []ConnectionValidator
	timeout   time.Duration
}

// New creates a Service. cache can be nil.
func New(store Pinger, cache Pinger, providers ...ConnectionValidator) *Service {
	sorted := append([]ConnectionValidator(nil), providers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID() < sorted[j].ID() })
	return &Service{store: store, cache: cache, providers: sorted, timeout: DefaultCheckTimeout}
}

// WithTimeout overrides DefaultCheckTimeout.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Check runs health checks against all components concurrently.
func (s *Service) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		checks = make(map[string]CheckResult)
	)
	set := func(name string, ok bool) {
		mu.Lock()
		defer mu.Unlock()
		if ok {
			checks[name] = CheckOK
		} else {
			checks[name] = CheckError
		}
	}

	var g errgroup.Group
	g.Go(func() error {
		set("store", s.store.Ping(ctx) == nil)
		return nil
	})
	if s.cache != nil {
		g.Go(func() error {
			set("cache", s.cache.Ping(ctx) == nil)
			return nil
		})
	}
	for _, p := range s.providers {
		g.Go(func() error {
			set("embedding:"+string(p.ID()), p.ValidateConnection(ctx))
			return nil
		})
	}
	_ = g.Wait()

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks}
}
