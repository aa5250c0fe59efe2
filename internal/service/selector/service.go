package selector

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/arkmail/dispatch/internal/domain"
	"github.com/arkmail/dispatch/internal/pkg/logger"
)

// ewmaAlpha weights the newest outcome in the rolling tallies. Lifetime DB
// counters seed the tallies so a restart doesn't forget a flaky relay.
const ewmaAlpha = 0.3

type tally struct {
	server      domain.SMTPServer
	successRate float64 // rolling, 0..1
	avgRespSec  float64 // rolling seconds
	inFlight    int
}

// score is the ranking formula. More failures strictly lower it, more
// successes raise it up to the ceiling, slower servers pay per second.
func (t *tally) score() float64 {
	return 100 + float64(t.server.Priority)*10 + t.successRate*50 - t.avgRespSec
}

// ServerStatus is a point-in-time view of one pool entry, exposed for the
// ops API and tests.
type ServerStatus struct {
	Server      domain.SMTPServer `json:"server"`
	Score       float64           `json:"score"`
	SuccessRate float64           `json:"success_rate"`
	AvgRespSec  float64           `json:"avg_response_seconds"`
	InFlight    int               `json:"in_flight"`
}

// Selector picks the next relay and tracks rolling outcome tallies.
// Safe for concurrent use; tallies update under one lock so concurrent
// RecordOutcome calls cannot corrupt each other.
type Selector struct {
	repo Repository

	mu   sync.Mutex
	pool []*tally
	rr   int
}

// New creates a Selector over the given pool repository. Call Refresh before
// the first Next, or let Next lazy-load.
func New(repo Repository) *Selector {
	return &Selector{repo: repo}
}

// Refresh reloads the pool from storage, seeding rolling tallies from the
// lifetime counters. In-flight counts of servers that survive the reload are
// preserved.
func (s *Selector) Refresh(ctx context.Context) error {
	servers, err := s.repo.ListServers(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inFlight := make(map[string]int, len(s.pool))
	for _, t := range s.pool {
		inFlight[t.server.ID] = t.inFlight
	}

	s.pool = s.pool[:0]
	for _, srv := range servers {
		t := &tally{
			server:      srv,
			successRate: seedSuccessRate(srv),
			avgRespSec:  srv.AvgResponseMs / 1000,
			inFlight:    inFlight[srv.ID],
		}
		s.pool = append(s.pool, t)
	}
	return nil
}

func seedSuccessRate(srv domain.SMTPServer) float64 {
	total := srv.SuccessCount + srv.FailureCount
	if total == 0 {
		// an untried server starts optimistic so it gets traffic
		return 1.0
	}
	return float64(srv.SuccessCount) / float64(total)
}

// Next returns the enabled server with the highest score; ties go to the
// lowest in-flight load, then round-robin. The pick is counted as in-flight
// until the matching RecordOutcome.
func (s *Selector) Next(ctx context.Context) (*domain.SMTPServer, error) {
	s.mu.Lock()
	if len(s.pool) == 0 {
		s.mu.Unlock()
		if err := s.Refresh(ctx); err != nil {
			return nil, err
		}
		s.mu.Lock()
	}
	defer s.mu.Unlock()

	var best *tally
	for i := range s.pool {
		t := s.pool[(s.rr+i)%len(s.pool)]
		if !t.server.Enabled {
			continue
		}
		if best == nil {
			best = t
			continue
		}
		switch {
		case t.score() > best.score():
			best = t
		case t.score() == best.score() && t.inFlight < best.inFlight:
			best = t
		}
	}
	if best == nil {
		return nil, ErrNoServerAvailable
	}

	s.rr++
	best.inFlight++
	srv := best.server
	return &srv, nil
}

// RecordOutcome folds one attempt result into the server's rolling tallies
// and releases its in-flight slot. Callers must record a failure before
// requesting the next server so failover sees the updated ranking. The
// persisted lifetime counters are best effort; a write failure is logged,
// never surfaced.
func (s *Selector) RecordOutcome(ctx context.Context, serverID string, success bool, elapsed time.Duration) {
	s.mu.Lock()
	for _, t := range s.pool {
		if t.server.ID != serverID {
			continue
		}
		outcome := 0.0
		if success {
			outcome = 1.0
		}
		t.successRate = (1-ewmaAlpha)*t.successRate + ewmaAlpha*outcome
		// response time folds on successes only; a fast failure must not
		// shrink the latency penalty and offset the rate drop
		if success {
			t.avgRespSec = (1-ewmaAlpha)*t.avgRespSec + ewmaAlpha*elapsed.Seconds()
		}
		if t.inFlight > 0 {
			t.inFlight--
		}
		break
	}
	s.mu.Unlock()

	if err := s.repo.RecordOutcome(ctx, serverID, success, elapsed); err != nil {
		logger.Warn("selector outcome not persisted", "server_id", serverID, "error", err.Error())
	}
}

// Status reports the pool with live scores, highest first.
func (s *Selector) Status() []ServerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ServerStatus, 0, len(s.pool))
	for _, t := range s.pool {
		out = append(out, ServerStatus{
			Server:      t.server,
			Score:       t.score(),
			SuccessRate: t.successRate,
			AvgRespSec:  t.avgRespSec,
			InFlight:    t.inFlight,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
