package selector_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/arkmail/dispatch/internal/domain"
	"github.com/arkmail/dispatch/internal/service/selector"
)

// memRepo is an in-memory pool repository for unit testing.
type memRepo struct {
	mu      sync.Mutex
	servers []domain.SMTPServer
	records int
}

func (m *memRepo) ListServers(_ context.Context) ([]domain.SMTPServer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.SMTPServer, len(m.servers))
	copy(out, m.servers)
	return out, nil
}

func (m *memRepo) RecordOutcome(_ context.Context, _ string, _ bool, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records++
	return nil
}

func server(id string, priority int, enabled bool) domain.SMTPServer {
	return domain.SMTPServer{
		ID: id, Name: id, Host: id + ".relay.test", Port: 25,
		Priority: priority, Enabled: enabled,
	}
}

func TestNextSkipsDisabled(t *testing.T) {
	repo := &memRepo{servers: []domain.SMTPServer{
		server("a", 9, false),
		server("b", 1, true),
	}}
	s := selector.New(repo)

	for i := 0; i < 10; i++ {
		srv, err := s.Next(context.Background())
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if srv.ID != "b" {
			t.Fatalf("picked disabled server %s", srv.ID)
		}
		s.RecordOutcome(context.Background(), srv.ID, true, 10*time.Millisecond)
	}
}

func TestNextEmptyPool(t *testing.T) {
	s := selector.New(&memRepo{})
	if _, err := s.Next(context.Background()); err != selector.ErrNoServerAvailable {
		t.Fatalf("expected ErrNoServerAvailable, got %v", err)
	}

	s = selector.New(&memRepo{servers: []domain.SMTPServer{server("a", 1, false)}})
	if _, err := s.Next(context.Background()); err != selector.ErrNoServerAvailable {
		t.Fatalf("all-disabled pool: expected ErrNoServerAvailable, got %v", err)
	}
}

func TestHigherPriorityWins(t *testing.T) {
	repo := &memRepo{servers: []domain.SMTPServer{
		server("low", 1, true),
		server("high", 5, true),
	}}
	s := selector.New(repo)

	srv, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if srv.ID != "high" {
		t.Fatalf("expected high-priority server, got %s", srv.ID)
	}
}

func TestFailuresSinkServer(t *testing.T) {
	repo := &memRepo{servers: []domain.SMTPServer{
		server("a", 1, true),
		server("b", 1, true),
	}}
	s := selector.New(repo)
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	// fail server a repeatedly; its score must strictly decrease
	var prev float64 = 1e9
	for i := 0; i < 5; i++ {
		s.RecordOutcome(context.Background(), "a", false, 50*time.Millisecond)
		score := scoreOf(t, s, "a")
		if score >= prev {
			t.Fatalf("score did not strictly decrease: %f -> %f", prev, score)
		}
		prev = score
	}

	// now b is the healthier choice
	srv, err := s.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if srv.ID != "b" {
		t.Fatalf("expected healthy server b, got %s", srv.ID)
	}
}

func TestFastFailureStillLowersScore(t *testing.T) {
	repo := &memRepo{servers: []domain.SMTPServer{
		{ID: "a", Host: "a.relay.test", Port: 25, Priority: 1, Enabled: true,
			SuccessCount: 1, FailureCount: 19, AvgResponseMs: 5000},
	}}
	s := selector.New(repo)
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	// a near-instant failure must not pull the latency average down enough
	// to outweigh the success-rate drop
	before := scoreOf(t, s, "a")
	s.RecordOutcome(context.Background(), "a", false, time.Millisecond)
	if after := scoreOf(t, s, "a"); after >= before {
		t.Fatalf("fast failure did not lower score: %f -> %f", before, after)
	}
}

func TestSuccessesRaiseScore(t *testing.T) {
	repo := &memRepo{servers: []domain.SMTPServer{
		{ID: "a", Host: "a.relay.test", Port: 25, Priority: 1, Enabled: true,
			SuccessCount: 1, FailureCount: 9}, // seeds a poor rate
	}}
	s := selector.New(repo)
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	before := scoreOf(t, s, "a")
	for i := 0; i < 5; i++ {
		s.RecordOutcome(context.Background(), "a", true, 5*time.Millisecond)
	}
	if after := scoreOf(t, s, "a"); after <= before {
		t.Fatalf("successes did not raise score: %f -> %f", before, after)
	}
}

func TestTieBreakByLoad(t *testing.T) {
	repo := &memRepo{servers: []domain.SMTPServer{
		server("a", 1, true),
		server("b", 1, true),
	}}
	s := selector.New(repo)

	first, err := s.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if first.ID == second.ID {
		t.Fatalf("tie not broken by load: %s picked twice", first.ID)
	}
}

func TestOutcomePersisted(t *testing.T) {
	repo := &memRepo{servers: []domain.SMTPServer{server("a", 1, true)}}
	s := selector.New(repo)
	if _, err := s.Next(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.RecordOutcome(context.Background(), "a", true, time.Millisecond)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if repo.records != 1 {
		t.Fatalf("expected 1 persisted outcome, got %d", repo.records)
	}
}

func TestConcurrentRecordOutcome(t *testing.T) {
	repo := &memRepo{servers: []domain.SMTPServer{server("a", 1, true)}}
	s := selector.New(repo)
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(ok bool) {
			defer wg.Done()
			s.RecordOutcome(context.Background(), "a", ok, time.Millisecond)
		}(i%2 == 0)
	}
	wg.Wait()

	st := s.Status()
	if len(st) != 1 {
		t.Fatalf("status len = %d", len(st))
	}
	if st[0].SuccessRate < 0 || st[0].SuccessRate > 1 {
		t.Fatalf("tally corrupted: %f", st[0].SuccessRate)
	}
}

func scoreOf(t *testing.T, s *selector.Selector, id string) float64 {
	t.Helper()
	for _, st := range s.Status() {
		if st.Server.ID == id {
			return st.Score
		}
	}
	t.Fatalf("server %s not in status", id)
	return 0
}
