package suppression

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/arkmail/dispatch/internal/domain"
)

// mockRepo is an in-memory repository for testing.
type mockRepo struct {
	mu           sync.RWMutex
	store        map[string]*domain.Suppression // keyed by lowercase email
	sends        map[string]*domain.Send        // keyed by tracking token
	unsubscribed map[string]bool                // subscriberID -> true
	counters     map[string]int                 // campaignID -> unsubscribes
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		store:        make(map[string]*domain.Suppression),
		sends:        make(map[string]*domain.Send),
		unsubscribed: make(map[string]bool),
		counters:     make(map[string]int),
	}
}

func (m *mockRepo) IsSuppressed(_ context.Context, email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.store[strings.ToLower(email)]
	return ok, nil
}

func (m *mockRepo) Suppress(_ context.Context, s *domain.Suppression) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.store[s.Email]; exists {
		return nil
	}
	m.store[s.Email] = s
	return nil
}

func (m *mockRepo) Remove(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[email]; !ok {
		return ErrNotFound
	}
	delete(m.store, email)
	return nil
}

func (m *mockRepo) List(_ context.Context, f ListFilter) ([]domain.Suppression, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []domain.Suppression
	for _, s := range m.store {
		if f.Reason != "" && string(s.Reason) != f.Reason {
			continue
		}
		result = append(result, *s)
	}
	return result, len(result), nil
}

func (m *mockRepo) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store), nil
}

func (m *mockRepo) SendByToken(_ context.Context, token string) (*domain.Send, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sends[token]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *mockRepo) MarkSubscriberUnsubscribed(_ context.Context, subscriberID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsubscribed[subscriberID] = true
	return nil
}

func (m *mockRepo) IncrementCampaignUnsubscribes(_ context.Context, campaignID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[campaignID]++
	return nil
}

func TestSuppressNormalizesEmail(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	if err := svc.Suppress(ctx, "  User@Example.COM ", domain.ReasonManual, domain.SourceAPI, ""); err != nil {
		t.Fatalf("suppress: %v", err)
	}

	blocked, err := svc.IsSuppressed(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("is suppressed: %v", err)
	}
	if !blocked {
		t.Error("expected normalized email to be suppressed")
	}

	entry := repo.store["user@example.com"]
	if entry == nil {
		t.Fatal("entry not stored under normalized key")
	}
	if entry.MD5Hash != "b58996c504c5638798eb6b511e6f49af" {
		t.Errorf("md5 hash = %s", entry.MD5Hash)
	}
}

func TestSuppressRequiresEmail(t *testing.T) {
	svc := NewService(newMockRepo())
	if err := svc.Suppress(context.Background(), "   ", domain.ReasonManual, domain.SourceAPI, ""); err == nil {
		t.Error("expected error for empty email")
	}
}

func TestSuppressIdempotent(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	if err := svc.Suppress(ctx, "a@b.com", domain.ReasonBounced, domain.SourceBounce, "camp-1"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Suppress(ctx, "a@b.com", domain.ReasonManual, domain.SourceAPI, ""); err != nil {
		t.Fatal(err)
	}

	if n, _ := svc.Count(ctx); n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
	if repo.store["a@b.com"].Reason != domain.ReasonBounced {
		t.Error("second suppress overwrote the original record")
	}
}

func TestUnsubscribe(t *testing.T) {
	repo := newMockRepo()
	repo.sends["tok-1"] = &domain.Send{
		ID: "send-1", TrackingToken: "tok-1", CampaignID: "camp-9",
		SubscriberID: "sub-7", Email: "jordan@example.org",
	}
	svc := NewService(repo)
	ctx := context.Background()

	if err := svc.Unsubscribe(ctx, "tok-1", domain.SourceTrackingLink); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}

	if blocked, _ := svc.IsSuppressed(ctx, "jordan@example.org"); !blocked {
		t.Error("address not suppressed after unsubscribe")
	}
	entry := repo.store["jordan@example.org"]
	if entry.Reason != domain.ReasonUnsubscribed || entry.Source != domain.SourceTrackingLink {
		t.Errorf("entry reason=%s source=%s", entry.Reason, entry.Source)
	}
	if entry.CampaignID != "camp-9" {
		t.Errorf("entry campaign = %s", entry.CampaignID)
	}
	if !repo.unsubscribed["sub-7"] {
		t.Error("subscriber status not flipped")
	}
	if repo.counters["camp-9"] != 1 {
		t.Errorf("campaign unsubscribes = %d, want 1", repo.counters["camp-9"])
	}
}

func TestUnsubscribeUnknownToken(t *testing.T) {
	svc := NewService(newMockRepo())
	if err := svc.Unsubscribe(context.Background(), "missing", domain.SourceOneClick); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	if err := svc.Remove(ctx, "ghost@example.com"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := svc.Suppress(ctx, "ghost@example.com", domain.ReasonManual, domain.SourceAPI, ""); err != nil {
		t.Fatal(err)
	}
	if err := svc.Remove(ctx, "Ghost@Example.com"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if blocked, _ := svc.IsSuppressed(ctx, "ghost@example.com"); blocked {
		t.Error("entry still present after remove")
	}
}

func TestGetStats(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	seed := []struct {
		email  string
		reason domain.SuppressionReason
		source domain.SuppressionSource
	}{
		{"a@x.com", domain.ReasonUnsubscribed, domain.SourceTrackingLink},
		{"b@x.com", domain.ReasonUnsubscribed, domain.SourceOneClick},
		{"c@x.com", domain.ReasonBounced, domain.SourceBounce},
	}
	for _, s := range seed {
		if err := svc.Suppress(ctx, s.email, s.reason, s.source, ""); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := svc.GetStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 3 {
		t.Errorf("total = %d", stats.Total)
	}
	if stats.ByReason["unsubscribed"] != 2 || stats.ByReason["bounced"] != 1 {
		t.Errorf("by reason = %v", stats.ByReason)
	}
	if stats.BySource["one_click"] != 1 {
		t.Errorf("by source = %v", stats.BySource)
	}
}
