package suppression

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/arkmail/dispatch/internal/domain"
)

// Service implements suppression business logic. It is safe for concurrent
// use. All methods are pure: they take typed inputs and return typed outputs.
type Service struct {
	repo Repository
}

// NewService creates a suppression service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// IsSuppressed checks whether an email address should be blocked from sending.
func (s *Service) IsSuppressed(ctx context.Context, email string) (bool, error) {
	return s.repo.IsSuppressed(ctx, strings.ToLower(strings.TrimSpace(email)))
}

// Suppress adds an email to the do-not-mail list. Idempotent: if the email
// is already suppressed, the existing record is preserved.
func (s *Service) Suppress(ctx context.Context, email string, reason domain.SuppressionReason, source domain.SuppressionSource, campaignID string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return fmt.Errorf("email is required")
	}

	hash := md5.Sum([]byte(email))
	entry := &domain.Suppression{
		Email:      email,
		MD5Hash:    hex.EncodeToString(hash[:]),
		Reason:     reason,
		Source:     source,
		CampaignID: campaignID,
	}

	return s.repo.Suppress(ctx, entry)
}

// Unsubscribe processes a recipient-initiated opt-out identified by the
// tracking token from their message. It suppresses the address, flips the
// subscriber record, and bumps the campaign's unsubscribe counter. Returns
// ErrNotFound when the token resolves to nothing.
func (s *Service) Unsubscribe(ctx context.Context, trackingToken string, source domain.SuppressionSource) error {
	send, err := s.repo.SendByToken(ctx, trackingToken)
	if err != nil {
		return err
	}

	if err := s.Suppress(ctx, send.Email, domain.ReasonUnsubscribed, source, send.CampaignID); err != nil {
		return fmt.Errorf("suppress %s: %w", send.Email, err)
	}
	if err := s.repo.MarkSubscriberUnsubscribed(ctx, send.SubscriberID); err != nil {
		return fmt.Errorf("mark subscriber: %w", err)
	}
	if err := s.repo.IncrementCampaignUnsubscribes(ctx, send.CampaignID); err != nil {
		return fmt.Errorf("campaign counter: %w", err)
	}
	return nil
}

// Remove deletes a suppression entry. Returns an error if the email is not
// suppressed.
func (s *Service) Remove(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return fmt.Errorf("email is required")
	}
	return s.repo.Remove(ctx, email)
}

// List returns suppression entries matching the given filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]domain.Suppression, int, error) {
	return s.repo.List(ctx, filter)
}

// Count returns the total number of suppressed addresses.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Stats aggregates counts grouped by reason and source.
type Stats struct {
	Total    int            `json:"total"`
	ByReason map[string]int `json:"by_reason"`
	BySource map[string]int `json:"by_source"`
}

// GetStats computes suppression statistics for the ops API.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	entries, total, err := s.repo.List(ctx, ListFilter{Limit: 0})
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Total:    total,
		ByReason: make(map[string]int),
		BySource: make(map[string]int),
	}
	for _, e := range entries {
		stats.ByReason[string(e.Reason)]++
		stats.BySource[string(e.Source)]++
	}
	return stats, nil
}
