package suppression

import (
	"context"

	"github.com/arkmail/dispatch/internal/domain"
)

// Repository defines the data access contract for the suppression list
// and the records an unsubscribe touches.
type Repository interface {
	// IsSuppressed returns true if the email is on the do-not-mail list.
	IsSuppressed(ctx context.Context, email string) (bool, error)

	// Suppress adds an email to the list. If it already exists, the
	// existing record is preserved (idempotent).
	Suppress(ctx context.Context, s *domain.Suppression) error

	// Remove deletes a suppression entry. Returns ErrNotFound if it
	// doesn't exist.
	Remove(ctx context.Context, email string) error

	// List returns suppression entries matching the filter plus the
	// total count before pagination.
	List(ctx context.Context, filter ListFilter) ([]domain.Suppression, int, error)

	// Count returns the total number of suppressed addresses.
	Count(ctx context.Context) (int, error)

	// SendByToken resolves a recipient-facing tracking token to its
	// send record. Returns ErrNotFound for unknown tokens.
	SendByToken(ctx context.Context, token string) (*domain.Send, error)

	// MarkSubscriberUnsubscribed flips the subscriber's status so list
	// pulls exclude them immediately.
	MarkSubscriberUnsubscribed(ctx context.Context, subscriberID string) error

	// IncrementCampaignUnsubscribes bumps the owning campaign's
	// unsubscribe counter atomically.
	IncrementCampaignUnsubscribes(ctx context.Context, campaignID string) error
}

// ListFilter controls pagination and filtering for suppression lists.
type ListFilter struct {
	Reason string
	Source string
	Search string
	Limit  int
	Offset int
}
