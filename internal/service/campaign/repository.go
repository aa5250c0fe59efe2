package campaign

import (
	"context"

	"github.com/arkmail/dispatch/internal/domain"
)

// Repository defines the data access contract for campaigns.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single campaign. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Campaign, error)

	// List returns campaigns matching the given filter, ordered by created_at DESC.
	List(ctx context.Context, filter ListFilter) ([]domain.Campaign, int, error)

	// Create inserts a new campaign.
	Create(ctx context.Context, c *domain.Campaign) error

	// Update modifies a campaign. Only non-nil fields in the update are applied.
	Update(ctx context.Context, id string, u UpdateFields) error

	// Delete removes a campaign. Only draft campaigns can be deleted.
	Delete(ctx context.Context, id string) error

	// UpdateStatus transitions a campaign's status.
	UpdateStatus(ctx context.Context, id string, status domain.CampaignStatus) error

	// EnqueueRecipients inserts send_queue rows for the given subscribers,
	// or for every active subscriber when ids is empty. Suppressed and
	// inactive addresses are filtered inside the insert; rows already
	// queued for the campaign are skipped. Returns rows actually added.
	EnqueueRecipients(ctx context.Context, campaignID string, subscriberIDs []string) (int, error)
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	Status string
	Search string
	Limit  int
	Offset int
}

// UpdateFields holds the mutable fields for a campaign update.
// Nil fields are not applied.
type UpdateFields struct {
	Name      *string
	Subject   *string
	FromName  *string
	FromEmail *string
	ReplyTo   *string
	HTMLBody  *string
	TextBody  *string
}
