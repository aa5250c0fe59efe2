package dispatch

import (
	"context"
	"time"

	"github.com/arkmail/dispatch/internal/domain"
)

// Repository defines the data access contract for dispatch runs.
type Repository interface {
	// CampaignByID loads a campaign. Returns ErrNotFound when absent.
	CampaignByID(ctx context.Context, id string) (*domain.Campaign, error)

	// SubscribersByIDs loads recipient profiles in the given order,
	// silently dropping unknown ids.
	SubscribersByIDs(ctx context.Context, ids []string) ([]domain.Subscriber, error)

	// CreateSend inserts the send record with status pending. Called
	// before the first transport attempt.
	CreateSend(ctx context.Context, s *domain.Send) error

	// MarkSendSent finalizes a delivered send: status, server, retry
	// count, sent_at.
	MarkSendSent(ctx context.Context, sendID, serverID string, retryCount int) error

	// MarkSendFailed finalizes an exhausted send with its last transport
	// error.
	MarkSendFailed(ctx context.Context, sendID, serverID string, retryCount int, lastError string) error

	// IncrementCampaignSent bumps emails_sent and recomputes the rates
	// that depend on it in the same statement.
	IncrementCampaignSent(ctx context.Context, campaignID string) error

	// IncrementCampaignFailed bumps emails_failed.
	IncrementCampaignFailed(ctx context.Context, campaignID string) error
}

// Composer personalizes campaign templates per recipient.
type Composer interface {
	Validate(tmpl domain.Template) error
	Personalize(tmpl domain.Template, sub domain.Subscriber) (domain.Content, error)
}

// Injector rewrites HTML with tracking instrumentation.
type Injector interface {
	Inject(ctx context.Context, html, sendID, trackingToken string) (string, error)
}

// Signer produces the DKIM-Signature header for an assembled message.
type Signer interface {
	Sign(headers map[string]string, body string) (string, error)
	Domain() string
}

// SuppressionChecker answers whether an address may receive mail.
type SuppressionChecker interface {
	IsSuppressed(ctx context.Context, email string) (bool, error)
}

// ServerPool hands out ranked SMTP servers and absorbs outcome feedback.
type ServerPool interface {
	Next(ctx context.Context) (*domain.SMTPServer, error)
	RecordOutcome(ctx context.Context, serverID string, success bool, elapsed time.Duration)
}

// Transport performs the wire delivery of one assembled message.
type Transport interface {
	Send(ctx context.Context, server domain.SMTPServer, msg *domain.EmailMessage) error
}
