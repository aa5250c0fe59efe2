package attribution

import (
	"context"

	"github.com/arkmail/dispatch/internal/domain"
)

// Repository defines the data access contract for attribution. Event
// inserts decide uniqueness atomically on the database side: two
// near-simultaneous opens of the same send from the same IP must never
// both come back unique.
type Repository interface {
	// SendByToken resolves a tracking token. Returns ErrNotFound for
	// unknown tokens.
	SendByToken(ctx context.Context, token string) (*domain.Send, error)

	// SendByID loads a send record by primary key.
	SendByID(ctx context.Context, id string) (*domain.Send, error)

	// LinkByID resolves a redirect link id to its mapping. Returns
	// ErrNotFound for unknown ids.
	LinkByID(ctx context.Context, id string) (*domain.LinkMapping, error)

	// InsertOpenEvent persists the event and reports whether it is the
	// first open for the (send, IP) pair.
	InsertOpenEvent(ctx context.Context, ev *domain.OpenEvent) (bool, error)

	// InsertClickEvent persists the event and reports whether it is the
	// first click for the (send, IP) pair.
	InsertClickEvent(ctx context.Context, ev *domain.ClickEvent) (bool, error)

	// InsertConversion persists a conversion unless one of the same type
	// already exists for the send; reports whether a row was written.
	InsertConversion(ctx context.Context, ev *domain.ConversionEvent) (bool, error)

	// IncrementOpenCounters bumps campaign opens (and unique_opens when
	// unique) and recomputes open_rate in the same statement.
	IncrementOpenCounters(ctx context.Context, campaignID string, unique bool) error

	// IncrementClickCounters bumps campaign clicks (and unique_clicks
	// when unique) and recomputes click_rate and click_to_open_rate.
	IncrementClickCounters(ctx context.Context, campaignID string, unique bool) error

	// IncrementConversionCounters bumps campaign conversions and
	// recomputes conversion_rate.
	IncrementConversionCounters(ctx context.Context, campaignID string) error

	// RecordSubscriberOpen bumps the subscriber's lifetime open tally and
	// adds the open increment to their engagement score, capped at 100.
	RecordSubscriberOpen(ctx context.Context, subscriberID string) error

	// RecordSubscriberClick does the same for clicks with the larger
	// click increment.
	RecordSubscriberClick(ctx context.Context, subscriberID string) error
}
