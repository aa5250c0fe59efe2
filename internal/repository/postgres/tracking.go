package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/arkmail/dispatch/internal/domain"
	"github.com/arkmail/dispatch/internal/service/attribution"
)

// TrackingRepo implements attribution.Repository and inject.Repository
// against PostgreSQL. Uniqueness is decided by the database: the
// first-per-(send, IP) claim rides on a partial unique index, so two
// concurrent hits can never both come back unique.
type TrackingRepo struct{ db *sql.DB }

// NewTrackingRepo creates a Postgres-backed tracking repository.
func NewTrackingRepo(db *sql.DB) *TrackingRepo { return &TrackingRepo{db: db} }

const sendColumns = `id, tracking_token, campaign_id, subscriber_id, email,
	subject, html_body, text_body, COALESCE(server_id, ''), status,
	retry_count, last_error, created_at, sent_at, delivered_at`

func scanSend(row interface{ Scan(...interface{}) error }) (*domain.Send, error) {
	s := &domain.Send{}
	err := row.Scan(
		&s.ID, &s.TrackingToken, &s.CampaignID, &s.SubscriberID, &s.Email,
		&s.Subject, &s.HTMLBody, &s.TextBody, &s.ServerID, &s.Status,
		&s.RetryCount, &s.LastError, &s.CreatedAt, &s.SentAt, &s.DeliveredAt,
	)
	return s, err
}

// CreateLinkMapping satisfies inject.Repository.
func (r *TrackingRepo) CreateLinkMapping(ctx context.Context, m domain.LinkMapping) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO link_mappings (id, send_id, original_url, position, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.SendID, m.OriginalURL, m.Position, m.CreatedAt, m.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create link mapping: %w", err)
	}
	return nil
}

func (r *TrackingRepo) SendByToken(ctx context.Context, token string) (*domain.Send, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sendColumns+` FROM sends WHERE tracking_token = $1`, token)
	s, err := scanSend(row)
	if err == sql.ErrNoRows {
		return nil, attribution.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("send by token: %w", err)
	}
	return s, nil
}

func (r *TrackingRepo) SendByID(ctx context.Context, id string) (*domain.Send, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sendColumns+` FROM sends WHERE id = $1`, id)
	s, err := scanSend(row)
	if err == sql.ErrNoRows {
		return nil, attribution.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("send by id: %w", err)
	}
	return s, nil
}

func (r *TrackingRepo) LinkByID(ctx context.Context, id string) (*domain.LinkMapping, error) {
	m := &domain.LinkMapping{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, send_id, original_url, position, created_at, expires_at
		FROM link_mappings WHERE id = $1
	`, id).Scan(&m.ID, &m.SendID, &m.OriginalURL, &m.Position, &m.CreatedAt, &m.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, attribution.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("link by id: %w", err)
	}
	return m, nil
}

// InsertOpenEvent writes exactly one row per physical hit. The first insert
// tries to claim the unique slot for the (send, IP) pair; when the partial
// index rejects it the hit is re-inserted as a repeat row.
func (r *TrackingRepo) InsertOpenEvent(ctx context.Context, ev *domain.OpenEvent) (bool, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO open_events
			(id, send_id, ip_address, user_agent, device, browser, country, city,
			 is_unique, is_bot, seconds_to_open, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9, $10, $11)
		ON CONFLICT (send_id, ip_address) WHERE is_unique DO NOTHING
		RETURNING id
	`, ev.ID, ev.SendID, ev.IP, ev.UserAgent, ev.Device, ev.Browser, ev.Country, ev.City,
		ev.IsBot, ev.SecondsToOpen, ev.CreatedAt).Scan(&id)
	if err == nil {
		ev.IsUnique = true
		return true, nil
	}
	if err != sql.ErrNoRows {
		return false, fmt.Errorf("insert open event: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO open_events
			(id, send_id, ip_address, user_agent, device, browser, country, city,
			 is_unique, is_bot, seconds_to_open, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9, $10, $11)
	`, ev.ID, ev.SendID, ev.IP, ev.UserAgent, ev.Device, ev.Browser, ev.Country, ev.City,
		ev.IsBot, ev.SecondsToOpen, ev.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert repeat open: %w", err)
	}
	ev.IsUnique = false
	return false, nil
}

// InsertClickEvent follows the same claim-then-repeat pattern as opens.
func (r *TrackingRepo) InsertClickEvent(ctx context.Context, ev *domain.ClickEvent) (bool, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO click_events
			(id, send_id, link_id, destination_url, ip_address, user_agent,
			 device, browser, country, city, is_unique, is_bot, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE, $11, $12)
		ON CONFLICT (send_id, ip_address) WHERE is_unique DO NOTHING
		RETURNING id
	`, ev.ID, ev.SendID, ev.LinkID, ev.DestinationURL, ev.IP, ev.UserAgent,
		ev.Device, ev.Browser, ev.Country, ev.City, ev.IsBot, ev.CreatedAt).Scan(&id)
	if err == nil {
		ev.IsUnique = true
		return true, nil
	}
	if err != sql.ErrNoRows {
		return false, fmt.Errorf("insert click event: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO click_events
			(id, send_id, link_id, destination_url, ip_address, user_agent,
			 device, browser, country, city, is_unique, is_bot, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, $11, $12)
	`, ev.ID, ev.SendID, ev.LinkID, ev.DestinationURL, ev.IP, ev.UserAgent,
		ev.Device, ev.Browser, ev.Country, ev.City, ev.IsBot, ev.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert repeat click: %w", err)
	}
	ev.IsUnique = false
	return false, nil
}

func (r *TrackingRepo) InsertConversion(ctx context.Context, ev *domain.ConversionEvent) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO conversion_events
			(id, send_id, campaign_id, subscriber_id, conversion_type,
			 value, attribution_model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (send_id, conversion_type) DO NOTHING
	`, ev.ID, ev.SendID, ev.CampaignID, ev.SubscriberID, ev.Type,
		ev.Value, ev.AttributionModel, ev.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert conversion: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// IncrementOpenCounters recomputes open_rate from the post-increment opens
// and click_to_open_rate from the post-increment unique_opens in the same
// statement, so rates can never drift from the counters they derive from.
func (r *TrackingRepo) IncrementOpenCounters(ctx context.Context, campaignID string, unique bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET
			opens        = opens + 1,
			unique_opens = unique_opens + CASE WHEN $2 THEN 1 ELSE 0 END,
			open_rate    = COALESCE((opens + 1) * 100.0 / NULLIF(emails_sent, 0), 0),
			click_to_open_rate = COALESCE(clicks * 100.0
				/ NULLIF(unique_opens + CASE WHEN $2 THEN 1 ELSE 0 END, 0), 0),
			updated_at   = NOW()
		WHERE id = $1
	`, campaignID, unique)
	if err != nil {
		return fmt.Errorf("increment opens: %w", err)
	}
	return nil
}

func (r *TrackingRepo) IncrementClickCounters(ctx context.Context, campaignID string, unique bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET
			clicks        = clicks + 1,
			unique_clicks = unique_clicks + CASE WHEN $2 THEN 1 ELSE 0 END,
			click_rate    = COALESCE((clicks + 1) * 100.0 / NULLIF(emails_sent, 0), 0),
			click_to_open_rate = COALESCE((clicks + 1) * 100.0 / NULLIF(unique_opens, 0), 0),
			updated_at    = NOW()
		WHERE id = $1
	`, campaignID, unique)
	if err != nil {
		return fmt.Errorf("increment clicks: %w", err)
	}
	return nil
}

func (r *TrackingRepo) IncrementConversionCounters(ctx context.Context, campaignID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET
			conversions     = conversions + 1,
			conversion_rate = COALESCE((conversions + 1) * 100.0 / NULLIF(emails_sent, 0), 0),
			updated_at      = NOW()
		WHERE id = $1
	`, campaignID)
	if err != nil {
		return fmt.Errorf("increment conversions: %w", err)
	}
	return nil
}

// RecordSubscriberOpen caps the engagement bump in SQL so concurrent hits
// cannot push the score past 100.
func (r *TrackingRepo) RecordSubscriberOpen(ctx context.Context, subscriberID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE subscribers SET
			total_opens      = total_opens + 1,
			engagement_score = LEAST(100, engagement_score + 2),
			updated_at       = NOW()
		WHERE id = $1
	`, subscriberID)
	if err != nil {
		return fmt.Errorf("record subscriber open: %w", err)
	}
	return nil
}

func (r *TrackingRepo) RecordSubscriberClick(ctx context.Context, subscriberID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE subscribers SET
			total_clicks     = total_clicks + 1,
			engagement_score = LEAST(100, engagement_score + 5),
			updated_at       = NOW()
		WHERE id = $1
	`, subscriberID)
	if err != nil {
		return fmt.Errorf("record subscriber click: %w", err)
	}
	return nil
}
