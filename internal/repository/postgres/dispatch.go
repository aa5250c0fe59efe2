package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/arkmail/dispatch/internal/domain"
	"github.com/arkmail/dispatch/internal/service/dispatch"
)

// DispatchRepo implements dispatch.Repository against PostgreSQL.
type DispatchRepo struct{ db *sql.DB }

// NewDispatchRepo creates a Postgres-backed dispatch repository.
func NewDispatchRepo(db *sql.DB) *DispatchRepo { return &DispatchRepo{db: db} }

func (r *DispatchRepo) CampaignByID(ctx context.Context, id string) (*domain.Campaign, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)
	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, dispatch.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load campaign: %w", err)
	}
	return c, nil
}

// SubscribersByIDs returns profiles in the order the ids were given.
// Unknown ids are dropped without error; the engine reports them per
// recipient instead of failing the batch.
func (r *DispatchRepo) SubscribersByIDs(ctx context.Context, ids []string) ([]domain.Subscriber, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, email, first_name, last_name, company, city, country,
		       timezone, industry, phone, engagement_score, total_opens,
		       total_clicks, status, created_at, updated_at
		FROM subscribers
		WHERE id = ANY($1::uuid[])
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("load subscribers: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]domain.Subscriber, len(ids))
	for rows.Next() {
		var s domain.Subscriber
		if err := rows.Scan(
			&s.ID, &s.Email, &s.FirstName, &s.LastName, &s.Company, &s.City, &s.Country,
			&s.Timezone, &s.Industry, &s.Phone, &s.EngagementScore, &s.TotalOpens,
			&s.TotalClicks, &s.Status, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		byID[s.ID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load subscribers: %w", err)
	}

	out := make([]domain.Subscriber, 0, len(ids))
	for _, id := range ids {
		if s, ok := byID[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *DispatchRepo) CreateSend(ctx context.Context, s *domain.Send) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sends
			(id, tracking_token, campaign_id, subscriber_id, email,
			 subject, html_body, text_body, status, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, s.ID, s.TrackingToken, s.CampaignID, s.SubscriberID, s.Email,
		s.Subject, s.HTMLBody, s.TextBody, s.Status, s.RetryCount, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("create send: %w", err)
	}
	return nil
}

func (r *DispatchRepo) MarkSendSent(ctx context.Context, sendID, serverID string, retryCount int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sends
		SET status = 'sent', server_id = $2, retry_count = $3, sent_at = NOW()
		WHERE id = $1
	`, sendID, serverID, retryCount)
	if err != nil {
		return fmt.Errorf("mark send sent: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return dispatch.ErrNotFound
	}
	return nil
}

func (r *DispatchRepo) MarkSendFailed(ctx context.Context, sendID, serverID string, retryCount int, lastError string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sends
		SET status = 'failed', server_id = NULLIF($2, ''), retry_count = $3, last_error = $4
		WHERE id = $1
	`, sendID, serverID, retryCount, lastError)
	if err != nil {
		return fmt.Errorf("mark send failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return dispatch.ErrNotFound
	}
	return nil
}

// IncrementCampaignSent moves the denominator, so every rate that divides
// by emails_sent is recomputed against the post-increment value in the
// same statement.
func (r *DispatchRepo) IncrementCampaignSent(ctx context.Context, campaignID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET
			emails_sent     = emails_sent + 1,
			open_rate       = COALESCE(opens       * 100.0 / (emails_sent + 1), 0),
			click_rate      = COALESCE(clicks      * 100.0 / (emails_sent + 1), 0),
			conversion_rate = COALESCE(conversions * 100.0 / (emails_sent + 1), 0),
			updated_at      = NOW()
		WHERE id = $1
	`, campaignID)
	if err != nil {
		return fmt.Errorf("increment emails_sent: %w", err)
	}
	return nil
}

func (r *DispatchRepo) IncrementCampaignFailed(ctx context.Context, campaignID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET emails_failed = emails_failed + 1, updated_at = NOW()
		WHERE id = $1
	`, campaignID)
	if err != nil {
		return fmt.Errorf("increment emails_failed: %w", err)
	}
	return nil
}
