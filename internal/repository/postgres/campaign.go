package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/arkmail/dispatch/internal/domain"
	"github.com/arkmail/dispatch/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `id, name, from_name, from_email, reply_to, subject,
	html_body, text_body, status,
	emails_sent, emails_failed, opens, unique_opens, clicks, unique_clicks,
	conversions, unsubscribes,
	open_rate, click_rate, click_to_open_rate, conversion_rate,
	created_at, updated_at`

func scanCampaign(row interface{ Scan(...interface{}) error }) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	err := row.Scan(
		&c.ID, &c.Name, &c.FromName, &c.FromEmail, &c.ReplyTo, &c.Subject,
		&c.HTMLBody, &c.TextBody, &c.Status,
		&c.EmailsSent, &c.EmailsFailed, &c.Opens, &c.UniqueOpens, &c.Clicks, &c.UniqueClicks,
		&c.Conversions, &c.Unsubscribes,
		&c.OpenRate, &c.ClickRate, &c.ClickToOpenRate, &c.ConversionRate,
		&c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

func (r *CampaignRepo) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)
	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := []string{"TRUE"}
	args := []interface{}{}
	idx := 1
	if f.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", idx))
		args = append(args, f.Status)
		idx++
	}
	if f.Search != "" {
		where = append(where, fmt.Sprintf("name ILIKE '%%' || $%d || '%%'", idx))
		args = append(args, f.Search)
		idx++
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM campaigns WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	q := fmt.Sprintf(`SELECT %s FROM campaigns WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		campaignColumns, cond, idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaigns
			(id, name, from_name, from_email, reply_to, subject, html_body, text_body,
			 status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	`, c.ID, c.Name, c.FromName, c.FromEmail, c.ReplyTo, c.Subject, c.HTMLBody, c.TextBody, c.Status)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepo) Update(ctx context.Context, id string, u campaign.UpdateFields) error {
	sets := []string{}
	args := []interface{}{}
	idx := 1
	add := func(col string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}

	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.Subject != nil {
		add("subject", *u.Subject)
	}
	if u.FromName != nil {
		add("from_name", *u.FromName)
	}
	if u.FromEmail != nil {
		add("from_email", *u.FromEmail)
	}
	if u.ReplyTo != nil {
		add("reply_to", *u.ReplyTo)
	}
	if u.HTMLBody != nil {
		add("html_body", *u.HTMLBody)
	}
	if u.TextBody != nil {
		add("text_body", *u.TextBody)
	}

	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = NOW()")

	q := fmt.Sprintf("UPDATE campaigns SET %s WHERE id = $%d",
		strings.Join(sets, ", "), idx)
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM campaigns WHERE id = $1 AND status = 'draft'
	`, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) UpdateStatus(ctx context.Context, id string, status domain.CampaignStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = $1, updated_at = NOW() WHERE id = $2
	`, status, id)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

// EnqueueRecipients inserts queue rows for the worker pool. Suppressed and
// non-active subscribers never enter the queue; duplicates are absorbed by
// the (campaign_id, subscriber_id) unique constraint.
func (r *CampaignRepo) EnqueueRecipients(ctx context.Context, campaignID string, subscriberIDs []string) (int, error) {
	q := `
		INSERT INTO send_queue (campaign_id, subscriber_id, status, created_at)
		SELECT $1, s.id, 'queued', NOW()
		FROM subscribers s
		WHERE s.status = 'active'
		  AND NOT EXISTS (
		      SELECT 1 FROM suppression_list sup
		      WHERE sup.email = LOWER(s.email)
		  )`
	args := []interface{}{campaignID}
	if len(subscriberIDs) > 0 {
		q += ` AND s.id = ANY($2::uuid[])`
		args = append(args, pq.Array(subscriberIDs))
	}
	q += ` ON CONFLICT (campaign_id, subscriber_id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("enqueue recipients: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
