package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/arkmail/dispatch/internal/domain"
	"github.com/arkmail/dispatch/internal/service/suppression"
)

// SuppressionRepo implements suppression.Repository against PostgreSQL.
type SuppressionRepo struct{ db *sql.DB }

// NewSuppressionRepo creates a Postgres-backed suppression repository.
func NewSuppressionRepo(db *sql.DB) *SuppressionRepo { return &SuppressionRepo{db: db} }

func (r *SuppressionRepo) IsSuppressed(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM suppression_list WHERE email = $1)
	`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check suppression: %w", err)
	}
	return exists, nil
}

// Suppress inserts an entry, keeping any existing row for the address. The
// service has already normalized the email and computed the hash.
func (r *SuppressionRepo) Suppress(ctx context.Context, s *domain.Suppression) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO suppression_list (id, email, md5_hash, reason, source, campaign_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::uuid, NOW())
		ON CONFLICT (email) DO NOTHING
	`, s.ID, s.Email, s.MD5Hash, s.Reason, s.Source, s.CampaignID)
	if err != nil {
		return fmt.Errorf("suppress: %w", err)
	}
	return nil
}

func (r *SuppressionRepo) Remove(ctx context.Context, email string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM suppression_list WHERE email = $1`, email)
	if err != nil {
		return fmt.Errorf("remove suppression: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return suppression.ErrNotFound
	}
	return nil
}

// List pages suppression entries. Limit <= 0 returns everything, which the
// stats rollup relies on.
func (r *SuppressionRepo) List(ctx context.Context, f suppression.ListFilter) ([]domain.Suppression, int, error) {
	where := []string{"TRUE"}
	args := []interface{}{}
	idx := 1
	if f.Reason != "" {
		where = append(where, fmt.Sprintf("reason = $%d", idx))
		args = append(args, f.Reason)
		idx++
	}
	if f.Source != "" {
		where = append(where, fmt.Sprintf("source = $%d", idx))
		args = append(args, f.Source)
		idx++
	}
	if f.Search != "" {
		where = append(where, fmt.Sprintf("email ILIKE '%%' || $%d || '%%'", idx))
		args = append(args, f.Search)
		idx++
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM suppression_list WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count suppressions: %w", err)
	}

	q := `SELECT id, email, md5_hash, reason, source, COALESCE(campaign_id::text, ''), created_at
		FROM suppression_list WHERE ` + cond + ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT $%d OFFSET $%d", idx, idx+1)
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list suppressions: %w", err)
	}
	defer rows.Close()

	var out []domain.Suppression
	for rows.Next() {
		var s domain.Suppression
		if err := rows.Scan(&s.ID, &s.Email, &s.MD5Hash, &s.Reason, &s.Source, &s.CampaignID, &s.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan suppression: %w", err)
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *SuppressionRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM suppression_list`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count suppressions: %w", err)
	}
	return n, nil
}

func (r *SuppressionRepo) SendByToken(ctx context.Context, token string) (*domain.Send, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sendColumns+` FROM sends WHERE tracking_token = $1`, token)
	s, err := scanSend(row)
	if err == sql.ErrNoRows {
		return nil, suppression.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("send by token: %w", err)
	}
	return s, nil
}

func (r *SuppressionRepo) MarkSubscriberUnsubscribed(ctx context.Context, subscriberID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE subscribers SET status = 'unsubscribed', updated_at = NOW()
		WHERE id = $1
	`, subscriberID)
	if err != nil {
		return fmt.Errorf("mark unsubscribed: %w", err)
	}
	return nil
}

func (r *SuppressionRepo) IncrementCampaignUnsubscribes(ctx context.Context, campaignID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET unsubscribes = unsubscribes + 1, updated_at = NOW()
		WHERE id = $1
	`, campaignID)
	if err != nil {
		return fmt.Errorf("increment unsubscribes: %w", err)
	}
	return nil
}
