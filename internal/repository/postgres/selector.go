package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/arkmail/dispatch/internal/domain"
)

// ServerRepo implements selector.Repository against PostgreSQL.
type ServerRepo struct{ db *sql.DB }

// NewServerRepo creates a Postgres-backed relay pool repository.
func NewServerRepo(db *sql.DB) *ServerRepo { return &ServerRepo{db: db} }

func (r *ServerRepo) ListServers(ctx context.Context) ([]domain.SMTPServer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, host, port, username, password, helo_domain,
		       priority, enabled, success_count, failure_count,
		       avg_response_ms, last_used_at
		FROM smtp_servers
		ORDER BY priority DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	defer rows.Close()

	var out []domain.SMTPServer
	for rows.Next() {
		var s domain.SMTPServer
		if err := rows.Scan(
			&s.ID, &s.Name, &s.Host, &s.Port, &s.Username, &s.Password, &s.HELODomain,
			&s.Priority, &s.Enabled, &s.SuccessCount, &s.FailureCount,
			&s.AvgResponseMs, &s.LastUsedAt,
		); err != nil {
			return nil, fmt.Errorf("scan server: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RecordOutcome persists one attempt into the lifetime counters. The
// response average is a cumulative mean over all attempts; the selector's
// in-memory EWMA reads these as seed values on the next start.
func (r *ServerRepo) RecordOutcome(ctx context.Context, serverID string, success bool, elapsed time.Duration) error {
	ms := float64(elapsed.Milliseconds())
	_, err := r.db.ExecContext(ctx, `
		UPDATE smtp_servers SET
			success_count = success_count + CASE WHEN $2 THEN 1 ELSE 0 END,
			failure_count = failure_count + CASE WHEN $2 THEN 0 ELSE 1 END,
			avg_response_ms = (avg_response_ms * (success_count + failure_count) + $3)
				/ (success_count + failure_count + 1),
			last_used_at = NOW()
		WHERE id = $1
	`, serverID, success, ms)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}
