package selector

import (
	"context"
	"time"

	"github.com/arkmail/dispatch/internal/domain"
)

// Repository defines the data access contract for the relay pool.
// Implementations must be safe for concurrent use.
type Repository interface {
	// ListServers returns every configured server, enabled or not.
	ListServers(ctx context.Context) ([]domain.SMTPServer, error)

	// RecordOutcome bumps the lifetime success/failure counters, folds the
	// attempt duration into avg_response_ms, and stamps last_used_at.
	RecordOutcome(ctx context.Context, serverID string, success bool, elapsed time.Duration) error
}
