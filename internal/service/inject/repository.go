package inject

import (
	"context"

	"github.com/arkmail/dispatch/internal/domain"
)

// Repository persists the link mappings created during injection.
type Repository interface {
	CreateLinkMapping(ctx context.Context, m domain.LinkMapping) error
}
