package attribution

import "errors"

// Sentinel errors for the attribution service layer.
var (
	ErrNotFound = errors.New("tracking record not found")
)
