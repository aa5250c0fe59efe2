package selector

import "errors"

// ErrNoServerAvailable means the pool is empty or every server is disabled.
var ErrNoServerAvailable = errors.New("no smtp server available")
