package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound       = errors.New("campaign not found")
	ErrAlreadySending = errors.New("campaign is already sending or sent")
)
