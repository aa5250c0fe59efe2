// Package suppression implements the do-not-mail list service.
//
// This is the single source of truth for whether an address may receive
// mail. Entries flow in from recipient unsubscribes (tracking link and
// RFC 8058 one-click POSTs), bounce classification, and manual admin
// actions, and are checked before every send.
//
// The service layer contains pure business logic and depends on the
// Repository interface defined in repository.go. It never imports
// net/http or database/sql directly.
package suppression
