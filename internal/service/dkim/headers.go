package dkim

import (
	"fmt"

	"github.com/google/uuid"
)

// MessageID builds a unique Message-ID under the signing domain so the
// identifier aligns with the DKIM d= domain.
func MessageID(domain string) string {
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

// ReturnPath builds a per-send bounce address. The tracking token is
// embedded as a plus-suffix so asynchronous bounces can be matched back
// to the send that caused them.
func ReturnPath(token, domain string) string {
	return fmt.Sprintf("bounce+%s@%s", token, domain)
}

// ListUnsubscribe returns the List-Unsubscribe and
// List-Unsubscribe-Post header values for a send's unsubscribe URL.
// The Post value enables RFC 8058 one-click handling in major inbox
// providers.
func ListUnsubscribe(unsubscribeURL string) (string, string) {
	return fmt.Sprintf("<%s>", unsubscribeURL), "List-Unsubscribe=One-Click"
}
