package attribution

import (
	"strings"

	"github.com/arkmail/dispatch/internal/domain"
)

// ConversionRules maps destination-URL keywords to conversion buckets.
// Buckets are evaluated in a fixed order (purchase, signup, download,
// contact) and the first bucket with a matching keyword wins, so a URL
// like "/checkout/signup" tags as purchase.
type ConversionRules struct {
	Purchase []string
	Signup   []string
	Download []string
	Contact  []string
}

// DefaultRules returns the stock keyword buckets.
func DefaultRules() ConversionRules {
	return ConversionRules{
		Purchase: []string{"checkout", "buy", "purchase", "order", "payment", "cart"},
		Signup:   []string{"signup", "sign-up", "register", "subscribe", "join"},
		Download: []string{"download", "install", "get-app"},
		Contact:  []string{"contact", "demo", "quote", "talk-to-sales"},
	}
}

// Match classifies a destination URL. The second return is false when no
// bucket matches.
func (r ConversionRules) Match(url string) (domain.ConversionType, bool) {
	lower := strings.ToLower(url)
	buckets := []struct {
		ctype    domain.ConversionType
		keywords []string
	}{
		{domain.ConversionPurchase, r.Purchase},
		{domain.ConversionSignup, r.Signup},
		{domain.ConversionDownload, r.Download},
		{domain.ConversionContact, r.Contact},
	}
	for _, b := range buckets {
		for _, kw := range b.keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return b.ctype, true
			}
		}
	}
	return "", false
}
