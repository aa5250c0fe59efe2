package inject

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/arkmail/dispatch/internal/domain"
)

// defaultLinkTTL bounds how long a redirect link stays resolvable. Old
// campaign mail forwarded months later should not 404, so the window is
// generous.
const defaultLinkTTL = 90 * 24 * time.Hour

var hrefPattern = regexp.MustCompile(`(?i)href\s*=\s*(?:"([^"]*)"|'([^']*)')`)

// skipSchemes are href prefixes that are not navigational web links and
// must never be wrapped in a redirect.
var skipSchemes = []string{"mailto:", "tel:", "sms:", "javascript:", "data:", "ftp:", "file:"}

// Injector rewrites message HTML with tracking instrumentation.
type Injector struct {
	repo    Repository
	baseURL string
	linkTTL time.Duration
	now     func() time.Time
}

// New returns an Injector that points rewritten links and the beacon at
// baseURL (the public tracking host, e.g. "https://t.arkmail.io").
func New(repo Repository, baseURL string) *Injector {
	return &Injector{
		repo:    repo,
		baseURL: strings.TrimRight(baseURL, "/"),
		linkTTL: defaultLinkTTL,
		now:     time.Now,
	}
}

// Inject rewraps every trackable href in html as a redirect link owned
// by the given send and appends the open-tracking pixel. Apart from the
// href values and the appended beacon the markup is returned byte for
// byte as received.
func (i *Injector) Inject(ctx context.Context, html, sendID, trackingToken string) (string, error) {
	matches := hrefPattern.FindAllStringSubmatchIndex(html, -1)

	var b strings.Builder
	b.Grow(len(html) + 256)
	last := 0
	position := 0
	for _, m := range matches {
		start, end := m[2], m[3]
		if start < 0 {
			start, end = m[4], m[5]
		}
		original := html[start:end]
		if i.skip(original) {
			continue
		}

		position++
		now := i.now()
		expires := now.Add(i.linkTTL)
		mapping := domain.LinkMapping{
			ID:          domain.NewToken(),
			SendID:      sendID,
			OriginalURL: strings.TrimSpace(original),
			Position:    position,
			CreatedAt:   now,
			ExpiresAt:   &expires,
		}
		if err := i.repo.CreateLinkMapping(ctx, mapping); err != nil {
			return "", fmt.Errorf("inject: persist link %d: %w", position, err)
		}

		b.WriteString(html[last:start])
		b.WriteString(i.baseURL + "/track/click/" + mapping.ID)
		last = end
	}
	b.WriteString(html[last:])

	return i.appendPixel(b.String(), trackingToken), nil
}

// skip reports whether an href value must pass through unmodified.
func (i *Injector) skip(href string) bool {
	trimmed := strings.TrimSpace(href)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, scheme := range skipSchemes {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	if strings.Contains(lower, "unsubscribe") {
		return true
	}
	// never double-wrap a link that already points at the tracker
	return strings.HasPrefix(lower, strings.ToLower(i.baseURL))
}

// appendPixel places the beacon just before </body> when present, else
// at the end of the document.
func (i *Injector) appendPixel(html, trackingToken string) string {
	tag := fmt.Sprintf(
		`<img src="%s/track/pixel/%s" width="1" height="1" border="0" alt="" style="display:block;max-height:1px;overflow:hidden"/>`,
		i.baseURL, trackingToken,
	)
	if idx := strings.LastIndex(strings.ToLower(html), "</body>"); idx >= 0 {
		return html[:idx] + tag + html[idx:]
	}
	return html + tag
}
