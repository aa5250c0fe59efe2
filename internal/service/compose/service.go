package compose

import (
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/arkmail/dispatch/internal/domain"
	"github.com/arkmail/dispatch/internal/spintax"
)

// Composer personalizes campaign templates. Safe for concurrent use.
type Composer struct {
	spin *spintax.Expander
	now  func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Composer. A nil rng gets a time-seeded source and a nil now
// defaults to time.Now; tests pass both for reproducible output. The
// expander gets its own source derived from rng rather than rng itself:
// *rand.Rand is not safe for concurrent use, and the expander and the
// Composer draw under separate locks.
func New(rng *rand.Rand, now func() time.Time) *Composer {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if now == nil {
		now = time.Now
	}
	return &Composer{
		spin: spintax.New(rand.New(rand.NewSource(rng.Int63()))),
		now:  now,
		rng:  rng,
	}
}

// Personalize resolves spintax and substitutes the token set for one
// recipient. Tokens without a profile value become empty strings; the raw
// token never reaches the recipient.
func (c *Composer) Personalize(tmpl domain.Template, sub domain.Subscriber) (domain.Content, error) {
	subject, err := c.spin.Expand(tmpl.Subject)
	if err != nil {
		return domain.Content{}, &domain.ValidationError{Field: "subject", Reason: err.Error()}
	}
	html, err := c.spin.Expand(tmpl.HTML)
	if err != nil {
		return domain.Content{}, &domain.ValidationError{Field: "html", Reason: err.Error()}
	}
	text, err := c.spin.Expand(tmpl.Text)
	if err != nil {
		return domain.Content{}, &domain.ValidationError{Field: "text", Reason: err.Error()}
	}

	r := c.replacer(sub)
	return domain.Content{
		Subject: r.Replace(subject),
		HTML:    r.Replace(html),
		Text:    r.Replace(text),
	}, nil
}

// Validate checks every template field for spintax errors without expanding,
// so malformed campaigns are rejected before any send attempt.
func (c *Composer) Validate(tmpl domain.Template) error {
	for _, f := range []struct{ name, body string }{
		{"subject", tmpl.Subject},
		{"html", tmpl.HTML},
		{"text", tmpl.Text},
	} {
		if err := c.spin.Validate(f.body); err != nil {
			return &domain.ValidationError{Field: f.name, Reason: err.Error()}
		}
	}
	return nil
}

func (c *Composer) replacer(sub domain.Subscriber) *strings.Replacer {
	at := c.now()

	c.mu.Lock()
	filler := c.rng.Intn(90000) + 10000
	c.mu.Unlock()

	timeOfDay := timeOfDayWord(at.Hour())

	localTime := ""
	if sub.Timezone != "" {
		if loc, err := time.LoadLocation(sub.Timezone); err == nil {
			localTime = at.In(loc).Format("3:04 PM")
		}
	}

	return strings.NewReplacer(
		"[first_name]", sub.FirstName,
		"[last_name]", sub.LastName,
		"[email]", sub.Email,
		"[company]", sub.Company,
		"[city]", sub.City,
		"[country]", sub.Country,
		"[date]", at.Format("January 2, 2006"),
		"[time]", at.Format("3:04 PM"),
		"[random_number]", strconv.Itoa(filler),
		"[greeting]", "Good "+timeOfDay,
		"[time_of_day]", timeOfDay,
		"[local_time]", localTime,
		"[industry]", industryDescription(sub.Industry),
	)
}

// timeOfDayWord is a fixed three-way split on the server clock hour. No
// locale awareness.
func timeOfDayWord(hour int) string {
	switch {
	case hour < 12:
		return "morning"
	case hour < 17:
		return "afternoon"
	default:
		return "evening"
	}
}
