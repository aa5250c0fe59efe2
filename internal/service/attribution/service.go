package attribution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arkmail/dispatch/internal/domain"
	"github.com/arkmail/dispatch/internal/pkg/logger"
)

// Ingestor processes inbound pixel and redirect hits. Safe for concurrent
// use; uniqueness decisions live in the repository's atomic inserts, not
// in process memory.
type Ingestor struct {
	repo  Repository
	geo   GeoResolver
	rules ConversionRules
	now   func() time.Time
}

// New creates an Ingestor. geo may be nil, in which case location fields
// record the unknown sentinel. now may be nil and defaults to time.Now.
func New(repo Repository, geo GeoResolver, rules ConversionRules, now func() time.Time) *Ingestor {
	if now == nil {
		now = time.Now
	}
	return &Ingestor{repo: repo, geo: geo, rules: rules, now: now}
}

// HandleOpen records one pixel hit. The returned error is for logging
// only: callers serve the pixel regardless, and an unknown token comes
// back as a domain.TrackingResolutionError.
func (g *Ingestor) HandleOpen(ctx context.Context, token string, meta domain.RequestMeta) error {
	send, err := g.repo.SendByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &domain.TrackingResolutionError{Kind: "token", ID: token}
		}
		return fmt.Errorf("resolve token: %w", err)
	}

	now := g.now()
	country, city := resolveGeo(ctx, g.geo, meta.IP)
	ev := &domain.OpenEvent{
		ID:            uuid.NewString(),
		SendID:        send.ID,
		IP:            meta.IP,
		UserAgent:     meta.UserAgent,
		Device:        parseDevice(meta.UserAgent),
		Browser:       parseBrowser(meta.UserAgent),
		Country:       country,
		City:          city,
		IsBot:         isBot(meta.UserAgent),
		SecondsToOpen: secondsSince(send.SentAt, now),
		CreatedAt:     now,
	}

	unique, err := g.repo.InsertOpenEvent(ctx, ev)
	if err != nil {
		return fmt.Errorf("insert open event: %w", err)
	}

	// Aggregates are best-effort: the event row is the source of truth
	// and a missed counter is reconciled from it later.
	if err := g.repo.IncrementOpenCounters(ctx, send.CampaignID, unique); err != nil {
		logger.Warn("open counters not applied", "campaign_id", send.CampaignID, "error", err.Error())
	}
	if err := g.repo.RecordSubscriberOpen(ctx, send.SubscriberID); err != nil {
		logger.Warn("subscriber open not applied", "subscriber_id", send.SubscriberID, "error", err.Error())
	}
	return nil
}

// HandleClick records one redirect hit and returns the original
// destination URL. An unknown or expired link id comes back as a
// domain.TrackingResolutionError so the caller can fall back to a safe
// landing page.
func (g *Ingestor) HandleClick(ctx context.Context, linkID string, meta domain.RequestMeta) (string, error) {
	link, err := g.repo.LinkByID(ctx, linkID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", &domain.TrackingResolutionError{Kind: "link", ID: linkID}
		}
		return "", fmt.Errorf("resolve link: %w", err)
	}
	now := g.now()
	if link.ExpiresAt != nil && now.After(*link.ExpiresAt) {
		return "", &domain.TrackingResolutionError{Kind: "link", ID: linkID}
	}

	send, err := g.repo.SendByID(ctx, link.SendID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", &domain.TrackingResolutionError{Kind: "token", ID: link.SendID}
		}
		return "", fmt.Errorf("resolve send: %w", err)
	}

	country, city := resolveGeo(ctx, g.geo, meta.IP)
	ev := &domain.ClickEvent{
		ID:             uuid.NewString(),
		SendID:         send.ID,
		LinkID:         link.ID,
		DestinationURL: link.OriginalURL,
		IP:             meta.IP,
		UserAgent:      meta.UserAgent,
		Device:         parseDevice(meta.UserAgent),
		Browser:        parseBrowser(meta.UserAgent),
		Country:        country,
		City:           city,
		IsBot:          isBot(meta.UserAgent),
		CreatedAt:      now,
	}

	unique, err := g.repo.InsertClickEvent(ctx, ev)
	if err != nil {
		// the recipient still gets their page; the miss is logged for
		// reconciliation
		logger.Warn("click event not recorded", "link_id", linkID, "error", err.Error())
		return link.OriginalURL, nil
	}

	if err := g.repo.IncrementClickCounters(ctx, send.CampaignID, unique); err != nil {
		logger.Warn("click counters not applied", "campaign_id", send.CampaignID, "error", err.Error())
	}
	if err := g.repo.RecordSubscriberClick(ctx, send.SubscriberID); err != nil {
		logger.Warn("subscriber click not applied", "subscriber_id", send.SubscriberID, "error", err.Error())
	}

	g.tagConversion(ctx, send, link.OriginalURL)

	return link.OriginalURL, nil
}

// tagConversion classifies the destination and records at most one
// conversion per send per type. Duplicate clicks on the same checkout
// link log a click each but only the first writes a conversion.
func (g *Ingestor) tagConversion(ctx context.Context, send *domain.Send, destination string) {
	ctype, ok := g.rules.Match(destination)
	if !ok {
		return
	}

	ev := &domain.ConversionEvent{
		ID:               uuid.NewString(),
		SendID:           send.ID,
		CampaignID:       send.CampaignID,
		SubscriberID:     send.SubscriberID,
		Type:             ctype,
		AttributionModel: "last_click",
		CreatedAt:        g.now(),
	}
	inserted, err := g.repo.InsertConversion(ctx, ev)
	if err != nil {
		logger.Warn("conversion not recorded", "send_id", send.ID, "type", string(ctype), "error", err.Error())
		return
	}
	if !inserted {
		return
	}
	if err := g.repo.IncrementConversionCounters(ctx, send.CampaignID); err != nil {
		logger.Warn("conversion counters not applied", "campaign_id", send.CampaignID, "error", err.Error())
	}
}

func secondsSince(sentAt *time.Time, now time.Time) int64 {
	if sentAt == nil {
		return 0
	}
	secs := int64(now.Sub(*sentAt).Seconds())
	if secs < 0 {
		return 0
	}
	return secs
}
