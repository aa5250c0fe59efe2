package dispatch

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"

	"github.com/arkmail/dispatch/internal/domain"
	"github.com/arkmail/dispatch/internal/pkg/logger"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Options tunes a dispatch run. Zero values fall back to production
// defaults in New.
type Options struct {
	MaxAttempts     int
	SendTimeout     time.Duration
	BaseDelay       time.Duration
	DomainDelays    map[string]time.Duration
	Jitter          time.Duration
	TrackingBaseURL string
}

// Deps are the collaborators an Engine drives.
type Deps struct {
	Repo        Repository
	Pool        ServerPool
	Transport   Transport
	Composer    Composer
	Injector    Injector
	Signer      Signer
	Suppression SuppressionChecker
}

// Engine runs the delivery pipeline for campaign batches. One Engine is
// shared by the API handler and the queue worker; it is safe for
// concurrent use.
type Engine struct {
	repo        Repository
	pool        ServerPool
	transport   Transport
	composer    Composer
	injector    Injector
	signer      Signer
	suppression SuppressionChecker
	opts        Options

	mu  sync.Mutex
	rng *rand.Rand

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// New creates an Engine and applies option defaults: 3 attempts, 30s per
// attempt, 250ms base delay, 2s jitter ceiling.
func New(d Deps, opts Options) *Engine {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 250 * time.Millisecond
	}
	if opts.Jitter < 0 {
		opts.Jitter = 0
	}
	return &Engine{
		repo:        d.Repo,
		pool:        d.Pool,
		transport:   d.Transport,
		composer:    d.Composer,
		injector:    d.Injector,
		signer:      d.Signer,
		suppression: d.Suppression,
		opts:        opts,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:       ctxSleep,
		now:         time.Now,
	}
}

// Dispatch delivers one campaign to the given subscribers and reports a
// per-recipient outcome. Template-level validation errors fail the whole
// run synchronously before any send; per-recipient problems only affect
// that recipient's result.
func (e *Engine) Dispatch(ctx context.Context, campaignID string, subscriberIDs []string) ([]domain.DispatchResult, error) {
	camp, err := e.repo.CampaignByID(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load campaign %s: %w", campaignID, err)
	}
	tmpl := domain.Template{Subject: camp.Subject, HTML: camp.HTMLBody, Text: camp.TextBody}
	if err := e.composer.Validate(tmpl); err != nil {
		return nil, err
	}

	subs, err := e.repo.SubscribersByIDs(ctx, subscriberIDs)
	if err != nil {
		return nil, fmt.Errorf("load subscribers: %w", err)
	}

	logger.Info("dispatch run started",
		"campaign_id", campaignID, "recipients", len(subs))

	results := make([]domain.DispatchResult, 0, len(subs))
	for i, sub := range subs {
		if i > 0 {
			// rate shaping between recipients, keyed by the domain just
			// sent to
			if err := e.sleep(ctx, e.interSendDelay(subs[i-1].Email)); err != nil {
				return results, err
			}
		}
		results = append(results, e.deliver(ctx, camp, tmpl, sub))
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
	}

	logger.Info("dispatch run finished", "campaign_id", campaignID,
		"recipients", len(results))
	return results, nil
}

// deliver runs one recipient through the full pipeline. It never returns
// an error; everything terminal lands in the DispatchResult.
func (e *Engine) deliver(ctx context.Context, camp *domain.Campaign, tmpl domain.Template, sub domain.Subscriber) domain.DispatchResult {
	if err := validateRecipient(sub); err != nil {
		return domain.DispatchResult{RecipientID: sub.ID, Outcome: domain.OutcomeInvalid, Error: err.Error()}
	}
	if sub.Status != domain.SubscriberActive {
		return domain.DispatchResult{RecipientID: sub.ID, Outcome: domain.OutcomeSkipped, Error: "subscriber not active"}
	}
	suppressed, err := e.suppression.IsSuppressed(ctx, sub.Email)
	if err != nil {
		return domain.DispatchResult{RecipientID: sub.ID, Outcome: domain.OutcomeFailed, Error: "suppression check: " + err.Error()}
	}
	if suppressed {
		return domain.DispatchResult{RecipientID: sub.ID, Outcome: domain.OutcomeSkipped, Error: "address suppressed"}
	}

	// Composing
	content, err := e.composer.Personalize(tmpl, sub)
	if err != nil {
		return domain.DispatchResult{RecipientID: sub.ID, Outcome: domain.OutcomeInvalid, Error: err.Error()}
	}

	send := &domain.Send{
		ID:            uuid.NewString(),
		TrackingToken: domain.NewToken(),
		CampaignID:    camp.ID,
		SubscriberID:  sub.ID,
		Email:         strings.ToLower(sub.Email),
		Subject:       content.Subject,
		HTMLBody:      content.HTML,
		TextBody:      content.Text,
		Status:        domain.SendPending,
		CreatedAt:     e.now(),
	}
	if err := e.repo.CreateSend(ctx, send); err != nil {
		// without a send record the message would be untrackable, so
		// nothing is transmitted
		return domain.DispatchResult{RecipientID: sub.ID, Outcome: domain.OutcomeFailed, Error: "send record: " + err.Error()}
	}

	tracked, err := e.injector.Inject(ctx, content.HTML, send.ID, send.TrackingToken)
	if err != nil {
		e.finalizeFailed(ctx, camp.ID, send, "", 0, "inject tracking: "+err.Error())
		return domain.DispatchResult{RecipientID: sub.ID, Outcome: domain.OutcomeFailed, TrackingToken: send.TrackingToken, Error: err.Error()}
	}
	content.HTML = tracked

	// Authenticating
	msg, err := e.buildMessage(camp, sub, content, send)
	if err != nil {
		e.finalizeFailed(ctx, camp.ID, send, "", 0, err.Error())
		return domain.DispatchResult{RecipientID: sub.ID, Outcome: domain.OutcomeFailed, TrackingToken: send.TrackingToken, Error: err.Error()}
	}

	// Sending, with retry and failover
	var lastErr error
	serverID := ""
	tries := 0
	for attempt := 0; attempt < e.opts.MaxAttempts; attempt++ {
		server, err := e.pool.Next(ctx)
		if err != nil {
			lastErr = err
			break
		}
		serverID = server.ID
		tries++

		start := time.Now()
		sendCtx, cancel := context.WithTimeout(ctx, e.opts.SendTimeout)
		err = e.transport.Send(sendCtx, *server, msg)
		cancel()
		e.pool.RecordOutcome(ctx, server.ID, err == nil, time.Since(start))

		if err == nil {
			if dbErr := e.repo.MarkSendSent(ctx, send.ID, server.ID, attempt); dbErr != nil {
				logger.Warn("sent send not finalized", "send_id", send.ID, "error", dbErr.Error())
			}
			if dbErr := e.repo.IncrementCampaignSent(ctx, camp.ID); dbErr != nil {
				logger.Warn("campaign sent counter not applied", "campaign_id", camp.ID, "error", dbErr.Error())
			}
			logger.Info("message sent", "send_id", send.ID,
				"recipient", sub.Email, "server", server.Name, "retries", attempt)
			return domain.DispatchResult{RecipientID: sub.ID, Outcome: domain.OutcomeSent, TrackingToken: send.TrackingToken}
		}

		lastErr = err
		logger.Warn("send attempt failed", "send_id", send.ID,
			"server", server.Name, "attempt", attempt+1, "error", err.Error())

		if attempt+1 < e.opts.MaxAttempts {
			backoff := time.Duration(1<<uint(attempt+1)) * time.Second
			if err := e.sleep(ctx, backoff); err != nil {
				lastErr = err
				break
			}
		}
	}

	retries := tries - 1
	if retries < 0 {
		retries = 0
	}
	errMsg := "no transport attempt completed"
	if lastErr != nil {
		errMsg = lastErr.Error()
	}
	e.finalizeFailed(ctx, camp.ID, send, serverID, retries, errMsg)
	return domain.DispatchResult{RecipientID: sub.ID, Outcome: domain.OutcomeFailed, TrackingToken: send.TrackingToken, Error: errMsg}
}

// finalizeFailed persists the terminal failure state. Write errors are
// logged, not surfaced: the result for the caller is already decided.
func (e *Engine) finalizeFailed(ctx context.Context, campaignID string, send *domain.Send, serverID string, retries int, errMsg string) {
	if err := e.repo.MarkSendFailed(ctx, send.ID, serverID, retries, errMsg); err != nil {
		logger.Warn("failed send not finalized", "send_id", send.ID, "error", err.Error())
	}
	if err := e.repo.IncrementCampaignFailed(ctx, campaignID); err != nil {
		logger.Warn("campaign failed counter not applied", "campaign_id", campaignID, "error", err.Error())
	}
}

// interSendDelay is the rate-shaping pause after sending to an address:
// per-domain base plus uniform jitter.
func (e *Engine) interSendDelay(email string) time.Duration {
	delay := e.opts.BaseDelay
	if d, ok := e.opts.DomainDelays[domainOf(email)]; ok {
		delay = d
	}
	if e.opts.Jitter > 0 {
		e.mu.Lock()
		delay += time.Duration(e.rng.Int63n(int64(e.opts.Jitter)))
		e.mu.Unlock()
	}
	return delay
}

func domainOf(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

// validateRecipient rejects malformed contact data before any send
// attempt. Phone is optional but must parse as a real number when set.
func validateRecipient(sub domain.Subscriber) error {
	if !emailPattern.MatchString(strings.TrimSpace(sub.Email)) {
		return &domain.ValidationError{Field: "email", Reason: "malformed address"}
	}
	if sub.Phone != "" {
		parsed, err := phonenumbers.Parse(sub.Phone, "US")
		if err != nil {
			return &domain.ValidationError{Field: "phone", Reason: "unparseable number"}
		}
		if !phonenumbers.IsValidNumber(parsed) {
			return &domain.ValidationError{Field: "phone", Reason: "invalid number"}
		}
	}
	return nil
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
