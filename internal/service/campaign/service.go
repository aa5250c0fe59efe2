package campaign

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/arkmail/dispatch/internal/domain"
	"github.com/arkmail/dispatch/internal/pkg/logger"
)

// TemplateValidator vets template spintax before a campaign is stored, so a
// malformed block fails at authoring time instead of mid-dispatch.
type TemplateValidator interface {
	Validate(tmpl domain.Template) error
}

// Service implements campaign business logic. All public methods are safe
// for concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo      Repository
	validator TemplateValidator
}

// NewService creates a campaign service. validator may be nil to skip
// template vetting.
func NewService(repo Repository, validator TemplateValidator) *Service {
	return &Service{repo: repo, validator: validator}
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, id)
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Campaign, int, error) {
	return s.repo.List(ctx, f)
}

// Create validates and persists a new campaign in draft status.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Campaign, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if input.Subject == "" {
		return nil, fmt.Errorf("subject is required")
	}
	if input.FromEmail == "" {
		return nil, fmt.Errorf("from_email is required")
	}
	if s.validator != nil {
		tmpl := domain.Template{
			Subject: input.Subject,
			HTML:    input.HTMLBody,
			Text:    input.TextBody,
		}
		if err := s.validator.Validate(tmpl); err != nil {
			return nil, err
		}
	}

	c := &domain.Campaign{
		ID:        uuid.New().String(),
		Name:      input.Name,
		FromName:  input.FromName,
		FromEmail: input.FromEmail,
		ReplyTo:   input.ReplyTo,
		Subject:   input.Subject,
		HTMLBody:  input.HTMLBody,
		TextBody:  input.TextBody,
		Status:    domain.CampaignDraft,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Update modifies mutable campaign fields. Template fields are re-vetted
// when any of them change.
func (s *Service) Update(ctx context.Context, id string, u UpdateFields) error {
	if s.validator != nil && (u.Subject != nil || u.HTMLBody != nil || u.TextBody != nil) {
		var tmpl domain.Template
		if u.Subject != nil {
			tmpl.Subject = *u.Subject
		}
		if u.HTMLBody != nil {
			tmpl.HTML = *u.HTMLBody
		}
		if u.TextBody != nil {
			tmpl.Text = *u.TextBody
		}
		if err := s.validator.Validate(tmpl); err != nil {
			return err
		}
	}
	return s.repo.Update(ctx, id, u)
}

// Delete removes a campaign (only drafts).
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Queue transitions a campaign to sending and enqueues recipients for the
// worker pool. Empty subscriberIDs means every active subscriber. Returns
// the number of queue rows added.
func (s *Service) Queue(ctx context.Context, campaignID string, subscriberIDs []string) (int, error) {
	c, err := s.repo.Get(ctx, campaignID)
	if err != nil {
		return 0, err
	}

	if c.Status != domain.CampaignDraft && c.Status != domain.CampaignPaused {
		return 0, ErrAlreadySending
	}

	if err := s.repo.UpdateStatus(ctx, campaignID, domain.CampaignSending); err != nil {
		return 0, fmt.Errorf("transition to sending: %w", err)
	}

	n, err := s.repo.EnqueueRecipients(ctx, campaignID, subscriberIDs)
	if err != nil {
		// Put the campaign back where it was so the operator can retry.
		if rbErr := s.repo.UpdateStatus(ctx, campaignID, c.Status); rbErr != nil {
			logger.Error("status rollback failed", "campaign_id", campaignID, "error", rbErr.Error())
		}
		return 0, fmt.Errorf("enqueue recipients: %w", err)
	}

	logger.Info("campaign queued", "campaign_id", campaignID, "recipients", n)
	return n, nil
}

// Stats is the counters-and-rates view served by the ops API.
type Stats struct {
	CampaignID   string  `json:"campaign_id"`
	Name         string  `json:"name"`
	Status       string  `json:"status"`
	EmailsSent   int64   `json:"emails_sent"`
	EmailsFailed int64   `json:"emails_failed"`
	Opens        int64   `json:"opens"`
	UniqueOpens  int64   `json:"unique_opens"`
	Clicks       int64   `json:"clicks"`
	UniqueClicks int64   `json:"unique_clicks"`
	Conversions  int64   `json:"conversions"`
	Unsubscribes int64   `json:"unsubscribes"`

	OpenRate        float64 `json:"open_rate"`
	ClickRate       float64 `json:"click_rate"`
	ClickToOpenRate float64 `json:"click_to_open_rate"`
	ConversionRate  float64 `json:"conversion_rate"`
}

// Stats returns the live counter snapshot for one campaign.
func (s *Service) Stats(ctx context.Context, id string) (*Stats, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Stats{
		CampaignID:      c.ID,
		Name:            c.Name,
		Status:          string(c.Status),
		EmailsSent:      c.EmailsSent,
		EmailsFailed:    c.EmailsFailed,
		Opens:           c.Opens,
		UniqueOpens:     c.UniqueOpens,
		Clicks:          c.Clicks,
		UniqueClicks:    c.UniqueClicks,
		Conversions:     c.Conversions,
		Unsubscribes:    c.Unsubscribes,
		OpenRate:        c.OpenRate,
		ClickRate:       c.ClickRate,
		ClickToOpenRate: c.ClickToOpenRate,
		ConversionRate:  c.ConversionRate,
	}, nil
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Name      string `json:"name"`
	Subject   string `json:"subject"`
	FromName  string `json:"from_name"`
	FromEmail string `json:"from_email"`
	ReplyTo   string `json:"reply_to"`
	HTMLBody  string `json:"html_body"`
	TextBody  string `json:"text_body"`
}
