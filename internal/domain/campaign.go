package domain

import "time"

// CampaignStatus tracks the campaign lifecycle.
type CampaignStatus string

const (
	CampaignDraft   CampaignStatus = "draft"
	CampaignSending CampaignStatus = "sending"
	CampaignSent    CampaignStatus = "sent"
	CampaignPaused  CampaignStatus = "paused"
)

// Campaign holds the message templates and the aggregate delivery counters.
//
// Every rate column is a pure function of its numerator/denominator counters
// and is recomputed in the same statement that moves a counter; application
// code never writes a rate from memory.
type Campaign struct {
	ID        string         `json:"id" db:"id"`
	Name      string         `json:"name" db:"name"`
	FromName  string         `json:"from_name" db:"from_name"`
	FromEmail string         `json:"from_email" db:"from_email"`
	ReplyTo   string         `json:"reply_to,omitempty" db:"reply_to"`
	Subject   string         `json:"subject" db:"subject"`
	HTMLBody  string         `json:"html_body" db:"html_body"`
	TextBody  string         `json:"text_body" db:"text_body"`
	Status    CampaignStatus `json:"status" db:"status"`

	EmailsSent   int64 `json:"emails_sent" db:"emails_sent"`
	EmailsFailed int64 `json:"emails_failed" db:"emails_failed"`
	Opens        int64 `json:"opens" db:"opens"`
	UniqueOpens  int64 `json:"unique_opens" db:"unique_opens"`
	Clicks       int64 `json:"clicks" db:"clicks"`
	UniqueClicks int64 `json:"unique_clicks" db:"unique_clicks"`
	Conversions  int64 `json:"conversions" db:"conversions"`
	Unsubscribes int64 `json:"unsubscribes" db:"unsubscribes"`

	OpenRate        float64 `json:"open_rate" db:"open_rate"`
	ClickRate       float64 `json:"click_rate" db:"click_rate"`
	ClickToOpenRate float64 `json:"click_to_open_rate" db:"click_to_open_rate"`
	ConversionRate  float64 `json:"conversion_rate" db:"conversion_rate"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
