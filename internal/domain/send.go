package domain

import "time"

// SendStatus is the persisted lifecycle of one recipient send.
type SendStatus string

const (
	SendPending   SendStatus = "pending"
	SendSent      SendStatus = "sent"
	SendDelivered SendStatus = "delivered"
	SendBounced   SendStatus = "bounced"
	SendFailed    SendStatus = "failed"
)

// Send is the per-recipient delivery record. It is inserted with status
// pending BEFORE the first transport attempt so a never-acknowledged send is
// still attributable. TrackingToken is globally unique and immutable once
// issued; all open/click/conversion events join back through it.
type Send struct {
	ID            string     `json:"id" db:"id"`
	TrackingToken string     `json:"tracking_token" db:"tracking_token"`
	CampaignID    string     `json:"campaign_id" db:"campaign_id"`
	SubscriberID  string     `json:"subscriber_id" db:"subscriber_id"`
	Email         string     `json:"email" db:"email"`
	Subject       string     `json:"subject" db:"subject"`
	HTMLBody      string     `json:"html_body" db:"html_body"`
	TextBody      string     `json:"text_body" db:"text_body"`
	ServerID      string     `json:"server_id,omitempty" db:"server_id"`
	Status        SendStatus `json:"status" db:"status"`
	RetryCount    int        `json:"retry_count" db:"retry_count"`
	LastError     string     `json:"last_error,omitempty" db:"last_error"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	SentAt        *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
}

// DispatchOutcome is the per-recipient status reported back to the caller of
// a dispatch run.
type DispatchOutcome string

const (
	OutcomeSent    DispatchOutcome = "sent"
	OutcomeFailed  DispatchOutcome = "failed"
	OutcomeSkipped DispatchOutcome = "skipped"
	OutcomeInvalid DispatchOutcome = "invalid"
)

// DispatchResult reports what happened to one recipient in a dispatch run.
type DispatchResult struct {
	RecipientID   string          `json:"recipient_id"`
	Outcome       DispatchOutcome `json:"status"`
	TrackingToken string          `json:"tracking_id,omitempty"`
	Error         string          `json:"error,omitempty"`
}
