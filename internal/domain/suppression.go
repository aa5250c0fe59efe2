package domain

import "time"

// SuppressionReason classifies why an address stopped receiving mail.
type SuppressionReason string

const (
	ReasonUnsubscribed SuppressionReason = "unsubscribed"
	ReasonBounced      SuppressionReason = "bounced"
	ReasonComplained   SuppressionReason = "complained"
	ReasonManual       SuppressionReason = "manual"
)

// SuppressionSource records which pathway created the entry.
type SuppressionSource string

const (
	SourceTrackingLink SuppressionSource = "tracking_link"
	SourceOneClick     SuppressionSource = "one_click"
	SourceAPI          SuppressionSource = "api"
	SourceBounce       SuppressionSource = "bounce"
)

// Suppression is one do-not-mail entry. The MD5 hash is kept alongside
// the plain address because several receiving-side tools (FBL reports,
// list hygiene vendors) exchange suppressed addresses hashed.
type Suppression struct {
	ID         string            `json:"id" db:"id"`
	Email      string            `json:"email" db:"email"`
	MD5Hash    string            `json:"md5_hash" db:"md5_hash"`
	Reason     SuppressionReason `json:"reason" db:"reason"`
	Source     SuppressionSource `json:"source" db:"source"`
	CampaignID string            `json:"campaign_id,omitempty" db:"campaign_id"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
}
