package domain

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// NewToken returns a 32-character lowercase hex identifier. Used for send
// tracking tokens and redirect link ids; both must be unguessable since they
// appear in recipient-facing URLs.
func NewToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("domain: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// RequestMeta carries the caller-side telemetry of one tracking hit.
type RequestMeta struct {
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
	Referer   string `json:"referer,omitempty"`
}

// LinkMapping translates an opaque redirect-link id back to its original URL
// and owning send. Written once at injection time, never mutated.
type LinkMapping struct {
	ID          string     `json:"id" db:"id"`
	SendID      string     `json:"send_id" db:"send_id"`
	OriginalURL string     `json:"original_url" db:"original_url"`
	Position    int        `json:"position" db:"position"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" db:"expires_at"`
}

// OpenEvent records one physical pixel hit. IsUnique marks the first open for
// the (send, source IP) pair; a later open from a different IP is unique again
// under the platform's reporting policy.
type OpenEvent struct {
	ID            string    `json:"id" db:"id"`
	SendID        string    `json:"send_id" db:"send_id"`
	IP            string    `json:"ip" db:"ip_address"`
	UserAgent     string    `json:"user_agent" db:"user_agent"`
	Device        string    `json:"device" db:"device"`
	Browser       string    `json:"browser" db:"browser"`
	Country       string    `json:"country" db:"country"`
	City          string    `json:"city" db:"city"`
	IsUnique      bool      `json:"is_unique" db:"is_unique"`
	IsBot         bool      `json:"is_bot" db:"is_bot"`
	SecondsToOpen int64     `json:"seconds_to_open" db:"seconds_to_open"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// ClickEvent records one redirect hit, with the same telemetry and uniqueness
// policy as opens plus the resolved destination.
type ClickEvent struct {
	ID             string    `json:"id" db:"id"`
	SendID         string    `json:"send_id" db:"send_id"`
	LinkID         string    `json:"link_id" db:"link_id"`
	DestinationURL string    `json:"destination_url" db:"destination_url"`
	IP             string    `json:"ip" db:"ip_address"`
	UserAgent      string    `json:"user_agent" db:"user_agent"`
	Device         string    `json:"device" db:"device"`
	Browser        string    `json:"browser" db:"browser"`
	Country        string    `json:"country" db:"country"`
	City           string    `json:"city" db:"city"`
	IsUnique       bool      `json:"is_unique" db:"is_unique"`
	IsBot          bool      `json:"is_bot" db:"is_bot"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// ConversionType buckets a click destination by intent keyword.
type ConversionType string

const (
	ConversionPurchase ConversionType = "purchase"
	ConversionSignup   ConversionType = "signup"
	ConversionDownload ConversionType = "download"
	ConversionContact  ConversionType = "contact"
)

// ConversionEvent is derived, not primary: synthesized when a click's
// destination URL matches a conversion keyword bucket. At most one conversion
// per send per type is recorded.
type ConversionEvent struct {
	ID               string         `json:"id" db:"id"`
	SendID           string         `json:"send_id" db:"send_id"`
	CampaignID       string         `json:"campaign_id" db:"campaign_id"`
	SubscriberID     string         `json:"subscriber_id" db:"subscriber_id"`
	Type             ConversionType `json:"conversion_type" db:"conversion_type"`
	Value            *float64       `json:"value,omitempty" db:"value"`
	AttributionModel string         `json:"attribution_model" db:"attribution_model"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
}
