package domain

import "time"

// SubscriberStatus tracks deliverability standing for a recipient.
type SubscriberStatus string

const (
	SubscriberActive       SubscriberStatus = "active"
	SubscriberUnsubscribed SubscriberStatus = "unsubscribed"
	SubscriberBounced      SubscriberStatus = "bounced"
	SubscriberComplained   SubscriberStatus = "complained"
)

// Subscriber is the personalization profile for one recipient. The dispatch
// path reads PII fields but never mutates them; only engagement counters move.
type Subscriber struct {
	ID        string `json:"id" db:"id"`
	Email     string `json:"email" db:"email"`
	FirstName string `json:"first_name,omitempty" db:"first_name"`
	LastName  string `json:"last_name,omitempty" db:"last_name"`
	Company   string `json:"company,omitempty" db:"company"`
	City      string `json:"city,omitempty" db:"city"`
	Country   string `json:"country,omitempty" db:"country"`
	Timezone  string `json:"timezone,omitempty" db:"timezone"`
	Industry  string `json:"industry,omitempty" db:"industry"`
	Phone     string `json:"phone,omitempty" db:"phone"`

	// EngagementScore is 0-100, bumped on opens (+2) and clicks (+5),
	// capped in SQL so concurrent hits can't push it past 100.
	EngagementScore int   `json:"engagement_score" db:"engagement_score"`
	TotalOpens      int64 `json:"total_opens" db:"total_opens"`
	TotalClicks     int64 `json:"total_clicks" db:"total_clicks"`

	Status    SubscriberStatus `json:"status" db:"status"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt time.Time        `json:"updated_at" db:"updated_at"`
}
