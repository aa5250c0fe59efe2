package domain

import (
	"fmt"
	"time"
)

// SMTPServer is one entry in the outbound relay pool. Priority is operator
// assigned; the lifetime success/failure counters seed the selector's rolling
// tallies on startup.
type SMTPServer struct {
	ID         string `json:"id" db:"id"`
	Name       string `json:"name" db:"name"`
	Host       string `json:"host" db:"host"`
	Port       int    `json:"port" db:"port"`
	Username   string `json:"-" db:"username"`
	Password   string `json:"-" db:"password"`
	HELODomain string `json:"helo_domain,omitempty" db:"helo_domain"`
	Priority   int    `json:"priority" db:"priority"`
	Enabled    bool   `json:"enabled" db:"enabled"`

	SuccessCount  int64      `json:"success_count" db:"success_count"`
	FailureCount  int64      `json:"failure_count" db:"failure_count"`
	AvgResponseMs float64    `json:"avg_response_ms" db:"avg_response_ms"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
}

// Address returns the host:port dial string.
func (s *SMTPServer) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
