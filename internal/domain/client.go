package domain

import (
	"time"
)

// Client is an anonymous device that talks to the wizard.
// Only identity and usage counters are stored; transcripts never are.
type Client struct {
	ClientID        string    `json:"client_id"`
	Username        string    `json:"username"`
	SessionsStarted int       `json:"sessions_started"`
	LastSeenAt      time.Time `json:"last_seen_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// IdleFor returns how long the client has been inactive as of now.
func (c *Client) IdleFor(now time.Time) time.Duration {
	idle := now.Sub(c.LastSeenAt)
	if idle < 0 {
		return 0
	}
	return idle
}

// Expired returns true if the client has been idle for longer than ttl.
func (c *Client) Expired(now time.Time, ttl time.Duration) bool {
	return c.IdleFor(now) > ttl
}
