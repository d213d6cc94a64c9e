// Package domain contains core domain types for the AIBBOT session service.
package domain

import (
	"time"
)

// Device is an anonymous browser/device identity. Exactly one profile
// record is kept per device.
type Device struct {
	DeviceID   string    `json:"device_id"`
	Label      string    `json:"label"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IdleFor returns how long the device has been inactive relative to now.
func (d *Device) IdleFor(now time.Time) time.Duration {
	idle := now.Sub(d.LastSeenAt)
	if idle < 0 {
		return 0
	}
	return idle
}

// User is the authenticated account returned by a successful login.
// It is independent of the device profile and lives only in memory.
type User struct {
	ID       ID     `json:"id"`
	Username string `json:"username"`
}
