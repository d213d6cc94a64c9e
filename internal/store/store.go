// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/DonggunSe0/aibbot/internal/domain"
)

// Repository defines the interface for persisting devices and the small
// per-device key-value records that back them (the profile among others).
type Repository interface {
	// GetDevice retrieves a device by its ID. Returns nil, nil if unknown.
	GetDevice(ctx context.Context, deviceID string) (*domain.Device, error)

	// UpsertDevice creates or updates a device record.
	UpsertDevice(ctx context.Context, device *domain.Device) error

	// TouchDevice updates the last_seen_at timestamp for a device.
	TouchDevice(ctx context.Context, deviceID string, lastSeen time.Time) error

	// GetValue reads the value stored under namespace/key.
	// The boolean is false when no value exists.
	GetValue(ctx context.Context, namespace, key string) (string, bool, error)

	// PutValue replaces the value stored under namespace/key.
	PutValue(ctx context.Context, namespace, key, value string) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
