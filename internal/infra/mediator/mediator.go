// Package mediator implements the arstotzka cross-service coordinator
// client. The coordinator issues leases and records actions; this package
// exposes only the four operations the job engine uses.
package mediator

import (
	"context"

	"github.com/google/uuid"
)

// ActionStatus enumerates the terminal states of a mediator action.
type ActionStatus string

const (
	StatusCompleted ActionStatus = "completed"
	StatusFailed    ActionStatus = "failed"
)

// Mediator coordinates access with the sibling service and records one
// action per sequence advance.
type Mediator interface {
	// ReserveAccess acquires the cross-service lease for this service.
	ReserveAccess(ctx context.Context) error

	// CreateAction records a new action carrying the end sequence state.
	CreateAction(ctx context.Context, state uint64) (uuid.UUID, error)

	// UpdateAction transitions the action to a terminal status, optionally
	// attaching metadata.
	UpdateAction(ctx context.Context, actionID uuid.UUID, status ActionStatus, metadata map[string]any) error

	// RemoveLock releases the lease. Callers treat failures as best-effort.
	RemoveLock(ctx context.Context) error
}

// Noop is a mediator that performs no coordination. Used when arstotzka is
// disabled.
type Noop struct{}

// NewNoop creates a disabled mediator.
func NewNoop() Noop { return Noop{} }

func (Noop) ReserveAccess(context.Context) error { return nil }

func (Noop) CreateAction(context.Context, uint64) (uuid.UUID, error) {
	return uuid.New(), nil
}

func (Noop) UpdateAction(context.Context, uuid.UUID, ActionStatus, map[string]any) error {
	return nil
}

func (Noop) RemoveLock(context.Context) error { return nil }
