package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TransactionRepository is the persistence boundary for transactions and their
// participant lists.
type TransactionRepository interface {
	// CreateTransaction inserts tx with version 1 and mints ids for tx and its participants.
	CreateTransaction(ctx context.Context, tx *Transaction) error

	// GetTransaction returns errors.ErrTransactionNotFound when id is unknown.
	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)

	// SaveTransaction writes tx if the stored version still equals expectedVersion,
	// replacing the participant rows wholesale. Rows with a zero id get a fresh
	// one. On success tx.Version is the new version. A stale expectedVersion
	// yields errors.ErrVersionConflict.
	SaveTransaction(ctx context.Context, tx *Transaction, expectedVersion int64) error

	// DeleteTransaction removes tx and, by cascade, its participants.
	DeleteTransaction(ctx context.Context, id uuid.UUID) error

	// ListTransactionsByUser returns transactions created by or shared with userID,
	// newest first.
	ListTransactionsByUser(ctx context.Context, userID uuid.UUID) ([]*Transaction, error)
}

// IdentityResolver maps user-visible handles to stable identity references.
type IdentityResolver interface {
	ResolveUsername(ctx context.Context, username string) (uuid.UUID, error)
	IdentityExists(ctx context.Context, userID uuid.UUID) (bool, error)
	// LookupUsername returns ok=false when the user no longer exists.
	LookupUsername(ctx context.Context, userID uuid.UUID) (username string, ok bool, err error)
}

type EventKind string

const (
	EventParticipantInvited  EventKind = "participant_invited"
	EventParticipantAccepted EventKind = "participant_accepted"
	EventParticipantDeclined EventKind = "participant_declined"
)

type Notification struct {
	Recipient     uuid.UUID         `json:"recipient"`
	Kind          EventKind         `json:"kind"`
	TransactionID uuid.UUID         `json:"transaction_id"`
	Payload       map[string]string `json:"payload,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

// Notifier delivers notifications asynchronously and at most once. Notify must
// not block on delivery.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}
