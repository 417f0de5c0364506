package calls

import (
	"context"
	"errors"
)

var (
	// ErrValidation marks missing/malformed required identifiers. Nothing
	// is mutated when it is returned.
	ErrValidation = errors.New("calls: validation failed")

	ErrNotFound = errors.New("calls: call not found")
)

// Store is the durable call record store.
//
// Concurrency contract: UpdateByExternalID serializes concurrent writers on
// the same external call id (row lock or per-key mutex), so two
// near-simultaneous deliveries of the same event cannot both observe an
// unset timestamp field.
type Store interface {
	Insert(ctx context.Context, rec CallRecord) error
	Update(ctx context.Context, rec CallRecord) error

	Get(ctx context.Context, id string) (CallRecord, error)
	GetByExternalID(ctx context.Context, externalCallID string) (CallRecord, bool, error)

	// FindOrCreateByExternalID returns the record correlated to
	// externalCallID, inserting seed when none exists. The bool reports
	// whether a record was created. Callers flag seed as an orphan when the
	// correlation is unknown (a placeholder, never a rejection).
	FindOrCreateByExternalID(ctx context.Context, externalCallID string, seed CallRecord) (CallRecord, bool, error)

	// UpdateByExternalID applies fn to the record under a per-external-id
	// critical section and persists the result. Returns ErrNotFound when no
	// record is correlated to externalCallID.
	UpdateByExternalID(ctx context.Context, externalCallID string, fn func(*CallRecord) error) (CallRecord, error)
}
