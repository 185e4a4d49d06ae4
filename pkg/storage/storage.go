// Package storage provides the version-record persistence contract and
// its two reference back-ends: a per-record JSON file tree and a
// relational adapter over database/sql.
//
// Adapters must be linearizable per rule id for the save/activate/
// rollback triple; reads may be snapshot-isolated.
package storage

import (
	"context"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

// Adapter is the storage contract consumed by the versioning manager.
type Adapter interface {
	// Save persists a new record. Records are append-only.
	Save(ctx context.Context, record *contracts.VersionRecord) error

	// Load fetches a record by id, contracts.ErrVersionNotFound if absent.
	Load(ctx context.Context, id string) (*contracts.VersionRecord, error)

	// List returns records for a rule id sorted by version number
	// ascending; limit <= 0 means all, a positive limit keeps the
	// newest N.
	List(ctx context.Context, ruleID string, limit int) ([]*contracts.VersionRecord, error)

	// FindActive returns the single active record for a rule id, or
	// contracts.ErrVersionNotFound when none is active.
	FindActive(ctx context.Context, ruleID string) (*contracts.VersionRecord, error)

	// CompareAndSetActive atomically promotes newID to active and demotes
	// any currently-active record for the same rule id to archived.
	CompareAndSetActive(ctx context.Context, ruleID, newID string) error
}
