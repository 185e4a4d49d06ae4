// Package versioning manages content-addressed rule document versions
// with a draft/active/archived lifecycle, rollback, and structural
// comparison. All mutating operations serialize per rule id; readers are
// never blocked.
package versioning

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/operator"
	"github.com/Mindburn-Labs/arbiter/pkg/rules"
	"github.com/Mindburn-Labs/arbiter/pkg/storage"
)

// Manager persists VersionRecords through a storage adapter.
type Manager struct {
	store  storage.Adapter
	reg    *operator.Registry
	logger *slog.Logger
	clock  func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager builds a Manager over an adapter. The registry validates
// document operators on save.
func NewManager(store storage.Adapter, reg *operator.Registry) *Manager {
	return &Manager{
		store:  store,
		reg:    reg,
		logger: slog.Default(),
		clock:  time.Now,
	}
}

// WithClock overrides the clock for testing.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

// WithLogger overrides the structured logger.
func (m *Manager) WithLogger(logger *slog.Logger) *Manager {
	m.logger = logger
	return m
}

// lockFor returns the per-rule-id mutex, creating it on first use.
func (m *Manager) lockFor(ruleID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks == nil {
		m.locks = make(map[string]*sync.Mutex)
	}
	lock, ok := m.locks[ruleID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[ruleID] = lock
	}
	return lock
}

// SaveVersion validates content, assigns the next version number for the
// rule id, and persists the record. The first-ever version for a rule id
// becomes active; later versions stay draft unless activate is set, in
// which case any currently-active record is archived atomically.
//
// Saving identical content again creates a new record whose content hash
// equals the prior one: versions are append-only.
func (m *Manager) SaveVersion(ctx context.Context, ruleID string, content []byte, createdBy, changelog string, activate bool) (*contracts.VersionRecord, error) {
	doc, err := rules.Parse(content, m.reg)
	if err != nil {
		return nil, err
	}
	if _, err := semver.NewVersion(doc.Ruleset.Version); err != nil {
		m.logger.Warn("ruleset version tag is not semver",
			slog.String("rule_id", ruleID),
			slog.String("version", doc.Ruleset.Version),
		)
	}

	lock := m.lockFor(ruleID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := m.store.List(ctx, ruleID, 0)
	if err != nil {
		return nil, err
	}
	nextNumber := 1
	parentID := ""
	for _, r := range existing {
		if r.VersionNumber >= nextNumber {
			nextNumber = r.VersionNumber + 1
		}
		if r.Status == contracts.StatusActive {
			parentID = r.ID
		}
	}

	record := &contracts.VersionRecord{
		ID:              uuid.New().String(),
		RuleID:          ruleID,
		VersionNumber:   nextNumber,
		Content:         doc.Canonical,
		ContentHash:     doc.Hash,
		CreatedBy:       createdBy,
		CreatedAt:       m.clock().UTC(),
		Status:          contracts.StatusDraft,
		Changelog:       changelog,
		ParentVersionID: parentID,
	}
	if len(existing) == 0 {
		record.Status = contracts.StatusActive
	}

	if err := m.store.Save(ctx, record); err != nil {
		return nil, err
	}
	if activate && record.Status != contracts.StatusActive {
		if err := m.store.CompareAndSetActive(ctx, ruleID, record.ID); err != nil {
			return nil, err
		}
		record.Status = contracts.StatusActive
	}
	return record, nil
}

// GetVersion loads one record by id.
func (m *Manager) GetVersion(ctx context.Context, id string) (*contracts.VersionRecord, error) {
	return m.store.Load(ctx, id)
}

// GetVersions lists records for a rule id, most recent last; limit <= 0
// returns all.
func (m *Manager) GetVersions(ctx context.Context, ruleID string, limit int) ([]*contracts.VersionRecord, error) {
	return m.store.List(ctx, ruleID, limit)
}

// GetActiveVersion returns the at-most-one active record for a rule id.
func (m *Manager) GetActiveVersion(ctx context.Context, ruleID string) (*contracts.VersionRecord, error) {
	return m.store.FindActive(ctx, ruleID)
}

// Activate promotes a version to active, archiving the previous active
// within the same rule id. Activating the current active is a no-op.
func (m *Manager) Activate(ctx context.Context, versionID string) (*contracts.VersionRecord, error) {
	return m.transition(ctx, versionID, "activate")
}

// Rollback is semantically Activate with rollback audit labeling.
func (m *Manager) Rollback(ctx context.Context, versionID string) (*contracts.VersionRecord, error) {
	return m.transition(ctx, versionID, "rollback")
}

func (m *Manager) transition(ctx context.Context, versionID, action string) (*contracts.VersionRecord, error) {
	record, err := m.store.Load(ctx, versionID)
	if err != nil {
		return nil, err
	}

	lock := m.lockFor(record.RuleID)
	lock.Lock()
	defer lock.Unlock()

	if err := m.store.CompareAndSetActive(ctx, record.RuleID, versionID); err != nil {
		return nil, err
	}
	m.logger.Info("version transition",
		slog.String("action", action),
		slog.String("rule_id", record.RuleID),
		slog.String("version_id", versionID),
		slog.Int("version_number", record.VersionNumber),
	)
	return m.store.Load(ctx, versionID)
}

// History summarizes a rule id's version trail.
type History struct {
	RuleID        string
	TotalVersions int
	ActiveVersion *contracts.VersionRecord
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// GetHistory returns totals, the active pointer, and created/updated
// timestamps for a rule id.
func (m *Manager) GetHistory(ctx context.Context, ruleID string) (*History, error) {
	records, err := m.store.List(ctx, ruleID, 0)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no versions for rule %q", contracts.ErrVersionNotFound, ruleID)
	}
	h := &History{
		RuleID:        ruleID,
		TotalVersions: len(records),
		CreatedAt:     records[0].CreatedAt,
		UpdatedAt:     records[0].CreatedAt,
	}
	for _, r := range records {
		if r.CreatedAt.Before(h.CreatedAt) {
			h.CreatedAt = r.CreatedAt
		}
		if r.CreatedAt.After(h.UpdatedAt) {
			h.UpdatedAt = r.CreatedAt
		}
		if r.Status == contracts.StatusActive {
			h.ActiveVersion = r
		}
	}
	return h, nil
}
