package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

// FileAdapter stores one JSON file per record under
// root/<rule_id>/<version_id>.json. Mutations take an exclusive lock on a
// per-rule .lock file so concurrent processes serialize per rule id.
//
// Activation writes the new active record first and then rewrites the
// previous active; a crash between the two leaves zero or two actives,
// which FindActive repairs by letting the highest version number win and
// archiving siblings.
type FileAdapter struct {
	root        string
	lockTimeout time.Duration
}

// NewFileAdapter creates root if needed.
func NewFileAdapter(root string) (*FileAdapter, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return &FileAdapter{root: root, lockTimeout: 5 * time.Second}, nil
}

func (a *FileAdapter) ruleDir(ruleID string) string {
	return filepath.Join(a.root, ruleID)
}

func (a *FileAdapter) recordPath(ruleID, id string) string {
	return filepath.Join(a.ruleDir(ruleID), id+".json")
}

// lock acquires the per-rule lock file, spinning until the context
// deadline or the adapter's lock timeout.
func (a *FileAdapter) lock(ctx context.Context, ruleID string) (func(), error) {
	path := filepath.Join(a.ruleDir(ruleID), ".lock")
	deadline := time.Now().Add(a.lockTimeout)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_ = f.Close()
			return func() { _ = os.Remove(path) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("storage: lock %s: %w", ruleID, err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("storage: lock %s: timed out", ruleID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (a *FileAdapter) Save(ctx context.Context, record *contracts.VersionRecord) error {
	if err := os.MkdirAll(a.ruleDir(record.RuleID), 0o755); err != nil {
		return fmt.Errorf("storage: create rule dir: %w", err)
	}
	unlock, err := a.lock(ctx, record.RuleID)
	if err != nil {
		return err
	}
	defer unlock()
	return a.write(record)
}

func (a *FileAdapter) write(record *contracts.VersionRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: marshal record: %w", err)
	}
	path := a.recordPath(record.RuleID, record.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("storage: write record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("storage: rename record: %w", err)
	}
	return nil
}

func (a *FileAdapter) Load(ctx context.Context, id string) (*contracts.VersionRecord, error) {
	ruleDirs, err := os.ReadDir(a.root)
	if err != nil {
		return nil, fmt.Errorf("storage: read root: %w", err)
	}
	for _, dir := range ruleDirs {
		if !dir.IsDir() {
			continue
		}
		record, err := a.read(filepath.Join(a.root, dir.Name(), id+".json"))
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	return nil, contracts.ErrVersionNotFound
}

func (a *FileAdapter) read(path string) (*contracts.VersionRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var record contracts.VersionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", path, err)
	}
	return &record, nil
}

func (a *FileAdapter) List(ctx context.Context, ruleID string, limit int) ([]*contracts.VersionRecord, error) {
	entries, err := os.ReadDir(a.ruleDir(ruleID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read rule dir: %w", err)
	}
	var records []*contracts.VersionRecord
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		record, err := a.read(filepath.Join(a.ruleDir(ruleID), entry.Name()))
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].VersionNumber < records[j].VersionNumber
	})
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}

// FindActive returns the active record, repairing crash remnants: when
// zero-or-two actives are found alongside archived siblings of higher
// number, the highest version number with the active flag wins and the
// others are archived.
func (a *FileAdapter) FindActive(ctx context.Context, ruleID string) (*contracts.VersionRecord, error) {
	records, err := a.List(ctx, ruleID, 0)
	if err != nil {
		return nil, err
	}
	var actives []*contracts.VersionRecord
	for _, r := range records {
		if r.Status == contracts.StatusActive {
			actives = append(actives, r)
		}
	}
	switch len(actives) {
	case 0:
		return nil, contracts.ErrVersionNotFound
	case 1:
		return actives[0], nil
	default:
		unlock, err := a.lock(ctx, ruleID)
		if err != nil {
			return nil, err
		}
		defer unlock()
		winner := actives[len(actives)-1] // list is sorted ascending
		for _, r := range actives[:len(actives)-1] {
			r.Status = contracts.StatusArchived
			if err := a.write(r); err != nil {
				return nil, err
			}
		}
		return winner, nil
	}
}

func (a *FileAdapter) CompareAndSetActive(ctx context.Context, ruleID, newID string) error {
	unlock, err := a.lock(ctx, ruleID)
	if err != nil {
		return err
	}
	defer unlock()

	records, err := a.List(ctx, ruleID, 0)
	if err != nil {
		return err
	}
	var target *contracts.VersionRecord
	var current *contracts.VersionRecord
	for _, r := range records {
		if r.ID == newID {
			target = r
		}
		if r.Status == contracts.StatusActive && r.ID != newID {
			current = r
		}
	}
	if target == nil {
		return contracts.ErrVersionNotFound
	}
	if target.Status == contracts.StatusActive {
		return nil // activating the current active is a no-op
	}

	// New active first, then demote: recoverable on crash.
	target.Status = contracts.StatusActive
	if err := a.write(target); err != nil {
		return err
	}
	if current != nil {
		current.Status = contracts.StatusArchived
		if err := a.write(current); err != nil {
			return err
		}
	}
	return nil
}
