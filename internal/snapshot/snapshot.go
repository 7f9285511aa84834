// Package snapshot saves and reloads the goal and plan state of a run so an
// interrupted run can resume where it stopped.
//
// A snapshot is a single JSON document:
//
//	{"version": 1, "saved_at": "...", "goals": [...], "plans": [...]}
//
// Goals and plans are encoded field for field, so reloading reproduces the
// scheduling state exactly. Backends decide only where the document lives.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harrison/pursuit/internal/executor"
	"github.com/harrison/pursuit/internal/goals"
	"github.com/harrison/pursuit/internal/models"
)

// FormatVersion is written into every snapshot.
const FormatVersion = 1

// ErrNotFound is returned by Load when nothing has been saved yet.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot is the persisted state of one run.
type Snapshot struct {
	Version int            `json:"version"`
	SavedAt time.Time      `json:"saved_at"`
	Goals   []models.Goal  `json:"goals"`
	Plans   []*models.Plan `json:"plans,omitempty"`
}

// Backend stores one snapshot document.
type Backend interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
	Close() error
}

// Capture copies the current state of the goal store and plan executor.
// Either source may be nil.
func Capture(store *goals.Store, plans *executor.PlanExecutor, now time.Time) *Snapshot {
	snap := &Snapshot{Version: FormatVersion, SavedAt: now, Goals: []models.Goal{}}
	if store != nil {
		snap.Goals = store.List()
	}
	if plans != nil {
		snap.Plans = plans.Plans()
	}
	return snap
}

// Restore rebuilds a goal store from the snapshot and loads its plans into
// the executor when one is given.
func (s *Snapshot) Restore(plans *executor.PlanExecutor, opts ...goals.Option) (*goals.Store, error) {
	store, err := goals.Restore(s.Goals, opts...)
	if err != nil {
		return nil, err
	}
	if plans != nil && len(s.Plans) > 0 {
		if err := plans.RestorePlans(s.Plans); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// Encode serializes the snapshot.
func Encode(snap *Snapshot) ([]byte, error) {
	if snap == nil {
		return nil, errors.New("nil snapshot")
	}
	if snap.Version == 0 {
		snap.Version = FormatVersion
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a snapshot and rejects versions newer than this build understands.
func Decode(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version == 0 || snap.Version > FormatVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	return &snap, nil
}
