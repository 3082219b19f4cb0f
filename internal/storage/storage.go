package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pfrederiksen/ticketscout/internal/event"
	"github.com/pfrederiksen/ticketscout/internal/source"
)

// DefaultDataDir is used when no data directory is configured.
const DefaultDataDir = "~/.local/share/ticketscout"

// Storage handles persistence of event snapshots
type Storage struct {
	dataDir string
	now     func() time.Time
}

// New creates a new Storage instance
func New(dataDir string) (*Storage, error) {
	if dataDir == "" {
		dataDir = DefaultDataDir
	}

	// Expand ~ to home directory
	if strings.HasPrefix(dataDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, dataDir[2:])
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	return &Storage{
		dataDir: dataDir,
		now:     time.Now,
	}, nil
}

// Dir returns the resolved data directory.
func (s *Storage) Dir() string {
	return s.dataDir
}

func (s *Storage) snapshotPath(platform string) string {
	return filepath.Join(s.dataDir, fmt.Sprintf("snapshot_%s.json", source.Slug(platform)))
}

// LoadSnapshot loads a platform's snapshot from disk. A missing file yields
// an empty snapshot.
func (s *Storage) LoadSnapshot(platform string) (*event.Snapshot, error) {
	data, err := os.ReadFile(s.snapshotPath(platform))
	if err != nil {
		if os.IsNotExist(err) {
			snap := event.NewSnapshot()
			snap.Platform = platform
			return snap, nil
		}
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var snapshot event.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", platform, err)
	}

	if snapshot.Events == nil {
		snapshot.Events = make(map[string]*event.Event)
	}
	if snapshot.StableIndex == nil {
		snapshot.StableIndex = make(map[string]string)
		for id, evt := range snapshot.Events {
			snapshot.StableIndex[event.StableKey(evt)] = id
		}
	}

	return &snapshot, nil
}

// SaveSnapshot writes a snapshot to disk, replacing the previous file
// atomically.
func (s *Storage) SaveSnapshot(snapshot *event.Snapshot) error {
	if snapshot.Platform == "" {
		return fmt.Errorf("saving snapshot: platform is required")
	}
	snapshot.UpdatedAt = s.now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	path := s.snapshotPath(snapshot.Platform)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

// Update diffs events against the platform's stored snapshot, replaces the
// snapshot with events and returns the differences.
func (s *Storage) Update(platform string, events []*event.Event) (*event.DiffResult, error) {
	previous, err := s.LoadSnapshot(platform)
	if err != nil {
		return nil, err
	}

	diff := event.Diff(previous, events)

	snapshot := event.CreateSnapshot(platform, events, "")
	snapshot.ChangeLog = diff.Changes
	if err := s.SaveSnapshot(snapshot); err != nil {
		return nil, err
	}
	return diff, nil
}

// GetEventByID searches every stored snapshot for an event.
func (s *Storage) GetEventByID(eventID string) (*event.Event, error) {
	platforms, err := s.Platforms()
	if err != nil {
		return nil, err
	}
	for _, platform := range platforms {
		snapshot, err := s.LoadSnapshot(platform)
		if err != nil {
			return nil, fmt.Errorf("loading snapshot: %w", err)
		}
		if evt, exists := snapshot.Events[eventID]; exists {
			return evt, nil
		}
	}
	return nil, fmt.Errorf("event not found: %s", eventID)
}

// Platforms lists the platforms with a stored snapshot, sorted.
func (s *Storage) Platforms() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dataDir, "snapshot_*.json"))
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	platforms := make([]string, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), "snapshot_"), ".json")
		platforms = append(platforms, name)
	}
	sort.Strings(platforms)
	return platforms, nil
}
