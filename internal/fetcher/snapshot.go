package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"plus-ev-alerts/internal/odds"
)

// Snapshot is an offline copy of every input table of one run.
type Snapshot struct {
	Quotes    []odds.Quote          `json:"quotes"`
	Consensus []odds.ConsensusQuote `json:"consensus"`
	TeamNames []odds.TeamName       `json:"team_names"`
	Archive   []odds.Opportunity    `json:"archive"`
}

// ReadSnapshot decodes a JSON snapshot document. Unknown fields are rejected
// so that a mistyped table name does not silently read as empty.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var snap Snapshot
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// LoadSnapshot reads a snapshot file from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	return ReadSnapshot(f)
}

// SnapshotSource serves a Snapshot through the same read methods as the
// database store. Saved archive rows are appended in memory.
type SnapshotSource struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewSnapshotSource wraps snap.
func NewSnapshotSource(snap *Snapshot) *SnapshotSource {
	src := &SnapshotSource{}
	if snap != nil {
		src.snap = *snap
	}
	return src
}

// ListQuotes returns the snapshot quotes.
func (s *SnapshotSource) ListQuotes(context.Context) ([]odds.Quote, error) {
	return s.snap.Quotes, nil
}

// ListConsensus returns the snapshot consensus quotes.
func (s *SnapshotSource) ListConsensus(context.Context) ([]odds.ConsensusQuote, error) {
	return s.snap.Consensus, nil
}

// FetchTeams returns the snapshot team names.
func (s *SnapshotSource) FetchTeams(context.Context) ([]odds.TeamName, error) {
	return s.snap.TeamNames, nil
}

// LoadArchive returns a copy of the archive rows.
func (s *SnapshotSource) LoadArchive(context.Context) ([]odds.Opportunity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]odds.Opportunity(nil), s.snap.Archive...), nil
}

// SaveArchive appends rows whose id is not yet archived.
func (s *SnapshotSource) SaveArchive(_ context.Context, rows []odds.Opportunity, _ time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{}, len(s.snap.Archive))
	for _, o := range s.snap.Archive {
		seen[o.ID] = struct{}{}
	}
	inserted := 0
	for _, o := range rows {
		if _, ok := seen[o.ID]; ok {
			continue
		}
		seen[o.ID] = struct{}{}
		s.snap.Archive = append(s.snap.Archive, o)
		inserted++
	}
	return inserted, nil
}

// Snapshot returns the current state, including saved archive rows.
func (s *SnapshotSource) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.snap
	out.Archive = append([]odds.Opportunity(nil), s.snap.Archive...)
	return out
}
