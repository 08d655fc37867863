package episodic

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const schemaVersion = "0.2.0"

type storeFile struct {
	Metadata storeMetadata `json:"metadata"`
	Records  []*Record     `json:"records"`
}

type storeMetadata struct {
	SchemaVersion string `json:"schema_version"`
	LastUpdated   string `json:"last_updated"`
	RecordCount   int    `json:"record_count"`
	TrustLevel    string `json:"trust_level"`
}

// Store keeps episodic records in a single JSON file.
type Store struct {
	mu      sync.Mutex
	path    string
	records []*Record
}

// OpenStore loads the store at path, creating an empty one if absent.
func OpenStore(path string) (*Store, error) {
	s := &Store{path: path}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read episodic store: %w", err)
	}
	var file storeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse episodic store: %w", err)
	}
	s.records = file.Records
	return s, nil
}

// Add appends a record and persists. A zero valence is computed from the
// record's signals.
func (s *Store) Add(record *Record) error {
	if record.Valence == 0 {
		record.Valence = ComputeValence(record)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return s.save()
}

// All returns every record.
func (s *Store) All() []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Record(nil), s.records...)
}

// BySession finds the record for a session id.
func (s *Store) BySession(sessionID string) (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.records {
		if record.SessionID == sessionID {
			return record, true
		}
	}
	return nil, false
}

// Latest returns the newest record by timestamp.
func (s *Store) Latest() (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *Record
	for _, record := range s.records {
		if latest == nil || record.Timestamp > latest.Timestamp {
			latest = record
		}
	}
	return latest, latest != nil
}

// RankedByValence returns every record scored by decayed valence.
func (s *Store) RankedByValence(now time.Time) []ScoredRecord {
	return RankByValence(s.All(), now)
}

// InheritedTrust is the trust level a new session starts from.
func (s *Store) InheritedTrust() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return InheritTrust(s.records)
}

// save writes the file atomically. Caller holds the lock.
func (s *Store) save() error {
	file := storeFile{
		Metadata: storeMetadata{
			SchemaVersion: schemaVersion,
			LastUpdated:   time.Now().UTC().Format(time.RFC3339),
			RecordCount:   len(s.records),
			TrustLevel:    InheritTrust(s.records),
		},
		Records: s.records,
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal episodic store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create episodic dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write episodic store: %w", err)
	}
	return os.Rename(tmp, s.path)
}
