package salute

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
)

// Store reads and writes SALUTE reports under a reports directory.
//
// Layout: <dir>/<role_id>_latest.json holds the newest report per role;
// <dir>/archive/<role_id>_<YYYYMMDD_HHMMSS>.json is an immutable copy.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir. The directory is created lazily on
// first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the reports directory.
func (s *Store) Dir() string {
	return s.dir
}

// Write persists the report as the role's latest and appends an archive copy.
func (s *Store) Write(roleID string, report *Report) error {
	if roleID == "" {
		return fmt.Errorf("write salute: empty role id")
	}
	if err := os.MkdirAll(filepath.Join(s.dir, "archive"), 0o755); err != nil {
		return fmt.Errorf("create reports dir: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal salute: %w", err)
	}

	latest := filepath.Join(s.dir, roleID+"_latest.json")
	if err := os.WriteFile(latest, data, 0o644); err != nil {
		return fmt.Errorf("write latest salute: %w", err)
	}

	stamp := time.Now().UTC().Format("20060102_150405")
	archive := filepath.Join(s.dir, "archive", fmt.Sprintf("%s_%s.json", roleID, stamp))
	if err := os.WriteFile(archive, data, 0o644); err != nil {
		return fmt.Errorf("write salute archive: %w", err)
	}
	return nil
}

// ReadLatest returns the latest report for roleID, or when roleID is empty,
// the most recently modified *_latest.json in the directory. A missing file
// returns (nil, nil); the poll loop treats that as "no telemetry yet".
//
// Partially written files happen: the emitter and the poller share no lock.
// Reads run the raw bytes through jsonrepair before giving up.
func (s *Store) ReadLatest(roleID string) (*Report, error) {
	path := ""
	if roleID != "" {
		path = filepath.Join(s.dir, roleID+"_latest.json")
		if _, err := os.Stat(path); err != nil {
			return nil, nil
		}
	} else {
		newest := s.newestLatestFile()
		if newest == "" {
			return nil, nil
		}
		path = newest
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(string(data))
		if repairErr != nil {
			return nil, fmt.Errorf("parse salute %s: %w", path, err)
		}
		if err := json.Unmarshal([]byte(repaired), &report); err != nil {
			return nil, fmt.Errorf("parse repaired salute %s: %w", path, err)
		}
	}
	return &report, nil
}

func (s *Store) newestLatestFile() string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return ""
	}
	newest := ""
	var newestMod time.Time
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), "_latest.json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = filepath.Join(s.dir, entry.Name())
			newestMod = info.ModTime()
		}
	}
	return newest
}
