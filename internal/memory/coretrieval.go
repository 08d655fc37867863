package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// CoRetrievalEntry records one recall batch: the ids that were injected
// together.
type CoRetrievalEntry struct {
	MemoryIDs []string `json:"memory_ids"`
	Timestamp string   `json:"timestamp"`
}

// ClusterCandidate is an unordered id pair that keeps being retrieved
// together.
type ClusterCandidate struct {
	MemoryIDs []string `json:"memory_ids"`
	Count     int      `json:"count"`
}

type coRetrievalFile struct {
	Entries           []CoRetrievalEntry `json:"entries"`
	ClusterCandidates []ClusterCandidate `json:"cluster_candidates,omitempty"`
}

// CoRetrievalLog is the append-only record of which memories were recalled
// together, with cluster candidates written back by maintenance.
type CoRetrievalLog struct {
	mu   sync.Mutex
	path string
}

// NewCoRetrievalLog opens the log at path. The file is created lazily.
func NewCoRetrievalLog(path string) *CoRetrievalLog {
	return &CoRetrievalLog{path: path}
}

// Append records one recall batch. Batches with fewer than two ids carry no
// pair signal and are skipped.
func (l *CoRetrievalLog) Append(memoryIDs []string) error {
	if len(memoryIDs) < 2 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := l.load()
	if err != nil {
		return err
	}
	file.Entries = append(file.Entries, CoRetrievalEntry{
		MemoryIDs: append([]string(nil), memoryIDs...),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return l.save(file)
}

// PairCounts tallies unordered id pairs across all entries.
func (l *CoRetrievalLog) PairCounts() (map[[2]string]int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := l.load()
	if err != nil {
		return nil, err
	}
	counts := make(map[[2]string]int)
	for _, entry := range file.Entries {
		for i := 0; i < len(entry.MemoryIDs); i++ {
			for j := i + 1; j < len(entry.MemoryIDs); j++ {
				counts[pairKey(entry.MemoryIDs[i], entry.MemoryIDs[j])]++
			}
		}
	}
	return counts, nil
}

// WriteClusterCandidates replaces the cluster_candidates section.
func (l *CoRetrievalLog) WriteClusterCandidates(candidates []ClusterCandidate) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := l.load()
	if err != nil {
		return err
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Count != candidates[j].Count {
			return candidates[i].Count > candidates[j].Count
		}
		return candidates[i].MemoryIDs[0] < candidates[j].MemoryIDs[0]
	})
	file.ClusterCandidates = candidates
	return l.save(file)
}

// ClusterCandidates returns the section written by the last maintenance pass.
func (l *CoRetrievalLog) ClusterCandidates() ([]ClusterCandidate, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := l.load()
	if err != nil {
		return nil, err
	}
	return file.ClusterCandidates, nil
}

// load reads the file; a missing file is an empty log. Caller holds the lock.
func (l *CoRetrievalLog) load() (*coRetrievalFile, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return &coRetrievalFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read co-retrieval log: %w", err)
	}
	var file coRetrievalFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse co-retrieval log: %w", err)
	}
	return &file, nil
}

// save writes the file atomically. Caller holds the lock.
func (l *CoRetrievalLog) save(file *coRetrievalFile) error {
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal co-retrieval log: %w", err)
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write co-retrieval log: %w", err)
	}
	return os.Rename(tmp, l.path)
}

func pairKey(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}
