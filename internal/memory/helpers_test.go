package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// fakeStore is a deterministic in-memory Store: similarity is word-set
// Jaccard, good enough to drive the classification and recall logic.
type fakeStore struct {
	docs map[string]*Document
	seq  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]*Document)}
}

func (s *fakeStore) Insert(ctx context.Context, doc *Document) (string, error) {
	if doc.ID == "" {
		s.seq++
		doc.ID = fmt.Sprintf("m%d", s.seq)
	}
	s.docs[doc.ID] = doc
	return doc.ID, nil
}

func (s *fakeStore) Update(doc *Document) error {
	if _, ok := s.docs[doc.ID]; !ok {
		return fmt.Errorf("update: document %s not found", doc.ID)
	}
	s.docs[doc.ID] = doc
	return nil
}

func (s *fakeStore) Replace(ctx context.Context, doc *Document) error {
	s.docs[doc.ID] = doc
	return nil
}

func (s *fakeStore) Get(id string) (*Document, bool) {
	doc, ok := s.docs[id]
	return doc, ok
}

func (s *fakeStore) AllDocs() map[string]*Document {
	out := make(map[string]*Document, len(s.docs))
	for id, doc := range s.docs {
		out[id] = doc
	}
	return out
}

func (s *fakeStore) Search(ctx context.Context, query string, k int, threshold float32, area string) ([]SearchResult, error) {
	if k <= 0 {
		k = 5
	}
	var out []SearchResult
	for _, doc := range s.docs {
		if area != "" && doc.Area != area {
			continue
		}
		sim := jaccard(query, doc.Text)
		if sim >= threshold {
			out = append(out, SearchResult{Doc: doc, Similarity: sim})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Doc.ID < out[j].Doc.ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (s *fakeStore) Delete(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		delete(s.docs, id)
	}
	return nil
}

func (s *fakeStore) Close() error { return nil }

func jaccard(a, b string) float32 {
	setA := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(a)) {
		setA[w] = true
	}
	setB := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(b)) {
		setB[w] = true
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	shared := 0
	for w := range setA {
		if setB[w] {
			shared++
		}
	}
	union := len(setA) + len(setB) - shared
	return float32(shared) / float32(union)
}
