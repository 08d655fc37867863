package ontology

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"aegis/internal/memory"
)

// fakeMemStore is a deterministic memory.Store for tests: similarity is
// word-set Jaccard over the document text.
type fakeMemStore struct {
	docs map[string]*memory.Document
	seq  int
}

func newFakeMemStore() *fakeMemStore {
	return &fakeMemStore{docs: make(map[string]*memory.Document)}
}

func (s *fakeMemStore) Insert(ctx context.Context, doc *memory.Document) (string, error) {
	if doc.ID == "" {
		s.seq++
		doc.ID = fmt.Sprintf("doc%d", s.seq)
	}
	s.docs[doc.ID] = doc
	return doc.ID, nil
}

func (s *fakeMemStore) Update(doc *memory.Document) error {
	if _, ok := s.docs[doc.ID]; !ok {
		return fmt.Errorf("update: document %s not found", doc.ID)
	}
	s.docs[doc.ID] = doc
	return nil
}

func (s *fakeMemStore) Replace(ctx context.Context, doc *memory.Document) error {
	s.docs[doc.ID] = doc
	return nil
}

func (s *fakeMemStore) Get(id string) (*memory.Document, bool) {
	doc, ok := s.docs[id]
	return doc, ok
}

func (s *fakeMemStore) AllDocs() map[string]*memory.Document {
	out := make(map[string]*memory.Document, len(s.docs))
	for id, doc := range s.docs {
		out[id] = doc
	}
	return out
}

func (s *fakeMemStore) Search(ctx context.Context, query string, k int, threshold float32, area string) ([]memory.SearchResult, error) {
	if k <= 0 {
		k = 5
	}
	var out []memory.SearchResult
	for _, doc := range s.docs {
		if area != "" && doc.Area != area {
			continue
		}
		sim := wordJaccard(query, doc.Text)
		if sim >= threshold {
			out = append(out, memory.SearchResult{Doc: doc, Similarity: sim})
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

func (s *fakeMemStore) Delete(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		delete(s.docs, id)
	}
	return nil
}

func (s *fakeMemStore) Close() error { return nil }

func wordJaccard(a, b string) float32 {
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
	return float32(shared) / float32(len(setA)+len(setB)-shared)
}
