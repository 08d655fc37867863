package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"github.com/google/uuid"
)

// Embedder produces the vector for a text. The embedding model itself is an
// external capability.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SearchResult pairs a document with its similarity to the query.
type SearchResult struct {
	Doc        *Document
	Similarity float32
}

// Store is the memory layer's storage capability: full documents in a JSON
// file keyed by id, with text mirrored into a vector index for similarity
// search.
type Store interface {
	Insert(ctx context.Context, doc *Document) (string, error)
	// Update rewrites a document's metadata in place. The text is assumed
	// unchanged; use Replace when it is not.
	Update(doc *Document) error
	// Replace re-embeds the document after a text change.
	Replace(ctx context.Context, doc *Document) error
	Get(id string) (*Document, bool)
	AllDocs() map[string]*Document
	// Search returns documents above the similarity threshold, most similar
	// first, optionally restricted to an area.
	Search(ctx context.Context, query string, k int, threshold float32, area string) ([]SearchResult, error)
	Delete(ctx context.Context, ids ...string) error
	Close() error
}

// fileVectorStore is the production Store: documents.json as source of truth
// plus a chromem-go collection for similarity.
type fileVectorStore struct {
	mu       sync.Mutex
	path     string
	docs     map[string]*Document
	db       *chromem.DB
	coll     *chromem.Collection
	embedder Embedder
}

// StoreConfig holds vector store configuration.
type StoreConfig struct {
	// Dir holds documents.json and the chromem gob.
	Dir        string
	Collection string
}

// NewStore opens (or creates) the persistent store under config.Dir.
func NewStore(config StoreConfig, embedder Embedder) (Store, error) {
	if config.Collection == "" {
		config.Collection = "memories"
	}
	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}

	db, err := chromem.NewPersistentDB(filepath.Join(config.Dir, "chromem.gob"), false)
	if err != nil {
		return nil, fmt.Errorf("create persistent DB: %w", err)
	}

	embeddingFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	}
	coll, err := db.GetOrCreateCollection(config.Collection, nil, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	s := &fileVectorStore{
		path:     filepath.Join(config.Dir, "documents.json"),
		docs:     make(map[string]*Document),
		db:       db,
		coll:     coll,
		embedder: embedder,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileVectorStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read documents: %w", err)
	}
	if err := json.Unmarshal(data, &s.docs); err != nil {
		return fmt.Errorf("parse documents: %w", err)
	}
	return nil
}

// save persists the document map. Caller holds the lock.
func (s *fileVectorStore) save() error {
	data, err := json.MarshalIndent(s.docs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal documents: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write documents: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *fileVectorStore) Insert(ctx context.Context, doc *Document) (string, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	err := s.coll.AddDocument(ctx, chromem.Document{
		ID:      doc.ID,
		Content: doc.Text,
		Metadata: map[string]string{
			"area": doc.Area,
		},
	})
	if err != nil {
		return "", fmt.Errorf("index document %s: %w", doc.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
	return doc.ID, s.save()
}

func (s *fileVectorStore) Update(doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.ID]; !ok {
		return fmt.Errorf("update: document %s not found", doc.ID)
	}
	s.docs[doc.ID] = doc
	return s.save()
}

func (s *fileVectorStore) Replace(ctx context.Context, doc *Document) error {
	if err := s.coll.Delete(ctx, nil, nil, doc.ID); err != nil {
		return fmt.Errorf("reindex delete %s: %w", doc.ID, err)
	}
	err := s.coll.AddDocument(ctx, chromem.Document{
		ID:      doc.ID,
		Content: doc.Text,
		Metadata: map[string]string{
			"area": doc.Area,
		},
	})
	if err != nil {
		return fmt.Errorf("reindex add %s: %w", doc.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
	return s.save()
}

func (s *fileVectorStore) Get(id string) (*Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	return doc, ok
}

func (s *fileVectorStore) AllDocs() map[string]*Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*Document, len(s.docs))
	for id, doc := range s.docs {
		out[id] = doc
	}
	return out
}

func (s *fileVectorStore) Search(ctx context.Context, query string, k int, threshold float32, area string) ([]SearchResult, error) {
	if k <= 0 {
		k = 5
	}
	count := s.coll.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	var where map[string]string
	if area != "" {
		where = map[string]string{"area": area}
	}
	results, err := s.coll.Query(ctx, query, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	var out []SearchResult
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range results {
		if r.Similarity < threshold {
			continue
		}
		doc, ok := s.docs[r.ID]
		if !ok {
			continue
		}
		out = append(out, SearchResult{Doc: doc, Similarity: r.Similarity})
	}
	return out, nil
}

func (s *fileVectorStore) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.coll.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("delete from index: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.docs, id)
	}
	return s.save()
}

func (s *fileVectorStore) Close() error {
	// chromem-go auto-persists on changes, no explicit close needed
	return nil
}
