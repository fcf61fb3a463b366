package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/DeafMist/headline-radar/internal/models"
)

// Store keeps headlines in memory, in insertion order. It is used by tests
// and ranks entities through the generic in-memory report path.
type Store struct {
	mu    sync.RWMutex
	docs  map[string]models.HeadlineDocument
	order []string
}

// New creates an empty store.
func New() *Store {
	return &Store{docs: make(map[string]models.HeadlineDocument)}
}

// InsertHeadlines adds documents whose id is not present yet.
func (s *Store) InsertHeadlines(_ context.Context, docs ...models.HeadlineDocument) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, doc := range docs {
		if doc.ID == "" {
			return inserted, fmt.Errorf("insert headline: empty id")
		}
		if _, ok := s.docs[doc.ID]; ok {
			continue
		}
		s.docs[doc.ID] = copyDoc(doc)
		s.order = append(s.order, doc.ID)
		inserted++
	}
	return inserted, nil
}

// ForEachHeadline calls fn for a snapshot of every document, so fn may write
// back to the store.
func (s *Store) ForEachHeadline(ctx context.Context, fn func(models.HeadlineDocument) error) error {
	for _, doc := range s.snapshot() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

// UpdateEnrichment replaces the derived fields of one document.
func (s *Store) UpdateEnrichment(_ context.Context, id string, e models.Enrichment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("update %s: %w", id, models.ErrNotFound)
	}
	doc.Entities = copyEntities(e.Entities)
	if doc.Entities == nil {
		doc.Entities = []models.EntityAnnotation{}
	}
	doc.Sentiment = e.Sentiment
	s.docs[id] = doc
	return nil
}

// FindByEntityType returns up to limit documents holding an entity of the
// given type. A non-positive limit returns every match.
func (s *Store) FindByEntityType(_ context.Context, entityType string, limit int) ([]models.HeadlineDocument, error) {
	out := make([]models.HeadlineDocument, 0)
	for _, doc := range s.snapshot() {
		if limit > 0 && len(out) >= limit {
			break
		}
		for _, ent := range doc.Entities {
			if ent.Type == entityType {
				out = append(out, doc)
				break
			}
		}
	}
	return out, nil
}

// Get returns a copy of one document.
func (s *Store) Get(id string) (models.HeadlineDocument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return models.HeadlineDocument{}, false
	}
	return copyDoc(doc), true
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Ping implements store.Store.
func (s *Store) Ping(context.Context) error { return nil }

// Close implements store.Store.
func (s *Store) Close(context.Context) error { return nil }

func (s *Store) snapshot() []models.HeadlineDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.HeadlineDocument, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, copyDoc(s.docs[id]))
	}
	return out
}

func copyDoc(d models.HeadlineDocument) models.HeadlineDocument {
	if d.PublishDate != nil {
		ts := *d.PublishDate
		d.PublishDate = &ts
	}
	d.Entities = copyEntities(d.Entities)
	return d
}

func copyEntities(in []models.EntityAnnotation) []models.EntityAnnotation {
	if in == nil {
		return nil
	}
	out := make([]models.EntityAnnotation, len(in))
	copy(out, in)
	return out
}
