package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NewInMemoryVectorStore creates a new in-memory vector store for testing
// and the in-process demo mode.
func NewInMemoryVectorStore() *MockVectorStore {
	return &MockVectorStore{
		records: make(map[string]Record),
	}
}

// NewInMemoryGraphStore creates a new in-memory graph store for testing
// and the in-process demo mode.
func NewInMemoryGraphStore() *MockGraphStore {
	return &MockGraphStore{
		records:   make(map[string]Record),
		relations: make([]Relation, 0),
	}
}

// MockVectorStore implements a simple in-memory vector store. Search is a
// token-overlap match instead of real vector similarity.
type MockVectorStore struct {
	records map[string]Record
	mu      sync.RWMutex
}

// Upsert stores a record
func (s *MockVectorStore) Upsert(ctx context.Context, record Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	s.records[record.ID] = record
	return record.ID, nil
}

// Search matches records whose content shares tokens with the query, scoring
// by overlap fraction so ordering is stable across runs.
func (s *MockVectorStore) Search(ctx context.Context, query string, userID string, limit int) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	queryTokens := strings.Fields(strings.ToLower(query))

	var hits []Hit
	for _, record := range s.records {
		if userID != "" && record.UserID != userID {
			continue
		}

		score := tokenOverlap(queryTokens, strings.ToLower(record.Content))
		if score <= 0 {
			continue
		}

		hits = append(hits, Hit{
			ID:        record.ID,
			Content:   record.Content,
			Score:     score,
			CreatedAt: record.CreatedAt,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	return hits, nil
}

// Ping checks connection to the store
func (s *MockVectorStore) Ping(ctx context.Context) error {
	return nil
}

// Count reports how many records the store holds.
func (s *MockVectorStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// MockGraphStore implements a simple in-memory graph store.
type MockGraphStore struct {
	records   map[string]Record
	relations []Relation
	mu        sync.RWMutex
}

// Upsert stores a record as a node together with its relations
func (s *MockGraphStore) Upsert(ctx context.Context, record Record, relations []Relation) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	s.records[record.ID] = record

	for _, relation := range relations {
		if relation.CreatedAt.IsZero() {
			relation.CreatedAt = time.Now().UTC()
		}
		s.relations = append(s.relations, relation)
	}

	return record.ID, nil
}

// Search matches records by content or entity name.
func (s *MockGraphStore) Search(ctx context.Context, query string, userID string, limit int) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lowered := strings.ToLower(query)

	var hits []Hit
	for _, record := range s.records {
		if userID != "" && record.UserID != userID {
			continue
		}

		if strings.Contains(strings.ToLower(record.Content), lowered) {
			hits = append(hits, Hit{
				ID:        record.ID,
				Content:   record.Content,
				Score:     1.0,
				CreatedAt: record.CreatedAt,
			})
			continue
		}

		for _, entity := range record.Entities {
			if strings.Contains(strings.ToLower(entity), lowered) {
				hits = append(hits, Hit{
					ID:           record.ID,
					Content:      record.Content,
					Score:        0.8,
					RelationPath: "MENTIONS:" + entity,
					CreatedAt:    record.CreatedAt,
				})
				break
			}
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	return hits, nil
}

// Ping checks connection to the store
func (s *MockGraphStore) Ping(ctx context.Context) error {
	return nil
}

// Count reports how many records the store holds.
func (s *MockGraphStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// tokenOverlap scores how many query tokens appear in the content, as a
// fraction of the query length.
func tokenOverlap(queryTokens []string, content string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}

	matched := 0
	for _, token := range queryTokens {
		if strings.Contains(content, token) {
			matched++
		}
	}

	return float64(matched) / float64(len(queryTokens))
}
