package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// QdrantVectorStore implements the VectorStore interface with Qdrant
type QdrantVectorStore struct {
	Endpoint   string
	Collection string
	HTTPClient *http.Client
	Embedding  EmbeddingService
}

// NewQdrantVectorStore creates a new Qdrant vector store
func NewQdrantVectorStore(endpoint, collection string, embeddingService EmbeddingService) *QdrantVectorStore {
	return &QdrantVectorStore{
		Endpoint:   endpoint,
		Collection: collection,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		Embedding: embeddingService,
	}
}

// ensureCollection makes sure the collection exists, creating it if needed
func (s *QdrantVectorStore) ensureCollection(ctx context.Context, dimension int) error {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		fmt.Sprintf("%s/collections/%s", s.Endpoint, s.Collection),
		nil,
	)
	if err != nil {
		return err
	}

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	// Collection exists
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	createPayload := map[string]any{
		"name": s.Collection,
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}

	createBody, err := json.Marshal(createPayload)
	if err != nil {
		return err
	}

	createReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPut,
		fmt.Sprintf("%s/collections/%s", s.Endpoint, s.Collection),
		bytes.NewReader(createBody),
	)
	if err != nil {
		return err
	}
	createReq.Header.Set("Content-Type", "application/json")

	createResp, err := s.HTTPClient.Do(createReq)
	if err != nil {
		return err
	}
	createResp.Body.Close()

	if createResp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to create collection, status: %d", createResp.StatusCode)
	}

	return nil
}

// Upsert adds a record to the vector store
func (s *QdrantVectorStore) Upsert(ctx context.Context, record Record) (string, error) {
	embedding, err := s.Embedding.GenerateEmbedding(ctx, record.Content)
	if err != nil {
		return "", fmt.Errorf("failed to generate embedding: %w", err)
	}

	if err := s.ensureCollection(ctx, len(embedding)); err != nil {
		return "", fmt.Errorf("failed to ensure collection: %w", err)
	}

	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	point := map[string]any{
		"id":     record.ID,
		"vector": embedding,
		"payload": map[string]any{
			"content":    record.Content,
			"userId":     record.UserID,
			"origin":     record.Origin,
			"confidence": string(record.Confidence),
			"entities":   record.Entities,
			"temporal":   record.Temporal,
			"metadata":   record.Metadata,
			"createdAt":  record.CreatedAt.Format(time.RFC3339),
		},
	}

	payload := map[string]any{
		"points": []map[string]any{point},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPut,
		fmt.Sprintf("%s/collections/%s/points", s.Endpoint, s.Collection),
		bytes.NewReader(body),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to store record, status: %d", resp.StatusCode)
	}

	return record.ID, nil
}

// Search finds semantically similar records scoped to one user
func (s *QdrantVectorStore) Search(ctx context.Context, query string, userID string, limit int) ([]Hit, error) {
	embedding, err := s.Embedding.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	searchPayload := map[string]any{
		"vector":       embedding,
		"limit":        limit,
		"with_payload": true,
	}

	if userID != "" {
		searchPayload["filter"] = map[string]any{
			"must": []map[string]any{
				{
					"match": map[string]any{
						"key":   "userId",
						"value": userID,
					},
				},
			},
		}
	}

	body, err := json.Marshal(searchPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		fmt.Sprintf("%s/collections/%s/points/search", s.Endpoint, s.Collection),
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search failed, status: %d", resp.StatusCode)
	}

	var result struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	hits := make([]Hit, 0, len(result.Result))

	for _, item := range result.Result {
		hit := Hit{
			ID:    item.ID,
			Score: item.Score,
		}

		if payload := item.Payload; payload != nil {
			if content, ok := payload["content"].(string); ok {
				hit.Content = content
			}

			if createdStr, ok := payload["createdAt"].(string); ok {
				if t, err := time.Parse(time.RFC3339, createdStr); err == nil {
					hit.CreatedAt = t
				}
			}
		}

		hits = append(hits, hit)
	}

	return hits, nil
}

// Ping checks the connection to the Qdrant server
func (s *QdrantVectorStore) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		fmt.Sprintf("%s/collections", s.Endpoint),
		nil,
	)
	if err != nil {
		return err
	}

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping failed, status: %d", resp.StatusCode)
	}

	return nil
}
