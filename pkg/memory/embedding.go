package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// OpenAIEmbeddingService generates embeddings using OpenAI's API
type OpenAIEmbeddingService struct {
	APIKey     string
	Model      string
	Endpoint   string
	HTTPClient *http.Client
}

// OpenAIEmbeddingRequest represents a request to the OpenAI embedding API
type OpenAIEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// OpenAIEmbeddingResponse represents a response from the OpenAI embedding API
type OpenAIEmbeddingResponse struct {
	Data []OpenAIEmbeddingData `json:"data"`
}

// OpenAIEmbeddingData represents an embedding result
type OpenAIEmbeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// NewOpenAIEmbeddingService creates a new embedding service using OpenAI
func NewOpenAIEmbeddingService(apiKey string) *OpenAIEmbeddingService {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	return &OpenAIEmbeddingService{
		APIKey:   apiKey,
		Model:    "text-embedding-3-small",
		Endpoint: "https://api.openai.com/v1/embeddings",
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GenerateEmbedding creates an embedding for a single text
func (s *OpenAIEmbeddingService) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := s.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	return embeddings[0], nil
}

// GenerateEmbeddings creates embeddings for multiple texts in a batch
func (s *OpenAIEmbeddingService) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	// Trim into a copy; the caller's slice stays untouched.
	input := make([]string, len(texts))
	for i, text := range texts {
		input[i] = strings.TrimSpace(text)
	}

	reqData := OpenAIEmbeddingRequest{
		Model: s.Model,
		Input: input,
	}

	reqBody, err := json.Marshal(reqData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		s.Endpoint,
		bytes.NewReader(reqBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errorResponse struct {
			Error struct {
				Message string `json:"message"`
				Type    string `json:"type"`
			} `json:"error"`
		}

		if err := json.NewDecoder(resp.Body).Decode(&errorResponse); err != nil {
			return nil, fmt.Errorf("OpenAI API error (status %d)", resp.StatusCode)
		}

		return nil, fmt.Errorf("OpenAI API error: %s (%s)", errorResponse.Error.Message, errorResponse.Error.Type)
	}

	var embeddingResponse OpenAIEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResponse); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	result := make([][]float32, len(texts))
	for _, item := range embeddingResponse.Data {
		if item.Index >= len(result) {
			continue // Skip out-of-range indices
		}
		result[item.Index] = item.Embedding
	}

	return result, nil
}

// MockEmbeddingService generates mock embeddings for testing
type MockEmbeddingService struct{}

// NewMockEmbeddingService creates a new mock embedding service for testing
func NewMockEmbeddingService() *MockEmbeddingService {
	return &MockEmbeddingService{}
}

// GenerateEmbedding creates a deterministic mock embedding based on the text
func (s *MockEmbeddingService) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	embedding := make([]float32, 4) // Small dimension for testing
	for i := 0; i < 4; i++ {
		if len(text) > i {
			embedding[i] = float32(text[i%len(text)]) / 256.0
		} else {
			embedding[i] = 0.5
		}
	}
	return embedding, nil
}

// GenerateEmbeddings creates mock embeddings for a batch of texts
func (s *MockEmbeddingService) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		embedding, _ := s.GenerateEmbedding(ctx, text)
		result[i] = embedding
	}
	return result, nil
}
