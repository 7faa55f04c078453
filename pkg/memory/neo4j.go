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

// Neo4jGraphStore implements the GraphStore interface with Neo4j
type Neo4jGraphStore struct {
	Endpoint   string
	Username   string
	Password   string
	HTTPClient *http.Client
}

// NewNeo4jGraphStore creates a new Neo4j graph store
func NewNeo4jGraphStore(endpoint, username, password string) *Neo4jGraphStore {
	return &Neo4jGraphStore{
		Endpoint:   endpoint,
		Username:   username,
		Password:   password,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// execCypher executes a Cypher query and returns the raw response
func (s *Neo4jGraphStore) execCypher(ctx context.Context, query string, params map[string]any) (map[string]any, error) {
	payload := map[string]any{
		"statements": []map[string]any{{
			"statement":  query,
			"parameters": params,
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		fmt.Sprintf("%s/db/neo4j/tx/commit", s.Endpoint),
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if s.Username != "" {
		req.SetBasicAuth(s.Username, s.Password)
	}

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("query failed, status: %d", resp.StatusCode)
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if errs, ok := result["errors"].([]any); ok && len(errs) > 0 {
		if errorObj, ok := errs[0].(map[string]any); ok {
			if msg, ok := errorObj["message"].(string); ok {
				return nil, fmt.Errorf("neo4j error: %s", msg)
			}
		}
		return nil, fmt.Errorf("neo4j returned errors")
	}

	return result, nil
}

// Upsert creates a record node and its relations in the graph database
func (s *Neo4jGraphStore) Upsert(ctx context.Context, record Record, relations []Relation) (string, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	params := map[string]any{
		"id":         record.ID,
		"userId":     record.UserID,
		"content":    record.Content,
		"origin":     record.Origin,
		"confidence": string(record.Confidence),
		"temporal":   record.Temporal,
		"createdAt":  record.CreatedAt.Format(time.RFC3339),
	}

	cypher := `
		MERGE (m:Memory {id: $id})
		SET m.userId = $userId,
			m.content = $content,
			m.origin = $origin,
			m.confidence = $confidence,
			m.temporal = $temporal,
			m.createdAt = $createdAt
	`

	if len(record.Entities) > 0 {
		params["entities"] = record.Entities
		cypher += `
		WITH m
		UNWIND $entities AS entity
		MERGE (e:Entity {name: entity, userId: $userId})
		MERGE (m)-[:MENTIONS]->(e)
		WITH DISTINCT m`
	}

	cypher += `
		RETURN m.id AS id`

	result, err := s.execCypher(ctx, cypher, params)
	if err != nil {
		return "", fmt.Errorf("failed to store record: %w", err)
	}

	id := firstRowString(result)
	if id == "" {
		return "", fmt.Errorf("failed to get ID from response")
	}

	for _, relation := range relations {
		if err := s.createRelation(ctx, relation); err != nil {
			return id, fmt.Errorf("failed to create relation: %w", err)
		}
	}

	return id, nil
}

// createRelation creates a relationship between two record nodes
func (s *Neo4jGraphStore) createRelation(ctx context.Context, relation Relation) error {
	if relation.CreatedAt.IsZero() {
		relation.CreatedAt = time.Now().UTC()
	}

	params := map[string]any{
		"source":    relation.Source,
		"target":    relation.Target,
		"type":      relation.Type,
		"createdAt": relation.CreatedAt.Format(time.RFC3339),
	}

	cypher := `
		MATCH (a:Memory {id: $source})
		MATCH (b:Memory {id: $target})
		MERGE (a)-[r:RELATES {type: $type}]->(b)
		SET r.createdAt = $createdAt
	`

	_, err := s.execCypher(ctx, cypher, params)
	return err
}

// Search finds record nodes by content or connected entities, scoped to one
// user. Matches connected via an Entity node carry the relation path so the
// caller can see what linked them.
func (s *Neo4jGraphStore) Search(ctx context.Context, query string, userID string, limit int) ([]Hit, error) {
	params := map[string]any{
		"query":  query,
		"userId": userID,
		"limit":  limit,
	}

	// The limit has to sit outside the union so it bounds the combined
	// result rather than the second branch alone.
	cypher := `
		CALL {
			MATCH (m:Memory)
			WHERE m.userId = $userId AND toLower(m.content) CONTAINS toLower($query)
			RETURN m.id AS id, m.content AS content, 1.0 AS score, '' AS path, m.createdAt AS createdAt
			UNION
			MATCH (m:Memory)-[:MENTIONS]->(e:Entity)
			WHERE e.userId = $userId AND toLower(e.name) CONTAINS toLower($query)
			RETURN m.id AS id, m.content AS content, 0.8 AS score,
				'MENTIONS:' + e.name AS path, m.createdAt AS createdAt
		}
		RETURN id, content, score, path, createdAt
		ORDER BY score DESC, createdAt DESC
		LIMIT $limit
	`

	result, err := s.execCypher(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	return parseHits(result), nil
}

// Ping checks the connection to the Neo4j server
func (s *Neo4jGraphStore) Ping(ctx context.Context) error {
	_, err := s.execCypher(ctx, "RETURN 1", nil)
	return err
}

// firstRowString pulls the first column of the first row out of a Neo4j
// transactional API response.
func firstRowString(result map[string]any) string {
	results, ok := result["results"].([]any)
	if !ok || len(results) == 0 {
		return ""
	}

	resultObj, ok := results[0].(map[string]any)
	if !ok {
		return ""
	}

	data, ok := resultObj["data"].([]any)
	if !ok || len(data) == 0 {
		return ""
	}

	dataObj, ok := data[0].(map[string]any)
	if !ok {
		return ""
	}

	row, ok := dataObj["row"].([]any)
	if !ok || len(row) == 0 {
		return ""
	}

	s, _ := row[0].(string)
	return s
}

// parseHits converts a transactional API response with columns
// (id, content, score, path, createdAt) into Hit values.
func parseHits(result map[string]any) []Hit {
	var hits []Hit

	results, ok := result["results"].([]any)
	if !ok {
		return hits
	}

	for _, r := range results {
		resultObj, ok := r.(map[string]any)
		if !ok {
			continue
		}

		data, ok := resultObj["data"].([]any)
		if !ok {
			continue
		}

		for _, d := range data {
			dataObj, ok := d.(map[string]any)
			if !ok {
				continue
			}

			row, ok := dataObj["row"].([]any)
			if !ok || len(row) < 5 {
				continue
			}

			hit := Hit{}
			if id, ok := row[0].(string); ok {
				hit.ID = id
			}
			if content, ok := row[1].(string); ok {
				hit.Content = content
			}
			if score, ok := row[2].(float64); ok {
				hit.Score = score
			}
			if path, ok := row[3].(string); ok {
				hit.RelationPath = path
			}
			if createdStr, ok := row[4].(string); ok {
				if t, err := time.Parse(time.RFC3339, createdStr); err == nil {
					hit.CreatedAt = t
				}
			}

			hits = append(hits, hit)
		}
	}

	return hits
}
