package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/taskora/taskora-ai/internal/domain"
	"github.com/taskora/taskora-ai/internal/ports"
)

// IndexClient talks to the vector store over HTTP.
type IndexClient struct {
	endpoint   string
	authEnvVar string
	httpClient *http.Client
}

// NewIndexClient builds an IndexClient from retrieval settings.
func NewIndexClient(cfg domain.RetrievalSettings, client *http.Client) *IndexClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &IndexClient{
		endpoint:   cfg.Endpoint,
		authEnvVar: cfg.AuthEnvVar,
		httpClient: client,
	}
}

type queryRequest struct {
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeMetadata bool      `json:"includeMetadata"`
	Namespace       string    `json:"namespace,omitempty"`
}

type queryResponse struct {
	Results []struct {
		Matches []struct {
			ID       string            `json:"id"`
			Score    float64           `json:"score"`
			Metadata map[string]string `json:"metadata"`
		} `json:"matches"`
	} `json:"results"`
}

// Query implements ports.VectorIndex.
func (c *IndexClient) Query(ctx context.Context, vector []float32, namespace string, topK int) ([]domain.Document, error) {
	body, err := json.Marshal(queryRequest{
		Vector:          vector,
		TopK:            topK,
		IncludeMetadata: true,
		Namespace:       namespace,
	})
	if err != nil {
		return nil, err
	}

	raw, err := c.post(ctx, c.endpoint+"/query", body)
	if err != nil {
		return nil, err
	}

	var parsed queryResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}
	if len(parsed.Results) == 0 {
		return nil, nil
	}

	docs := make([]domain.Document, 0, len(parsed.Results[0].Matches))
	for _, match := range parsed.Results[0].Matches {
		docs = append(docs, domain.Document{
			ID:       match.ID,
			Content:  match.Metadata["text"],
			Score:    match.Score,
			Metadata: match.Metadata,
		})
	}
	return docs, nil
}

type upsertRequest struct {
	Vectors   []upsertVector `json:"vectors"`
	Namespace string         `json:"namespace,omitempty"`
}

type upsertVector struct {
	ID       string            `json:"id"`
	Values   []float32         `json:"values"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Upsert implements ports.VectorIndex.
func (c *IndexClient) Upsert(ctx context.Context, records []domain.VectorRecord, namespace string) error {
	vectors := make([]upsertVector, 0, len(records))
	for _, record := range records {
		vectors = append(vectors, upsertVector{ID: record.ID, Values: record.Values, Metadata: record.Metadata})
	}
	body, err := json.Marshal(upsertRequest{Vectors: vectors, Namespace: namespace})
	if err != nil {
		return err
	}
	_, err = c.post(ctx, c.endpoint+"/vectors/upsert", body)
	return err
}

func (c *IndexClient) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("content-type", "application/json")
	if c.authEnvVar != "" {
		if key := os.Getenv(c.authEnvVar); key != "" {
			req.Header.Set("api-key", key)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("vector store: %s", resp.Status)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var _ ports.VectorIndex = (*IndexClient)(nil)
