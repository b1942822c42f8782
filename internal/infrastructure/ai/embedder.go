package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/taskora/taskora-ai/internal/domain"
	"github.com/taskora/taskora-ai/internal/ports"
)

// EmbedClient calls the embedContent endpoint to vectorize text.
type EmbedClient struct {
	endpoint   string
	authEnvVar string
	httpClient *http.Client
}

// NewEmbedClient builds an EmbedClient from retrieval settings.
func NewEmbedClient(cfg domain.RetrievalSettings, client *http.Client) *EmbedClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &EmbedClient{
		endpoint:   cfg.EmbedEndpoint,
		authEnvVar: cfg.AuthEnvVar,
		httpClient: client,
	}
}

// Embed implements ports.Embedder.
func (c *EmbedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]interface{}{
		"content": map[string]interface{}{
			"parts": []map[string]string{
				{"text": text},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("content-type", "application/json")
	apiKey := getEnv(c.authEnvVar, "GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("missing API key: set %s or GEMINI_API_KEY", c.authEnvVar)
	}
	req.Header.Set("x-goog-api-key", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("embed: %s", resp.Status)
	}

	var parsed struct {
		Embedding struct {
			Values []float32 `json:"values"`
		} `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	if len(parsed.Embedding.Values) == 0 {
		return nil, fmt.Errorf("embed: empty vector")
	}
	return parsed.Embedding.Values, nil
}

var _ ports.Embedder = (*EmbedClient)(nil)
