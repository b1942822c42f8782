// Package ai holds the HTTP adapters for the external model endpoints.
package ai

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

type httpProvider struct {
	name       string
	settings   domain.AISettings
	httpClient *http.Client
	adapter    providerAdapter
}

type providerAdapter struct {
	buildRequest  func(domain.AISettings, string) ([]byte, error)
	parseResponse func([]byte) (string, error)
	setHeaders    func(*http.Request, domain.AISettings) error
}

func newHTTPProvider(name string, settings domain.AISettings, client *http.Client, adapter providerAdapter) ports.LLMProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpProvider{
		name:       name,
		settings:   settings,
		httpClient: client,
		adapter:    adapter,
	}
}

// NewGeminiProvider builds the provider for the Gemini generateContent API.
func NewGeminiProvider(settings domain.AISettings, client *http.Client) ports.LLMProvider {
	return newHTTPProvider("gemini", settings, client, geminiAdapter())
}

func (p *httpProvider) Name() string {
	return p.name
}

func (p *httpProvider) Generate(ctx context.Context, prompt string) (string, error) {
	requestBody, err := p.adapter.buildRequest(p.settings, prompt)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.settings.Endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("content-type", "application/json")
	if err := p.adapter.setHeaders(httpReq, p.settings); err != nil {
		return "", err
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%s: %s: %w", p.name, resp.Status, domain.ErrRateLimited)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%s: %s", p.name, resp.Status)
	}

	var responseBody bytes.Buffer
	if _, err := responseBody.ReadFrom(resp.Body); err != nil {
		return "", err
	}

	return p.adapter.parseResponse(responseBody.Bytes())
}

func geminiAdapter() providerAdapter {
	return providerAdapter{
		buildRequest:  buildGeminiRequest,
		parseResponse: parseGeminiResponse,
		setHeaders:    setGeminiHeaders,
	}
}

func buildGeminiRequest(settings domain.AISettings, prompt string) ([]byte, error) {
	request := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"role": "user",
				"parts": []map[string]string{
					{"text": prompt},
				},
			},
		},
	}
	if settings.MaxTokens > 0 {
		request["generationConfig"] = map[string]interface{}{
			"maxOutputTokens": settings.MaxTokens,
		}
	}
	return json.Marshal(request)
}

func parseGeminiResponse(body []byte) (string, error) {
	var response struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}

	if err := json.Unmarshal(body, &response); err != nil {
		return "", err
	}
	if len(response.Candidates) == 0 || len(response.Candidates[0].Content.Parts) == 0 {
		return "", nil
	}
	return response.Candidates[0].Content.Parts[0].Text, nil
}

func setGeminiHeaders(req *http.Request, settings domain.AISettings) error {
	apiKey := getEnv(settings.AuthEnvVar, "GEMINI_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("missing API key: set %s or GEMINI_API_KEY", settings.AuthEnvVar)
	}
	req.Header.Set("x-goog-api-key", apiKey)
	return nil
}

func getEnv(primary, fallback string) string {
	if primary != "" {
		if value := os.Getenv(primary); value != "" {
			return value
		}
	}
	if fallback != "" {
		return os.Getenv(fallback)
	}
	return ""
}
