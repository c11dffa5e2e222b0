package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/postly/scout/internal/model"
)

const defaultVoyageBaseURL = "https://api.voyageai.com/v1"

// VoyageProvider calls the Voyage AI /v1/embeddings endpoint.
type VoyageProvider struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

var _ model.EmbeddingProvider = (*VoyageProvider)(nil)

// NewVoyageProvider creates a provider targeting the Voyage API. An empty
// baseURL selects the public endpoint.
func NewVoyageProvider(baseURL, apiKey, modelName string, httpClient *http.Client) *VoyageProvider {
	if baseURL == "" {
		baseURL = defaultVoyageBaseURL
	}
	return &VoyageProvider{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      modelName,
		httpClient: httpClient,
	}
}

// embeddingRequest mirrors the Voyage /v1/embeddings request body.
type embeddingRequest struct {
	Input     []string `json:"input"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type,omitempty"`
}

// embeddingResponse mirrors the relevant fields of the Voyage response.
type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Detail string `json:"detail,omitempty"`
}

// Embed submits texts in one provider call. Rate-limit responses surface as
// HTTPError with the server's Retry-After so callers can back off correctly.
func (p *VoyageProvider) Embed(ctx context.Context, texts []string, mode model.EmbedMode) ([][]float32, int, error) {
	inputType := "document"
	if mode == model.EmbedModeQuery {
		inputType = "query"
	}

	body, err := json.Marshal(embeddingRequest{
		Input:     texts,
		Model:     p.model,
		InputType: inputType,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, model.NewHTTPError(resp, nil)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read embedding response: %w", err)
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, 0, fmt.Errorf("parse embedding response: %w", err)
	}
	if parsed.Detail != "" {
		return nil, 0, fmt.Errorf("embedding provider error: %s", parsed.Detail)
	}

	// The provider may return vectors out of order; index them explicitly.
	// A missing index is a partial failure and stays nil.
	vectors := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index >= 0 && d.Index < len(vectors) {
			vectors[d.Index] = d.Embedding
		}
	}
	return vectors, parsed.Usage.TotalTokens, nil
}
