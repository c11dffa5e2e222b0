package embed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/postly/scout/internal/model"
)

func TestVoyageProvider_Embed(t *testing.T) {
	var gotReq embeddingRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		// Out of order on purpose.
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"data": [
				{"embedding": [0.3, 0.4], "index": 1},
				{"embedding": [0.1, 0.2], "index": 0}
			],
			"usage": {"total_tokens": 12}
		}`))
	}))
	defer server.Close()

	p := NewVoyageProvider(server.URL, "test-key", "voyage-3.5-lite", server.Client())
	vectors, tokens, err := p.Embed(context.Background(), []string{"alpha", "beta"}, model.EmbedModeDocument)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokens != 12 {
		t.Errorf("expected 12 tokens, got %d", tokens)
	}
	if gotReq.Model != "voyage-3.5-lite" || gotReq.InputType != "document" {
		t.Errorf("unexpected request body: %+v", gotReq)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	if vectors[0][0] != 0.1 || vectors[1][0] != 0.3 {
		t.Errorf("vectors not reordered by index: %v", vectors)
	}
}

func TestVoyageProvider_QueryInputType(t *testing.T) {
	var gotReq embeddingRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(`{"data": [{"embedding": [1], "index": 0}], "usage": {"total_tokens": 2}}`))
	}))
	defer server.Close()

	p := NewVoyageProvider(server.URL, "k", "m", server.Client())
	if _, _, err := p.Embed(context.Background(), []string{"q"}, model.EmbedModeQuery); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotReq.InputType != "query" {
		t.Errorf("expected input_type query, got %q", gotReq.InputType)
	}
}

func TestVoyageProvider_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	p := NewVoyageProvider(server.URL, "k", "m", server.Client())
	_, _, err := p.Embed(context.Background(), []string{"q"}, model.EmbedModeDocument)

	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", httpErr.StatusCode)
	}
	if httpErr.RetryAfter != 7*time.Second {
		t.Errorf("expected Retry-After 7s, got %v", httpErr.RetryAfter)
	}
}

func TestVoyageProvider_ErrorDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"detail": "invalid model"}`))
	}))
	defer server.Close()

	p := NewVoyageProvider(server.URL, "k", "bad", server.Client())
	if _, _, err := p.Embed(context.Background(), []string{"q"}, model.EmbedModeDocument); err == nil {
		t.Error("expected error from detail payload")
	}
}

func TestVoyageProvider_PartialResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": [{"embedding": [1], "index": 0}], "usage": {"total_tokens": 1}}`))
	}))
	defer server.Close()

	p := NewVoyageProvider(server.URL, "k", "m", server.Client())
	vectors, _, err := p.Embed(context.Background(), []string{"a", "b"}, model.EmbedModeDocument)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vectors[0] == nil || vectors[1] != nil {
		t.Errorf("expected only index 0 filled, got %v", vectors)
	}
}
