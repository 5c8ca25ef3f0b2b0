package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/custodia-labs/sercha-publish/internal/core/domain"
	"github.com/custodia-labs/sercha-publish/internal/core/ports/driven"
)

func TestNewOpenAIGenerator_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIGenerator("", "", "")
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNewOpenAIGenerator_Defaults(t *testing.T) {
	g, err := NewOpenAIGenerator("sk-test", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Model() != defaultModel {
		t.Errorf("expected default model %s, got %s", defaultModel, g.Model())
	}
	if g.baseURL != defaultBaseURL {
		t.Errorf("expected default base URL, got %s", g.baseURL)
	}
}

func TestNewOpenAIGenerator_CustomBaseURL(t *testing.T) {
	g, err := NewOpenAIGenerator("sk-test", "gpt-4o", "https://custom.api.com/v1/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.baseURL != "https://custom.api.com/v1" {
		t.Errorf("expected trimmed custom base URL, got %s", g.baseURL)
	}
	if g.Model() != "gpt-4o" {
		t.Errorf("expected model gpt-4o, got %s", g.Model())
	}
}

func TestOpenAIGenerator_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("expected bearer auth, got %s", r.Header.Get("Authorization"))
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if len(req.Messages) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(req.Messages))
		}
		if !strings.Contains(req.Messages[0].Content, "tweet") {
			t.Errorf("expected twitter guidance in system prompt, got %q", req.Messages[0].Content)
		}
		if !strings.Contains(req.Messages[0].Content, "280") {
			t.Errorf("expected length hint in system prompt, got %q", req.Messages[0].Content)
		}
		if req.Messages[1].Content != "Announce our spring release" {
			t.Errorf("unexpected user message %q", req.Messages[1].Content)
		}

		resp := chatResponse{Model: req.Model}
		resp.Choices = append(resp.Choices, struct {
			Index        int         `json:"index"`
			Message      chatMessage `json:"message"`
			FinishReason string      `json:"finish_reason"`
		}{Message: chatMessage{Role: "assistant", Content: "  \"Spring release is live!\"  "}})
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	g, _ := NewOpenAIGenerator("sk-test", "", server.URL)
	text, err := g.Generate(context.Background(), "Announce our spring release", driven.GenerateOptions{
		Provider: domain.ProviderTypeTwitter,
		MaxChars: 280,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Spring release is live!" {
		t.Errorf("expected cleaned completion, got %q", text)
	}
}

func TestOpenAIGenerator_TruncatesToMaxChars(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"` + strings.Repeat("é", 50) + `"}}]}`))
	}))
	defer server.Close()

	g, _ := NewOpenAIGenerator("sk-test", "", server.URL)
	text, err := g.Generate(context.Background(), "x", driven.GenerateOptions{MaxChars: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := utf8.RuneCountInString(text); n != 10 {
		t.Errorf("expected 10 characters, got %d", n)
	}
}

func TestOpenAIGenerator_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))
	defer server.Close()

	g, _ := NewOpenAIGenerator("sk-bad", "", server.URL)
	_, err := g.Generate(context.Background(), "hello", driven.GenerateOptions{})
	if err == nil {
		t.Fatal("expected error for API error response")
	}
	if !strings.Contains(err.Error(), "invalid_api_key") {
		t.Errorf("expected error code in message, got %v", err)
	}
}

func TestOpenAIGenerator_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	g, _ := NewOpenAIGenerator("sk-test", "", server.URL)
	if _, err := g.Generate(context.Background(), "hello", driven.GenerateOptions{}); err == nil {
		t.Error("expected error when no choices are returned")
	}
}

func TestOpenAIGenerator_EmptyPrompt(t *testing.T) {
	g, _ := NewOpenAIGenerator("sk-test", "", "http://unused.invalid")
	_, err := g.Generate(context.Background(), "  ", driven.GenerateOptions{})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSystemPrompt_LinkedIn(t *testing.T) {
	p := systemPrompt(driven.GenerateOptions{Provider: domain.ProviderTypeLinkedIn})
	if !strings.Contains(p, "LinkedIn") {
		t.Errorf("expected LinkedIn guidance, got %q", p)
	}
	if strings.Contains(p, "characters") {
		t.Errorf("expected no length hint without MaxChars, got %q", p)
	}
}
