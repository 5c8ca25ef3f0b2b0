package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/custodia-labs/sercha-publish/internal/core/domain"
	"github.com/custodia-labs/sercha-publish/internal/core/ports/driven"
)

// Ensure OpenAIGenerator implements ContentGenerator
var _ driven.ContentGenerator = (*OpenAIGenerator)(nil)

const (
	defaultModel   = "gpt-4o-mini"
	defaultBaseURL = "https://api.openai.com/v1"
)

// OpenAIGenerator implements ContentGenerator using the chat completions API
type OpenAIGenerator struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewOpenAIGenerator creates a new OpenAI content generator
func NewOpenAIGenerator(apiKey, model, baseURL string) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	if model == "" {
		model = defaultModel
	}

	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &OpenAIGenerator{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the request body for the chat completions API
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

// chatResponse is the response from the chat completions API
type chatResponse struct {
	Choices []struct {
		Index        int         `json:"index"`
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Model string `json:"model"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// Generate drafts post text for the prompt
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: prompt is empty", domain.ErrInvalidInput)
	}

	reqBody := chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt(opts)},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.7,
	}

	resp, err := g.doRequest(ctx, reqBody)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion returned")
	}

	text := cleanCompletion(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty completion returned")
	}
	if opts.MaxChars > 0 && utf8.RuneCountInString(text) > opts.MaxChars {
		text = truncateRunes(text, opts.MaxChars)
	}
	return text, nil
}

// Model returns the model name being used
func (g *OpenAIGenerator) Model() string {
	return g.model
}

func systemPrompt(opts driven.GenerateOptions) string {
	var b strings.Builder
	b.WriteString("You write social media posts. Reply with the post text only, no preamble and no surrounding quotes.")
	switch opts.Provider {
	case domain.ProviderTypeTwitter:
		b.WriteString(" The post is a tweet: punchy, conversational, at most two hashtags.")
	case domain.ProviderTypeLinkedIn:
		b.WriteString(" The post is for LinkedIn: professional, may use short paragraphs.")
	}
	if opts.MaxChars > 0 {
		fmt.Fprintf(&b, " Keep it under %d characters.", opts.MaxChars)
	}
	return b.String()
}

func cleanCompletion(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n]))
}

// doRequest makes a request to the chat completions API
func (g *OpenAIGenerator) doRequest(ctx context.Context, reqBody chatRequest) (*chatResponse, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}

	if chatResp.Error != nil {
		return nil, fmt.Errorf("OpenAI API error: %s (type: %s, code: %s)",
			chatResp.Error.Message, chatResp.Error.Type, chatResp.Error.Code)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OpenAI API returned status %d", resp.StatusCode)
	}

	return &chatResp, nil
}
