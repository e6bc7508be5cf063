// Package message generates personalized Instagram outreach drafts
// through an OpenAI-compatible chat completion API.
package message

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sydlexius/clearwater/internal/config"
)

const (
	defaultBaseURL     = "https://api.openai.com/v1"
	defaultModel       = "gpt-4o-mini"
	defaultHTTPTimeout = 30 * time.Second
	maxTokens          = 1024
)

// Request carries what the generator knows about one band.
type Request struct {
	BandName     string `json:"bandName"`
	Members      string `json:"members"`
	Song         string `json:"song"`
	Notes        string `json:"notes"`
	SystemPrompt string `json:"systemPrompt"`
}

// Generator drafts outreach messages.
type Generator struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// Option customizes the Generator.
type Option func(*Generator)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Generator) {
		if client != nil {
			g.httpClient = client
		}
	}
}

// WithBaseURL overrides the default API base (useful for tests/mocks).
func WithBaseURL(base string) Option {
	return func(g *Generator) {
		base = strings.TrimSpace(base)
		if base != "" {
			g.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// NewGenerator constructs a Generator from the configured credentials.
func NewGenerator(cfg config.MessageConfig, opts ...Option) *Generator {
	g := &Generator{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    defaultBaseURL,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	if cfg.BaseURL != "" {
		g.baseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.model == "" {
		g.model = defaultModel
	}
	return g
}

// Configured reports whether an API key is present.
func (g *Generator) Configured() bool { return g.apiKey != "" }

// Generate drafts one outreach message for the band.
func (g *Generator) Generate(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.BandName) == "" {
		return "", errors.New("generate message: band name required")
	}
	if !g.Configured() {
		return "", errors.New("generate message: api key required")
	}

	endpoint, err := url.JoinPath(g.baseURL, "/chat/completions")
	if err != nil {
		return "", fmt.Errorf("generate message: build url: %w", err)
	}
	encoded, err := json.Marshal(chatCompletionRequest{
		Model:     g.model,
		MaxTokens: maxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: userPrompt(req)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("generate message: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("generate message: request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("generate message: request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("generate message: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("generate message: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", fmt.Errorf("generate message: decode response: %w", err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("generate message: api error: %s", strings.TrimSpace(completion.Error.Message))
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("generate message: empty choices")
	}

	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("generate message: empty content")
	}
	return content, nil
}

func userPrompt(req Request) string {
	return fmt.Sprintf(`Generate an Instagram outreach message for this band:

Band Name: %s
Members: %s
Song I Liked: %s
My Notes: %s

Please create a personalized, engaging outreach message.`,
		req.BandName, req.Members, req.Song, req.Notes)
}

type chatCompletionRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}
