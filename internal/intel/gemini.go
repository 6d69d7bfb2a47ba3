package intel

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"
)

const defaultModel = "gemini-2.0-flash"

// GeminiClient implements Client over the official genai SDK.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient validates the key and dials the API. An empty key is
// ErrConfigMissing; the key is never stored anywhere but the SDK client.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, ErrConfigMissing
	}
	if model == "" {
		model = defaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

// Generate performs a single-shot completion.
func (g *GeminiClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: prompt}},
	}}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, generateConfig(system))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return responseText(resp)
}

// StartChat opens a conversation. History lives client-side and is resent
// with every turn, which is how the SDK's stateless API models chat.
func (g *GeminiClient) StartChat(system string) Chat {
	return &geminiChat{client: g, system: system}
}

type geminiChat struct {
	client *GeminiClient
	system string

	mu      sync.Mutex
	history []*genai.Content
}

func (c *geminiChat) Send(ctx context.Context, message string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	turn := &genai.Content{Role: "user", Parts: []*genai.Part{{Text: message}}}
	contents := append(append([]*genai.Content{}, c.history...), turn)

	resp, err := c.client.client.Models.GenerateContent(ctx, c.client.model, contents, generateConfig(c.system))
	if err != nil {
		return "", fmt.Errorf("gemini chat turn: %w", err)
	}
	text, err := responseText(resp)
	if err != nil {
		return "", err
	}

	// History grows only on success so a failed turn can be retried.
	c.history = append(c.history, turn, &genai.Content{
		Role:  "model",
		Parts: []*genai.Part{{Text: text}},
	})
	return text, nil
}

func generateConfig(system string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	return cfg
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini: empty response")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" && !part.Thought {
			b.WriteString(part.Text)
		}
	}
	return b.String(), nil
}
