package solar

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/daehwan-dev/policy-assistant/internal/infrastructure/resilience"
)

// Client talks to the Upstage Solar API, which is OpenAI-compatible: chat
// completions for answers, the embeddings endpoint for query vectors.
type Client struct {
	baseURL    string
	apiKey     string
	chatModel  string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, apiKey, chatModel, embedModel string, timeout time.Duration, executor *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		chatModel:  chatModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Complete renders one assistant answer for a system/user prompt pair.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userPrompt})

	request := map[string]any{
		"model":    c.chatModel,
		"messages": messages,
		"stream":   false,
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	err := c.executor.Do(ctx, "solar_chat", classifySolarError, func(ctx context.Context) error {
		return c.postJSON(ctx, "/chat/completions", request, &response, "chat")
	})
	if err != nil {
		return "", wrapTemporaryIfNeeded("solar chat", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("solar chat: empty choices")
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

// EmbedQuery embeds a single query string.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": c.embedModel,
		"input": []string{text},
	}

	var response struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	err := c.executor.Do(ctx, "solar_embed", classifySolarError, func(ctx context.Context) error {
		return c.postJSON(ctx, "/embeddings", request, &response, "embed")
	})
	if err != nil {
		return nil, wrapTemporaryIfNeeded("solar embed", err)
	}
	if len(response.Data) == 0 || len(response.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("solar embed: empty embedding result")
	}
	return response.Data[0].Embedding, nil
}
