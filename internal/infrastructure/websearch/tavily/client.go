package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/daehwan-dev/policy-assistant/internal/core/domain"
)

// Client queries the Tavily search API. One call per fallback, hard deadline
// from the HTTP client, no internal retry: callers treat failures as a soft
// degradation, never as a request error.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	today      func() time.Time
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		today:      time.Now,
	}
}

func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]domain.WebResult, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	reqBody := map[string]any{
		"api_key":      c.apiKey,
		"query":        query,
		"max_results":  maxResults,
		"search_depth": "advanced",
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrUpstream, "tavily search", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, domain.WrapError(domain.ErrUpstream, "tavily search",
			fmt.Errorf("tavily status: %s", resp.Status))
	}

	var searchResp struct {
		Results []struct {
			Title   string  `json:"title"`
			URL     string  `json:"url"`
			Content string  `json:"content"`
			Score   float64 `json:"score"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, domain.WrapError(domain.ErrUpstream, "tavily search",
			fmt.Errorf("decode response: %w", err))
	}

	fetched := c.today().Format("2006-01-02")
	out := make([]domain.WebResult, 0, len(searchResp.Results))
	for _, result := range searchResp.Results {
		out = append(out, domain.WebResult{
			Title:       result.Title,
			URL:         result.URL,
			Snippet:     result.Content,
			Score:       result.Score,
			FetchedDate: fetched,
		})
	}
	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}
