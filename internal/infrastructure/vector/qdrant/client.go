package qdrant

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

const scrollPageSize = 256

// Client talks to Qdrant over its HTTP API. It only reads: the corpus is
// ingested by a separate pipeline, so the service needs point search plus a
// full-collection scroll.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
}

func New(baseURL, collection string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Search runs a dense similarity query. minScore maps to Qdrant's
// score_threshold so filtering happens server-side.
func (c *Client) Search(ctx context.Context, queryVector []float32, limit int, filter domain.SearchFilter, minScore float64) ([]domain.ChunkHit, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if minScore > 0 {
		reqBody["score_threshold"] = minScore
	}
	if conditions := filterConditions(filter); len(conditions) > 0 {
		reqBody["filter"] = map[string]any{"must": conditions}
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)

	var searchResp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := c.postJSON(ctx, url, reqBody, &searchResp); err != nil {
		return nil, domain.WrapError(domain.ErrUpstream, "qdrant: search", err)
	}

	hits := make([]domain.ChunkHit, 0, len(searchResp.Result))
	for _, point := range searchResp.Result {
		chunk := chunkFromPayload(point.ID, point.Payload)
		hits = append(hits, domain.ChunkHit{
			ChunkID:    chunk.ID,
			PolicyID:   chunk.PolicyID,
			ChunkIndex: chunk.ChunkIndex,
			DocType:    chunk.DocType,
			Content:    chunk.Content,
			Score:      point.Score,
			MatchType:  domain.MatchDense,
		})
	}
	return hits, nil
}

// Scroll pages through the collection and returns the matching chunks without
// vectors. limit <= 0 means the whole collection.
func (c *Client) Scroll(ctx context.Context, filter domain.SearchFilter, limit int) ([]domain.DocumentChunk, error) {
	url := fmt.Sprintf("%s/collections/%s/points/scroll", c.baseURL, c.collection)

	var chunks []domain.DocumentChunk
	var offset any

	for {
		pageSize := scrollPageSize
		if limit > 0 && limit-len(chunks) < pageSize {
			pageSize = limit - len(chunks)
		}

		reqBody := map[string]any{
			"limit":        pageSize,
			"with_payload": true,
			"with_vector":  false,
		}
		if offset != nil {
			reqBody["offset"] = offset
		}
		if conditions := filterConditions(filter); len(conditions) > 0 {
			reqBody["filter"] = map[string]any{"must": conditions}
		}

		var scrollResp struct {
			Result struct {
				Points []struct {
					ID      any            `json:"id"`
					Payload map[string]any `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := c.postJSON(ctx, url, reqBody, &scrollResp); err != nil {
			return nil, domain.WrapError(domain.ErrUpstream, "qdrant: scroll", err)
		}

		for _, point := range scrollResp.Result.Points {
			chunks = append(chunks, chunkFromPayload(point.ID, point.Payload))
		}

		offset = scrollResp.Result.NextPageOffset
		if offset == nil || len(scrollResp.Result.Points) == 0 {
			break
		}
		if limit > 0 && len(chunks) >= limit {
			chunks = chunks[:limit]
			break
		}
	}
	return chunks, nil
}

func (c *Client) postJSON(ctx context.Context, url string, reqBody, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant status: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func filterConditions(filter domain.SearchFilter) []map[string]any {
	var conditions []map[string]any
	if filter.PolicyID != 0 {
		conditions = append(conditions, matchCondition("policy_id", filter.PolicyID))
	}
	if filter.Region != "" {
		conditions = append(conditions, matchCondition("region", filter.Region))
	}
	if filter.Category != "" {
		conditions = append(conditions, matchCondition("category", filter.Category))
	}
	if filter.TargetGroup != "" {
		conditions = append(conditions, matchCondition("target_group", filter.TargetGroup))
	}
	return conditions
}

func matchCondition(key string, value any) map[string]any {
	return map[string]any{
		"key":   key,
		"match": map[string]any{"value": value},
	}
}

func chunkFromPayload(id any, payload map[string]any) domain.DocumentChunk {
	return domain.DocumentChunk{
		ID:         fmt.Sprintf("%v", id),
		PolicyID:   getIntPayload(payload, "policy_id"),
		ChunkIndex: int(getIntPayload(payload, "chunk_index")),
		DocType:    getStringPayload(payload, "doc_type"),
		Content:    getStringPayload(payload, "content"),
	}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int64 {
	switch v := payload[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	default:
		return 0
	}
}
