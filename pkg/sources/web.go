package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const webSourceType = "웹 검색"

// WebConnector queries the Tavily search API. Results carry the lowest trust
// weight of all sources and are capped harder by the router profile.
type WebConnector struct {
	BaseURL string
	APIKey  string
	Client  *http.Client

	weight float64
}

func NewWebConnector(baseURL, apiKey string) *WebConnector {
	if baseURL == "" {
		baseURL = "https://api.tavily.com"
	}
	return &WebConnector{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout: 30 * time.Second,
		},
		weight: 0.7,
	}
}

func (c *WebConnector) ID() string {
	return IDWeb
}

func (c *WebConnector) TrustWeight() float64 {
	return c.weight
}

type tavilyRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func (c *WebConnector) Retrieve(ctx context.Context, query string, limit int) ([]SourceResult, error) {
	if limit <= 0 {
		limit = 5
	}

	payload, err := json.Marshal(tavilyRequest{
		APIKey:     c.APIKey,
		Query:      query,
		MaxResults: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("web search status %d: %s", resp.StatusCode, truncateRunes(string(body), 200))
	}

	var parsed tavilyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}

	results := make([]SourceResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.Content == "" {
			continue
		}
		results = append(results, SourceResult{
			SourceID:    c.ID(),
			SourceType:  webSourceType,
			Identifier:  r.URL,
			Title:       r.Title,
			Snippet:     truncateRunes(r.Content, 1500),
			TrustWeight: c.weight,
			Score:       r.Score,
		})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}
