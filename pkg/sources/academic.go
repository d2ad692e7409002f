package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const academicSourceType = "학술 문헌 (PubMed)"

// AcademicConnector retrieves abstracts from PubMed through the NCBI eutils
// API: esearch resolves the query to PMIDs, efetch pulls each abstract.
type AcademicConnector struct {
	BaseURL string
	APIKey  string
	Client  *http.Client

	weight float64
}

func NewAcademicConnector(baseURL, apiKey string) *AcademicConnector {
	if baseURL == "" {
		baseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
	}
	return &AcademicConnector{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout: 30 * time.Second,
		},
		weight: 1.0,
	}
}

func (c *AcademicConnector) ID() string {
	return IDAcademic
}

func (c *AcademicConnector) TrustWeight() float64 {
	return c.weight
}

type esearchResponse struct {
	ESearchResult struct {
		Count  string   `json:"count"`
		IdList []string `json:"idlist"`
	} `json:"esearchresult"`
}

func (c *AcademicConnector) Retrieve(ctx context.Context, query string, limit int) ([]SourceResult, error) {
	if limit <= 0 {
		limit = 3
	}

	ids, err := c.search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("pubmed esearch: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	results := make([]SourceResult, 0, len(ids))
	for rank, id := range ids {
		abstract, err := c.fetchAbstract(ctx, id)
		if err != nil {
			// One missing abstract degrades this source, not the batch.
			continue
		}
		title, body := parseAbstract(abstract)
		if body == "" {
			continue
		}
		results = append(results, SourceResult{
			SourceID:    c.ID(),
			SourceType:  academicSourceType,
			Identifier:  "PMID:" + id,
			Title:       title,
			Snippet:     truncateRunes(body, 1500),
			TrustWeight: c.weight,
			// esearch returns ids sorted by relevance; decay by rank.
			Score: 1.0 - float64(rank)*0.1,
		})
	}
	return results, nil
}

func (c *AcademicConnector) search(ctx context.Context, query string, limit int) ([]string, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", query)
	params.Set("retmode", "json")
	params.Set("retmax", fmt.Sprintf("%d", limit))
	params.Set("sort", "relevance")
	if c.APIKey != "" {
		params.Set("api_key", c.APIKey)
	}

	body, err := c.get(ctx, c.BaseURL+"/esearch.fcgi?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var parsed esearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse esearch response: %w", err)
	}
	return parsed.ESearchResult.IdList, nil
}

func (c *AcademicConnector) fetchAbstract(ctx context.Context, id string) (string, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("id", id)
	params.Set("rettype", "abstract")
	params.Set("retmode", "text")
	if c.APIKey != "" {
		params.Set("api_key", c.APIKey)
	}

	body, err := c.get(ctx, c.BaseURL+"/efetch.fcgi?"+params.Encode())
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *AcademicConnector) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("eutils status %d: %s", resp.StatusCode, truncateRunes(string(body), 200))
	}
	return body, nil
}

// parseAbstract splits the efetch plain-text format into title and body.
// The format is paragraph blocks: citation line, title, authors, affiliations,
// abstract. The longest block is taken as the abstract body.
func parseAbstract(text string) (title, body string) {
	blocks := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	cleaned := make([]string, 0, len(blocks))
	for _, b := range blocks {
		b = strings.TrimSpace(b)
		if b != "" {
			cleaned = append(cleaned, b)
		}
	}
	if len(cleaned) == 0 {
		return "", ""
	}
	if len(cleaned) == 1 {
		return "", cleaned[0]
	}

	title = strings.Join(strings.Fields(cleaned[1]), " ")
	body = cleaned[1]
	for _, b := range cleaned[1:] {
		if len(b) > len(body) {
			body = b
		}
	}
	return title, strings.Join(strings.Fields(body), " ")
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
