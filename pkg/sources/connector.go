package sources

import "context"

// Connector ids. Trust weights are fixed per source and never change at
// runtime; they decide which claim wins when sources conflict.
const (
	IDAcademic  = "academic"
	IDCuratedKB = "curated_kb"
	IDAssistant = "assistant"
	IDWeb       = "web"
)

// SourceResult is one scored evidence snippet from a connector. Identifier
// distinguishes documents within a source (PMID, KB document id, URL) and is
// what citation numbers attach to.
type SourceResult struct {
	SourceID    string  `json:"source_id"`
	SourceType  string  `json:"source_type"`
	Identifier  string  `json:"identifier"`
	Title       string  `json:"title"`
	Snippet     string  `json:"snippet"`
	TrustWeight float64 `json:"trust_weight"`
	Score       float64 `json:"score"`
}

// Connector is one retrieval backend. Implementations must be pure functions
// of (query, limit): no internal caching, no cross-call state. Failures stay
// inside the connector - an error return means zero results for this source,
// never an aborted fan-out.
type Connector interface {
	ID() string
	TrustWeight() float64
	Retrieve(ctx context.Context, query string, limit int) ([]SourceResult, error)
}

// Versioned is implemented by connectors whose output depends on a prompt
// template (the model-as-source connector). The version participates in
// cache keys so a template swap invalidates that connector's entries.
type Versioned interface {
	PromptVersion() string
}
