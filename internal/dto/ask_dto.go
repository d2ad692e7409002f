package dto

// --- Question Answering ---

type HistoryTurn struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content" validate:"required"`
}

type AskRequest struct {
	Question string        `json:"question" validate:"required,min=2"`
	UserId   string        `json:"user_id,omitempty"`
	History  []HistoryTurn `json:"history,omitempty" validate:"max=100,dive"`
	// MemorySummary is the rolling summary a client got from a previous
	// response; passing it back keeps long conversations bounded.
	MemorySummary string `json:"memory_summary,omitempty"`
}

type CitationRef struct {
	SourceId   string `json:"source_id"`
	SourceType string `json:"source_type"`
	Identifier string `json:"identifier"`
	Title      string `json:"title,omitempty"`
}

type AskResponse struct {
	RunId           string              `json:"run_id"`
	Answer          string              `json:"answer"`
	Citations       map[int]CitationRef `json:"citations"`
	SourceBreakdown map[string][]int    `json:"source_breakdown"`
	Confidence      string              `json:"confidence"`
	Category        string              `json:"category"`
	Iterations      int                 `json:"iterations"`
	DegradedSources []string            `json:"degraded_sources,omitempty"`
	MemorySummary   string              `json:"memory_summary,omitempty"`
	DurationMs      int64               `json:"duration_ms"`
}

// --- Stats Surface ---

type ModelInfo struct {
	LLMModel       string `json:"llm_model"`
	EmbeddingModel string `json:"embedding_model"`
	Dimensions     int    `json:"dimensions"`
}

type DocumentStats struct {
	TotalDocuments  int64 `json:"total_documents"`
	TotalEmbeddings int64 `json:"total_embeddings"`
}

type SearchPerformance struct {
	SearchesPerformed     int64   `json:"searches_performed"`
	AverageResponseTimeMs float64 `json:"average_response_time_ms"`
	APICalls              int64   `json:"api_calls"`
	TotalTokens           int64   `json:"total_tokens"`
}

type CacheInfo struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

type CostEstimate struct {
	TotalTokens      int64   `json:"total_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

type StatsResponse struct {
	ModelInfo         ModelInfo         `json:"model_info"`
	DocumentStats     DocumentStats     `json:"document_stats"`
	SearchPerformance SearchPerformance `json:"search_performance"`
	CacheInfo         CacheInfo         `json:"cache_info"`
	CostEstimate      CostEstimate      `json:"cost_estimate"`
	Sources           map[string]bool   `json:"sources"`
}
