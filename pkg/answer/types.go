package answer

import (
	"unicode"

	"mediquery-be/pkg/sources"
)

// State names one step of the pipeline state machine.
type State string

const (
	StateRoute             State = "ROUTE"
	StateRetrieve          State = "RETRIEVE"
	StateGrade             State = "GRADE"
	StateRewrite           State = "REWRITE"
	StateGenerate          State = "GENERATE"
	StateVerify            State = "VERIFY"
	StateDone              State = "DONE"
	StateDoneLowConfidence State = "DONE_LOW_CONFIDENCE"
	StateFailed            State = "FAILED"
)

// Confidence flags how well-evidenced the returned answer is.
type Confidence string

const (
	ConfidenceNormal Confidence = "normal"
	ConfidenceLow    Confidence = "low"
)

// Question is the immutable input of one run.
type Question struct {
	Text     string
	Language string
	UserID   string
}

// NewQuestion detects the question language from its script. Hangul anywhere
// in the text marks the question as Korean; everything else defaults to
// English, which matches the template instructions to answer in the input
// language.
func NewQuestion(text, userID string) Question {
	return Question{
		Text:     text,
		Language: detectLanguage(text),
		UserID:   userID,
	}
}

func detectLanguage(text string) string {
	for _, r := range text {
		if unicode.Is(unicode.Hangul, r) {
			return "한국어"
		}
	}
	return "English"
}

// Turn is one prior conversation message.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationMemory carries prior turns plus the rolling summary produced by
// the summarizer. The zero value means a fresh conversation.
type ConversationMemory struct {
	Turns   []Turn `json:"turns"`
	Summary string `json:"summary"`
}

// GradedEvidence is a retrieved snippet plus its relevance verdict. Only
// relevant items reach generation.
type GradedEvidence struct {
	Result   sources.SourceResult
	Relevant bool
}

// SourceRef identifies one cited document for the REFERENCES listing.
type SourceRef struct {
	SourceID   string `json:"source_id"`
	SourceType string `json:"source_type"`
	Identifier string `json:"identifier"`
	Title      string `json:"title,omitempty"`
}

// Answer is the generated, citation-grounded reply. Citation numbers are
// assigned per distinct source document and renumbered by first appearance
// in the text; every number present in CitationOrder has an entry in
// Citations.
type Answer struct {
	Text            string            `json:"text"`
	CitationOrder   []int             `json:"citation_order"`
	Citations       map[int]SourceRef `json:"citations"`
	SourceBreakdown map[string][]int  `json:"source_breakdown"`
	Confidence      Confidence        `json:"confidence"`
	VerifyRounds    int               `json:"verify_rounds"`
}

// RunResult is what Run hands back to the caller.
type RunResult struct {
	Answer          *Answer
	State           State
	Category        string
	Iterations      int
	DegradedSources []string
	MemorySummary   string
	// CacheHits counts cache-served lookups across all rounds of the run:
	// connector retrievals plus generated answers.
	CacheHits int
}

// pipelineState is the per-run record the state machine threads through its
// transitions. One instance per run, never shared.
type pipelineState struct {
	question      Question
	currentQuery  string
	memorySummary string

	connectorIDs []string
	category     string

	pending         []sources.SourceResult
	evidence        []GradedEvidence
	seenEvidence    map[string]bool
	degradedSources []string
	cacheHits       int
	lowEvidence     bool

	draft *Answer

	rewriteCount     int
	verifyRetryCount int
	verifyRounds     int
	state            State
}
