package answer

import (
	"context"
	"fmt"
	"log"
	"strings"

	"mediquery-be/pkg/llm"
	"mediquery-be/pkg/prompt"
)

// Rewriter reformulates a question for better retrieval, expanding clinical
// terminology and classification codes. A rewrite failure is never fatal:
// the caller falls back to the previous query and the retry ceiling still
// advances.
type Rewriter struct {
	provider llm.LLMProvider
	logger   *log.Logger
}

func NewRewriter(provider llm.LLMProvider, logger *log.Logger) *Rewriter {
	return &Rewriter{provider: provider, logger: logger}
}

// Rewrite produces the reformulated retrieval query. evidenceSummary
// describes what the previous retrieval round produced so the model can
// widen in a different direction.
func (r *Rewriter) Rewrite(ctx context.Context, question Question, currentQuery, evidenceSummary string, snap *prompt.Snapshot) (string, error) {
	tpl, err := snap.Get(prompt.StageRewriter)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(tpl.Render(map[string]string{"language": question.Language}))
	sb.WriteString("\n\nOriginal question: ")
	sb.WriteString(question.Text)
	sb.WriteString("\nCurrent search query: ")
	sb.WriteString(currentQuery)
	if evidenceSummary != "" {
		sb.WriteString("\nPrevious retrieval outcome: ")
		sb.WriteString(evidenceSummary)
	}
	sb.WriteString("\n\nRewritten search query:")

	rewritten, err := r.provider.Generate(ctx, sb.String(), llm.WithTemperature(0.0))
	if err != nil {
		return "", fmt.Errorf("rewrite query: %w", err)
	}

	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		return "", fmt.Errorf("rewrite produced empty query")
	}

	r.logger.Printf("[REWRITE] %q -> %q", truncate(currentQuery, 40), truncate(rewritten, 60))
	return rewritten, nil
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
