package answer

import (
	"context"
	"log"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"mediquery-be/pkg/llm"
	"mediquery-be/pkg/prompt"
	"mediquery-be/pkg/sources"
)

// Grader applies the binary relevance filter to each retrieved snippet.
// Verdicts are independent per snippet, so grading fans out in parallel.
// An ambiguous verdict or a call error resolves to not_relevant: for
// clinical content precision beats recall.
type Grader struct {
	provider llm.LLMProvider
	workers  int
	logger   *log.Logger
}

func NewGrader(provider llm.LLMProvider, workers int, logger *log.Logger) *Grader {
	if workers <= 0 {
		workers = 6
	}
	return &Grader{provider: provider, workers: workers, logger: logger}
}

// GradeAll grades every result and returns them in input order with their
// verdicts attached.
func (g *Grader) GradeAll(ctx context.Context, question Question, results []sources.SourceResult, snap *prompt.Snapshot) ([]GradedEvidence, error) {
	tpl, err := snap.Get(prompt.StageGrader)
	if err != nil {
		return nil, err
	}

	graded := make([]GradedEvidence, len(results))
	var mu sync.Mutex
	relevant := 0

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(g.workers)

	for i, result := range results {
		group.Go(func() error {
			verdict := g.gradeOne(groupCtx, tpl, question, result)
			mu.Lock()
			graded[i] = GradedEvidence{Result: result, Relevant: verdict}
			if verdict {
				relevant++
			}
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	g.logger.Printf("[GRADE] %d/%d snippets relevant", relevant, len(results))
	return graded, nil
}

func (g *Grader) gradeOne(ctx context.Context, tpl prompt.Template, question Question, result sources.SourceResult) bool {
	var sb strings.Builder
	sb.WriteString(tpl.Render(nil))
	sb.WriteString("\n\nRetrieved document:\n\n")
	sb.WriteString(result.Snippet)
	sb.WriteString("\n\nUser question: ")
	sb.WriteString(question.Text)
	sb.WriteString("\n\nBinary score (yes/no):")

	response, err := g.provider.Generate(ctx, sb.String(), llm.WithTemperature(0.0))
	if err != nil {
		g.logger.Printf("[GRADE] %s/%s call failed, marking not relevant: %v", result.SourceID, result.Identifier, err)
		return false
	}
	return parseBinaryVerdict(response)
}

// parseBinaryVerdict reads a yes/no judgment from a model reply. Only an
// unambiguous yes counts; everything else is no.
func parseBinaryVerdict(response string) bool {
	normalized := strings.ToLower(strings.TrimSpace(response))
	if normalized == "" {
		return false
	}
	if strings.Contains(normalized, "no") && !strings.HasPrefix(normalized, "yes") {
		return false
	}
	return strings.HasPrefix(normalized, "yes") ||
		strings.HasPrefix(normalized, "'yes'") ||
		strings.HasPrefix(normalized, "\"yes\"") ||
		strings.Contains(normalized, "score: yes") ||
		strings.Contains(normalized, "\"binary_score\": \"yes\"")
}
