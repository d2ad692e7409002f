package answer

import (
	"context"
	"fmt"
	"log"
	"strings"

	"mediquery-be/pkg/llm"
	"mediquery-be/pkg/prompt"
)

// Verifier decides whether a generated answer is grounded in its evidence.
// Dosage figures are checked deterministically for exact presence in the
// relevant snippets before the model verdict runs: a dosage the evidence
// never stated is ungrounded no matter what the model thinks.
type Verifier struct {
	provider llm.LLMProvider
	retry    RetryPolicy
	logger   *log.Logger
}

func NewVerifier(provider llm.LLMProvider, retry RetryPolicy, logger *log.Logger) *Verifier {
	return &Verifier{provider: provider, retry: retry, logger: logger}
}

// Verify returns true when the answer is grounded. A false verdict drives
// the rewrite loop. An error is a fatal call failure after retries and ends
// the run.
func (v *Verifier) Verify(ctx context.Context, question Question, ans *Answer, evidence []GradedEvidence, snap *prompt.Snapshot) (bool, error) {
	tpl, err := snap.Get(prompt.StageVerifier)
	if err != nil {
		return false, err
	}

	snippets := relevantSnippets(evidence)
	if len(snippets) == 0 {
		// Nothing to check against; the confidence flag already records
		// that evidence was insufficient.
		v.logger.Printf("[VERIFY] no relevant evidence, skipping grounding check")
		return true, nil
	}

	if missing := ungroundedDosages(ans.Text, snippets); len(missing) > 0 {
		v.logger.Printf("[VERIFY] dosage not present in evidence: %s", strings.Join(missing, ", "))
		return false, nil
	}

	promptText := v.buildPrompt(tpl, question, ans, snippets)

	var response string
	err = v.retry.Do(ctx, func(ctx context.Context) error {
		out, callErr := v.provider.Generate(ctx, promptText, llm.WithTemperature(0.0))
		if callErr != nil {
			return callErr
		}
		response = out
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("verify call: %w", err)
	}

	grounded := parseBinaryVerdict(response)
	if grounded {
		v.logger.Printf("[VERIFY] answer grounded in evidence")
	} else {
		v.logger.Printf("[VERIFY] hallucination suspected")
	}
	return grounded, nil
}

func relevantSnippets(evidence []GradedEvidence) []string {
	var snippets []string
	for _, ev := range evidence {
		if ev.Relevant {
			snippets = append(snippets, ev.Result.Snippet)
		}
	}
	return snippets
}

// ungroundedDosages returns the dosage tokens of the answer that appear in
// no relevant snippet. Comparison is on the canonical "<number><unit>" form,
// so paraphrased spacing still matches but a changed figure never does.
func ungroundedDosages(answerText string, snippets []string) []string {
	answerDosages := dosageTokens(answerText)
	if len(answerDosages) == 0 {
		return nil
	}

	evidenceDosages := make(map[string]bool)
	for _, snippet := range snippets {
		for _, token := range dosageTokens(snippet) {
			evidenceDosages[token] = true
		}
	}

	var missing []string
	seen := make(map[string]bool)
	for _, token := range answerDosages {
		if !evidenceDosages[token] && !seen[token] {
			missing = append(missing, token)
			seen[token] = true
		}
	}
	return missing
}

func dosageTokens(text string) []string {
	matches := dosagePattern.FindAllStringSubmatch(text, -1)
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		tokens = append(tokens, strings.ToLower(m[1]+m[2]))
	}
	return tokens
}

func (v *Verifier) buildPrompt(tpl prompt.Template, question Question, ans *Answer, snippets []string) string {
	var sb strings.Builder
	sb.WriteString(tpl.Render(nil))
	sb.WriteString("\n\nSet of facts:\n\n")
	for i, snippet := range snippets {
		sb.WriteString(fmt.Sprintf("--- DOCUMENT %d ---\n", i+1))
		sb.WriteString(snippet)
		sb.WriteString("\n")
	}
	sb.WriteString("\nLLM generation:\n\n")
	sb.WriteString(ans.Text)
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(question.Text)
	sb.WriteString("\n\nBinary score (yes/no):")
	return sb.String()
}
