package answer

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"mediquery-be/pkg/llm"
	"mediquery-be/pkg/prompt"
)

const noEvidenceAnswer = "관련 정보를 찾을 수 없어 답변을 생성할 수 없습니다. 의료 전문가와 상담하시기 바랍니다."

// Generator synthesizes graded evidence into a cited answer. Citation
// numbers are assigned per distinct source document, evidence is presented
// to the model ordered by trust weight, and conflicting dosage claims from
// lower-trust sources are dropped before the model ever sees them.
type Generator struct {
	provider llm.LLMProvider
	retry    RetryPolicy
	logger   *log.Logger
}

func NewGenerator(provider llm.LLMProvider, retry RetryPolicy, logger *log.Logger) *Generator {
	return &Generator{provider: provider, retry: retry, logger: logger}
}

// citedDoc is one distinct source document: all snippets that share a
// (source id, identifier) pair collapse into it and share one citation
// number.
type citedDoc struct {
	ref      SourceRef
	trust    float64
	score    float64
	snippets []string
}

// Generate produces the answer from evidence. Relevant items are used when
// any exist; otherwise the best available evidence is used so an exhausted
// rewrite loop still yields something reviewable. Transport failures are
// retried with backoff; exhausting the retries is fatal.
func (g *Generator) Generate(ctx context.Context, question Question, evidence []GradedEvidence, snap *prompt.Snapshot) (*Answer, error) {
	tpl, err := snap.Get(prompt.StageGenerator)
	if err != nil {
		return nil, err
	}

	docs := collectDocs(evidence)
	if len(docs) == 0 {
		return &Answer{
			Text:            noEvidenceAnswer,
			Citations:       map[int]SourceRef{},
			SourceBreakdown: map[string][]int{},
		}, nil
	}

	orderByTrust(docs)
	docs, excluded := resolveDosageConflicts(docs)
	for _, ex := range excluded {
		g.logger.Printf("[GENERATE] dropped conflicting claim from %s (%s), lower trust %.2f",
			ex.ref.SourceID, ex.ref.Identifier, ex.trust)
	}

	promptText := g.buildPrompt(tpl, question, docs)

	var raw string
	err = g.retry.Do(ctx, func(ctx context.Context) error {
		out, callErr := g.provider.Generate(ctx, promptText, llm.WithTemperature(0.2))
		if callErr != nil {
			return callErr
		}
		raw = out
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	answer := renumberCitations(raw, docs)
	g.logger.Printf("[GENERATE] answer synthesized from %d documents, %d cited", len(docs), len(answer.Citations))
	return answer, nil
}

// collectDocs deduplicates evidence into distinct documents. Relevant items
// win; when nothing graded relevant the full set is used as best-available.
func collectDocs(evidence []GradedEvidence) []*citedDoc {
	selected := make([]GradedEvidence, 0, len(evidence))
	for _, ev := range evidence {
		if ev.Relevant {
			selected = append(selected, ev)
		}
	}
	if len(selected) == 0 {
		selected = evidence
	}

	byKey := make(map[string]*citedDoc, len(selected))
	docs := make([]*citedDoc, 0, len(selected))
	for _, ev := range selected {
		key := ev.Result.SourceID + "\x1f" + ev.Result.Identifier
		doc, ok := byKey[key]
		if !ok {
			doc = &citedDoc{
				ref: SourceRef{
					SourceID:   ev.Result.SourceID,
					SourceType: ev.Result.SourceType,
					Identifier: ev.Result.Identifier,
					Title:      ev.Result.Title,
				},
				trust: ev.Result.TrustWeight,
				score: ev.Result.Score,
			}
			byKey[key] = doc
			docs = append(docs, doc)
		}
		doc.snippets = append(doc.snippets, ev.Result.Snippet)
		if ev.Result.Score > doc.score {
			doc.score = ev.Result.Score
		}
	}
	return docs
}

// orderByTrust sorts documents by trust weight descending; ties break on
// source id, then identifier, so presentation order is stable.
func orderByTrust(docs []*citedDoc) {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].trust != docs[j].trust {
			return docs[i].trust > docs[j].trust
		}
		if docs[i].ref.SourceID != docs[j].ref.SourceID {
			return docs[i].ref.SourceID < docs[j].ref.SourceID
		}
		return docs[i].ref.Identifier < docs[j].ref.Identifier
	})
}

var dosagePattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(mg|mcg|µg|g|ml|l|units?|iu)\b`)

// dosageClaims extracts (subject word, canonical amount) pairs from text.
// The subject is the word immediately preceding the dosage, which for both
// Korean and English drug mentions is the drug name in practice.
func dosageClaims(text string) map[string]string {
	claims := make(map[string]string)
	matches := dosagePattern.FindAllStringSubmatchIndex(text, -1)
	for _, m := range matches {
		amount := strings.ToLower(strings.ReplaceAll(text[m[2]:m[3]]+text[m[4]:m[5]], " ", ""))
		subject := precedingWord(text, m[0])
		if subject == "" {
			continue
		}
		if _, seen := claims[subject]; !seen {
			claims[subject] = amount
		}
	}
	return claims
}

func precedingWord(text string, offset int) string {
	fields := strings.Fields(text[:offset])
	if len(fields) == 0 {
		return ""
	}
	word := strings.ToLower(strings.Trim(fields[len(fields)-1], ".,;:()[]\"'"))
	if len([]rune(word)) < 2 {
		return ""
	}
	return word
}

// resolveDosageConflicts walks the trust-ordered documents and drops any
// document whose dosage claim contradicts a higher-trust document's claim
// about the same subject. The surviving narrative context therefore carries
// only the most trustworthy version of each disputed figure.
func resolveDosageConflicts(docs []*citedDoc) (kept, excluded []*citedDoc) {
	accepted := make(map[string]string)

	for _, doc := range docs {
		claims := dosageClaims(strings.Join(doc.snippets, "\n"))
		conflict := false
		for subject, amount := range claims {
			if prior, ok := accepted[subject]; ok && prior != amount {
				conflict = true
				break
			}
		}
		if conflict {
			excluded = append(excluded, doc)
			continue
		}
		for subject, amount := range claims {
			if _, ok := accepted[subject]; !ok {
				accepted[subject] = amount
			}
		}
		kept = append(kept, doc)
	}
	return kept, excluded
}

func (g *Generator) buildPrompt(tpl prompt.Template, question Question, docs []*citedDoc) string {
	var sb strings.Builder
	sb.WriteString(tpl.Render(nil))
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(question.Text)
	sb.WriteString("\n\nSources with trust weights:\n")

	for i, doc := range docs {
		sb.WriteString(fmt.Sprintf("\n[%d] %s (신뢰도: %.2f)", i+1, doc.ref.SourceType, doc.trust))
		if doc.ref.Title != "" {
			sb.WriteString(" ")
			sb.WriteString(doc.ref.Title)
		}
		sb.WriteString("\n")
		for _, snippet := range doc.snippets {
			sb.WriteString(snippet)
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\nCite sources by their bracketed numbers, e.g. [1] or [1,2]. ")
	sb.WriteString("Provide the integrated medical answer:")
	return sb.String()
}

var citationPattern = regexp.MustCompile(`\[(\d+(?:\s*,\s*\d+)*)\]`)

// renumberCitations rewrites the model's citation markers so numbers run
// sequentially by first appearance, drops markers pointing at nothing, and
// builds the citations map and per-source breakdown. By construction every
// surviving number has a reference entry.
func renumberCitations(text string, docs []*citedDoc) *Answer {
	final := make(map[int]int, len(docs))
	citations := make(map[int]SourceRef)
	var order []int
	next := 1

	rewritten := citationPattern.ReplaceAllStringFunc(text, func(marker string) string {
		inner := strings.Trim(marker, "[]")
		var renumbered []string
		for _, part := range strings.Split(inner, ",") {
			provisional, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || provisional < 1 || provisional > len(docs) {
				// Orphan citation: the model invented a number.
				continue
			}
			n, ok := final[provisional]
			if !ok {
				n = next
				next++
				final[provisional] = n
				citations[n] = docs[provisional-1].ref
				order = append(order, n)
			}
			renumbered = append(renumbered, strconv.Itoa(n))
		}
		if len(renumbered) == 0 {
			return ""
		}
		return "[" + strings.Join(renumbered, ",") + "]"
	})

	breakdown := make(map[string][]int)
	for _, n := range order {
		ref := citations[n]
		breakdown[ref.SourceID] = append(breakdown[ref.SourceID], n)
	}
	for id := range breakdown {
		sort.Ints(breakdown[id])
	}

	return &Answer{
		Text:            strings.TrimSpace(rewritten),
		CitationOrder:   order,
		Citations:       citations,
		SourceBreakdown: breakdown,
	}
}
