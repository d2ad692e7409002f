package answer

import (
	"context"
	"fmt"
	"log"
	"strings"

	"mediquery-be/pkg/llm"
	"mediquery-be/pkg/prompt"
)

const (
	// Turns beyond this trigger summarization.
	maxHistoryTurns = 20
	// Most recent turns kept verbatim when summarizing.
	recentTurnsKept = 10
	// Hard budget for the rolling summary.
	maxSummaryRunes = 1200
)

// Summarizer condenses old conversation turns into the rolling summary fed
// to the router and generator. With few turns it returns the existing
// summary unchanged, so repeated calls with identical input never grow the
// memory.
type Summarizer struct {
	provider llm.LLMProvider
	logger   *log.Logger
}

func NewSummarizer(provider llm.LLMProvider, logger *log.Logger) *Summarizer {
	return &Summarizer{provider: provider, logger: logger}
}

// Summarize returns the updated rolling summary. Summarization only runs
// when more than maxHistoryTurns turns exist; everything but the most recent
// recentTurnsKept is condensed together with the prior summary. A model
// failure falls back to a deterministic keyword digest instead of erroring
// the run.
func (s *Summarizer) Summarize(ctx context.Context, memory ConversationMemory, language string, snap *prompt.Snapshot) string {
	if len(memory.Turns) <= maxHistoryTurns {
		return capRunes(memory.Summary, maxSummaryRunes)
	}

	old := memory.Turns[:len(memory.Turns)-recentTurnsKept]
	s.logger.Printf("[MEMORY] condensing %d turns, keeping %d recent", len(old), recentTurnsKept)

	tpl, err := snap.Get(prompt.StageMemory)
	if err != nil {
		s.logger.Printf("[MEMORY] template missing, using fallback summary: %v", err)
		return capRunes(fallbackSummary(old, memory.Summary), maxSummaryRunes)
	}

	var sb strings.Builder
	sb.WriteString(tpl.Render(map[string]string{"language": language}))
	sb.WriteString("\n\n")
	if memory.Summary != "" {
		sb.WriteString("Existing summary: ")
		sb.WriteString(memory.Summary)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Summarize this medical conversation:\n\n")
	sb.WriteString(formatTurns(old))
	sb.WriteString("\n\nProvide a concise summary:")

	summary, err := s.provider.Generate(ctx, sb.String(), llm.WithTemperature(0.0))
	if err != nil {
		s.logger.Printf("[MEMORY] summarization failed, using fallback: %v", err)
		return capRunes(fallbackSummary(old, memory.Summary), maxSummaryRunes)
	}
	return capRunes(strings.TrimSpace(summary), maxSummaryRunes)
}

func formatTurns(turns []Turn) string {
	parts := make([]string, 0, len(turns))
	for _, turn := range turns {
		role := "사용자"
		if turn.Role == "assistant" {
			role = "AI"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", role, capRunes(turn.Content, 150)))
	}
	return strings.Join(parts, "\n")
}

var fallbackKeywords = []string{"당뇨", "고혈압", "응급", "약물", "치료", "증상", "진단", "수술"}

// fallbackSummary is the deterministic digest used when the model call
// fails: question count plus the medical keywords seen.
func fallbackSummary(turns []Turn, existing string) string {
	questions := 0
	var topics []string
	seen := make(map[string]bool)

	for _, turn := range turns {
		if turn.Role != "user" {
			continue
		}
		questions++
		lowered := strings.ToLower(turn.Content)
		for _, keyword := range fallbackKeywords {
			if strings.Contains(lowered, keyword) && !seen[keyword] {
				seen[keyword] = true
				topics = append(topics, keyword)
			}
		}
	}

	summary := fmt.Sprintf("총 %d개의 의료 질문이 있었습니다.", questions)
	if len(topics) > 0 {
		if len(topics) > 5 {
			topics = topics[:5]
		}
		summary += " 주요 주제: " + strings.Join(topics, ", ")
	}
	if existing != "" {
		summary = existing + " " + summary
	}
	return summary
}

// EnhanceQuestion folds conversation context into the retrieval query when
// the conversation has history. Deterministic on purpose: retrieval cache
// keys derive from the query text.
func EnhanceQuestion(memory ConversationMemory, summary, questionText string) string {
	if len(memory.Turns) < 2 {
		return questionText
	}

	var lastTopic string
	for i := len(memory.Turns) - 1; i >= 0; i-- {
		if memory.Turns[i].Role == "user" {
			lastTopic = capRunes(memory.Turns[i].Content, 50)
			break
		}
	}

	switch {
	case lastTopic != "":
		return fmt.Sprintf("이전 대화에서 '%s'에 대해 논의했는데, %s", lastTopic, questionText)
	case summary != "":
		return fmt.Sprintf("이전 대화 맥락(%s)에서 이어서, %s", capRunes(summary, 100), questionText)
	default:
		return questionText
	}
}

func capRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
