package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"mediquery-be/pkg/answer"
	"mediquery-be/pkg/cache"
	"mediquery-be/pkg/llm"
	"mediquery-be/pkg/prompt"
	"mediquery-be/pkg/sources"
)

const simUserID = "sim-user-1"

// cannedConnector serves fixed snippets for every query. A non-nil err makes
// the connector fail, which the pipeline reports as a degraded source.
type cannedConnector struct {
	id      string
	trust   float64
	results []sources.SourceResult
	err     error
}

func (c *cannedConnector) ID() string           { return c.id }
func (c *cannedConnector) TrustWeight() float64 { return c.trust }

func (c *cannedConnector) Retrieve(ctx context.Context, query string, limit int) ([]sources.SourceResult, error) {
	if c.err != nil {
		return nil, c.err
	}
	if len(c.results) > limit {
		return c.results[:limit], nil
	}
	return c.results, nil
}

// scriptedModel plays the LLM for every stage by matching the markers the
// pipeline writes into its prompts. Grading fans out over worker goroutines,
// so the script functions must stay stateless.
type scriptedModel struct {
	grade    func(promptText string) string
	generate func(promptText string) string
}

func (m *scriptedModel) Generate(ctx context.Context, promptText string, _ ...llm.Option) (string, error) {
	switch {
	case strings.Contains(promptText, "Retrieved document:"):
		if m.grade != nil {
			return m.grade(promptText), nil
		}
		return "yes", nil
	case strings.Contains(promptText, "Set of facts:"):
		return "yes", nil
	case strings.Contains(promptText, "Rewritten search query:"):
		return currentQuery(promptText) + " 임상 지침", nil
	case strings.Contains(promptText, "Provide the integrated medical answer:"):
		if m.generate != nil {
			return m.generate(promptText), nil
		}
		return "확보된 근거 자료가 제한적입니다 [1].", nil
	case strings.Contains(promptText, "Provide a concise summary:"):
		return "이전 의료 상담 요약", nil
	default:
		return "yes", nil
	}
}

func (m *scriptedModel) Chat(ctx context.Context, history []llm.Message, _ ...llm.Option) (string, error) {
	return "", nil
}

// currentQuery pulls the query line out of the rewriter prompt so each
// rewrite expands the previous query instead of repeating it.
func currentQuery(promptText string) string {
	for _, line := range strings.Split(promptText, "\n") {
		if q, ok := strings.CutPrefix(line, "Current search query: "); ok {
			return q
		}
	}
	return "재작성 검색어"
}

func main() {
	color.Cyan("🚀 Answer Pipeline Simulation (in-process, stubbed sources and model)\n")
	fmt.Println("State transitions are printed by the orchestrator as the run moves")
	fmt.Println("through ROUTE -> RETRIEVE -> GRADE -> GENERATE -> VERIFY.")

	// Indent the pipeline's own transition log under the scenario headers.
	pipelineLog := log.New(os.Stdout, "  | ", 0)

	runGroundedScenario(pipelineLog)
	runLowEvidenceScenario(pipelineLog)

	color.Cyan("\n✅ Simulation complete")
}

// 1. Setup shared pipeline plumbing. Every scenario gets a fresh cache and
// stats instance so its printout is self-contained.
func newSimOrchestrator(model llm.LLMProvider, conns []sources.Connector, logger *log.Logger) (*answer.Orchestrator, *answer.Stats, *cache.Cache) {
	registry, err := prompt.NewDefaultRegistry()
	if err != nil {
		color.Red("Failed to build prompt registry: %v", err)
		os.Exit(1)
	}

	stats := answer.NewStats()
	store := cache.New(cache.NewMemoryStore(10*time.Minute, time.Minute))

	cfg := answer.DefaultConfig()
	cfg.PerCallTimeout = 5 * time.Second

	return answer.NewOrchestrator(registry, conns, model, store, stats, cfg, logger), stats, store
}

func runGroundedScenario(logger *log.Logger) {
	color.Yellow("\n[SCENARIO] 1. Grounded answer on the first pass")
	fmt.Println("Question: 당뇨병 환자의 혈당 관리 방법은 무엇인가요?")
	fmt.Println("Academic and curated KB return evidence, the web source is down,")
	fmt.Println("and the grader filters out one off-topic paper.")
	fmt.Println()

	academic := &cannedConnector{id: sources.IDAcademic, trust: 1.0, results: []sources.SourceResult{
		{
			SourceID: sources.IDAcademic, SourceType: "academic_paper", Identifier: "PMID:31887390",
			Title:   "Glycemic targets in type 2 diabetes",
			Snippet: "제2형 당뇨병 환자의 혈당 조절 목표는 당화혈색소 7.0% 미만이 권장됩니다.",
			TrustWeight: 1.0, Score: 0.92,
		},
		{
			SourceID: sources.IDAcademic, SourceType: "academic_paper", Identifier: "PMID:29562325",
			Title:   "Exercise and insulin sensitivity",
			Snippet: "규칙적인 유산소 운동은 인슐린 감수성을 개선하여 혈당 관리에 도움이 됩니다.",
			TrustWeight: 1.0, Score: 0.88,
		},
		{
			SourceID: sources.IDAcademic, SourceType: "academic_paper", Identifier: "PMID:27295427",
			Title:   "Rehabilitation after knee arthroplasty",
			Snippet: "슬관절 치환술 후 재활 프로토콜에 대한 비교 연구입니다.",
			TrustWeight: 1.0, Score: 0.41,
		},
	}}
	curated := &cannedConnector{id: sources.IDCuratedKB, trust: 0.95, results: []sources.SourceResult{
		{
			SourceID: sources.IDCuratedKB, SourceType: "knowledge_base", Identifier: "kb-204",
			Title:   "당뇨병 식이요법 안내",
			Snippet: "당뇨병 환자는 탄수화물 섭취를 매 끼니 일정하게 유지하고 단순당을 피해야 합니다.",
			TrustWeight: 0.95, Score: 0.87,
		},
		{
			SourceID: sources.IDCuratedKB, SourceType: "knowledge_base", Identifier: "kb-318",
			Title:   "자가혈당측정 가이드",
			Snippet: "자가혈당측정은 공복과 식후 2시간에 시행하며 기록을 남기는 것이 중요합니다.",
			TrustWeight: 0.95, Score: 0.83,
		},
	}}
	web := &cannedConnector{id: sources.IDWeb, trust: 0.7, err: errors.New("connection refused")}

	model := &scriptedModel{
		grade: func(p string) string {
			if strings.Contains(p, "치환술") {
				return "no"
			}
			return "yes"
		},
		generate: func(p string) string {
			return "**요약**\n당뇨병 혈당 관리는 운동, 식이, 자가측정을 병행하는 것이 핵심입니다.\n\n" +
				"**상세 설명**\n규칙적인 유산소 운동은 인슐린 감수성을 개선합니다 [1]. " +
				"혈당 조절 목표는 당화혈색소 7.0% 미만이 권장됩니다 [2]. " +
				"식사는 탄수화물 섭취를 일정하게 유지하고 [3], 공복과 식후 혈당을 측정해 기록하세요 [4]."
		},
	}

	orch, stats, store := newSimOrchestrator(model, []sources.Connector{academic, curated, web}, logger)

	res, err := orch.Run(context.Background(), "당뇨병 환자의 혈당 관리 방법은 무엇인가요?", simUserID, answer.ConversationMemory{})
	if err != nil {
		color.Red("Run failed: %v", err)
		os.Exit(1)
	}

	color.Green("\nFinal state: %s (confidence=%s, iterations=%d, category=%s)",
		res.State, res.Answer.Confidence, res.Iterations, res.Category)
	if len(res.DegradedSources) > 0 {
		color.Red("Degraded sources: %v", res.DegradedSources)
	}

	fmt.Println("\n--- Rendered answer ---")
	fmt.Println(res.Display())
	printStats(stats, store)
}

func runLowEvidenceScenario(logger *log.Logger) {
	color.Yellow("\n[SCENARIO] 2. Rewrites exhausted, low-confidence answer")
	fmt.Println("Question: 길랭바레 증후군 환자의 장기 예후는 어떻게 되나요?")
	fmt.Println("The only source returns off-topic documents and the grader rejects")
	fmt.Println("everything, so the pipeline rewrites the query until the budget is")
	fmt.Println("spent and then answers from the best available material.")
	fmt.Println()

	curated := &cannedConnector{id: sources.IDCuratedKB, trust: 0.95, results: []sources.SourceResult{
		{
			SourceID: sources.IDCuratedKB, SourceType: "knowledge_base", Identifier: "kb-901",
			Title:   "병원 이용 안내",
			Snippet: "외래 진료 예약과 원무 접수 절차를 안내하는 문서입니다.",
			TrustWeight: 0.95, Score: 0.52,
		},
		{
			SourceID: sources.IDCuratedKB, SourceType: "knowledge_base", Identifier: "kb-902",
			Title:   "주차장 운영 공지",
			Snippet: "병원 주차장 운영 시간 변경에 대한 공지 사항입니다.",
			TrustWeight: 0.95, Score: 0.44,
		},
	}}

	model := &scriptedModel{
		grade: func(p string) string { return "no" },
		generate: func(p string) string {
			return "확보된 자료만으로는 길랭바레 증후군의 장기 예후를 정확히 안내하기 어렵습니다. " +
				"신경과 전문의 상담을 권장드립니다."
		},
	}

	orch, stats, store := newSimOrchestrator(model, []sources.Connector{curated}, logger)

	res, err := orch.Run(context.Background(), "길랭바레 증후군 환자의 장기 예후는 어떻게 되나요?", simUserID, answer.ConversationMemory{})
	if err != nil {
		color.Red("Run failed: %v", err)
		os.Exit(1)
	}

	color.Green("\nFinal state: %s (confidence=%s, iterations=%d, category=%s)",
		res.State, res.Answer.Confidence, res.Iterations, res.Category)

	fmt.Println("\n--- Rendered answer ---")
	fmt.Println(res.Display())
	printStats(stats, store)
}

func printStats(stats *answer.Stats, store *cache.Cache) {
	snap := stats.Snapshot()
	fmt.Println("\n--- Pipeline stats ---")
	fmt.Printf("Model calls: %d, estimated tokens: %d (~$%.6f)\n",
		snap.APICalls, snap.TotalTokens, snap.EstimatedCostUSD)
	fmt.Printf("Retrieval cache: %d hits / %d misses (%.0f%% hit rate)\n",
		store.Hits(), store.Misses(), store.HitRate()*100)
}
