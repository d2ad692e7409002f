package answer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mediquery-be/pkg/cache"
	"mediquery-be/pkg/llm"
	"mediquery-be/pkg/prompt"
	"mediquery-be/pkg/sources"
)

// scriptedProvider dispatches on the stage markers the pipeline puts into
// its prompts, so one stub scripts a whole run. Unset stages fall back to
// verdicts that let the run pass.
type scriptedProvider struct {
	mu sync.Mutex

	grade    func(promptText string) (string, error)
	rewrite  func(promptText string) (string, error)
	generate func(promptText string) (string, error)
	verify   func(promptText string) (string, error)
	condense func(promptText string) (string, error)

	gradeCalls    int
	rewriteCalls  int
	generateCalls int
	verifyCalls   int

	generatePrompts []string
}

func (p *scriptedProvider) Generate(ctx context.Context, promptText string, _ ...llm.Option) (string, error) {
	p.mu.Lock()
	var fn func(string) (string, error)
	var fallback string

	switch {
	case strings.Contains(promptText, "Retrieved document:"):
		p.gradeCalls++
		fn, fallback = p.grade, "yes"
	case strings.Contains(promptText, "Set of facts:"):
		p.verifyCalls++
		fn, fallback = p.verify, "yes"
	case strings.Contains(promptText, "Rewritten search query:"):
		p.rewriteCalls++
		fn, fallback = p.rewrite, fmt.Sprintf("확장 검색어 %d", p.rewriteCalls)
	case strings.Contains(promptText, "Provide the integrated medical answer:"):
		p.generateCalls++
		p.generatePrompts = append(p.generatePrompts, promptText)
		fn, fallback = p.generate, "근거 기반 답변입니다 [1]."
	case strings.Contains(promptText, "Provide a concise summary:"):
		fn, fallback = p.condense, "이전 대화 요약"
	}
	p.mu.Unlock()

	if fn != nil {
		return fn(promptText)
	}
	return fallback, nil
}

func (p *scriptedProvider) Chat(ctx context.Context, history []llm.Message, _ ...llm.Option) (string, error) {
	return "", nil
}

func (p *scriptedProvider) counts() (grade, rewrite, generate, verify int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gradeCalls, p.rewriteCalls, p.generateCalls, p.verifyCalls
}

func (p *scriptedProvider) generatorPrompt(t *testing.T, i int) string {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if i >= len(p.generatePrompts) {
		t.Fatalf("generator prompt %d not captured, have %d", i, len(p.generatePrompts))
	}
	return p.generatePrompts[i]
}

// llmStub answers Generate with one configured function. Used by the
// component-level tests that exercise a single stage.
type llmStub struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	fn      func(promptText string) (string, error)
}

func (s *llmStub) Generate(ctx context.Context, promptText string, _ ...llm.Option) (string, error) {
	s.mu.Lock()
	s.calls++
	s.prompts = append(s.prompts, promptText)
	fn := s.fn
	s.mu.Unlock()

	if fn == nil {
		return "yes", nil
	}
	return fn(promptText)
}

func (s *llmStub) Chat(ctx context.Context, history []llm.Message, _ ...llm.Option) (string, error) {
	return "", nil
}

func (s *llmStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *llmStub) prompt(t *testing.T, i int) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.prompts) {
		t.Fatalf("prompt %d not captured, have %d", i, len(s.prompts))
	}
	return s.prompts[i]
}

type stubConnector struct {
	id      string
	trust   float64
	results []sources.SourceResult
	err     error
	calls   atomic.Int32
}

func (c *stubConnector) ID() string           { return c.id }
func (c *stubConnector) TrustWeight() float64 { return c.trust }

func (c *stubConnector) Retrieve(ctx context.Context, query string, limit int) ([]sources.SourceResult, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	if len(c.results) > limit {
		return c.results[:limit], nil
	}
	return c.results, nil
}

func result(sourceID, sourceType, identifier, snippet string, trust, score float64) sources.SourceResult {
	return sources.SourceResult{
		SourceID:    sourceID,
		SourceType:  sourceType,
		Identifier:  identifier,
		Title:       "문서 " + identifier,
		Snippet:     snippet,
		TrustWeight: trust,
		Score:       score,
	}
}

// fastConfig keeps the pipeline semantics of DefaultConfig but collapses the
// retry backoff so failure-path tests finish in milliseconds.
func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.PerCallTimeout = time.Second
	cfg.Retry = RetryPolicy{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   2.0,
	}
	return cfg
}

func newTestOrchestrator(t *testing.T, provider llm.LLMProvider, conns []sources.Connector, cfg Config) (*Orchestrator, *prompt.Registry, *Stats) {
	t.Helper()
	registry, err := prompt.NewDefaultRegistry()
	if err != nil {
		t.Fatalf("NewDefaultRegistry: %v", err)
	}
	stats := NewStats()
	store := cache.New(cache.NewMemoryStore(time.Minute, time.Minute))
	orch := NewOrchestrator(registry, conns, provider, store, stats, cfg, log.New(io.Discard, "", 0))
	return orch, registry, stats
}

func TestRunAnswersKoreanQuestion(t *testing.T) {
	academic := &stubConnector{id: sources.IDAcademic, trust: 1.0, results: []sources.SourceResult{
		result(sources.IDAcademic, "academic_paper", "PMID:1111", "당뇨병 관리는 혈당 조절과 생활습관 개선이 핵심입니다.", 1.0, 0.9),
		result(sources.IDAcademic, "academic_paper", "PMID:2222", "제2형 당뇨병 환자에게 규칙적인 유산소 운동이 권장됩니다.", 1.0, 0.8),
		result(sources.IDAcademic, "academic_paper", "PMID:3333", "고관절 치환술 후 합병증 발생률에 대한 보고입니다.", 1.0, 0.7),
	}}
	curated := &stubConnector{id: sources.IDCuratedKB, trust: 0.95, results: []sources.SourceResult{
		result(sources.IDCuratedKB, "knowledge_base", "kb-1", "당뇨병 환자는 탄수화물 섭취량을 일정하게 유지해야 합니다.", 0.95, 0.85),
		result(sources.IDCuratedKB, "knowledge_base", "kb-2", "당화혈색소 검사를 3개월마다 시행하는 것이 좋습니다.", 0.95, 0.8),
		result(sources.IDCuratedKB, "knowledge_base", "kb-3", "병원 행정 절차 안내 문서입니다.", 0.95, 0.4),
	}}

	provider := &scriptedProvider{
		grade: func(p string) (string, error) {
			switch {
			case strings.Contains(p, "고관절"):
				return "no", nil
			case strings.Contains(p, "행정 절차"):
				return "maybe", nil
			default:
				return "yes", nil
			}
		},
		generate: func(p string) (string, error) {
			return "**요약**\n당뇨병 관리는 혈당 조절이 핵심입니다 [1]. 규칙적인 운동과 식이요법이 권장됩니다 [2,3]. 정기적인 당화혈색소 검사로 경과를 확인하세요 [4].", nil
		},
	}

	orch, _, stats := newTestOrchestrator(t, provider, []sources.Connector{academic, curated}, fastConfig())

	res, err := orch.Run(context.Background(), "당뇨병 관리 방법은?", "user-1", ConversationMemory{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.State != StateDone {
		t.Errorf("state = %s, want DONE", res.State)
	}
	if res.Answer.Confidence != ConfidenceNormal {
		t.Errorf("confidence = %s, want normal", res.Answer.Confidence)
	}
	if res.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", res.Iterations)
	}
	if res.Answer.VerifyRounds != 1 {
		t.Errorf("verify rounds = %d, want 1", res.Answer.VerifyRounds)
	}
	if res.Category != "치료" {
		t.Errorf("category = %s, want 치료", res.Category)
	}
	if len(res.DegradedSources) != 0 {
		t.Errorf("degraded sources = %v, want none", res.DegradedSources)
	}

	// Four distinct documents survived grading; citations run 1..4 in first
	// appearance order and every number resolves to a reference.
	wantOrder := []int{1, 2, 3, 4}
	if len(res.Answer.CitationOrder) != len(wantOrder) {
		t.Fatalf("citation order = %v, want %v", res.Answer.CitationOrder, wantOrder)
	}
	for i, n := range wantOrder {
		if res.Answer.CitationOrder[i] != n {
			t.Errorf("citation order[%d] = %d, want %d", i, res.Answer.CitationOrder[i], n)
		}
		if _, ok := res.Answer.Citations[n]; !ok {
			t.Errorf("citation %d has no reference entry", n)
		}
	}
	if got := res.Answer.Citations[1].Identifier; got != "PMID:1111" {
		t.Errorf("citation 1 = %s, want PMID:1111", got)
	}
	if got := res.Answer.Citations[3].SourceID; got != sources.IDCuratedKB {
		t.Errorf("citation 3 source = %s, want curated_kb", got)
	}

	academicNums := res.Answer.SourceBreakdown[sources.IDAcademic]
	curatedNums := res.Answer.SourceBreakdown[sources.IDCuratedKB]
	if len(academicNums) != 2 || len(curatedNums) != 2 {
		t.Errorf("source breakdown = %v, want 2 academic and 2 curated", res.Answer.SourceBreakdown)
	}

	grade, rewrite, generate, verify := provider.counts()
	if grade != 6 || rewrite != 0 || generate != 1 || verify != 1 {
		t.Errorf("calls grade=%d rewrite=%d generate=%d verify=%d, want 6/0/1/1",
			grade, rewrite, generate, verify)
	}

	snap := stats.Snapshot()
	if snap.SearchesPerformed != 1 {
		t.Errorf("searches = %d, want 1", snap.SearchesPerformed)
	}
	if snap.APICalls != 8 {
		t.Errorf("api calls = %d, want 8", snap.APICalls)
	}
	if snap.TotalTokens <= 0 {
		t.Errorf("total tokens = %d, want > 0", snap.TotalTokens)
	}
}

func TestRunExhaustsRewritesThenAnswersLowConfidence(t *testing.T) {
	conn := &stubConnector{id: sources.IDCuratedKB, trust: 0.95, results: []sources.SourceResult{
		result(sources.IDCuratedKB, "knowledge_base", "kb-1", "관련 없는 행정 문서입니다.", 0.95, 0.5),
		result(sources.IDCuratedKB, "knowledge_base", "kb-2", "관련 없는 공지 사항입니다.", 0.95, 0.4),
	}}

	provider := &scriptedProvider{
		grade: func(p string) (string, error) { return "no", nil },
	}

	orch, _, _ := newTestOrchestrator(t, provider, []sources.Connector{conn}, fastConfig())

	res, err := orch.Run(context.Background(), "희귀 질환 치료법은?", "user-1", ConversationMemory{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.State != StateDone {
		t.Errorf("state = %s, want DONE", res.State)
	}
	if res.Answer.Confidence != ConfidenceLow {
		t.Errorf("confidence = %s, want low", res.Answer.Confidence)
	}
	if res.Iterations != 3 {
		t.Errorf("iterations = %d, want 3 (1 + max rewrites)", res.Iterations)
	}

	_, rewrites, generates, verifies := provider.counts()
	if rewrites != 2 {
		t.Errorf("rewrites = %d, want exactly 2", rewrites)
	}
	if generates != 1 {
		t.Errorf("generates = %d, want 1 best-available generation", generates)
	}
	// Nothing graded relevant, so the grounding check has no facts to test
	// against and passes through.
	if verifies != 0 {
		t.Errorf("verify calls = %d, want 0", verifies)
	}
	if got := conn.calls.Load(); got != 3 {
		t.Errorf("connector calls = %d, want 3 (one per retrieval round)", got)
	}
	if res.Answer == nil || res.Answer.Text == "" {
		t.Error("exhausted rewrites must still produce an answer")
	}
}

func TestRunBoundsVerificationRetries(t *testing.T) {
	conn := &stubConnector{id: sources.IDCuratedKB, trust: 0.95, results: []sources.SourceResult{
		result(sources.IDCuratedKB, "knowledge_base", "kb-1", "당뇨병 환자의 저혈당 대처법입니다.", 0.95, 0.8),
	}}

	provider := &scriptedProvider{
		verify: func(p string) (string, error) { return "no", nil },
	}

	orch, _, _ := newTestOrchestrator(t, provider, []sources.Connector{conn}, fastConfig())

	res, err := orch.Run(context.Background(), "저혈당 대처법은?", "user-1", ConversationMemory{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.State != StateDoneLowConfidence {
		t.Errorf("state = %s, want DONE_LOW_CONFIDENCE", res.State)
	}
	if res.Answer.Confidence != ConfidenceLow {
		t.Errorf("confidence = %s, want low", res.Answer.Confidence)
	}
	if res.Answer.VerifyRounds != 3 {
		t.Errorf("verify rounds = %d, want 3", res.Answer.VerifyRounds)
	}
	if res.Iterations != 3 {
		t.Errorf("iterations = %d, want 3", res.Iterations)
	}

	_, rewrites, generates, verifies := provider.counts()
	if verifies != 3 {
		t.Errorf("verify calls = %d, want 3", verifies)
	}
	if generates != 3 {
		t.Errorf("generate calls = %d, want 3", generates)
	}
	if rewrites != 2 {
		t.Errorf("rewrite calls = %d, want 2", rewrites)
	}
}

func TestRunServesRepeatQuestionFromCache(t *testing.T) {
	academic := &stubConnector{id: sources.IDAcademic, trust: 1.0, results: []sources.SourceResult{
		result(sources.IDAcademic, "academic_paper", "PMID:42", "고혈압 환자의 염분 섭취 제한 효과 연구입니다.", 1.0, 0.9),
	}}
	curated := &stubConnector{id: sources.IDCuratedKB, trust: 0.95, results: []sources.SourceResult{
		result(sources.IDCuratedKB, "knowledge_base", "kb-7", "고혈압 식이요법 가이드 문서입니다.", 0.95, 0.8),
	}}

	provider := &scriptedProvider{
		generate: func(p string) (string, error) {
			return "염분 섭취를 줄이는 것이 도움이 됩니다 [1,2].", nil
		},
	}

	orch, _, _ := newTestOrchestrator(t, provider, []sources.Connector{academic, curated}, fastConfig())

	first, err := orch.Run(context.Background(), "고혈압에 좋은 식단은?", "user-1", ConversationMemory{})
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if academic.calls.Load() != 1 || curated.calls.Load() != 1 {
		t.Fatalf("connector calls after first run = %d/%d, want 1/1",
			academic.calls.Load(), curated.calls.Load())
	}

	second, err := orch.Run(context.Background(), "고혈압에 좋은 식단은?", "user-1", ConversationMemory{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	// The repeat question is served entirely from cache: no connector is
	// queried again, the model never regenerates, and the answer comes out
	// identical.
	if academic.calls.Load() != 1 || curated.calls.Load() != 1 {
		t.Errorf("connector calls after second run = %d/%d, want still 1/1",
			academic.calls.Load(), curated.calls.Load())
	}
	if _, _, generates, _ := provider.counts(); generates != 1 {
		t.Errorf("generator calls across both runs = %d, want 1 (second run cached)", generates)
	}
	if first.CacheHits != 0 {
		t.Errorf("first run CacheHits = %d, want 0", first.CacheHits)
	}
	if second.CacheHits != 3 {
		t.Errorf("second run CacheHits = %d, want 3 (two retrievals + one generation)", second.CacheHits)
	}
	if first.Answer.Text != second.Answer.Text {
		t.Errorf("answers differ between identical runs:\n%q\n%q", first.Answer.Text, second.Answer.Text)
	}
	if len(first.Answer.CitationOrder) != len(second.Answer.CitationOrder) {
		t.Fatalf("citation orders differ: %v vs %v", first.Answer.CitationOrder, second.Answer.CitationOrder)
	}
	for i := range first.Answer.CitationOrder {
		n := first.Answer.CitationOrder[i]
		if second.Answer.CitationOrder[i] != n {
			t.Errorf("citation order[%d] differs", i)
		}
		if first.Answer.Citations[n] != second.Answer.Citations[n] {
			t.Errorf("citation %d resolves differently between runs", n)
		}
	}
}

func TestRunPromptSwapRollsGenerationCache(t *testing.T) {
	conn := &stubConnector{id: sources.IDCuratedKB, trust: 0.95, results: []sources.SourceResult{
		result(sources.IDCuratedKB, "knowledge_base", "kb-1", "철분제 복용 시 주의사항 안내입니다.", 0.95, 0.8),
	}}
	provider := &scriptedProvider{}

	orch, registry, _ := newTestOrchestrator(t, provider, []sources.Connector{conn}, fastConfig())

	for i := 0; i < 2; i++ {
		if _, err := orch.Run(context.Background(), "철분제는 언제 먹어야 하나요?", "user-1", ConversationMemory{}); err != nil {
			t.Fatalf("Run %d: %v", i+1, err)
		}
	}
	if _, _, generates, _ := provider.counts(); generates != 1 {
		t.Fatalf("generator calls before swap = %d, want 1", generates)
	}

	// Activating new prompt text changes the snapshot fingerprint, so the
	// cached answer for the same question is no longer addressable.
	if _, err := registry.UpdateActiveText(prompt.StageGenerator, "새로운 생성 지침입니다"); err != nil {
		t.Fatalf("UpdateActiveText: %v", err)
	}
	if _, err := orch.Run(context.Background(), "철분제는 언제 먹어야 하나요?", "user-1", ConversationMemory{}); err != nil {
		t.Fatalf("Run after swap: %v", err)
	}
	if _, _, generates, _ := provider.counts(); generates != 2 {
		t.Errorf("generator calls after swap = %d, want 2 (regenerated under new prompt)", generates)
	}
}

func TestRunSnapshotIsolatedFromPromptSwap(t *testing.T) {
	conn := &stubConnector{id: sources.IDCuratedKB, trust: 0.95, results: []sources.SourceResult{
		result(sources.IDCuratedKB, "knowledge_base", "kb-1", "천식 흡입기 사용법 안내입니다.", 0.95, 0.8),
	}}

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	provider := &scriptedProvider{
		grade: func(p string) (string, error) {
			once.Do(func() { close(started) })
			<-release
			return "yes", nil
		},
	}

	orch, registry, _ := newTestOrchestrator(t, provider, []sources.Connector{conn}, fastConfig())

	type outcome struct {
		res *RunResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := orch.Run(context.Background(), "천식 흡입기 사용법은?", "user-1", ConversationMemory{})
		done <- outcome{res, err}
	}()

	<-started
	// Swap the generator prompt while the run is mid-flight.
	if _, err := registry.UpdateActiveText(prompt.StageGenerator, "완전히 새로운 생성 지침"); err != nil {
		t.Fatalf("UpdateActiveText: %v", err)
	}
	close(release)

	out := <-done
	if out.err != nil {
		t.Fatalf("Run: %v", out.err)
	}

	// The in-flight run generated with the template captured at entry.
	inFlight := provider.generatorPrompt(t, 0)
	if !strings.Contains(inFlight, "You are a specialized medical AI assistant") {
		t.Error("in-flight run lost its snapshot generator template")
	}
	if strings.Contains(inFlight, "완전히 새로운 생성 지침") {
		t.Error("in-flight run observed the mid-run prompt swap")
	}

	// A run started after the swap sees the new template.
	if _, err := orch.Run(context.Background(), "천식 발작 시 대처는?", "user-1", ConversationMemory{}); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if next := provider.generatorPrompt(t, 1); !strings.Contains(next, "완전히 새로운 생성 지침") {
		t.Error("run after the swap did not pick up the new template")
	}
}

func TestRunDropsLowerTrustDosageConflict(t *testing.T) {
	curated := &stubConnector{id: sources.IDCuratedKB, trust: 0.95, results: []sources.SourceResult{
		result(sources.IDCuratedKB, "knowledge_base", "kb-dm", "메트포민 500mg 하루 2회 복용이 표준 용법입니다.", 0.95, 0.9),
	}}
	web := &stubConnector{id: sources.IDWeb, trust: 0.7, results: []sources.SourceResult{
		result(sources.IDWeb, "web_page", "https://example.com/blog", "메트포민 850mg 복용이 일반적이라는 블로그 글입니다.", 0.7, 0.8),
	}}

	provider := &scriptedProvider{
		generate: func(p string) (string, error) {
			return "메트포민 500mg 하루 2회 복용이 권장됩니다 [1].", nil
		},
	}

	orch, _, _ := newTestOrchestrator(t, provider, []sources.Connector{curated, web}, fastConfig())

	res, err := orch.Run(context.Background(), "메트포민 적정 용량은 얼마인가요?", "user-1", ConversationMemory{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The lower-trust source contradicts the curated dosage, so the model
	// never sees its text.
	generatorInput := provider.generatorPrompt(t, 0)
	if !strings.Contains(generatorInput, "500mg") {
		t.Error("generator prompt lost the higher-trust dosage")
	}
	if strings.Contains(generatorInput, "850mg") {
		t.Error("conflicting lower-trust dosage reached the generator")
	}

	if len(res.Answer.Citations) != 1 {
		t.Fatalf("citations = %d, want 1", len(res.Answer.Citations))
	}
	if got := res.Answer.Citations[1].SourceID; got != sources.IDCuratedKB {
		t.Errorf("citation 1 source = %s, want curated_kb", got)
	}
	if res.State != StateDone || res.Answer.Confidence != ConfidenceNormal {
		t.Errorf("state/confidence = %s/%s, want DONE/normal", res.State, res.Answer.Confidence)
	}
}

func TestRunDegradesFailingConnector(t *testing.T) {
	healthy := &stubConnector{id: sources.IDCuratedKB, trust: 0.95, results: []sources.SourceResult{
		result(sources.IDCuratedKB, "knowledge_base", "kb-1", "독감 예방접종 권장 시기 안내입니다.", 0.95, 0.8),
	}}
	broken := &stubConnector{id: sources.IDAcademic, trust: 1.0, err: errors.New("upstream timeout")}

	provider := &scriptedProvider{}

	orch, _, _ := newTestOrchestrator(t, provider, []sources.Connector{healthy, broken}, fastConfig())

	res, err := orch.Run(context.Background(), "독감 예방접종은 언제 맞나요?", "user-1", ConversationMemory{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.DegradedSources) != 1 || res.DegradedSources[0] != sources.IDAcademic {
		t.Errorf("degraded sources = %v, want [academic]", res.DegradedSources)
	}
	if res.State != StateDone {
		t.Errorf("state = %s, want DONE", res.State)
	}
	if len(res.Answer.Citations) == 0 {
		t.Error("healthy connector evidence produced no citations")
	}
	if got := res.Answer.Citations[1].SourceID; got != sources.IDCuratedKB {
		t.Errorf("citation 1 source = %s, want curated_kb", got)
	}
}

func TestRunReportsGenerationFailure(t *testing.T) {
	conn := &stubConnector{id: sources.IDCuratedKB, trust: 0.95, results: []sources.SourceResult{
		result(sources.IDCuratedKB, "knowledge_base", "kb-1", "수술 전 금식 안내입니다.", 0.95, 0.8),
	}}

	provider := &scriptedProvider{
		generate: func(p string) (string, error) { return "", errors.New("model overloaded") },
	}

	registry, err := prompt.NewDefaultRegistry()
	if err != nil {
		t.Fatalf("NewDefaultRegistry: %v", err)
	}
	var logBuf bytes.Buffer
	store := cache.New(cache.NewMemoryStore(time.Minute, time.Minute))
	orch := NewOrchestrator(registry, []sources.Connector{conn}, provider, store,
		NewStats(), fastConfig(), log.New(&logBuf, "", 0))

	res, err := orch.Run(context.Background(), "수술 전 금식 시간은?", "user-1", ConversationMemory{})
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("err = %v, want ErrGenerationFailed", err)
	}
	if res != nil {
		t.Errorf("result = %+v, want nil on fatal failure", res)
	}

	_, _, generates, _ := provider.counts()
	if generates != 3 {
		t.Errorf("generate attempts = %d, want 3 (initial + 2 retries)", generates)
	}

	// The run terminates in FAILED and says which state it died in.
	if !strings.Contains(logBuf.String(), string(StateFailed)) ||
		!strings.Contains(logBuf.String(), string(StateGenerate)) {
		t.Errorf("log output missing FAILED-in-GENERATE record:\n%s", logBuf.String())
	}
}

func TestRunReportsVerifierTransportFailure(t *testing.T) {
	errTransport := errors.New("connection reset")
	conn := &stubConnector{id: sources.IDCuratedKB, trust: 0.95, results: []sources.SourceResult{
		result(sources.IDCuratedKB, "knowledge_base", "kb-1", "화상 응급처치 단계 안내입니다.", 0.95, 0.8),
	}}

	provider := &scriptedProvider{
		verify: func(p string) (string, error) { return "", errTransport },
	}

	orch, _, _ := newTestOrchestrator(t, provider, []sources.Connector{conn}, fastConfig())

	_, err := orch.Run(context.Background(), "화상 응급처치 방법은?", "user-1", ConversationMemory{})
	if !errors.Is(err, errTransport) {
		t.Fatalf("err = %v, want wrapped transport error", err)
	}
}

func TestRunCancelledContext(t *testing.T) {
	conn := &stubConnector{id: sources.IDCuratedKB, trust: 0.95}
	provider := &scriptedProvider{}

	orch, _, _ := newTestOrchestrator(t, provider, []sources.Connector{conn}, fastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := orch.Run(ctx, "감기 치료법은?", "user-1", ConversationMemory{})
	if !errors.Is(err, ErrRunCancelled) {
		t.Fatalf("err = %v, want ErrRunCancelled", err)
	}
}

func TestRunRewriteFailureKeepsQuery(t *testing.T) {
	conn := &stubConnector{id: sources.IDCuratedKB, trust: 0.95, results: []sources.SourceResult{
		result(sources.IDCuratedKB, "knowledge_base", "kb-1", "관련 없는 문서입니다.", 0.95, 0.5),
	}}

	provider := &scriptedProvider{
		grade:   func(p string) (string, error) { return "no", nil },
		rewrite: func(p string) (string, error) { return "", errors.New("rewrite down") },
	}

	orch, _, _ := newTestOrchestrator(t, provider, []sources.Connector{conn}, fastConfig())

	res, err := orch.Run(context.Background(), "희귀 증후군 정보는?", "user-1", ConversationMemory{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Rewrite failures keep the old query, so later rounds hit the
	// retrieval cache instead of the connector. The loop still terminates.
	if got := conn.calls.Load(); got != 1 {
		t.Errorf("connector calls = %d, want 1 (repeat query cached)", got)
	}
	if res.Iterations != 3 {
		t.Errorf("iterations = %d, want 3", res.Iterations)
	}
	if res.Answer.Confidence != ConfidenceLow {
		t.Errorf("confidence = %s, want low", res.Answer.Confidence)
	}
}

func TestRunFailsFastWithoutGeneratorPrompt(t *testing.T) {
	templates := []prompt.Template{
		{Stage: prompt.StageGrader, Version: "v1.0", Text: "grade"},
	}
	registry, err := prompt.NewRegistry(templates, map[prompt.Stage]string{prompt.StageGrader: "v1.0"})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	conn := &stubConnector{id: sources.IDCuratedKB, trust: 0.95, results: []sources.SourceResult{
		result(sources.IDCuratedKB, "knowledge_base", "kb-1", "비염 치료 관련 문서입니다.", 0.95, 0.8),
	}}
	provider := &scriptedProvider{}
	store := cache.New(cache.NewMemoryStore(time.Minute, time.Minute))

	orch := NewOrchestrator(registry, []sources.Connector{conn}, provider, store, NewStats(), fastConfig(), log.New(io.Discard, "", 0))

	_, err = orch.Run(context.Background(), "비염 치료법은?", "user-1", ConversationMemory{})
	if !errors.Is(err, prompt.ErrPromptNotFound) {
		t.Fatalf("err = %v, want ErrPromptNotFound", err)
	}
}

func TestSetConnectorsOrdersByTrust(t *testing.T) {
	provider := &scriptedProvider{}
	conns := []sources.Connector{
		&stubConnector{id: sources.IDWeb, trust: 0.7},
		&stubConnector{id: sources.IDAcademic, trust: 1.0},
		&stubConnector{id: sources.IDAssistant, trust: 0.8},
		&stubConnector{id: sources.IDCuratedKB, trust: 0.95},
	}

	orch, _, _ := newTestOrchestrator(t, provider, conns, fastConfig())

	want := []string{sources.IDAcademic, sources.IDCuratedKB, sources.IDAssistant, sources.IDWeb}
	got := orch.ConnectorIDs()
	if len(got) != len(want) {
		t.Fatalf("connector ids = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("connector ids[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	// Swapping the fleet narrows what the router can hand out.
	orch.SetConnectors([]sources.Connector{&stubConnector{id: sources.IDWeb, trust: 0.7}})
	got = orch.ConnectorIDs()
	if len(got) != 1 || got[0] != sources.IDWeb {
		t.Errorf("connector ids after swap = %v, want [web]", got)
	}
}
