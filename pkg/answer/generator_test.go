package answer

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"mediquery-be/pkg/prompt"
	"mediquery-be/pkg/sources"
)

func testSnapshot(t *testing.T) *prompt.Snapshot {
	t.Helper()
	registry, err := prompt.NewDefaultRegistry()
	if err != nil {
		t.Fatalf("NewDefaultRegistry: %v", err)
	}
	snap, err := registry.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	return snap
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, Multiplier: 2.0}
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func graded(r sources.SourceResult, relevant bool) GradedEvidence {
	return GradedEvidence{Result: r, Relevant: relevant}
}

func TestGenerateWithoutEvidence(t *testing.T) {
	stub := &llmStub{}
	gen := NewGenerator(stub, fastRetry(), discardLogger())

	ans, err := gen.Generate(context.Background(), NewQuestion("희귀병 정보", "u"), nil, testSnapshot(t))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if ans.Text != noEvidenceAnswer {
		t.Errorf("text = %q, want the no-evidence answer", ans.Text)
	}
	if len(ans.Citations) != 0 || len(ans.CitationOrder) != 0 {
		t.Errorf("citations = %v, want none", ans.Citations)
	}
	if stub.callCount() != 0 {
		t.Errorf("llm calls = %d, want 0", stub.callCount())
	}
}

func TestGenerateRenumbersCitationsByFirstAppearance(t *testing.T) {
	evidence := []GradedEvidence{
		graded(result(sources.IDAcademic, "academic_paper", "PMID:1", "심부전 치료의 최신 지견입니다.", 1.0, 0.9), true),
		graded(result(sources.IDCuratedKB, "knowledge_base", "kb-9", "심부전 환자의 이뇨제 사용 안내입니다.", 0.95, 0.8), true),
		graded(result(sources.IDWeb, "web_page", "https://example.com/a", "심부전 생활 관리 요령입니다.", 0.7, 0.7), true),
	}

	stub := &llmStub{fn: func(p string) (string, error) {
		return "이뇨제가 우선 고려됩니다 [2]. 근거 연구도 있습니다 [1,2]. 출처 불명 주장도 있습니다 [9].", nil
	}}
	gen := NewGenerator(stub, fastRetry(), discardLogger())

	ans, err := gen.Generate(context.Background(), NewQuestion("심부전 치료는?", "u"), evidence, testSnapshot(t))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	want := "이뇨제가 우선 고려됩니다 [1]. 근거 연구도 있습니다 [2,1]. 출처 불명 주장도 있습니다 ."
	if ans.Text != want {
		t.Errorf("text = %q\nwant  %q", ans.Text, want)
	}

	if len(ans.CitationOrder) != 2 {
		t.Fatalf("citation order = %v, want 2 entries", ans.CitationOrder)
	}
	if ans.Citations[1].Identifier != "kb-9" {
		t.Errorf("citation 1 = %s, want kb-9 (first cited document)", ans.Citations[1].Identifier)
	}
	if ans.Citations[2].Identifier != "PMID:1" {
		t.Errorf("citation 2 = %s, want PMID:1", ans.Citations[2].Identifier)
	}

	if nums := ans.SourceBreakdown[sources.IDCuratedKB]; len(nums) != 1 || nums[0] != 1 {
		t.Errorf("curated breakdown = %v, want [1]", nums)
	}
	if nums := ans.SourceBreakdown[sources.IDAcademic]; len(nums) != 1 || nums[0] != 2 {
		t.Errorf("academic breakdown = %v, want [2]", nums)
	}
	if _, ok := ans.SourceBreakdown[sources.IDWeb]; ok {
		t.Error("uncited web source appears in the breakdown")
	}

	// The model saw the documents trust-ordered with their weights.
	p := stub.prompt(t, 0)
	if !strings.Contains(p, "[1] academic_paper (신뢰도: 1.00)") {
		t.Errorf("prompt missing trust-ordered document header:\n%s", p)
	}
	if !strings.Contains(p, "심부전 치료는?") {
		t.Error("prompt missing the question")
	}
}

func TestGenerateFallsBackToBestAvailable(t *testing.T) {
	evidence := []GradedEvidence{
		graded(result(sources.IDWeb, "web_page", "https://example.com/b", "빈혈과 철분 보충에 대한 일반 정보입니다.", 0.7, 0.6), false),
	}

	stub := &llmStub{fn: func(p string) (string, error) {
		return "제한된 근거로는 철분 보충이 언급됩니다 [1].", nil
	}}
	gen := NewGenerator(stub, fastRetry(), discardLogger())

	ans, err := gen.Generate(context.Background(), NewQuestion("빈혈 관리법?", "u"), evidence, testSnapshot(t))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(stub.prompt(t, 0), "빈혈과 철분 보충") {
		t.Error("best-available evidence missing from the prompt")
	}
	if len(ans.Citations) != 1 {
		t.Errorf("citations = %d, want 1", len(ans.Citations))
	}
}

func TestGenerateCollapsesSnippetsOfOneDocument(t *testing.T) {
	evidence := []GradedEvidence{
		graded(result(sources.IDCuratedKB, "knowledge_base", "kb-1", "첫 번째 단락: 천식의 정의.", 0.95, 0.7), true),
		graded(result(sources.IDCuratedKB, "knowledge_base", "kb-1", "두 번째 단락: 천식의 단계별 치료.", 0.95, 0.9), true),
	}

	stub := &llmStub{fn: func(p string) (string, error) {
		return "단계별 치료가 필요합니다 [1].", nil
	}}
	gen := NewGenerator(stub, fastRetry(), discardLogger())

	ans, err := gen.Generate(context.Background(), NewQuestion("천식 치료?", "u"), evidence, testSnapshot(t))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	p := stub.prompt(t, 0)
	if !strings.Contains(p, "첫 번째 단락") || !strings.Contains(p, "두 번째 단락") {
		t.Error("both snippets of the document must reach the prompt")
	}
	if strings.Contains(p, "[2]") {
		t.Error("one document must carry exactly one citation number")
	}
	if len(ans.Citations) != 1 {
		t.Errorf("citations = %d, want 1", len(ans.Citations))
	}
}

func TestGenerateRetriesTransportErrors(t *testing.T) {
	attempts := 0
	stub := &llmStub{fn: func(p string) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("temporarily unavailable")
		}
		return "재시도 후 생성된 답변 [1].", nil
	}}
	gen := NewGenerator(stub, fastRetry(), discardLogger())

	evidence := []GradedEvidence{
		graded(result(sources.IDCuratedKB, "knowledge_base", "kb-1", "파상풍 예방접종 주기 안내입니다.", 0.95, 0.8), true),
	}

	ans, err := gen.Generate(context.Background(), NewQuestion("파상풍 주사 주기?", "u"), evidence, testSnapshot(t))
	if err != nil {
		t.Fatalf("Generate after retries: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if len(ans.Citations) != 1 {
		t.Errorf("citations = %d, want 1", len(ans.Citations))
	}
}

func TestGenerateExhaustedRetriesIsFatal(t *testing.T) {
	stub := &llmStub{fn: func(p string) (string, error) {
		return "", errors.New("hard down")
	}}
	gen := NewGenerator(stub, fastRetry(), discardLogger())

	evidence := []GradedEvidence{
		graded(result(sources.IDCuratedKB, "knowledge_base", "kb-1", "문서 내용.", 0.95, 0.8), true),
	}

	_, err := gen.Generate(context.Background(), NewQuestion("질문?", "u"), evidence, testSnapshot(t))
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("err = %v, want ErrGenerationFailed", err)
	}
	if stub.callCount() != 3 {
		t.Errorf("attempts = %d, want 3 (initial + 2 retries)", stub.callCount())
	}
}

func TestResolveDosageConflicts(t *testing.T) {
	doc := func(sourceID, identifier string, trust float64, snippet string) *citedDoc {
		return &citedDoc{
			ref:      SourceRef{SourceID: sourceID, Identifier: identifier},
			trust:    trust,
			snippets: []string{snippet},
		}
	}

	t.Run("lower trust conflicting claim is dropped", func(t *testing.T) {
		docs := []*citedDoc{
			doc(sources.IDCuratedKB, "kb-1", 0.95, "메트포민 500mg 하루 2회 복용."),
			doc(sources.IDWeb, "web-1", 0.7, "메트포민 850mg 복용이 일반적."),
		}
		kept, excluded := resolveDosageConflicts(docs)
		if len(kept) != 1 || kept[0].ref.Identifier != "kb-1" {
			t.Errorf("kept = %v, want only kb-1", identifiers(kept))
		}
		if len(excluded) != 1 || excluded[0].ref.Identifier != "web-1" {
			t.Errorf("excluded = %v, want web-1", identifiers(excluded))
		}
	})

	t.Run("matching claims coexist", func(t *testing.T) {
		docs := []*citedDoc{
			doc(sources.IDAcademic, "PMID:1", 1.0, "아스피린 100mg 저용량 요법."),
			doc(sources.IDWeb, "web-1", 0.7, "아스피린 100 mg 복용 정보."),
		}
		kept, excluded := resolveDosageConflicts(docs)
		if len(kept) != 2 || len(excluded) != 0 {
			t.Errorf("kept %d excluded %d, want 2/0", len(kept), len(excluded))
		}
	})

	t.Run("different subjects never conflict", func(t *testing.T) {
		docs := []*citedDoc{
			doc(sources.IDAcademic, "PMID:1", 1.0, "메트포민 500mg 투여."),
			doc(sources.IDWeb, "web-1", 0.7, "아스피린 100mg 투여."),
		}
		kept, excluded := resolveDosageConflicts(docs)
		if len(kept) != 2 || len(excluded) != 0 {
			t.Errorf("kept %d excluded %d, want 2/0", len(kept), len(excluded))
		}
	})

	t.Run("documents without dosages pass through", func(t *testing.T) {
		docs := []*citedDoc{
			doc(sources.IDCuratedKB, "kb-1", 0.95, "운동 요법의 일반 원칙."),
			doc(sources.IDWeb, "web-1", 0.7, "식이 조절 안내."),
		}
		kept, excluded := resolveDosageConflicts(docs)
		if len(kept) != 2 || len(excluded) != 0 {
			t.Errorf("kept %d excluded %d, want 2/0", len(kept), len(excluded))
		}
	})
}

func identifiers(docs []*citedDoc) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ref.Identifier)
	}
	return out
}

func TestDosageClaims(t *testing.T) {
	tests := []struct {
		name string
		text string
		want map[string]string
	}{
		{
			name: "korean drug mention",
			text: "메트포민 500mg을 하루 2회 복용합니다.",
			want: map[string]string{"메트포민": "500mg"},
		},
		{
			name: "spacing and case are canonicalized",
			text: "Aspirin 100 MG daily",
			want: map[string]string{"aspirin": "100mg"},
		},
		{
			name: "units and decimals",
			text: "인슐린 10 units 투여, 레보티록신 0.5mg 복용",
			want: map[string]string{"인슐린": "10units", "레보티록신": "0.5mg"},
		},
		{
			name: "dosage without a subject is ignored",
			text: "500mg부터 시작",
			want: map[string]string{},
		},
		{
			name: "first claim per subject wins",
			text: "메트포민 500mg 또는 메트포민 850mg",
			want: map[string]string{"메트포민": "500mg"},
		},
		{
			name: "no dosages",
			text: "규칙적인 운동이 중요합니다.",
			want: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dosageClaims(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("claims = %v, want %v", got, tt.want)
			}
			for subject, amount := range tt.want {
				if got[subject] != amount {
					t.Errorf("claims[%q] = %q, want %q", subject, got[subject], amount)
				}
			}
		})
	}
}

func TestRenumberCitationsEdgeCases(t *testing.T) {
	docs := []*citedDoc{
		{ref: SourceRef{SourceID: sources.IDAcademic, Identifier: "PMID:1"}},
		{ref: SourceRef{SourceID: sources.IDCuratedKB, Identifier: "kb-1"}},
	}

	t.Run("marker with only orphans disappears", func(t *testing.T) {
		ans := renumberCitations("근거 없는 주장입니다 [7].", docs)
		if ans.Text != "근거 없는 주장입니다 ." {
			t.Errorf("text = %q", ans.Text)
		}
		if len(ans.CitationOrder) != 0 || len(ans.Citations) != 0 {
			t.Errorf("citations = %v, want none", ans.Citations)
		}
	})

	t.Run("mixed marker keeps valid numbers", func(t *testing.T) {
		ans := renumberCitations("부분 근거 [2,9] 제시.", docs)
		if ans.Text != "부분 근거 [1] 제시." {
			t.Errorf("text = %q", ans.Text)
		}
		if ans.Citations[1].Identifier != "kb-1" {
			t.Errorf("citation 1 = %s, want kb-1", ans.Citations[1].Identifier)
		}
	})

	t.Run("text without markers is untouched", func(t *testing.T) {
		ans := renumberCitations("인용 없는 답변입니다.", docs)
		if ans.Text != "인용 없는 답변입니다." {
			t.Errorf("text = %q", ans.Text)
		}
		if len(ans.CitationOrder) != 0 {
			t.Errorf("citation order = %v, want empty", ans.CitationOrder)
		}
	})

	t.Run("zero is an orphan", func(t *testing.T) {
		ans := renumberCitations("잘못된 인용 [0] 포함.", docs)
		if len(ans.Citations) != 0 {
			t.Errorf("citations = %v, want none", ans.Citations)
		}
	})
}
