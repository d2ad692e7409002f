package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"mediquery-be/pkg/sources"
)

func TestParseBinaryVerdict(t *testing.T) {
	tests := []struct {
		response string
		want     bool
	}{
		{"yes", true},
		{"Yes.", true},
		{"YES, the document is relevant", true},
		{"'yes'", true},
		{"\"yes\"", true},
		{"binary score: yes", true},
		{"{\"binary_score\": \"yes\"}", true},
		{"no", false},
		{"No, not relevant", false},
		{"maybe", false},
		{"I cannot determine this", false},
		{"", false},
		{"the score is unknown", false},
	}

	for _, tt := range tests {
		t.Run(tt.response, func(t *testing.T) {
			if got := parseBinaryVerdict(tt.response); got != tt.want {
				t.Errorf("parseBinaryVerdict(%q) = %v, want %v", tt.response, got, tt.want)
			}
		})
	}
}

func TestGradeAllPreservesInputOrder(t *testing.T) {
	stub := &llmStub{fn: func(p string) (string, error) {
		if strings.Contains(p, "당뇨") {
			return "yes", nil
		}
		return "no", nil
	}}
	grader := NewGrader(stub, 4, discardLogger())

	results := []sources.SourceResult{
		result(sources.IDAcademic, "academic_paper", "PMID:1", "당뇨병 식이요법 연구.", 1.0, 0.9),
		result(sources.IDWeb, "web_page", "https://example.com", "부동산 시장 동향.", 0.7, 0.6),
		result(sources.IDCuratedKB, "knowledge_base", "kb-1", "당뇨 환자 운동 지침.", 0.95, 0.8),
	}

	graded, err := grader.GradeAll(context.Background(), NewQuestion("당뇨 관리?", "u"), results, testSnapshot(t))
	if err != nil {
		t.Fatalf("GradeAll: %v", err)
	}
	if len(graded) != len(results) {
		t.Fatalf("graded %d results, want %d", len(graded), len(results))
	}

	wantRelevant := []bool{true, false, true}
	for i := range results {
		if graded[i].Result.Identifier != results[i].Identifier {
			t.Errorf("graded[%d] = %s, want input order preserved (%s)",
				i, graded[i].Result.Identifier, results[i].Identifier)
		}
		if graded[i].Relevant != wantRelevant[i] {
			t.Errorf("graded[%d].Relevant = %v, want %v", i, graded[i].Relevant, wantRelevant[i])
		}
	}
	if stub.callCount() != 3 {
		t.Errorf("llm calls = %d, want 3", stub.callCount())
	}
}

func TestGradeCallFailureMeansNotRelevant(t *testing.T) {
	stub := &llmStub{fn: func(p string) (string, error) {
		if strings.Contains(p, "오류 유발") {
			return "", errors.New("rate limited")
		}
		return "yes", nil
	}}
	grader := NewGrader(stub, 2, discardLogger())

	results := []sources.SourceResult{
		result(sources.IDCuratedKB, "knowledge_base", "kb-1", "오류 유발 문서.", 0.95, 0.8),
		result(sources.IDCuratedKB, "knowledge_base", "kb-2", "정상 문서.", 0.95, 0.7),
	}

	graded, err := grader.GradeAll(context.Background(), NewQuestion("질문?", "u"), results, testSnapshot(t))
	if err != nil {
		t.Fatalf("GradeAll: %v", err)
	}
	if graded[0].Relevant {
		t.Error("failed grading call must resolve to not relevant")
	}
	if !graded[1].Relevant {
		t.Error("healthy grading call lost its verdict")
	}
}

func TestGradeAllEmptyInput(t *testing.T) {
	stub := &llmStub{}
	grader := NewGrader(stub, 2, discardLogger())

	graded, err := grader.GradeAll(context.Background(), NewQuestion("질문?", "u"), nil, testSnapshot(t))
	if err != nil {
		t.Fatalf("GradeAll: %v", err)
	}
	if len(graded) != 0 {
		t.Errorf("graded = %v, want empty", graded)
	}
	if stub.callCount() != 0 {
		t.Errorf("llm calls = %d, want 0", stub.callCount())
	}
}

func TestGradePromptCarriesSnippetAndQuestion(t *testing.T) {
	stub := &llmStub{}
	grader := NewGrader(stub, 1, discardLogger())

	results := []sources.SourceResult{
		result(sources.IDCuratedKB, "knowledge_base", "kb-1", "저염식이 혈압을 낮춥니다.", 0.95, 0.8),
	}
	if _, err := grader.GradeAll(context.Background(), NewQuestion("고혈압 식단은?", "u"), results, testSnapshot(t)); err != nil {
		t.Fatalf("GradeAll: %v", err)
	}

	p := stub.prompt(t, 0)
	for _, fragment := range []string{"저염식이 혈압을 낮춥니다.", "고혈압 식단은?", "Binary score (yes/no):"} {
		if !strings.Contains(p, fragment) {
			t.Errorf("grading prompt missing %q", fragment)
		}
	}
}
