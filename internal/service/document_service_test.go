package service

import (
	"strings"
	"testing"

	"mediquery-be/internal/constant"
)

func TestInferCategory(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		content string
		want    string
	}{
		{
			name:    "emergency keyword in title",
			title:   "심정지 응급 대응 절차",
			content: "환자 발견 시 의식 확인 후 즉시 도움을 요청한다.",
			want:    "응급처치",
		},
		{
			name:    "drug keyword in english title",
			title:   "Metformin drug interactions",
			content: "Summary of known interactions.",
			want:    "약물정보",
		},
		{
			name:    "earlier table entry wins on multiple matches",
			title:   "수술 전 준비 지침",
			content: "간호 인력은 환자 확인 후 금식 여부를 점검한다.",
			want:    "치료",
		},
		{
			name:    "falls back to content when title is opaque",
			title:   "부록 3-2",
			content: "신생아 황달의 관찰 포인트와 보고 기준을 정리한 자료입니다.",
			want:    "소아과",
		},
		{
			name:    "only leading content is probed",
			title:   "기타 자료",
			content: strings.Repeat("일반적인 내용입니다. ", 30) + "소아 환자 관련 부록.",
			want:    constant.DefaultDocumentCategory,
		},
		{
			name:    "guideline keyword",
			title:   "당뇨병 진료 프로토콜 2024",
			content: "",
			want:    "가이드라인",
		},
		{
			name:    "nothing matches",
			title:   "회의록",
			content: "2024년 1분기 운영 회의 기록.",
			want:    constant.DefaultDocumentCategory,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := inferCategory(tt.title, tt.content)
			if got != tt.want {
				t.Errorf("inferCategory(%q, ...) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}

func TestInferredCategoriesAreValid(t *testing.T) {
	for _, entry := range categoryKeywords {
		if !constant.IsValidDocumentCategory(entry.Category) {
			t.Errorf("keyword table emits %q, which is not a known category", entry.Category)
		}
	}
}
