package answer

import (
	"fmt"
	"strings"
)

const (
	medicalDisclaimer = "**안내**: 이 정보는 의학적 조언을 대체할 수 없습니다. 정확한 진단과 치료를 위해 의료 전문가와 상담하세요."
	emergencyNotice   = "**응급상황 시**: 119 또는 가까운 응급실로 즉시 연락하세요."
	lowConfidenceNote = "**주의**: 충분한 근거 자료를 확보하지 못해 신뢰도가 낮은 답변입니다. 반드시 의료 전문가의 확인을 받으세요."
)

var emergencyKeywords = []string{"응급", "급성", "위험", "심각", "즉시"}

// Display renders the user-facing answer: the narrative, the REFERENCES
// listing for every cited number, the quality-check note when verification
// looped, and the standing disclaimers.
func (r *RunResult) Display() string {
	if r.Answer == nil {
		return "답변을 생성할 수 없습니다."
	}

	parts := []string{strings.TrimSpace(r.Answer.Text)}

	if len(r.Answer.CitationOrder) > 0 {
		var refs strings.Builder
		refs.WriteString("**참고 문헌 (REFERENCES)**")
		for _, n := range r.Answer.CitationOrder {
			ref := r.Answer.Citations[n]
			refs.WriteString(fmt.Sprintf("\n%d. [%s] %s", n, ref.SourceType, ref.Identifier))
			if ref.Title != "" {
				refs.WriteString(" - " + ref.Title)
			}
		}
		parts = append(parts, refs.String())
	}

	if r.Answer.VerifyRounds > 1 {
		parts = append(parts, fmt.Sprintf("**품질 검증**: 검토 %d회 수행", r.Answer.VerifyRounds))
	}

	if r.Answer.Confidence == ConfidenceLow {
		parts = append(parts, lowConfidenceNote)
	}

	parts = append(parts, medicalDisclaimer)

	lowered := strings.ToLower(r.Answer.Text)
	for _, keyword := range emergencyKeywords {
		if strings.Contains(lowered, keyword) {
			parts = append(parts, emergencyNotice)
			break
		}
	}

	return strings.Join(parts, "\n\n")
}
