package answer

import (
	"strings"

	"mediquery-be/pkg/sources"
)

// Route is the router's decision for one run: the classified specialty and
// the connectors to query, ordered by trust weight descending.
type Route struct {
	Category     string
	ConnectorIDs []string
}

// categoryRule maps one medical specialty to its trigger keywords. Rules are
// held in a slice, not a map, so classification order is fixed and the
// router stays deterministic for identical input.
type categoryRule struct {
	category string
	keywords []string
}

var categoryRules = []categoryRule{
	{"응급처치", []string{"응급", "emergency", "급성", "위급", "구급", "심정지", "cpr"}},
	{"약물정보", []string{"약물", "drug", "medication", "처방", "복용", "부작용", "pharmacology"}},
	{"진단", []string{"진단", "diagnosis", "검사", "test", "examination", "증상"}},
	{"치료", []string{"치료", "treatment", "therapy", "수술", "surgery", "관리"}},
	{"간호", []string{"간호", "nursing", "care", "돌봄"}},
	{"내과", []string{"내과", "internal", "순환기", "호흡기", "소화기", "당뇨", "고혈압"}},
	{"외과", []string{"외과", "정형외과", "신경외과", "골절"}},
	{"소아과", []string{"소아", "pediatric", "아동", "신생아"}},
	{"산부인과", []string{"산부인과", "obstetrics", "gynecology", "임신", "출산"}},
	{"가이드라인", []string{"가이드라인", "guideline", "매뉴얼", "manual", "지침", "프로토콜"}},
}

const categoryGeneral = "일반의학"

// connectorProfiles restricts the sources per specialty. Drug and emergency
// questions skip the open web; guideline questions stay on curated material.
// Categories without a profile query every available connector.
var connectorProfiles = map[string][]string{
	"약물정보":  {sources.IDAcademic, sources.IDCuratedKB, sources.IDAssistant},
	"응급처치":  {sources.IDAcademic, sources.IDCuratedKB, sources.IDAssistant},
	"가이드라인": {sources.IDAcademic, sources.IDCuratedKB},
}

// Router chooses which connectors a question fans out to. Classification is
// a keyword match against the specialty rules, checked on the question first
// and the memory summary second.
type Router struct {
	available []string
}

// NewRouter takes the ids of the connectors currently enabled, ordered by
// trust weight descending. The router never returns ids outside this set.
func NewRouter(availableIDs []string) *Router {
	ids := make([]string, len(availableIDs))
	copy(ids, availableIDs)
	return &Router{available: ids}
}

func (r *Router) Route(question Question, memorySummary string) Route {
	category := classify(question.Text)
	if category == categoryGeneral && memorySummary != "" {
		category = classify(memorySummary)
	}

	profile, ok := connectorProfiles[category]
	if !ok {
		return Route{Category: category, ConnectorIDs: r.available}
	}

	ids := intersect(profile, r.available)
	if len(ids) == 0 {
		// Inconclusive restriction falls back to the full set.
		ids = r.available
	}
	return Route{Category: category, ConnectorIDs: ids}
}

func classify(text string) string {
	lowered := strings.ToLower(text)
	for _, rule := range categoryRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(lowered, keyword) {
				return rule.category
			}
		}
	}
	return categoryGeneral
}

func intersect(profile, available []string) []string {
	enabled := make(map[string]bool, len(available))
	for _, id := range available {
		enabled[id] = true
	}

	out := make([]string, 0, len(profile))
	for _, id := range profile {
		if enabled[id] {
			out = append(out, id)
		}
	}
	return out
}
