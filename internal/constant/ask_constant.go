package constant

const (
	TurnRoleUser      = "user"
	TurnRoleAssistant = "assistant"
	TurnRoleSystem    = "system"
)

// DocumentCategories are the labels a curated document can be filed under.
// "일반의학" is the catch-all used when inference finds nothing.
var DocumentCategories = []string{
	"응급처치",
	"약물정보",
	"진단",
	"치료",
	"간호",
	"내과",
	"외과",
	"소아과",
	"산부인과",
	"가이드라인",
	"매뉴얼",
	"일반의학",
}

const DefaultDocumentCategory = "일반의학"

// IsValidDocumentCategory reports whether category is one of the known
// labels.
func IsValidDocumentCategory(category string) bool {
	for _, c := range DocumentCategories {
		if c == category {
			return true
		}
	}
	return false
}
