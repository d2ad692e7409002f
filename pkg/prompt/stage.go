package prompt

import (
	"fmt"
	"strings"
)

// Stage identifies one pipeline step that owns an instruction template.
type Stage string

const (
	StageGrader    Stage = "GRADER"
	StageRewriter  Stage = "REWRITER"
	StageGenerator Stage = "GENERATOR"
	StageVerifier  Stage = "VERIFIER"
	StageMemory    Stage = "MEMORY"
	StageAssistant Stage = "ASSISTANT"
)

// AllStages returns every stage the pipeline resolves, in a fixed order.
func AllStages() []Stage {
	return []Stage{
		StageGrader,
		StageRewriter,
		StageGenerator,
		StageVerifier,
		StageMemory,
		StageAssistant,
	}
}

// ParseStage converts an external stage name into a Stage. Matching is
// case-insensitive; URL paths use lowercase names while the store format
// carries the canonical uppercase labels.
func ParseStage(name string) (Stage, error) {
	for _, s := range AllStages() {
		if strings.EqualFold(string(s), name) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unknown stage %q", ErrPromptNotFound, name)
}

func (s Stage) String() string {
	return string(s)
}
