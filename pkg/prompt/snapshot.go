package prompt

import (
	"fmt"
	"sort"
	"strings"
)

// Snapshot is an immutable copy of every stage's active template, captured
// in a single consistent read. A run holds exactly one snapshot for its whole
// lifetime, so concurrent administrative edits never change the instruction
// text of an in-flight run.
type Snapshot struct {
	templates   map[Stage]Template
	fingerprint string
}

func newSnapshot(templates map[Stage]Template) *Snapshot {
	parts := make([]string, 0, len(templates))
	for stage, tpl := range templates {
		parts = append(parts, string(stage)+"="+tpl.Version)
	}
	sort.Strings(parts)
	return &Snapshot{
		templates:   templates,
		fingerprint: strings.Join(parts, "|"),
	}
}

// Get returns the captured template for a stage.
func (s *Snapshot) Get(stage Stage) (Template, error) {
	tpl, ok := s.templates[stage]
	if !ok {
		return Template{}, fmt.Errorf("%w: stage %s missing from snapshot", ErrPromptNotFound, stage)
	}
	return tpl, nil
}

// Version returns the captured version string for a stage, or "" when the
// stage is not part of the snapshot.
func (s *Snapshot) Version(stage Stage) string {
	return s.templates[stage].Version
}

// Fingerprint is a deterministic encoding of every (stage, version) pair in
// the snapshot. Cache keys include it so a prompt swap rolls the keys over
// without explicit eviction.
func (s *Snapshot) Fingerprint() string {
	return s.fingerprint
}
