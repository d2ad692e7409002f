package prompt

import "errors"

var (
	// ErrPromptNotFound indicates a stage or version the registry cannot
	// resolve. This is a configuration bug: callers must fail fast rather
	// than substitute a default silently.
	ErrPromptNotFound = errors.New("prompt not found")

	// ErrPresetNotFound indicates a named preset that does not exist in the
	// preset store.
	ErrPresetNotFound = errors.New("preset not found")
)
