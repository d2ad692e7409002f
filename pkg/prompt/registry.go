package prompt

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry holds the versioned template arena and the active-version map.
// Templates are immutable once registered; mutation only ever adds a new
// version or repoints the active map, and the active map is replaced
// wholesale under the write lock so readers observe each change as a single
// step. Snapshots taken before a mutation keep the old text.
type Registry struct {
	mu       sync.RWMutex
	versions map[Stage]map[string]Template
	active   map[Stage]string
}

// NewRegistry builds a registry from a template arena and an active-version
// map. Every stage in the active map must resolve to a registered template;
// a miss is a configuration bug and fails construction.
func NewRegistry(templates []Template, active map[Stage]string) (*Registry, error) {
	r := &Registry{
		versions: make(map[Stage]map[string]Template),
		active:   make(map[Stage]string, len(active)),
	}
	for _, tpl := range templates {
		if tpl.Stage == "" || tpl.Version == "" {
			return nil, fmt.Errorf("template missing stage or version: %+v", tpl)
		}
		byVersion, ok := r.versions[tpl.Stage]
		if !ok {
			byVersion = make(map[string]Template)
			r.versions[tpl.Stage] = byVersion
		}
		byVersion[tpl.Version] = tpl
	}
	for stage, version := range active {
		if _, err := r.lookup(stage, version); err != nil {
			return nil, err
		}
		r.active[stage] = version
	}
	return r, nil
}

// NewDefaultRegistry builds a registry from the built-in template set.
func NewDefaultRegistry() (*Registry, error) {
	return NewRegistry(DefaultTemplates(), DefaultActiveVersions())
}

func (r *Registry) lookup(stage Stage, version string) (Template, error) {
	byVersion, ok := r.versions[stage]
	if !ok {
		return Template{}, fmt.Errorf("%w: stage %s has no templates", ErrPromptNotFound, stage)
	}
	tpl, ok := byVersion[version]
	if !ok {
		return Template{}, fmt.Errorf("%w: stage %s version %s", ErrPromptNotFound, stage, version)
	}
	return tpl, nil
}

// Resolve returns the active template for a stage.
func (r *Registry) Resolve(stage Stage) (Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	version, ok := r.active[stage]
	if !ok {
		return Template{}, fmt.Errorf("%w: stage %s has no active version", ErrPromptNotFound, stage)
	}
	return r.lookup(stage, version)
}

// ResolveVersion returns a specific registered version for a stage.
func (r *Registry) ResolveVersion(stage Stage, version string) (Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(stage, version)
}

// Snapshot captures every stage's active template in one consistent read.
// Missing resolution here means the registry was built around a bug, so the
// error is fatal to the caller (a run must not start without its prompts).
func (r *Registry) Snapshot() (*Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	templates := make(map[Stage]Template, len(r.active))
	for stage, version := range r.active {
		tpl, err := r.lookup(stage, version)
		if err != nil {
			return nil, err
		}
		templates[stage] = tpl
	}
	return newSnapshot(templates), nil
}

// UpdateActiveText registers text as a new custom version for the stage and
// repoints the active map at it. Only future snapshots see the new text.
// Returns the registered template so callers can report the version label.
func (r *Registry) UpdateActiveText(stage Stage, text string) (Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.versions[stage]; !ok {
		return Template{}, fmt.Errorf("%w: stage %s has no templates", ErrPromptNotFound, stage)
	}

	version := "custom-" + time.Now().UTC().Format("20060102T150405")
	for i := 2; ; i++ {
		if _, exists := r.versions[stage][version]; !exists {
			break
		}
		version = fmt.Sprintf("custom-%s.%d", time.Now().UTC().Format("20060102T150405"), i)
	}

	tpl := Template{
		Stage:       stage,
		Version:     version,
		Text:        text,
		Description: "administrative update",
	}
	r.versions[stage][version] = tpl
	r.swapActive(stage, version)
	return tpl, nil
}

// ActivateVersion repoints a stage's active template to an already
// registered version.
func (r *Registry) ActivateVersion(stage Stage, version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.lookup(stage, version); err != nil {
		return err
	}
	r.swapActive(stage, version)
	return nil
}

// swapActive replaces the active map with an updated copy. Callers hold the
// write lock. Copy-on-write keeps snapshots taken under the read lock
// consistent without per-entry synchronization.
func (r *Registry) swapActive(stage Stage, version string) {
	next := make(map[Stage]string, len(r.active)+1)
	for s, v := range r.active {
		next[s] = v
	}
	next[stage] = version
	r.active = next
}

// ReplaceAll swaps the whole arena and active map in one step. Used by the
// administrative refresh operation after re-reading the template store.
func (r *Registry) ReplaceAll(templates []Template, active map[Stage]string) error {
	fresh, err := NewRegistry(templates, active)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions = fresh.versions
	r.active = fresh.active
	return nil
}

// ActiveVersion returns the currently active version label for a stage.
func (r *Registry) ActiveVersion(stage Stage) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	version, ok := r.active[stage]
	if !ok {
		return "", fmt.Errorf("%w: stage %s has no active version", ErrPromptNotFound, stage)
	}
	return version, nil
}

// ListVersions returns every registered version for a stage, sorted by
// version label.
func (r *Registry) ListVersions(stage Stage) ([]Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byVersion, ok := r.versions[stage]
	if !ok {
		return nil, fmt.Errorf("%w: stage %s has no templates", ErrPromptNotFound, stage)
	}
	out := make([]Template, 0, len(byVersion))
	for _, tpl := range byVersion {
		out = append(out, tpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// ActiveTexts returns stage → active template text for every stage that has
// an active version. Used when persisting presets.
func (r *Registry) ActiveTexts() map[Stage]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[Stage]string, len(r.active))
	for stage, version := range r.active {
		if tpl, err := r.lookup(stage, version); err == nil {
			out[stage] = tpl.Text
		}
	}
	return out
}
