package prompt

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// storeFile mirrors the declarative template store on disk. Versioned texts
// are keyed "{STAGE}_{version}" so one file carries the whole arena.
type storeFile struct {
	Version        string            `yaml:"version"`
	LastUpdated    string            `yaml:"last_updated"`
	ActiveVersions map[string]string `yaml:"active_versions"`
	PromptVersions map[string]string `yaml:"prompt_versions"`
}

// LoadStore reads a YAML template store and builds a registry from it.
// Every stage listed in active_versions must resolve to a stored text;
// a miss fails the load so a broken store never reaches the pipeline.
func LoadStore(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt store %s: %w", path, err)
	}
	return parseStore(raw)
}

func parseStore(raw []byte) (*Registry, error) {
	var file storeFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse prompt store: %w", err)
	}

	templates := make([]Template, 0, len(file.PromptVersions))
	for key, text := range file.PromptVersions {
		stage, version, err := splitVersionKey(key)
		if err != nil {
			return nil, err
		}
		templates = append(templates, Template{Stage: stage, Version: version, Text: text})
	}

	active := make(map[Stage]string, len(file.ActiveVersions))
	for name, version := range file.ActiveVersions {
		stage, err := ParseStage(name)
		if err != nil {
			return nil, err
		}
		active[stage] = version
	}

	registry, err := NewRegistry(templates, active)
	if err != nil {
		return nil, fmt.Errorf("prompt store is inconsistent: %w", err)
	}
	return registry, nil
}

// splitVersionKey parses "{STAGE}_{version}". Stage names carry no
// underscore, so the first underscore is the separator.
func splitVersionKey(key string) (Stage, string, error) {
	idx := strings.Index(key, "_")
	if idx <= 0 || idx == len(key)-1 {
		return "", "", fmt.Errorf("malformed prompt version key %q", key)
	}
	stage, err := ParseStage(key[:idx])
	if err != nil {
		return "", "", fmt.Errorf("prompt version key %q: %w", key, err)
	}
	return stage, key[idx+1:], nil
}

// WriteDefaultStore writes the shipped template set as a store file.
// Existing files are overwritten; used by the seeding command.
func WriteDefaultStore(path string) error {
	file := storeFile{
		Version:        "2.1",
		LastUpdated:    time.Now().UTC().Format("2006-01-02"),
		ActiveVersions: make(map[string]string),
		PromptVersions: make(map[string]string),
	}
	for stage, version := range DefaultActiveVersions() {
		file.ActiveVersions[string(stage)] = version
	}
	for _, tpl := range DefaultTemplates() {
		file.PromptVersions[fmt.Sprintf("%s_%s", tpl.Stage, tpl.Version)] = tpl.Text
	}

	raw, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("marshal prompt store: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write prompt store %s: %w", path, err)
	}
	return nil
}
