package sources

import (
	"context"
	"fmt"
	"strings"

	"mediquery-be/pkg/llm"
	"mediquery-be/pkg/prompt"
)

const assistantSourceType = "의료 어시스턴트"

// AssistantConnector asks the LLM itself for a concise medical briefing and
// wraps the reply as a single evidence item. The template is bound at
// construction so a registry swap mid-run cannot change this connector's
// behavior; the admin layer rebuilds connectors after prompt updates.
type AssistantConnector struct {
	provider llm.LLMProvider
	template prompt.Template
	weight   float64
}

func NewAssistantConnector(provider llm.LLMProvider, template prompt.Template) *AssistantConnector {
	return &AssistantConnector{
		provider: provider,
		template: template,
		weight:   0.8,
	}
}

func (c *AssistantConnector) ID() string {
	return IDAssistant
}

func (c *AssistantConnector) TrustWeight() float64 {
	return c.weight
}

// PromptVersion reports the bound template version so cached retrievals
// roll over when the assistant prompt changes.
func (c *AssistantConnector) PromptVersion() string {
	return c.template.Version
}

func (c *AssistantConnector) Retrieve(ctx context.Context, query string, limit int) ([]SourceResult, error) {
	rendered := c.template.Render(map[string]string{"query": query})

	reply, err := c.provider.Generate(ctx, rendered, llm.WithTemperature(0.3))
	if err != nil {
		return nil, fmt.Errorf("assistant generate: %w", err)
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return nil, nil
	}

	return []SourceResult{{
		SourceID:    c.ID(),
		SourceType:  assistantSourceType,
		Identifier:  "assistant:" + c.template.Version,
		Title:       "의료 어시스턴트 답변",
		Snippet:     truncateRunes(reply, 1500),
		TrustWeight: c.weight,
		Score:       0.8,
	}}, nil
}
