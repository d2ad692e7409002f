package factory

import (
	"fmt"

	"mediquery-be/pkg/llm"
	"mediquery-be/pkg/llm/huggingface"
	"mediquery-be/pkg/llm/ollama"
	"mediquery-be/pkg/llm/openai"
)

// NewLLMProvider selects the chat backend by provider name.
func NewLLMProvider(providerType, baseURL, modelName, apiKey string) (llm.LLMProvider, error) {
	switch providerType {
	case "ollama":
		return ollama.NewOllamaProvider(baseURL, modelName), nil
	case "huggingface":
		return huggingface.NewHuggingFaceProvider(apiKey, baseURL, modelName), nil
	case "openai":
		return openai.NewOpenAIProvider(apiKey, baseURL, modelName), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", providerType)
	}
}
