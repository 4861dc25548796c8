package service

import "strings"

// charsPerToken is the rough character-per-token ratio used everywhere a
// token count is estimated.
const charsPerToken = 4

// DefaultTokenBudget applies when no override is given and the model is
// unknown.
const DefaultTokenBudget = 4000

// modelBudgets maps model-name prefixes to a conservative ceiling for
// retrieved context. These are deliberately well below each model's full
// window, leaving room for the conversation itself.
var modelBudgets = []struct {
	prefix string
	budget int
}{
	{"gpt-4o-mini", 16000},
	{"gpt-4o", 16000},
	{"gpt-4.1", 24000},
	{"gpt-4", 6000},
	{"gpt-3.5", 3000},
	{"o3", 24000},
	{"o4-mini", 24000},
	{"claude-3-5", 24000},
	{"claude-3", 16000},
	{"claude-sonnet", 24000},
	{"claude-opus", 24000},
	{"claude-haiku", 16000},
	{"gemini-2", 16000},
	{"gemini-1.5", 24000},
	{"llama-3", 8000},
	{"mistral", 8000},
	{"qwen", 8000},
	{"deepseek", 16000},
}

// ResolveTokenBudget picks the explicit override when given, otherwise the
// per-model ceiling, otherwise the default.
func ResolveTokenBudget(override int, modelID string) int {
	if override > 0 {
		return override
	}
	name := strings.ToLower(strings.TrimSpace(modelID))
	if name != "" {
		for _, mb := range modelBudgets {
			if strings.HasPrefix(name, mb.prefix) {
				return mb.budget
			}
		}
	}
	return DefaultTokenBudget
}

// EstimateTokens approximates the token count as ceil(chars/4).
func EstimateTokens(s string) int {
	return (len(s) + charsPerToken - 1) / charsPerToken
}
