// Package intent extracts who the caller wants to reach, and why, from a
// transcribed utterance.
package intent

import (
	"context"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/config"
)

const (
	ProviderOpenAI  = "openai"
	ProviderKeyword = "keyword"
)

type Intent struct {
	Person       string `json:"person"`
	Department   string `json:"department"`
	Reason       string `json:"reason"`
	CallerName   string `json:"caller_name"`
	WantsMessage bool   `json:"wants_message"`
}

func (i Intent) HasTarget() bool {
	return i.Person != "" || i.Department != ""
}

type Parser interface {
	Parse(ctx context.Context, utterance string) (Intent, error)
}

// NewParser builds the parser selected by INTENT_PROVIDER. The LLM parser
// always falls back to keyword matching.
func NewParser() Parser {
	keyword := KeywordParser{}

	if config.Conf.IntentProvider == ProviderOpenAI {
		return NewOpenAIParser(OpenAIOptionsFromConfig(), keyword)
	}

	return keyword
}
