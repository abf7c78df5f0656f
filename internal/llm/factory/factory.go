// Package factory builds the configured llm.Provider.
package factory

import (
	"fmt"
	"sort"

	"github.com/newthinker/marketlens/internal/config"
	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/llm"
	"github.com/newthinker/marketlens/internal/llm/claude"
	"github.com/newthinker/marketlens/internal/llm/openai"
)

type builder func(cfg config.LLMConfig) (llm.Provider, error)

var builders = map[string]builder{
	"claude": func(cfg config.LLMConfig) (llm.Provider, error) {
		return claude.New(cfg.Claude.APIKey, cfg.Claude.Model)
	},
	"openai": func(cfg config.LLMConfig) (llm.Provider, error) {
		return openai.New(cfg.OpenAI.APIKey, cfg.OpenAI.Model, openai.WithBaseURL(cfg.OpenAI.BaseURL))
	},
}

// Names lists the accepted provider names.
func Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New returns the provider named by cfg.Provider. An empty name returns
// nil without error and narratives stay off.
func New(cfg config.LLMConfig) (llm.Provider, error) {
	if cfg.Provider == "" {
		return nil, nil
	}
	build, ok := builders[cfg.Provider]
	if !ok {
		return nil, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown LLM provider %q (want one of %v)", cfg.Provider, Names()))
	}
	p, err := build(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Provider, err)
	}
	return p, nil
}
