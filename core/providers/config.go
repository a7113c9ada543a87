package providers

import (
	"fmt"
	"time"
)

// BaseConfig contains configuration common to all providers.
type BaseConfig struct {
	// APIKey is the authentication key for the provider.
	APIKey string `json:"api_key" yaml:"api_key"`

	// StandardModel serves TierStandard requests.
	StandardModel string `json:"standard_model" yaml:"standard_model"`

	// ElevatedModel serves TierElevated requests.
	ElevatedModel string `json:"elevated_model" yaml:"elevated_model"`

	// MaxTokens is the default generation cap when a request sets none.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`

	// Timeout for API requests.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// Validate checks the base configuration.
func (c *BaseConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive")
	}
	if c.StandardModel == "" || c.ElevatedModel == "" {
		return fmt.Errorf("standard_model and elevated_model are required")
	}
	return nil
}

// ModelForTier maps a request tier onto the configured model id.
func (c *BaseConfig) ModelForTier(tier Tier) string {
	if tier == TierElevated {
		return c.ElevatedModel
	}
	return c.StandardModel
}

// AnthropicConfig contains Anthropic-specific configuration.
type AnthropicConfig struct {
	BaseConfig `json:",inline" yaml:",inline"`

	// BaseURL overrides the default API endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// DefaultAnthropicConfig returns Anthropic defaults.
func DefaultAnthropicConfig() AnthropicConfig {
	return AnthropicConfig{
		BaseConfig: BaseConfig{
			StandardModel: "claude-sonnet-4-5-20250901",
			ElevatedModel: "claude-opus-4-5-20251101",
			MaxTokens:     4096,
			Timeout:       2 * time.Minute,
		},
	}
}

// Validate checks Anthropic-specific configuration.
func (c *AnthropicConfig) Validate() error {
	if err := c.BaseConfig.Validate(); err != nil {
		return fmt.Errorf("anthropic config: %w", err)
	}
	return nil
}

// OpenAIConfig contains OpenAI-specific configuration.
type OpenAIConfig struct {
	BaseConfig `json:",inline" yaml:",inline"`

	// BaseURL overrides the default API endpoint (Azure, proxies).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Organization ID for OpenAI.
	Organization string `json:"organization,omitempty" yaml:"organization,omitempty"`
}

// DefaultOpenAIConfig returns OpenAI defaults.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseConfig: BaseConfig{
			StandardModel: "gpt-4o-mini",
			ElevatedModel: "gpt-4o",
			MaxTokens:     4096,
			Timeout:       2 * time.Minute,
		},
	}
}

// Validate checks OpenAI-specific configuration.
func (c *OpenAIConfig) Validate() error {
	if err := c.BaseConfig.Validate(); err != nil {
		return fmt.Errorf("openai config: %w", err)
	}
	return nil
}
