// Package config loads the framework configuration from YAML. Records are
// closed: unknown keys are rejected at load time.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/nairaflow/connect/internal/classify"
)

type Config struct {
	Redis      RedisConfig      `yaml:"redis"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Health     HealthConfig     `yaml:"health"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ClassifierConfig struct {
	Strategy        string    `yaml:"strategy"`       // aggressive, balanced, accuracy_first, enterprise
	CacheStrategy   string    `yaml:"cache_strategy"` // conservative, balanced, aggressive
	CacheTTLHours   int       `yaml:"cache_ttl_hours"`
	MaxCacheSize    int       `yaml:"max_cache_size"`
	ReviewThreshold float64   `yaml:"review_threshold"`
	MaxEvents       int       `yaml:"max_events"`
	LLM             LLMConfig `yaml:"llm"`
}

type LLMConfig struct {
	BaseURL string            `yaml:"base_url"`
	APIKey  string            `yaml:"api_key"`
	Models  map[string]string `yaml:"models"` // tier name -> model name
}

type HealthConfig struct {
	CheckIntervalSeconds int `yaml:"check_interval_seconds"`
	CheckTimeoutSeconds  int `yaml:"check_timeout_seconds"`
	MaxMetrics           int `yaml:"max_metrics"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// LoadConfig reads and validates the YAML config at path. Unknown keys are
// an error.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.UnmarshalStrict(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Classifier.Strategy == "" {
		c.Classifier.Strategy = "balanced"
	}
	if c.Classifier.CacheStrategy == "" {
		c.Classifier.CacheStrategy = "balanced"
	}
	if c.Classifier.CacheTTLHours <= 0 {
		c.Classifier.CacheTTLHours = 24
	}
	if c.Classifier.MaxCacheSize <= 0 {
		c.Classifier.MaxCacheSize = 1000
	}
	if c.Classifier.ReviewThreshold <= 0 {
		c.Classifier.ReviewThreshold = 0.7
	}
	if c.Health.CheckIntervalSeconds <= 0 {
		c.Health.CheckIntervalSeconds = 30
	}
	if c.Health.CheckTimeoutSeconds <= 0 {
		c.Health.CheckTimeoutSeconds = 10
	}
	if c.Health.MaxMetrics <= 0 {
		c.Health.MaxMetrics = 10000
	}
}

func (c *Config) validate() error {
	if _, err := c.Classifier.OptimizerStrategy(); err != nil {
		return err
	}
	if _, err := c.Classifier.CachePolicy(); err != nil {
		return err
	}
	if c.Classifier.ReviewThreshold > 1 {
		return fmt.Errorf("classifier.review_threshold must be in (0,1], got %v", c.Classifier.ReviewThreshold)
	}
	for tierName := range c.Classifier.LLM.Models {
		if _, err := parseTier(tierName); err != nil {
			return err
		}
	}
	return nil
}

// OptimizerStrategy maps the configured strategy name to its enum.
func (c *ClassifierConfig) OptimizerStrategy() (classify.Strategy, error) {
	switch strings.ToLower(c.Strategy) {
	case "aggressive":
		return classify.StrategyAggressive, nil
	case "", "balanced":
		return classify.StrategyBalanced, nil
	case "accuracy_first":
		return classify.StrategyAccuracyFirst, nil
	case "enterprise":
		return classify.StrategyEnterprise, nil
	}
	return 0, fmt.Errorf("unknown classifier.strategy %q", c.Strategy)
}

// CachePolicy maps the configured cache strategy name to its enum.
func (c *ClassifierConfig) CachePolicy() (classify.CacheStrategy, error) {
	switch strings.ToLower(c.CacheStrategy) {
	case "conservative":
		return classify.CacheConservative, nil
	case "", "balanced":
		return classify.CacheBalanced, nil
	case "aggressive":
		return classify.CacheAggressive, nil
	}
	return 0, fmt.Errorf("unknown classifier.cache_strategy %q", c.CacheStrategy)
}

// CacheTTL returns the configured TTL as a duration.
func (c *ClassifierConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// TierModels converts the tier-name keyed model map to its typed form.
func (c *LLMConfig) TierModels() (map[classify.Tier]string, error) {
	out := make(map[classify.Tier]string, len(c.Models))
	for name, model := range c.Models {
		tier, err := parseTier(name)
		if err != nil {
			return nil, err
		}
		out[tier] = model
	}
	return out, nil
}

func parseTier(name string) (classify.Tier, error) {
	switch strings.ToLower(name) {
	case "lite":
		return classify.TierLite, nil
	case "premium":
		return classify.TierPremium, nil
	case "advanced":
		return classify.TierAdvanced, nil
	}
	return 0, fmt.Errorf("unknown LLM tier %q", name)
}
