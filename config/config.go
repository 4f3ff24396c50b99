package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the grant generation service. It is
// built once at process start and passed by reference to every constructor.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Agents    AgentsConfig    `mapstructure:"agents"`
	Search    SearchConfig    `mapstructure:"search"`
	Export    ExportConfig    `mapstructure:"export"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug             bool          `mapstructure:"debug"`
	LogLevel          string        `mapstructure:"log_level"`
	DataDir           string        `mapstructure:"data_dir"`
	DefaultTimeout    time.Duration `mapstructure:"default_timeout"`
	MaxProcessingTime time.Duration `mapstructure:"max_processing_time"`
}

// ServerConfig contains the HTTP listener settings
type ServerConfig struct {
	Listen    string `mapstructure:"listen"`
	StaticDir string `mapstructure:"static_dir"`
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type    string              `mapstructure:"type"` // openai
	APIKey  string              `mapstructure:"api_key"`
	BaseURL string              `mapstructure:"base_url"`
	Models  map[string]LLMModel `mapstructure:"models"`
	Timeout time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name            string  `mapstructure:"name"`
	APIName         string  `mapstructure:"api_name"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	CostPer1K       float64 `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64 `mapstructure:"cost_per_1k_output"`
}

// LLMRoutingConfig defines which model to use for different roles
type LLMRoutingConfig struct {
	Planning string `mapstructure:"planning"` // drives the stepwise planner
	Research string `mapstructure:"research"` // research and browsing agents
	Writing  string `mapstructure:"writing"`  // writer agent
	Review   string `mapstructure:"review"`   // alignment and quality agents
	Fallback string `mapstructure:"fallback"`
}

// AgentsConfig contains agent and planning-loop settings
type AgentsConfig struct {
	MaxPlanIterations int           `mapstructure:"max_plan_iterations"`
	AgentTimeout      time.Duration `mapstructure:"agent_timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
}

// SearchConfig contains web search provider settings
type SearchConfig struct {
	DuckDuckGoEnabled bool          `mapstructure:"duckduckgo_enabled"`
	SerperAPIKey      string        `mapstructure:"serper_api_key"`
	BraveAPIKey       string        `mapstructure:"brave_api_key"`
	MaxResults        int           `mapstructure:"max_results"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// ExportConfig contains document export settings
type ExportConfig struct {
	AttachmentName string `mapstructure:"attachment_name"`
}

// TelemetryConfig contains telemetry and cost-tracking settings
type TelemetryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	CostTracking bool `mapstructure:"cost_tracking"`
}

// LoadDotEnv loads a .env file when present, before viper reads the
// environment. Missing files are not an error.
func LoadDotEnv(path string) {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err == nil {
		_ = godotenv.Load(path)
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(cfgPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("grantforge")
	v.SetConfigType("yaml")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("GRANTFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional; defaults plus env cover the common case.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgPath != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	overrideFromEnv(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.debug", false)
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.data_dir", "./data")
	v.SetDefault("general.default_timeout", "30s")
	v.SetDefault("general.max_processing_time", "10m")

	v.SetDefault("server.listen", ":5000")
	v.SetDefault("server.static_dir", "./web")

	v.SetDefault("llm.routing.planning", "gpt-4o")
	v.SetDefault("llm.routing.research", "gpt-4o")
	v.SetDefault("llm.routing.writing", "gpt-4o")
	v.SetDefault("llm.routing.review", "gpt-4o-mini")
	v.SetDefault("llm.routing.fallback", "gpt-4o-mini")
	v.SetDefault("llm.providers.openai.type", "openai")
	v.SetDefault("llm.providers.openai.timeout", "120s")
	v.SetDefault("llm.providers.openai.models.gpt-4o.name", "gpt-4o")
	v.SetDefault("llm.providers.openai.models.gpt-4o.max_tokens", 4000)
	v.SetDefault("llm.providers.openai.models.gpt-4o.temperature", 0.7)
	v.SetDefault("llm.providers.openai.models.gpt-4o.cost_per_1k_input", 0.0025)
	v.SetDefault("llm.providers.openai.models.gpt-4o.cost_per_1k_output", 0.01)
	v.SetDefault("llm.providers.openai.models.gpt-4o-mini.name", "gpt-4o-mini")
	v.SetDefault("llm.providers.openai.models.gpt-4o-mini.max_tokens", 4000)
	v.SetDefault("llm.providers.openai.models.gpt-4o-mini.temperature", 0.7)
	v.SetDefault("llm.providers.openai.models.gpt-4o-mini.cost_per_1k_input", 0.00015)
	v.SetDefault("llm.providers.openai.models.gpt-4o-mini.cost_per_1k_output", 0.0006)

	v.SetDefault("agents.max_plan_iterations", 8)
	v.SetDefault("agents.agent_timeout", "2m")
	v.SetDefault("agents.max_retries", 2)

	v.SetDefault("search.duckduckgo_enabled", true)
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.timeout", "15s")

	v.SetDefault("export.attachment_name", "grant_application.docx")

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.cost_tracking", true)
}

// overrideFromEnv maps well-known credential variables onto config keys.
func overrideFromEnv(v *viper.Viper) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		v.Set("llm.providers.openai.api_key", apiKey)
	}
	if apiKey := os.Getenv("SERPER_API_KEY"); apiKey != "" {
		v.Set("search.serper_api_key", apiKey)
	}
	if apiKey := os.Getenv("BRAVE_SEARCH_KEY"); apiKey != "" {
		v.Set("search.brave_api_key", apiKey)
	}
}

func validateConfig(config *Config) error {
	if len(config.LLM.Providers) == 0 {
		return fmt.Errorf("at least one LLM provider must be configured")
	}

	var hasKey bool
	for name, provider := range config.LLM.Providers {
		if provider.Type == "" {
			return fmt.Errorf("provider %q missing type", name)
		}
		if provider.APIKey != "" {
			hasKey = true
		}
	}
	if !hasKey {
		return fmt.Errorf("no LLM provider credentials configured (set OPENAI_API_KEY)")
	}

	routingModels := []string{
		config.LLM.Routing.Planning,
		config.LLM.Routing.Research,
		config.LLM.Routing.Writing,
		config.LLM.Routing.Review,
		config.LLM.Routing.Fallback,
	}
	for _, model := range routingModels {
		if model == "" {
			continue
		}
		found := false
		for _, provider := range config.LLM.Providers {
			if _, ok := provider.Models[model]; ok {
				found = true
				break
			}
			for _, pm := range provider.Models {
				if pm.Name == model {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return fmt.Errorf("routing model '%s' not found in any provider", model)
		}
	}

	if config.Agents.MaxPlanIterations <= 0 {
		return fmt.Errorf("agents.max_plan_iterations must be positive")
	}

	return nil
}
