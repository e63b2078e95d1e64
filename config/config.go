package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the reading companion.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Backends  BackendsConfig  `mapstructure:"backends"`
	Agents    AgentsConfig    `mapstructure:"agents"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug             bool          `mapstructure:"debug"`
	LogLevel          string        `mapstructure:"log_level"`
	DefaultTimeout    time.Duration `mapstructure:"default_timeout"`
	MaxProcessingTime time.Duration `mapstructure:"max_processing_time"`
}

// ServerConfig contains HTTP server and auth settings.
type ServerConfig struct {
	Listen    string `mapstructure:"listen"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// BackendsConfig describes the model-backend catalog and routing tables.
type BackendsConfig struct {
	Provider      ProviderConfig         `mapstructure:"provider"`
	Catalog       []BackendConfig        `mapstructure:"catalog"`
	TaskProfiles  map[string]TaskProfile `mapstructure:"task_profiles"`
	Default       string                 `mapstructure:"default"`
	FastFallbacks []string               `mapstructure:"fast_fallbacks"`
}

// ProviderConfig configures the OpenAI-compatible completion endpoint.
type ProviderConfig struct {
	Type    string        `mapstructure:"type"` // openai, or any openai-compatible server
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// BackendConfig describes one interchangeable text-generation backend.
// Capability ratings are on a 0-10 scale.
type BackendConfig struct {
	Name            string        `mapstructure:"name"`
	APIName         string        `mapstructure:"api_name"`
	Speed           float64       `mapstructure:"speed"`
	Accuracy        float64       `mapstructure:"accuracy"`
	Reasoning       float64       `mapstructure:"reasoning"`
	Creativity      float64       `mapstructure:"creativity"`
	BaseTimeout     time.Duration `mapstructure:"base_timeout"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Temperature     float64       `mapstructure:"temperature"`
	CostPer1KInput  float64       `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64       `mapstructure:"cost_per_1k_output"`
}

// TaskProfile maps a task type to requirement weights over the capability
// axes, an ordered backend preference list, and a timeout multiplier.
type TaskProfile struct {
	Requirements      map[string]float64 `mapstructure:"requirements"`
	Preferred         []string           `mapstructure:"preferred"`
	TimeoutMultiplier float64            `mapstructure:"timeout_multiplier"`
}

// AgentsConfig contains per-agent runtime settings.
type AgentsConfig struct {
	Definitions map[string]AgentConfig `mapstructure:"definitions"`
}

// AgentConfig is the construction-time surface of one agent runtime.
type AgentConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Specialties []string      `mapstructure:"specialties"`
	// Related lists agent names that receive high-confidence results
	// produced by this agent.
	Related []string `mapstructure:"related"`
}

// CacheConfig controls the cross-agent response cache.
type CacheConfig struct {
	TTL                 time.Duration `mapstructure:"ttl"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"`
	TopAgents           int           `mapstructure:"top_agents"`
}

// StorageConfig contains storage and persistence settings.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings.
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
	// PatternTTL bounds cached study-pattern snapshots.
	PatternTTL time.Duration `mapstructure:"pattern_ttl"`
}

// TelemetryConfig contains telemetry and monitoring settings.
type TelemetryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	MetricsPort  int  `mapstructure:"metrics_port"`
	CostTracking bool `mapstructure:"cost_tracking"`
	PeriodicLogs bool `mapstructure:"periodic_logs"`
}

// SchedulerConfig controls the periodic study-digest dispatcher.
type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CronSpec string `mapstructure:"cron_spec"`
	Agent    string `mapstructure:"agent"`
	// LookbackHours bounds which users count as recently active.
	LookbackHours int `mapstructure:"lookback_hours"`
}

// DSN builds a Postgres connection string from the configured fields.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	host := p.Host
	port := p.Port
	ssl := p.SSLMode
	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = "5432"
	}
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, host, port, p.DBName, ssl)
}

// Addr returns the host:port address for Redis.
func (r RedisConfig) Addr() string {
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return fmt.Sprintf("%s:%s", r.Host, port)
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("companion_config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("AILIBRARY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional; defaults plus env are a full configuration.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
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

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("general.debug", false)
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.default_timeout", "30s")
	v.SetDefault("general.max_processing_time", "5m")

	v.SetDefault("server.listen", ":10002")

	// Backend catalog defaults: one accurate, one balanced, one fast model.
	v.SetDefault("backends.provider.type", "openai")
	v.SetDefault("backends.provider.timeout", "60s")
	v.SetDefault("backends.default", "gpt-5-mini")
	v.SetDefault("backends.fast_fallbacks", []string{"gpt-5-nano", "gpt-5-mini"})
	v.SetDefault("backends.catalog", []map[string]interface{}{
		{
			"name": "gpt-5", "api_name": "gpt-5",
			"speed": 4, "accuracy": 9, "reasoning": 10, "creativity": 8,
			"base_timeout": "30s", "max_tokens": 4096, "temperature": 0.2,
			"cost_per_1k_input": 0.005, "cost_per_1k_output": 0.015,
		},
		{
			"name": "gpt-5-mini", "api_name": "gpt-5-mini",
			"speed": 7, "accuracy": 7, "reasoning": 7, "creativity": 7,
			"base_timeout": "12s", "max_tokens": 4096, "temperature": 0.3,
			"cost_per_1k_input": 0.0006, "cost_per_1k_output": 0.0024,
		},
		{
			"name": "gpt-5-nano", "api_name": "gpt-5-nano",
			"speed": 9, "accuracy": 5, "reasoning": 4, "creativity": 5,
			"base_timeout": "6s", "max_tokens": 2048, "temperature": 0.3,
			"cost_per_1k_input": 0.0002, "cost_per_1k_output": 0.0008,
		},
	})
	v.SetDefault("backends.task_profiles", map[string]interface{}{
		"text-analysis": map[string]interface{}{
			"requirements":       map[string]float64{"accuracy": 9, "reasoning": 7, "speed": 3, "creativity": 4},
			"preferred":          []string{"gpt-5", "gpt-5-mini"},
			"timeout_multiplier": 1.2,
		},
		"insight-generation": map[string]interface{}{
			"requirements":       map[string]float64{"reasoning": 9, "creativity": 8, "accuracy": 7, "speed": 2},
			"preferred":          []string{"gpt-5", "gpt-5-mini"},
			"timeout_multiplier": 1.5,
		},
		"quick-classification": map[string]interface{}{
			"requirements":       map[string]float64{"speed": 8, "accuracy": 2},
			"preferred":          []string{"gpt-5-nano", "gpt-5-mini"},
			"timeout_multiplier": 0.5,
		},
		"retrieval-answer": map[string]interface{}{
			"requirements":       map[string]float64{"accuracy": 8, "reasoning": 6, "speed": 5},
			"preferred":          []string{"gpt-5-mini", "gpt-5"},
			"timeout_multiplier": 1.0,
		},
		"quiz-generation": map[string]interface{}{
			"requirements":       map[string]float64{"creativity": 8, "accuracy": 7, "reasoning": 5, "speed": 3},
			"preferred":          []string{"gpt-5-mini", "gpt-5"},
			"timeout_multiplier": 1.2,
		},
		"summarization": map[string]interface{}{
			"requirements":       map[string]float64{"accuracy": 7, "speed": 6, "reasoning": 5},
			"preferred":          []string{"gpt-5-mini", "gpt-5-nano"},
			"timeout_multiplier": 0.8,
		},
		"discussion": map[string]interface{}{
			"requirements":       map[string]float64{"creativity": 9, "reasoning": 7, "accuracy": 6},
			"preferred":          []string{"gpt-5", "gpt-5-mini"},
			"timeout_multiplier": 1.3,
		},
	})

	// Agent runtime defaults: tick intervals are seconds-scale so idle
	// agents do not busy-loop.
	v.SetDefault("agents.definitions", map[string]interface{}{
		"text-analysis": map[string]interface{}{
			"interval": "3s", "max_retries": 2, "timeout": "45s",
			"specialties": []string{"themes", "structure", "summarization"},
			"related":     []string{"insights", "discussion"},
		},
		"insights": map[string]interface{}{
			"interval": "5s", "max_retries": 2, "timeout": "60s",
			"specialties": []string{"insights", "connections", "study-digest"},
			"related":     []string{"text-analysis", "quiz"},
		},
		"quiz": map[string]interface{}{
			"interval": "5s", "max_retries": 1, "timeout": "45s",
			"specialties": []string{"quiz", "comprehension"},
			"related":     []string{"insights"},
		},
		"discussion": map[string]interface{}{
			"interval": "4s", "max_retries": 2, "timeout": "60s",
			"specialties": []string{"discussion", "questions"},
			"related":     []string{"text-analysis"},
		},
		"navigation": map[string]interface{}{
			"interval": "2s", "max_retries": 1, "timeout": "15s",
			"specialties": []string{"navigation", "lookup"},
			"related":     []string{},
		},
	})

	v.SetDefault("cache.ttl", "15m")
	v.SetDefault("cache.confidence_threshold", 0.8)
	v.SetDefault("cache.top_agents", 5)

	v.SetDefault("storage.postgres.host", "")
	v.SetDefault("storage.postgres.port", "5432")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("storage.postgres.timeout", "5s")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.timeout", "5s")
	v.SetDefault("storage.redis.pattern_ttl", "10m")

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.metrics_port", 9091)
	v.SetDefault("telemetry.cost_tracking", true)
	v.SetDefault("telemetry.periodic_logs", false)

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.cron_spec", "@daily")
	v.SetDefault("scheduler.agent", "insights")
	v.SetDefault("scheduler.lookback_hours", 72)
}

// overrideFromEnv overrides configuration with environment variables for
// sensitive data.
func overrideFromEnv(v *viper.Viper) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		v.Set("backends.provider.api_key", apiKey)
	}
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		v.Set("backends.provider.base_url", base)
	}
	if secret := os.Getenv("AILIBRARY_JWT_SECRET"); secret != "" {
		v.Set("server.jwt_secret", secret)
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		v.Set("storage.postgres.url", url)
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		v.Set("storage.postgres.host", host)
	}
	if port := os.Getenv("POSTGRES_PORT"); port != "" {
		v.Set("storage.postgres.port", port)
	}
	if user := os.Getenv("POSTGRES_USER"); user != "" {
		v.Set("storage.postgres.user", user)
	}
	if pass := os.Getenv("POSTGRES_PASSWORD"); pass != "" {
		v.Set("storage.postgres.password", pass)
	}
	if db := os.Getenv("POSTGRES_DB"); db != "" {
		v.Set("storage.postgres.dbname", db)
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		v.Set("storage.redis.host", host)
	}
	if port := os.Getenv("REDIS_PORT"); port != "" {
		v.Set("storage.redis.port", port)
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		v.Set("storage.redis.password", password)
	}
	if db := os.Getenv("REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			v.Set("storage.redis.db", n)
		}
	}
}

// validateConfig validates the configuration.
func validateConfig(config *Config) error {
	if len(config.Backends.Catalog) == 0 {
		return fmt.Errorf("at least one backend must be configured")
	}

	byName := make(map[string]struct{}, len(config.Backends.Catalog))
	for _, b := range config.Backends.Catalog {
		if b.Name == "" {
			return fmt.Errorf("backend with empty name in catalog")
		}
		if _, dup := byName[b.Name]; dup {
			return fmt.Errorf("duplicate backend name: %s", b.Name)
		}
		byName[b.Name] = struct{}{}
	}

	if config.Backends.Default == "" {
		return fmt.Errorf("backends.default must be set")
	}
	if _, ok := byName[config.Backends.Default]; !ok {
		return fmt.Errorf("default backend '%s' not found in catalog", config.Backends.Default)
	}
	for _, name := range config.Backends.FastFallbacks {
		if _, ok := byName[name]; !ok {
			return fmt.Errorf("fast fallback backend '%s' not found in catalog", name)
		}
	}
	for profile, tp := range config.Backends.TaskProfiles {
		for _, name := range tp.Preferred {
			if _, ok := byName[name]; !ok {
				return fmt.Errorf("task profile '%s' prefers unknown backend '%s'", profile, name)
			}
		}
	}

	for name, agent := range config.Agents.Definitions {
		if agent.Interval <= 0 {
			return fmt.Errorf("agent '%s' must have a positive tick interval", name)
		}
		if agent.MaxRetries < 0 {
			return fmt.Errorf("agent '%s' has negative max_retries", name)
		}
		for _, rel := range agent.Related {
			if _, ok := config.Agents.Definitions[rel]; !ok {
				return fmt.Errorf("agent '%s' lists unknown related agent '%s'", name, rel)
			}
		}
	}

	if config.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	if config.Cache.ConfidenceThreshold < 0 || config.Cache.ConfidenceThreshold > 1 {
		return fmt.Errorf("cache.confidence_threshold must be within [0,1]")
	}

	return nil
}
