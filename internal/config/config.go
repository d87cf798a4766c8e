// Package config loads the wizardd process's runtime configuration:
// typed defaults, overridden by an optional YAML config file (with
// environment-variable expansion applied to the file's contents before
// decoding), overridden in turn by prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that decodes from YAML either as a Go
// duration string ("90s", "5m") or as integer nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
		return nil
	case int:
		*d = Duration(v)
		return nil
	case int64:
		*d = Duration(v)
		return nil
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is everything cmd/wizardd needs to stand up the worker pool and
// its HTTP surface.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	LLM      LLMConfig      `yaml:"llm"`
	Embed    EmbedConfig    `yaml:"embed"`
	Rerank   RerankConfig   `yaml:"rerank"`
	RAG      RAGConfig      `yaml:"rag"`
	Queue    QueueConfig    `yaml:"queue"`
	Blobs    BlobConfig     `yaml:"blobs"`
	Worker   WorkerConfig   `yaml:"worker"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Log      LogConfig      `yaml:"log"`
	Trace    TraceConfig    `yaml:"trace"`
}

// ServerConfig configures the HTTP listener serving the task queue backend
// and, when an agent loop is wired, the SSE chat endpoint.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// AuthConfig configures internal/auth.Service. A zero value disables auth
// checks entirely, matching internal/auth.Service.Enabled()'s own rule.
type AuthConfig struct {
	JWTSecret   string   `yaml:"jwt_secret"`
	TokenExpiry Duration `yaml:"token_expiry"`
}

// LLMConfig selects and configures the chat-completion backend: either an
// OpenAI-compatible endpoint or AWS Bedrock, per internal/llm's two
// implementations.
type LLMConfig struct {
	Provider      string `yaml:"provider"` // "openai" or "bedrock"
	BaseURL       string `yaml:"base_url"`
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	ThinkingModel string `yaml:"thinking_model"`
	Region        string `yaml:"region"`
}

// EmbedConfig configures internal/embed.Client.
type EmbedConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// RerankConfig configures internal/rag/rerank.Reranker. A zero BaseURL
// disables reranking (dedup-only pass-through).
type RerankConfig struct {
	BaseURL   string  `yaml:"base_url"`
	APIKey    string  `yaml:"api_key"`
	Model     string  `yaml:"model"`
	K         int     `yaml:"k"`
	Threshold float64 `yaml:"threshold"`
}

// RAGConfig configures the retrieval/resource tool registry's backends.
type RAGConfig struct {
	QdrantHost     string `yaml:"qdrant_host"`
	QdrantPort     int    `yaml:"qdrant_port"`
	QdrantAPIKey   string `yaml:"qdrant_api_key"`
	ResourceAPIURL string `yaml:"resource_api_url"`
	ResourceAPIKey string `yaml:"resource_api_key"`
	WebSearchURL   string `yaml:"websearch_url"`
}

// QueueConfig points the worker pool at its task queue backend, and selects
// the backend's own storage: in-process memory by default, Redis when
// RedisAddr is set.
type QueueConfig struct {
	BaseURL       string `yaml:"base_url"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

// BlobConfig configures the oversized-callback object store. A zero Bucket
// leaves large-payload offload disabled.
type BlobConfig struct {
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// WorkerConfig controls the worker pool's size and timeouts.
type WorkerConfig struct {
	Count         int      `yaml:"count"`
	GlobalTimeout Duration `yaml:"global_timeout"`
	CheckInterval Duration `yaml:"check_interval"`
}

// ScheduleConfig optionally enables a cron-triggered recurring agent run.
type ScheduleConfig struct {
	AgentRunSpec string `yaml:"agent_run_spec"` // cron expression; empty disables the entry
	NamespaceID  string `yaml:"namespace_id"`
	DefaultQuery string `yaml:"default_query"`
}

// LogConfig mirrors internal/observability.LogConfig's env-driven fields.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TraceConfig mirrors internal/observability.TraceConfig's env-driven
// fields. An empty Endpoint disables tracing.
type TraceConfig struct {
	ServiceName string `yaml:"service_name"`
	Environment string `yaml:"environment"`
	Endpoint    string `yaml:"endpoint"`
}

// Load builds the Config in three layers: built-in defaults, then the YAML
// file named by <prefix>_CONFIG (if set — the file's contents pass through
// os.ExpandEnv before decoding, so values like api_key: ${MY_KEY} resolve),
// then individual <prefix>_* environment-variable overrides.
func Load(prefix string) (*Config, error) {
	env := envReader{prefix: strings.TrimSuffix(prefix, "_")}

	cfg := defaults()

	if path := env.str("CONFIG", ""); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg, env)

	if err := validate(cfg, env); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Auth:   AuthConfig{TokenExpiry: Duration(24 * time.Hour)},
		LLM: LLMConfig{
			Provider: "openai",
			BaseURL:  "https://api.openai.com/v1",
			Model:    "gpt-4o-mini",
			Region:   "us-east-1",
		},
		Embed:  EmbedConfig{Model: "text-embedding-3-small"},
		Rerank: RerankConfig{K: 10},
		RAG:    RAGConfig{QdrantHost: "localhost", QdrantPort: 6334},
		Queue:  QueueConfig{BaseURL: "http://localhost:8080", RedisPrefix: "wizard"},
		Blobs:  BlobConfig{Region: "us-east-1"},
		Worker: WorkerConfig{
			Count:         1,
			GlobalTimeout: Duration(5 * time.Minute),
			CheckInterval: Duration(3 * time.Second),
		},
		Log:   LogConfig{Level: "info", Format: "json"},
		Trace: TraceConfig{ServiceName: "wizardd", Environment: "development"},
	}
}

// applyFile decodes a YAML config file over cfg. The raw bytes pass
// through os.ExpandEnv first, so the file can reference secrets by
// environment variable without embedding them.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))

	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// applyEnv layers individual environment-variable overrides on top of the
// defaults and any file-provided values.
func applyEnv(cfg *Config, env envReader) {
	cfg.Server.Host = env.str("HOST", cfg.Server.Host)
	cfg.Server.Port = env.num("PORT", cfg.Server.Port)

	cfg.Auth.JWTSecret = env.str("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.TokenExpiry = env.dur("TOKEN_EXPIRY", cfg.Auth.TokenExpiry)

	cfg.LLM.Provider = env.str("LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.BaseURL = env.str("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = env.str("LLM_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.Model = env.str("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.ThinkingModel = env.str("LLM_THINKING_MODEL", cfg.LLM.ThinkingModel)
	cfg.LLM.Region = env.str("LLM_REGION", cfg.LLM.Region)

	cfg.Embed.APIKey = env.str("EMBED_API_KEY", cfg.Embed.APIKey)
	cfg.Embed.BaseURL = env.str("EMBED_BASE_URL", cfg.Embed.BaseURL)
	cfg.Embed.Model = env.str("EMBED_MODEL", cfg.Embed.Model)

	cfg.Rerank.BaseURL = env.str("RERANK_BASE_URL", cfg.Rerank.BaseURL)
	cfg.Rerank.APIKey = env.str("RERANK_API_KEY", cfg.Rerank.APIKey)
	cfg.Rerank.Model = env.str("RERANK_MODEL", cfg.Rerank.Model)
	cfg.Rerank.K = env.num("RERANK_K", cfg.Rerank.K)
	cfg.Rerank.Threshold = env.flt("RERANK_THRESHOLD", cfg.Rerank.Threshold)

	cfg.RAG.QdrantHost = env.str("QDRANT_HOST", cfg.RAG.QdrantHost)
	cfg.RAG.QdrantPort = env.num("QDRANT_PORT", cfg.RAG.QdrantPort)
	cfg.RAG.QdrantAPIKey = env.str("QDRANT_API_KEY", cfg.RAG.QdrantAPIKey)
	cfg.RAG.ResourceAPIURL = env.str("RESOURCE_API_URL", cfg.RAG.ResourceAPIURL)
	cfg.RAG.ResourceAPIKey = env.str("RESOURCE_API_KEY", cfg.RAG.ResourceAPIKey)
	cfg.RAG.WebSearchURL = env.str("WEBSEARCH_URL", cfg.RAG.WebSearchURL)

	cfg.Queue.BaseURL = env.str("QUEUE_BASE_URL", cfg.Queue.BaseURL)
	cfg.Queue.RedisAddr = env.str("QUEUE_REDIS_ADDR", cfg.Queue.RedisAddr)
	cfg.Queue.RedisPassword = env.str("QUEUE_REDIS_PASSWORD", cfg.Queue.RedisPassword)
	cfg.Queue.RedisDB = env.num("QUEUE_REDIS_DB", cfg.Queue.RedisDB)
	cfg.Queue.RedisPrefix = env.str("QUEUE_REDIS_PREFIX", cfg.Queue.RedisPrefix)

	cfg.Blobs.Bucket = env.str("BLOBS_BUCKET", cfg.Blobs.Bucket)
	cfg.Blobs.Region = env.str("BLOBS_REGION", cfg.Blobs.Region)
	cfg.Blobs.Endpoint = env.str("BLOBS_ENDPOINT", cfg.Blobs.Endpoint)

	cfg.Worker.Count = env.num("WORKERS", cfg.Worker.Count)
	cfg.Worker.GlobalTimeout = env.dur("WORKER_GLOBAL_TIMEOUT", cfg.Worker.GlobalTimeout)
	cfg.Worker.CheckInterval = env.dur("WORKER_CHECK_INTERVAL", cfg.Worker.CheckInterval)

	cfg.Schedule.AgentRunSpec = env.str("SCHEDULE_SPEC", cfg.Schedule.AgentRunSpec)
	cfg.Schedule.NamespaceID = env.str("SCHEDULE_NAMESPACE", cfg.Schedule.NamespaceID)
	cfg.Schedule.DefaultQuery = env.str("SCHEDULE_QUERY", cfg.Schedule.DefaultQuery)

	// Log and trace settings follow the conventional unprefixed names other
	// services in the deployment already export, with prefixed overrides.
	cfg.Log.Level = env.fallback("LOG_LEVEL", "LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = env.fallback("LOG_FORMAT", "LOG_FORMAT", cfg.Log.Format)
	cfg.Trace.ServiceName = env.str("SERVICE_NAME", cfg.Trace.ServiceName)
	cfg.Trace.Environment = env.str("ENVIRONMENT", cfg.Trace.Environment)
	cfg.Trace.Endpoint = env.fallback("OTEL_ENDPOINT", "OTEL_ENDPOINT", cfg.Trace.Endpoint)
}

func validate(cfg *Config, env envReader) error {
	if cfg.LLM.Provider != "openai" && cfg.LLM.Provider != "bedrock" {
		return fmt.Errorf("config: unknown %s %q", env.name("LLM_PROVIDER"), cfg.LLM.Provider)
	}
	if cfg.LLM.Provider == "openai" && cfg.LLM.APIKey == "" {
		return fmt.Errorf("config: %s is required for provider openai", env.name("LLM_API_KEY"))
	}
	if cfg.Worker.Count < 1 {
		return fmt.Errorf("config: %s must be at least 1", env.name("WORKERS"))
	}
	return nil
}

// envReader resolves environment variables under one prefix.
type envReader struct {
	prefix string
}

func (e envReader) name(key string) string {
	if e.prefix == "" {
		return key
	}
	return e.prefix + "_" + key
}

func (e envReader) str(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(e.name(key))); v != "" {
		return v
	}
	return fallback
}

// fallback reads the prefixed name first, then an unprefixed conventional
// name shared with neighboring services.
func (e envReader) fallback(key, bare, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(e.name(key))); v != "" {
		return v
	}
	if v := strings.TrimSpace(os.Getenv(bare)); v != "" {
		return v
	}
	return fallback
}

func (e envReader) num(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(e.name(key)))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func (e envReader) flt(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(e.name(key)))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func (e envReader) dur(key string, fallback Duration) Duration {
	v := strings.TrimSpace(os.Getenv(e.name(key)))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return Duration(d)
}
