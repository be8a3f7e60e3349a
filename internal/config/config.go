package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/legal-case-rag/internal/core/domain"
	"github.com/kirillkom/legal-case-rag/internal/infrastructure/resilience"
)

// Config is filled from defaults, then the optional YAML file named by
// CONFIG_FILE, then environment variables.
type Config struct {
	APIPort  string `yaml:"api_port"`
	APIKey   string `yaml:"api_key"`
	LogLevel string `yaml:"log_level"`

	CorpusPath    string  `yaml:"corpus_path"`
	BM25K1        float64 `yaml:"bm25_k1"`
	BM25B         float64 `yaml:"bm25_b"`
	SnippetWindow int     `yaml:"snippet_window"`

	OllamaURL         string  `yaml:"ollama_url"`
	OllamaGenModel    string  `yaml:"ollama_gen_model"`
	OllamaEmbedModel  string  `yaml:"ollama_embed_model"`
	OllamaTemperature float64 `yaml:"ollama_temperature"`
	OllamaTopP        float64 `yaml:"ollama_top_p"`
	OllamaNumPredict  int     `yaml:"ollama_num_predict"`

	QdrantURL        string `yaml:"qdrant_url"`
	QdrantCollection string `yaml:"qdrant_collection"`
	QdrantDistance   string `yaml:"qdrant_distance"`
	DenseEnabled     bool   `yaml:"dense_enabled"`

	AgentMaxTurns                 int `yaml:"agent_max_turns"`
	AgentGenerationTimeoutSeconds int `yaml:"agent_generation_timeout_seconds"`
	AgentToolTimeoutSeconds       int `yaml:"agent_tool_timeout_seconds"`
	AgentStatePreviewChars        int `yaml:"agent_state_preview_chars"`
	AgentDefaultTopN              int `yaml:"agent_default_top_n"`

	PostgresDSN string `yaml:"postgres_dsn"`

	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`

	EmbedPartTags  string `yaml:"embed_part_tags"`
	EmbedBatchSize int    `yaml:"embed_batch_size"`
	ChunkSize      int    `yaml:"chunk_size"`
	ChunkOverlap   int    `yaml:"chunk_overlap"`

	APIRateLimitRPS   float64 `yaml:"api_rate_limit_rps"`
	APIRateLimitBurst int     `yaml:"api_rate_limit_burst"`
	APIMaxInFlight    int     `yaml:"api_max_in_flight"`
	APIOverloadWaitMS int     `yaml:"api_overload_wait_ms"`
	OpenAPIValidation bool    `yaml:"openapi_validation"`

	ResilienceRetryMaxAttempts      int     `yaml:"resilience_retry_max_attempts"`
	ResilienceRetryInitialBackoffMS int     `yaml:"resilience_retry_initial_backoff_ms"`
	ResilienceRetryMaxBackoffMS     int     `yaml:"resilience_retry_max_backoff_ms"`
	ResilienceBreakerEnabled        bool    `yaml:"resilience_breaker_enabled"`
	ResilienceBreakerFailureRatio   float64 `yaml:"resilience_breaker_failure_ratio"`
	ResilienceBreakerOpenSeconds    int     `yaml:"resilience_breaker_open_seconds"`

	WorkerMetricsPort string `yaml:"worker_metrics_port"`
}

func defaults() Config {
	return Config{
		APIPort:  "8080",
		LogLevel: "info",

		CorpusPath:    "./data/legal_cases.xml",
		BM25K1:        1.5,
		BM25B:         0.75,
		SnippetWindow: 160,

		OllamaURL:         "http://localhost:11434",
		OllamaGenModel:    "qwen2.5:14b",
		OllamaEmbedModel:  "nomic-embed-text",
		OllamaTemperature: 0.7,
		OllamaTopP:        0.9,
		OllamaNumPredict:  1024,

		QdrantURL:        "http://localhost:6333",
		QdrantCollection: "legal_parts",
		QdrantDistance:   "Cosine",
		DenseEnabled:     true,

		AgentMaxTurns:                 5,
		AgentGenerationTimeoutSeconds: 120,
		AgentToolTimeoutSeconds:       30,
		AgentStatePreviewChars:        1000,
		AgentDefaultTopN:              3,

		NATSURL:     "nats://localhost:4222",
		NATSSubject: "corpus.embed",

		EmbedPartTags:  "Paragraph,Issue,Decision,Votes",
		EmbedBatchSize: 16,
		ChunkSize:      2000,
		ChunkOverlap:   200,

		APIRateLimitRPS:   20,
		APIRateLimitBurst: 40,
		APIMaxInFlight:    32,
		APIOverloadWaitMS: 250,
		OpenAPIValidation: true,

		ResilienceRetryMaxAttempts:      3,
		ResilienceRetryInitialBackoffMS: 100,
		ResilienceRetryMaxBackoffMS:     400,
		ResilienceBreakerEnabled:        true,
		ResilienceBreakerFailureRatio:   0.5,
		ResilienceBreakerOpenSeconds:    30,

		WorkerMetricsPort: "9090",
	}
}

func Load() (Config, error) {
	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.APIPort = mustEnv("API_PORT", cfg.APIPort)
	cfg.APIKey = mustEnv("API_KEY", cfg.APIKey)
	cfg.LogLevel = mustEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.CorpusPath = mustEnv("CORPUS_PATH", cfg.CorpusPath)
	cfg.BM25K1 = mustEnvFloat("BM25_K1", cfg.BM25K1)
	cfg.BM25B = mustEnvFloat("BM25_B", cfg.BM25B)
	cfg.SnippetWindow = mustEnvInt("SNIPPET_WINDOW", cfg.SnippetWindow)

	cfg.OllamaURL = mustEnv("OLLAMA_URL", cfg.OllamaURL)
	cfg.OllamaGenModel = mustEnv("OLLAMA_GEN_MODEL", cfg.OllamaGenModel)
	cfg.OllamaEmbedModel = mustEnv("OLLAMA_EMBED_MODEL", cfg.OllamaEmbedModel)
	cfg.OllamaTemperature = mustEnvFloat("OLLAMA_TEMPERATURE", cfg.OllamaTemperature)
	cfg.OllamaTopP = mustEnvFloat("OLLAMA_TOP_P", cfg.OllamaTopP)
	cfg.OllamaNumPredict = mustEnvInt("OLLAMA_NUM_PREDICT", cfg.OllamaNumPredict)

	cfg.QdrantURL = mustEnv("QDRANT_URL", cfg.QdrantURL)
	cfg.QdrantCollection = mustEnv("QDRANT_COLLECTION", cfg.QdrantCollection)
	cfg.QdrantDistance = mustEnv("QDRANT_DISTANCE", cfg.QdrantDistance)
	cfg.DenseEnabled = mustEnvBool("DENSE_ENABLED", cfg.DenseEnabled)

	cfg.AgentMaxTurns = mustEnvInt("AGENT_MAX_TURNS", cfg.AgentMaxTurns)
	cfg.AgentGenerationTimeoutSeconds = mustEnvInt("AGENT_GENERATION_TIMEOUT_SECONDS", cfg.AgentGenerationTimeoutSeconds)
	cfg.AgentToolTimeoutSeconds = mustEnvInt("AGENT_TOOL_TIMEOUT_SECONDS", cfg.AgentToolTimeoutSeconds)
	cfg.AgentStatePreviewChars = mustEnvInt("AGENT_STATE_PREVIEW_CHARS", cfg.AgentStatePreviewChars)
	cfg.AgentDefaultTopN = mustEnvInt("AGENT_DEFAULT_TOP_N", cfg.AgentDefaultTopN)

	cfg.PostgresDSN = mustEnv("POSTGRES_DSN", cfg.PostgresDSN)

	cfg.NATSURL = mustEnv("NATS_URL", cfg.NATSURL)
	cfg.NATSSubject = mustEnv("NATS_SUBJECT", cfg.NATSSubject)

	cfg.EmbedPartTags = mustEnv("EMBED_PART_TAGS", cfg.EmbedPartTags)
	cfg.EmbedBatchSize = mustEnvInt("EMBED_BATCH_SIZE", cfg.EmbedBatchSize)
	cfg.ChunkSize = mustEnvInt("CHUNK_SIZE", cfg.ChunkSize)
	cfg.ChunkOverlap = mustEnvInt("CHUNK_OVERLAP", cfg.ChunkOverlap)

	cfg.APIRateLimitRPS = mustEnvFloat("API_RATE_LIMIT_RPS", cfg.APIRateLimitRPS)
	cfg.APIRateLimitBurst = mustEnvInt("API_RATE_LIMIT_BURST", cfg.APIRateLimitBurst)
	cfg.APIMaxInFlight = mustEnvInt("API_MAX_IN_FLIGHT", cfg.APIMaxInFlight)
	cfg.APIOverloadWaitMS = mustEnvInt("API_OVERLOAD_WAIT_MS", cfg.APIOverloadWaitMS)
	cfg.OpenAPIValidation = mustEnvBool("OPENAPI_VALIDATION", cfg.OpenAPIValidation)

	cfg.ResilienceRetryMaxAttempts = mustEnvInt("RESILIENCE_RETRY_MAX_ATTEMPTS", cfg.ResilienceRetryMaxAttempts)
	cfg.ResilienceRetryInitialBackoffMS = mustEnvInt("RESILIENCE_RETRY_INITIAL_BACKOFF_MS", cfg.ResilienceRetryInitialBackoffMS)
	cfg.ResilienceRetryMaxBackoffMS = mustEnvInt("RESILIENCE_RETRY_MAX_BACKOFF_MS", cfg.ResilienceRetryMaxBackoffMS)
	cfg.ResilienceBreakerEnabled = mustEnvBool("RESILIENCE_BREAKER_ENABLED", cfg.ResilienceBreakerEnabled)
	cfg.ResilienceBreakerFailureRatio = mustEnvFloat("RESILIENCE_BREAKER_FAILURE_RATIO", cfg.ResilienceBreakerFailureRatio)
	cfg.ResilienceBreakerOpenSeconds = mustEnvInt("RESILIENCE_BREAKER_OPEN_SECONDS", cfg.ResilienceBreakerOpenSeconds)

	cfg.WorkerMetricsPort = mustEnv("WORKER_METRICS_PORT", cfg.WorkerMetricsPort)
	return cfg, nil
}

// PartTags splits EmbedPartTags on commas.
func (c Config) PartTags() []string {
	var tags []string
	for _, tag := range strings.Split(c.EmbedPartTags, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func (c Config) AgentLimits() domain.AgentLimits {
	return domain.AgentLimits{
		MaxTurns:          c.AgentMaxTurns,
		GenerationTimeout: time.Duration(c.AgentGenerationTimeoutSeconds) * time.Second,
		ToolTimeout:       time.Duration(c.AgentToolTimeoutSeconds) * time.Second,
		StatePreviewChars: c.AgentStatePreviewChars,
		DefaultTopN:       c.AgentDefaultTopN,
	}.Normalize()
}

// AgentRunTimeout bounds one agent request: every turn may use a full
// generation and tool timeout, plus the forced final round.
func (c Config) AgentRunTimeout() time.Duration {
	limits := c.AgentLimits()
	turns := max(limits.MaxTurns, domain.MaxTurnsLimit)
	return time.Duration(turns)*(limits.GenerationTimeout+limits.ToolTimeout) + limits.GenerationTimeout + 30*time.Second
}

func (c Config) Resilience() resilience.Config {
	cfg := resilience.DefaultConfig()
	cfg.RetryMaxAttempts = c.ResilienceRetryMaxAttempts
	cfg.RetryInitialBackoff = time.Duration(c.ResilienceRetryInitialBackoffMS) * time.Millisecond
	cfg.RetryMaxBackoff = time.Duration(c.ResilienceRetryMaxBackoffMS) * time.Millisecond
	cfg.BreakerEnabled = c.ResilienceBreakerEnabled
	cfg.BreakerFailureRatio = c.ResilienceBreakerFailureRatio
	cfg.BreakerOpenTimeout = time.Duration(c.ResilienceBreakerOpenSeconds) * time.Second
	return cfg
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
