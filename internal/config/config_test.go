package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("AGENT_MAX_TURNS", "")
	t.Setenv("BM25_K1", "")
	t.Setenv("EMBED_PART_TAGS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BM25K1 != 1.5 || cfg.BM25B != 0.75 {
		t.Fatalf("unexpected bm25 defaults k1=%v b=%v", cfg.BM25K1, cfg.BM25B)
	}
	if cfg.AgentMaxTurns != 5 || cfg.AgentDefaultTopN != 3 {
		t.Fatalf("unexpected agent defaults: %+v", cfg)
	}
	if got := cfg.PartTags(); len(got) != 4 || got[0] != "Paragraph" {
		t.Fatalf("unexpected part tags %v", got)
	}
	if cfg.OllamaTemperature != 0.7 || cfg.OllamaTopP != 0.9 || cfg.OllamaNumPredict != 1024 {
		t.Fatalf("unexpected generation defaults: %+v", cfg)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("AGENT_MAX_TURNS", "8")
	t.Setenv("AGENT_TOOL_TIMEOUT_SECONDS", "4")
	t.Setenv("BM25_B", "0.6")
	t.Setenv("DENSE_ENABLED", "false")
	t.Setenv("CHUNK_SIZE", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AgentMaxTurns != 8 || cfg.BM25B != 0.6 || cfg.DenseEnabled {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.ChunkSize != 2000 {
		t.Fatalf("invalid int should keep fallback, got %d", cfg.ChunkSize)
	}
	limits := cfg.AgentLimits()
	if limits.MaxTurns != 8 || limits.ToolTimeout != 4*time.Second {
		t.Fatalf("unexpected limits %+v", limits)
	}
}

func TestLoadAppliesYAMLFileBeforeEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legalrag.yaml")
	content := "corpus_path: /srv/cases.xml\nagent_max_turns: 3\nqdrant_distance: Euclid\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("CORPUS_PATH", "")
	t.Setenv("QDRANT_DISTANCE", "")
	t.Setenv("AGENT_MAX_TURNS", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CorpusPath != "/srv/cases.xml" || cfg.QdrantDistance != "Euclid" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.AgentMaxTurns != 7 {
		t.Fatalf("env should win over file, got %d", cfg.AgentMaxTurns)
	}
	if cfg.APIPort != "8080" {
		t.Fatalf("keys absent from the file keep defaults, got %q", cfg.APIPort)
	}
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("agent_max_turns: [oops"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestResilienceMapping(t *testing.T) {
	cfg := defaults()
	cfg.ResilienceRetryMaxAttempts = 5
	cfg.ResilienceBreakerOpenSeconds = 10
	rc := cfg.Resilience()
	if rc.RetryMaxAttempts != 5 || rc.BreakerOpenTimeout != 10*time.Second || !rc.BreakerEnabled {
		t.Fatalf("unexpected resilience config %+v", rc)
	}
}

func TestAgentRunTimeoutCoversLargestTurnBudget(t *testing.T) {
	cfg := defaults()
	cfg.AgentMaxTurns = 5
	cfg.AgentGenerationTimeoutSeconds = 10
	cfg.AgentToolTimeoutSeconds = 2
	if got, want := cfg.AgentRunTimeout(), 20*12*time.Second+10*time.Second+30*time.Second; got != want {
		t.Fatalf("AgentRunTimeout() = %v, want %v", got, want)
	}

	cfg.AgentMaxTurns = 30
	if got, want := cfg.AgentRunTimeout(), 30*12*time.Second+10*time.Second+30*time.Second; got != want {
		t.Fatalf("AgentRunTimeout() = %v, want %v", got, want)
	}
}
