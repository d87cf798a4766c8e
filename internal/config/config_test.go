package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if had {
			os.Setenv(key, old)
		} else {
			os.Unsetenv(key)
		}
	})
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t, "WIZARDD_CONFIG", "WIZARDD_LLM_PROVIDER", "WIZARDD_WORKERS", "WIZARDD_HOST", "WIZARDD_PORT")
	setEnv(t, "WIZARDD_LLM_API_KEY", "test-key")

	cfg, err := Load("WIZARDD")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Worker.Count != 1 {
		t.Errorf("Worker.Count = %d, want 1", cfg.Worker.Count)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.LLM.Provider != "openai" {
		t.Errorf("LLM.Provider = %q, want openai", cfg.LLM.Provider)
	}
	if cfg.Worker.GlobalTimeout.Std() != 5*time.Minute {
		t.Errorf("Worker.GlobalTimeout = %v, want 5m", cfg.Worker.GlobalTimeout.Std())
	}
}

func TestLoadYAMLFileOverridesDefaults(t *testing.T) {
	clearEnv(t, "WIZARDD_LLM_PROVIDER", "WIZARDD_WORKERS", "WIZARDD_PORT", "WIZARDD_LLM_MODEL", "WIZARDD_WORKER_GLOBAL_TIMEOUT")
	setEnv(t, "WIZARDD_LLM_API_KEY", "test-key")

	path := filepath.Join(t.TempDir(), "wizardd.yaml")
	file := `
server:
  port: 9090
llm:
  model: gpt-4o
worker:
  count: 4
  global_timeout: 10m
`
	if err := os.WriteFile(path, []byte(file), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	setEnv(t, "WIZARDD_CONFIG", path)

	cfg, err := Load("WIZARDD")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.LLM.Model != "gpt-4o" {
		t.Errorf("LLM.Model = %q, want gpt-4o", cfg.LLM.Model)
	}
	if cfg.Worker.Count != 4 {
		t.Errorf("Worker.Count = %d, want 4", cfg.Worker.Count)
	}
	if cfg.Worker.GlobalTimeout.Std() != 10*time.Minute {
		t.Errorf("Worker.GlobalTimeout = %v, want 10m", cfg.Worker.GlobalTimeout.Std())
	}
	// Values the file doesn't set keep their defaults.
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want default", cfg.Server.Host)
	}
}

func TestLoadEnvOverridesYAMLFile(t *testing.T) {
	clearEnv(t, "WIZARDD_LLM_PROVIDER")
	setEnv(t, "WIZARDD_LLM_API_KEY", "test-key")

	path := filepath.Join(t.TempDir(), "wizardd.yaml")
	if err := os.WriteFile(path, []byte("worker:\n  count: 4\n"), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	setEnv(t, "WIZARDD_CONFIG", path)
	setEnv(t, "WIZARDD_WORKERS", "8")

	cfg, err := Load("WIZARDD")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Worker.Count != 8 {
		t.Errorf("Worker.Count = %d, want env override 8", cfg.Worker.Count)
	}
}

func TestLoadExpandsEnvInYAMLFile(t *testing.T) {
	clearEnv(t, "WIZARDD_LLM_PROVIDER", "WIZARDD_LLM_API_KEY")
	setEnv(t, "SECRET_LLM_KEY", "sk-from-env")

	path := filepath.Join(t.TempDir(), "wizardd.yaml")
	if err := os.WriteFile(path, []byte("llm:\n  api_key: ${SECRET_LLM_KEY}\n"), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	setEnv(t, "WIZARDD_CONFIG", path)

	cfg, err := Load("WIZARDD")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "sk-from-env" {
		t.Errorf("LLM.APIKey = %q, want expanded env value", cfg.LLM.APIKey)
	}
}

func TestLoadRejectsUnknownYAMLFields(t *testing.T) {
	setEnv(t, "WIZARDD_LLM_API_KEY", "test-key")

	path := filepath.Join(t.TempDir(), "wizardd.yaml")
	if err := os.WriteFile(path, []byte("nonsense:\n  key: value\n"), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	setEnv(t, "WIZARDD_CONFIG", path)

	if _, err := Load("WIZARDD"); err == nil {
		t.Fatal("expected error for unknown top-level config key")
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	setEnv(t, "WIZARDD_LLM_API_KEY", "test-key")
	setEnv(t, "WIZARDD_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	if _, err := Load("WIZARDD"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	clearEnv(t, "WIZARDD_CONFIG", "WIZARDD_LLM_API_KEY")
	setEnv(t, "WIZARDD_LLM_PROVIDER", "ollama")

	if _, err := Load("WIZARDD"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestLoadRequiresAPIKeyForOpenAI(t *testing.T) {
	clearEnv(t, "WIZARDD_CONFIG", "WIZARDD_LLM_API_KEY", "WIZARDD_LLM_PROVIDER")

	if _, err := Load("WIZARDD"); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestLoadBedrockDoesNotRequireAPIKey(t *testing.T) {
	clearEnv(t, "WIZARDD_CONFIG", "WIZARDD_LLM_API_KEY")
	setEnv(t, "WIZARDD_LLM_PROVIDER", "bedrock")

	if _, err := Load("WIZARDD"); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoadPrefixParameterizesEnvNames(t *testing.T) {
	clearEnv(t, "OTHERD_CONFIG", "OTHERD_LLM_PROVIDER")
	setEnv(t, "OTHERD_LLM_API_KEY", "other-key")
	setEnv(t, "OTHERD_WORKERS", "3")

	cfg, err := Load("OTHERD")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "other-key" {
		t.Errorf("LLM.APIKey = %q, want value read under OTHERD prefix", cfg.LLM.APIKey)
	}
	if cfg.Worker.Count != 3 {
		t.Errorf("Worker.Count = %d, want 3", cfg.Worker.Count)
	}
}
