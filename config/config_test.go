package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "server:\n  port: \"9090\"\nbackends:\n  timeout: 5s\n  search_k: 7\nsession:\n  ttl: 2h\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("SERVER_PORT", "")
	t.Setenv("PUBLIC_URL", "")
	t.Setenv("AGENT_API_URL", "")
	t.Setenv("AGENT_PROXY_TARGET", "")
	t.Setenv("VITE_AGENT_API_URL", "http://agent.local")
	t.Setenv("SIM_API_URL", "http://sim.local")
	t.Setenv("VITE_SIM_API_URL", "http://ignored.local")

	cfg := loadConfig()
	if cfg.Server.Port != "9090" {
		t.Fatalf("unexpected port: %s", cfg.Server.Port)
	}
	if cfg.Backends.Timeout != 5*time.Second || cfg.Backends.SearchK != 7 {
		t.Fatalf("unexpected backends: %+v", cfg.Backends)
	}
	if cfg.Session.TTL != 2*time.Hour {
		t.Fatalf("unexpected ttl: %s", cfg.Session.TTL)
	}
	if cfg.Backends.AgentURL != "http://agent.local" {
		t.Fatalf("VITE_ fallback not applied: %s", cfg.Backends.AgentURL)
	}
	if cfg.Backends.SimURL != "http://sim.local" {
		t.Fatalf("SIM_API_URL should win over VITE_SIM_API_URL: %s", cfg.Backends.SimURL)
	}
	if cfg.Server.PublicURL != "http://localhost:9090" {
		t.Fatalf("unexpected public url: %s", cfg.Server.PublicURL)
	}
	// 未在文件中出现的字段保持默认值
	if cfg.Proxy.AgentTarget != "http://localhost:9005" || cfg.Articles.LinkTemplate == "" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestResolveBackendURL(t *testing.T) {
	cfg := Default()
	cfg.Server.PublicURL = "http://localhost:8080"

	got, err := cfg.ResolveBackendURL("/api/agent")
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if got != "http://localhost:8080/api/agent" {
		t.Fatalf("unexpected url: %s", got)
	}

	got, err = cfg.ResolveBackendURL("https://agent.example.com/v1")
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if got != "https://agent.example.com/v1" {
		t.Fatalf("absolute url should be kept: %s", got)
	}
}

func TestSaveWritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	cfg.Backends.AgentURL = "http://agent.saved"
	cfg.Backends.SearchK = 3
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	t.Setenv("CONFIG_PATH", path)
	for _, key := range []string{"SERVER_PORT", "PUBLIC_URL", "AGENT_API_URL", "VITE_AGENT_API_URL", "SIM_API_URL", "VITE_SIM_API_URL", "AGENT_PROXY_TARGET"} {
		t.Setenv(key, "")
	}
	loaded := loadConfig()
	if loaded.Backends.AgentURL != "http://agent.saved" || loaded.Backends.SearchK != 3 {
		t.Fatalf("saved values not loaded: %+v", loaded.Backends)
	}
}
