package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rushteam/imputekit/core"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadWith(New(), filepath.Join(t.TempDir(), "absent"))
	if err == nil {
		t.Fatalf("explicit missing config file should fail, got %+v", cfg)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "imputekit.yaml")
	if err := os.WriteFile(path, []byte("server:\n  addr: \":9090\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Server.ReadTimeout != 10*time.Second || cfg.Server.MaxBatchSize != 256 {
		t.Errorf("server defaults = %+v", cfg.Server)
	}
	if cfg.Artifacts.Encoder != "categorical_encoder.json" || cfg.Artifacts.Model != "multioutput_xgboost_model.json" {
		t.Errorf("artifact defaults = %+v", cfg.Artifacts)
	}
	if cfg.Cache.Enabled || cfg.Metrics.Enabled {
		t.Error("cache and metrics must be off by default")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("IMPUTEKIT_ARTIFACTS_MODEL", "s3://models/aluminium/model.json")
	t.Setenv("IMPUTEKIT_ENCODER_HANDLE_UNKNOWN", "ignore")
	t.Setenv("IMPUTEKIT_CACHE_ENABLED", "true")

	path := filepath.Join(t.TempDir(), "imputekit.yaml")
	if err := os.WriteFile(path, []byte("artifacts:\n  model: local.json\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Artifacts.Model != "s3://models/aluminium/model.json" {
		t.Errorf("env should win over file, model = %q", cfg.Artifacts.Model)
	}
	if cfg.Encoder.HandleUnknown != "ignore" || !cfg.Cache.Enabled {
		t.Errorf("cfg = %+v", cfg)
	}
	pc := cfg.PipelineConfig()
	if pc.HandleUnknown != "ignore" || len(pc.ExpectedOutputs) != len(core.AluminiumOutputs) {
		t.Errorf("pipeline config = %+v", pc)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg, err := LoadWith(New(), writeConfig(t, ""))
		if err != nil {
			t.Fatalf("LoadWith: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "no encoder", mutate: func(c *Config) { c.Artifacts.Encoder = "" }},
		{name: "no model", mutate: func(c *Config) { c.Artifacts.Model = "" }},
		{name: "bad policy", mutate: func(c *Config) { c.Encoder.HandleUnknown = "clip" }},
		{name: "batch size", mutate: func(c *Config) { c.Server.MaxBatchSize = 0 }},
		{name: "cache backend", mutate: func(c *Config) { c.Cache.Enabled = true; c.Cache.Backend = "memcached" }},
		{name: "cache ttl", mutate: func(c *Config) { c.Cache.Enabled = true; c.Cache.TTL = -1 }},
		{name: "log level", mutate: func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			if err := cfg.Validate(); err != nil {
				t.Fatalf("baseline should be valid: %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestNewStore(t *testing.T) {
	cfg, err := LoadWith(New(), writeConfig(t, "cache:\n  enabled: true\n  max_entries: 5\n"))
	if err != nil {
		t.Fatalf("LoadWith: %v", err)
	}
	st, err := NewStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer st.Close()
	if st.Name() != "memory" {
		t.Errorf("store = %s", st.Name())
	}

	cfg.Cache.Backend = "memcached"
	if _, err := NewStore(context.Background(), cfg); err == nil {
		t.Error("unsupported backend should fail")
	}
}

func TestBuild_MissingArtifacts(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadWith(New(), writeConfig(t, "artifacts:\n  encoder: "+filepath.Join(dir, "enc.json")+"\n  model: "+filepath.Join(dir, "model.json")+"\n"))
	if err != nil {
		t.Fatalf("LoadWith: %v", err)
	}
	if _, err := Build(context.Background(), cfg); !core.IsSchemaError(err) {
		t.Fatalf("expected SchemaError for missing artifacts, got %v", err)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "imputekit.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
