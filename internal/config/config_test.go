package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func isolateEnv(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()

	origWd, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("Failed to change to temp dir: %v", err)
	}

	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(tmpDir, "data"))
	for _, key := range []string{
		"TODOCHAT_API_BASE", "TODOCHAT_LOG_LEVEL", "TODOCHAT_MAX_RETRIES",
		"TODOCHAT_STALE_ABORTS", "TODOCHAT_RETRY_DELAY_MS",
	} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
	return tmpDir
}

func TestGlobalPath(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME set", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		if got := GlobalPath(); got != "/custom/config/todochat/todochat.yml" {
			t.Errorf("GlobalPath() = %v", got)
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		_ = os.Unsetenv("XDG_CONFIG_HOME")
		got := GlobalPath()
		if !filepath.IsAbs(got) {
			t.Errorf("GlobalPath() should return absolute path, got %v", got)
		}
		if filepath.Base(got) != "todochat.yml" {
			t.Errorf("GlobalPath() should end with todochat.yml, got %v", got)
		}
	})
}

func TestProjectPath(t *testing.T) {
	if got := ProjectPath(); got != "todochat.yml" {
		t.Errorf("ProjectPath() = %v, want todochat.yml", got)
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolateEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIBase != "http://localhost:3000" {
		t.Errorf("APIBase = %v", cfg.APIBase)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %v, want 3", cfg.MaxRetries)
	}
	if cfg.RetryDelayMs != 1000 {
		t.Errorf("RetryDelayMs = %v, want 1000", cfg.RetryDelayMs)
	}
	if cfg.MaxRetryDelayMs != 10000 {
		t.Errorf("MaxRetryDelayMs = %v, want 10000", cfg.MaxRetryDelayMs)
	}
	if cfg.ConnectionTimeoutMs != 30000 {
		t.Errorf("ConnectionTimeoutMs = %v, want 30000", cfg.ConnectionTimeoutMs)
	}
	if cfg.StaleAborts {
		t.Error("StaleAborts default should be false")
	}
	if !cfg.Markdown {
		t.Error("Markdown default should be true")
	}
	if !strings.Contains(cfg.DataDir, "todochat") {
		t.Errorf("DataDir = %v", cfg.DataDir)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolateEnv(t)
	t.Setenv("TODOCHAT_API_BASE", "https://todo.example.com")
	t.Setenv("TODOCHAT_MAX_RETRIES", "5")
	t.Setenv("TODOCHAT_STALE_ABORTS", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIBase != "https://todo.example.com" {
		t.Errorf("APIBase = %v", cfg.APIBase)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %v, want 5", cfg.MaxRetries)
	}
	if !cfg.StaleAborts {
		t.Error("StaleAborts env override not applied")
	}
}

func TestLoad_ProjectOverridesGlobal(t *testing.T) {
	isolateEnv(t)

	global := &Config{APIBase: "https://global.example.com", LogLevel: "warn"}
	if err := WriteGlobal(global); err != nil {
		t.Fatalf("WriteGlobal() error = %v", err)
	}
	if err := os.WriteFile(ProjectPath(), []byte("api_base: https://project.example.com\n"), 0644); err != nil {
		t.Fatalf("Failed to write project config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIBase != "https://project.example.com" {
		t.Errorf("APIBase = %v, want project value", cfg.APIBase)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %v, want warn from global", cfg.LogLevel)
	}
}

func TestExists(t *testing.T) {
	isolateEnv(t)

	if Exists() {
		t.Error("Exists() = true, want false when no config files exist")
	}

	if err := os.WriteFile(ProjectPath(), []byte("api_base: http://x\n"), 0644); err != nil {
		t.Fatalf("Failed to write project config: %v", err)
	}
	if !Exists() {
		t.Error("Exists() = false, want true when project config exists")
	}
}

func TestWriteGlobal(t *testing.T) {
	isolateEnv(t)

	cfg := &Config{
		APIBase:             "https://todo.example.com",
		LogLevel:            "debug",
		LogFile:             "/tmp/todochat.log",
		DataDir:             ".test",
		MaxRetries:          2,
		RetryDelayMs:        500,
		MaxRetryDelayMs:     4000,
		ConnectionTimeoutMs: 15000,
		StaleAborts:         true,
		Markdown:            false,
	}

	if err := WriteGlobal(cfg); err != nil {
		t.Fatalf("WriteGlobal() error = %v", err)
	}

	data, err := os.ReadFile(GlobalPath())
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	content := string(data)
	for _, field := range []string{
		"api_base: https://todo.example.com",
		"log_level: debug",
		"max_retries: 2",
		"retry_delay_ms: 500",
		"stale_aborts: true",
		"markdown: false",
	} {
		if !strings.Contains(content, field) {
			t.Errorf("Config file missing expected field: %s\nContent:\n%s", field, content)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name:    "valid config",
			config:  &Config{APIBase: "http://localhost:3000", MaxRetries: 3, RetryDelayMs: 1000, MaxRetryDelayMs: 10000},
			wantErr: false,
		},
		{
			name:    "missing api_base",
			config:  &Config{MaxRetries: 3, RetryDelayMs: 1000, MaxRetryDelayMs: 10000},
			wantErr: true,
		},
		{
			name:    "negative retries",
			config:  &Config{APIBase: "http://x", MaxRetries: -1, RetryDelayMs: 1000, MaxRetryDelayMs: 10000},
			wantErr: true,
		},
		{
			name:    "cap below initial delay",
			config:  &Config{APIBase: "http://x", MaxRetries: 3, RetryDelayMs: 1000, MaxRetryDelayMs: 500},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStreamConfig(t *testing.T) {
	cfg := &Config{
		MaxRetries:          2,
		RetryDelayMs:        500,
		MaxRetryDelayMs:     4000,
		ConnectionTimeoutMs: 15000,
		StaleAborts:         true,
	}
	sc := cfg.StreamConfig()
	if sc.MaxRetries != 2 {
		t.Errorf("MaxRetries = %v", sc.MaxRetries)
	}
	if sc.InitialRetryDelay != 500*time.Millisecond {
		t.Errorf("InitialRetryDelay = %v", sc.InitialRetryDelay)
	}
	if sc.MaxRetryDelay != 4*time.Second {
		t.Errorf("MaxRetryDelay = %v", sc.MaxRetryDelay)
	}
	if sc.ConnectionTimeout != 15*time.Second {
		t.Errorf("ConnectionTimeout = %v", sc.ConnectionTimeout)
	}
	if !sc.StaleAborts {
		t.Error("StaleAborts not carried")
	}
}
