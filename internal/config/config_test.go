package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "conf.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeTempConfig(t, "system_config:\n  host: \"\"\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.HTTPAddr != ":8090" {
		t.Fatalf("HTTPAddr=%q, want %q", cfg.HTTPAddr, ":8090")
	}
	if cfg.Gemini.Modality != "audio" {
		t.Fatalf("Gemini.Modality=%q, want %q", cfg.Gemini.Modality, "audio")
	}
	if cfg.Gemini.VoiceName != "Puck" {
		t.Fatalf("Gemini.VoiceName=%q, want %q", cfg.Gemini.VoiceName, "Puck")
	}
	if !strings.Contains(cfg.Gemini.SystemInstruction, "Elevate Fitness") {
		t.Fatal("default system instruction not applied")
	}
	if cfg.Log.File.Name != "elevate-fitness.log" {
		t.Fatalf("Log.File.Name=%q, want %q", cfg.Log.File.Name, "elevate-fitness.log")
	}
}

func TestLoadConfigDerivesHostPort(t *testing.T) {
	path := writeTempConfig(t, "system_config:\n  host: \"127.0.0.1\"\n  port: 9000\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:9000" {
		t.Fatalf("HTTPAddr=%q, want %q", cfg.HTTPAddr, "127.0.0.1:9000")
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeTempConfig(t, "gemini:\n  modality: \"audio\"\n")

	t.Setenv("EF_GEMINI_MODALITY", "text")
	t.Setenv("EF_GEMINI_API_KEY", "test-key")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Gemini.Modality != "text" {
		t.Fatalf("Gemini.Modality=%q, want %q", cfg.Gemini.Modality, "text")
	}
	if cfg.Gemini.APIKey != "test-key" {
		t.Fatalf("Gemini.APIKey=%q, want %q", cfg.Gemini.APIKey, "test-key")
	}
}

func TestLoadConfigRejectsBadModality(t *testing.T) {
	path := writeTempConfig(t, "gemini:\n  modality: \"video\"\n")

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig with bad modality succeeded, want error")
	}
}

func TestLoadConfigInstructionOverride(t *testing.T) {
	path := writeTempConfig(t, "gemini:\n  system_instruction: \"Be terse.\"\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Gemini.SystemInstruction != "Be terse." {
		t.Fatalf("Gemini.SystemInstruction=%q, want %q", cfg.Gemini.SystemInstruction, "Be terse.")
	}
}

func TestLoadConfigResolvesTLSPaths(t *testing.T) {
	path := writeTempConfig(t, "tls_cert_path: \"mycerts/server.crt\"\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	want := filepath.Join(cfg.RootDir, "mycerts", "server.crt")
	if cfg.TLSCertPath != want {
		t.Fatalf("TLSCertPath=%q, want %q", cfg.TLSCertPath, want)
	}
	if !filepath.IsAbs(cfg.TLSKeyPath) {
		t.Fatalf("TLSKeyPath=%q, want absolute default", cfg.TLSKeyPath)
	}
}
