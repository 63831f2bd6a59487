package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/JaimeStill/reconify/internal/config"
	"github.com/JaimeStill/reconify/pkg/storage"
)

const baseConfig = `
shutdown_timeout = "30s"
version = "0.1.0"

[server]
host = "0.0.0.0"
port = 8080
read_timeout = "1m"
write_timeout = "15m"
shutdown_timeout = "30s"

[database]
host = "localhost"
port = 5432
name = "reconify"
user = "reconify"
password = "reconify"
ssl_mode = "disable"
max_open_conns = 25
max_idle_conns = 5
conn_max_lifetime = "15m"
conn_timeout = "5s"

[storage]
kind = "local"

[storage.local]
base_path = "/srv/uploads"

[ingest]
batch_size = 250
max_upload_size = "10MB"
allowed_extensions = [".csv", ".XLSX"]

[api]
base_path = "/api"

[api.cors]
enabled = false

[api.pagination]
default_page_size = 25
max_page_size = 50
`

const overlayConfig = `
[server]
port = 9090

[database]
host = "prodhost"

[storage]
kind = "remote-file-server"

[storage.remote]
host = "sftp.internal"
username = "svc"
password = "secret"
insecure_host_key = true
`

func writeConfig(t *testing.T, dir, filename, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", filename, err)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(orig) })
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, config.BaseConfigFile, baseConfig)
	chdir(t, dir)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server port: got %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("db host: got %s, want localhost", cfg.Database.Host)
	}
	if cfg.Storage.Kind != storage.KindLocal {
		t.Errorf("storage kind: got %s, want local", cfg.Storage.Kind)
	}
	if cfg.Storage.Local.BasePath != "/srv/uploads" {
		t.Errorf("storage base_path: got %s, want /srv/uploads", cfg.Storage.Local.BasePath)
	}
	if cfg.Ingest.BatchSize != 250 {
		t.Errorf("ingest batch_size: got %d, want 250", cfg.Ingest.BatchSize)
	}
	if got := cfg.Ingest.MaxUploadSizeBytes(); got != 10*1024*1024 {
		t.Errorf("ingest max_upload_size: got %d, want %d", got, 10*1024*1024)
	}
	if got := cfg.Ingest.AllowedExtensions; len(got) != 2 || got[1] != ".xlsx" {
		t.Errorf("ingest allowed_extensions: got %v, want [.csv .xlsx]", got)
	}
	if cfg.Ingest.StatusRetentionDuration() != time.Hour {
		t.Errorf("ingest status_retention default: got %s, want 1h", cfg.Ingest.StatusRetention)
	}
	if cfg.API.Pagination.MaxPageSize != 50 {
		t.Errorf("pagination max_page_size: got %d, want 50", cfg.API.Pagination.MaxPageSize)
	}
}

func TestLoadWithOverlay(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, config.BaseConfigFile, baseConfig)
	writeConfig(t, dir, "config.staging.toml", overlayConfig)
	chdir(t, dir)

	t.Setenv(config.EnvReconifyEnv, "staging")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("server port: got %d, want 9090 (from overlay)", cfg.Server.Port)
	}
	if cfg.Database.Host != "prodhost" {
		t.Errorf("db host: got %s, want prodhost (from overlay)", cfg.Database.Host)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("db port: got %d, want 5432 (from base)", cfg.Database.Port)
	}
	if cfg.Storage.Kind != storage.KindRemote {
		t.Errorf("storage kind: got %s, want remote-file-server", cfg.Storage.Kind)
	}
	if cfg.Storage.Remote.Port != 22 {
		t.Errorf("remote port default: got %d, want 22", cfg.Storage.Remote.Port)
	}
	if cfg.Ingest.BatchSize != 250 {
		t.Errorf("ingest batch_size: got %d, want 250 (from base)", cfg.Ingest.BatchSize)
	}
}

func TestLoadEnvVarOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, config.BaseConfigFile, baseConfig)
	chdir(t, dir)

	t.Setenv(config.EnvReconifyVersion, "2.0.0")
	t.Setenv(config.EnvServerPort, "3000")
	t.Setenv(config.EnvIngestBatchSize, "1000")
	t.Setenv(config.EnvIngestAllowedExtensions, ".csv, .txt")
	t.Setenv("RECONIFY_STORAGE_LOCAL_BASE_PATH", "/mnt/share")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Version != "2.0.0" {
		t.Errorf("version: got %s, want 2.0.0", cfg.Version)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("server port: got %d, want 3000", cfg.Server.Port)
	}
	if cfg.Ingest.BatchSize != 1000 {
		t.Errorf("ingest batch_size: got %d, want 1000", cfg.Ingest.BatchSize)
	}
	if got := cfg.Ingest.AllowedExtensions; len(got) != 2 || got[1] != ".txt" {
		t.Errorf("ingest allowed_extensions: got %v, want [.csv .txt]", got)
	}
	if cfg.Storage.Local.BasePath != "/mnt/share" {
		t.Errorf("storage base_path: got %s, want /mnt/share", cfg.Storage.Local.BasePath)
	}
}

func TestLoadNoConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	t.Setenv("RECONIFY_DB_NAME", "testdb")
	t.Setenv("RECONIFY_DB_USER", "testuser")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load without config.toml failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server port default: got %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Name != "testdb" {
		t.Errorf("db name from env: got %s, want testdb", cfg.Database.Name)
	}
	if cfg.Storage.Kind != storage.KindLocal {
		t.Errorf("storage kind default: got %s, want local", cfg.Storage.Kind)
	}
	if cfg.Ingest.BatchSize != 500 {
		t.Errorf("ingest batch_size default: got %d, want 500", cfg.Ingest.BatchSize)
	}
	if len(cfg.Ingest.AllowedExtensions) != 4 {
		t.Errorf("ingest allowed_extensions default: got %v", cfg.Ingest.AllowedExtensions)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"batch size", map[string]string{config.EnvIngestBatchSize: "0"}},
		{"upload size", map[string]string{config.EnvIngestMaxUploadSize: "lots"}},
		{"extension", map[string]string{config.EnvIngestAllowedExtensions: ".pdf"}},
		{"retention", map[string]string{config.EnvIngestStatusRetention: "soon"}},
		{"base path", map[string]string{config.EnvAPIBasePath: "api"}},
		{"storage kind", map[string]string{"RECONIFY_STORAGE_KIND": "tape"}},
		{"log level", map[string]string{config.EnvReconifyLogLevel: "loud"}},
		{"log format", map[string]string{config.EnvReconifyLogFormat: "xml"}},
		{"idle timeout", map[string]string{config.EnvServerIdleTimeout: "forever"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, config.BaseConfigFile, baseConfig)
			chdir(t, dir)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			if _, err := config.Load(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, config.BaseConfigFile, `[server`)
	chdir(t, dir)

	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for invalid TOML")
	}
}

func TestEnvDefault(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, config.BaseConfigFile, baseConfig)
	chdir(t, dir)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Level() != slog.LevelInfo || cfg.LogFormat != config.LogFormatText {
		t.Errorf("logging defaults: got %s/%s, want INFO/text", cfg.Level(), cfg.LogFormat)
	}
	if cfg.Server.ReadHeaderTimeoutDuration() != 10*time.Second {
		t.Errorf("read_header_timeout default: got %s, want 10s", cfg.Server.ReadHeaderTimeout)
	}
	if cfg.Env() != "local" {
		t.Errorf("env: got %s, want local", cfg.Env())
	}
}
