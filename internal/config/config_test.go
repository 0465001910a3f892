package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newViper())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workers <= 0 {
		t.Errorf("expected positive default workers, got %d", cfg.Workers)
	}
	if cfg.ChunkSize != 4096 {
		t.Errorf("chunk_size = %d; want 4096", cfg.ChunkSize)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log_level = %q; want info", cfg.LogLevel)
	}
	if cfg.S3.Enabled() {
		t.Error("s3 export should be disabled by default")
	}
	if cfg.S3.Timeout != 5*time.Second {
		t.Errorf("s3.timeout = %v; want 5s", cfg.S3.Timeout)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HAPDB_WORKERS", "3")
	t.Setenv("HAPDB_S3_BUCKET", "logs")
	t.Setenv("HAPDB_S3_REGION", "eu-west-1")

	cfg, err := Load(newViper())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workers != 3 {
		t.Errorf("workers = %d; want 3", cfg.Workers)
	}
	if !cfg.S3.Enabled() || cfg.S3.Region != "eu-west-1" {
		t.Errorf("unexpected s3 config: %+v", cfg.S3)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		set     map[string]any
		wantErr string
	}{
		{"zero workers", map[string]any{"workers": 0}, "workers"},
		{"zero chunk", map[string]any{"chunk_size": 0}, "chunk_size"},
		{"bucket without region", map[string]any{"s3.bucket": "b"}, "s3.region"},
		{"no retries", map[string]any{"s3.bucket": "b", "s3.region": "r", "s3.retries": 0}, "s3.retries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper()
			for k, val := range tt.set {
				v.Set(k, val)
			}
			_, err := Load(v)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() err = %v; want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestDatabasePath(t *testing.T) {
	cfg := &Config{}
	if got := cfg.DatabasePath("/var/log/haproxy.log"); got != "/var/log/haproxy.log.db" {
		t.Errorf("DatabasePath = %q", got)
	}
	cfg.DBPath = "/tmp/x.db"
	if got := cfg.DatabasePath("/var/log/haproxy.log"); got != "/tmp/x.db" {
		t.Errorf("DatabasePath = %q", got)
	}
}
