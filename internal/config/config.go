package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DBPath          string
	Workers         int
	ChunkSize       int
	LogLevel        string
	LogPretty       bool
	MetricsTextfile string
	HTTPAddr        string
	LokiURL         string
	S3              S3Config
}

// S3Config controls the optional object-storage export.
type S3Config struct {
	Region  string
	Bucket  string
	Prefix  string
	Timeout time.Duration // per PutObject attempt
	Retries int
}

// Enabled reports whether an export bucket is configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// SetDefaults registers defaults and the HAPDB_ environment binding on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("db_path", "")
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("chunk_size", 4096)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)
	v.SetDefault("metrics_textfile", "")
	v.SetDefault("http_addr", ":9102")
	v.SetDefault("loki_url", "")
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.prefix", "hapdb/")
	v.SetDefault("s3.timeout", 5*time.Second)
	v.SetDefault("s3.retries", 3)

	v.SetEnvPrefix("hapdb")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load reads the resolved settings out of v and validates them.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DBPath:          v.GetString("db_path"),
		Workers:         v.GetInt("workers"),
		ChunkSize:       v.GetInt("chunk_size"),
		LogLevel:        v.GetString("log_level"),
		LogPretty:       v.GetBool("log_pretty"),
		MetricsTextfile: v.GetString("metrics_textfile"),
		HTTPAddr:        v.GetString("http_addr"),
		LokiURL:         strings.TrimRight(v.GetString("loki_url"), "/"),
		S3: S3Config{
			Region:  v.GetString("s3.region"),
			Bucket:  v.GetString("s3.bucket"),
			Prefix:  v.GetString("s3.prefix"),
			Timeout: v.GetDuration("s3.timeout"),
			Retries: v.GetInt("s3.retries"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func validate(c *Config) error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be > 0")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be > 0")
	}
	if c.S3.Enabled() {
		if c.S3.Region == "" {
			return fmt.Errorf("s3.region is required when s3.bucket is set")
		}
		if c.S3.Retries < 1 {
			return fmt.Errorf("s3.retries must be >= 1")
		}
		if c.S3.Timeout <= 0 {
			return fmt.Errorf("s3.timeout must be > 0")
		}
	}
	return nil
}

// DatabasePath returns the configured database or <input>.db next to the input file.
func (c *Config) DatabasePath(input string) string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return input + ".db"
}
