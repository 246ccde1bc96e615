package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a YAML configuration file. An empty path yields the
// defaults. Environment overrides are applied before validation.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("S3CONN_HOST"); v != "" {
		cfg.S3.Host = v
	}
	if v := os.Getenv("S3CONN_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("S3CONN_PORT: %w", err)
		}
		cfg.S3.Port = port
	}
	if v := os.Getenv("S3CONN_SSL"); v != "" {
		ssl, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("S3CONN_SSL: %w", err)
		}
		cfg.S3.SSL = ssl
	}
	if v := os.Getenv("S3CONN_BUCKET"); v != "" {
		cfg.S3.BucketName = v
	}
	if v := os.Getenv("S3CONN_REGION"); v != "" {
		cfg.S3.Region = v
	}
	if v := os.Getenv("S3CONN_ACCESS_KEY_ID"); v != "" {
		cfg.S3.AccessKeyID = v
	}
	if v := os.Getenv("S3CONN_SECRET_ACCESS_KEY"); v != "" {
		cfg.S3.SecretAccessKey = v
	}
	return nil
}

// validate checks the configuration for errors.
func validate(cfg *Config) error {
	if cfg.S3.Host == "" {
		return fmt.Errorf("s3.host is required")
	}
	if cfg.S3.BucketName == "" {
		return fmt.Errorf("s3.bucket_name is required")
	}
	if cfg.S3.Port < 0 || cfg.S3.Port > 65535 {
		return fmt.Errorf("s3.port must be between 0 and 65535")
	}
	if cfg.S3.Region == "" {
		cfg.S3.Region = "us-east-1"
	}

	if cfg.Connection.Timeout <= 0 {
		return fmt.Errorf("connection.timeout must be positive")
	}
	if cfg.Connection.Retries < 0 {
		return fmt.Errorf("connection.retries must be >= 0")
	}
	if cfg.Connection.MaxRetries <= 0 {
		return fmt.Errorf("connection.max_retries must be positive")
	}
	if cfg.Connection.MaxRedirects < 0 {
		return fmt.Errorf("connection.max_redirects must be >= 0")
	}

	if cfg.Pool.Size <= 0 {
		return fmt.Errorf("pool.size must be positive")
	}
	if cfg.Pool.RateLimit < 0 {
		return fmt.Errorf("pool.rate_limit must be >= 0")
	}
	if cfg.Pool.Burst <= 0 {
		cfg.Pool.Burst = 1
	}

	if cfg.History.Capacity <= 0 {
		return fmt.Errorf("history.capacity must be positive")
	}

	return nil
}
