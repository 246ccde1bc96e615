package config

import "time"

// Config is the root configuration structure.
type Config struct {
	S3         S3         `yaml:"s3"`
	Connection Connection `yaml:"connection"`
	Pool       Pool       `yaml:"pool"`
	History    History    `yaml:"history"`
	Log        Log        `yaml:"log"`
	Health     Health     `yaml:"health"`
	Metrics    Metrics    `yaml:"metrics"`
}

// S3 describes the endpoint and credentials.
type S3 struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	SSL                bool   `yaml:"ssl"`
	Region             string `yaml:"region"`
	BucketName         string `yaml:"bucket_name"`
	AccessKeyID        string `yaml:"access_key_id"`
	SecretAccessKey    string `yaml:"secret_access_key"`
	UseAWSV4           bool   `yaml:"use_awsv4"`
	CAFile             string `yaml:"ca_file,omitempty"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify,omitempty"`
}

// Connection configures a single connection and its retry policy.
type Connection struct {
	Timeout      time.Duration `yaml:"timeout"`
	Retries      int           `yaml:"retries"`     // extra dial attempts
	MaxRetries   int           `yaml:"max_retries"` // attempts per request
	MaxRedirects int           `yaml:"max_redirects"`
	HTTP2        bool          `yaml:"http2"`
}

// Pool configures the connection pool.
type Pool struct {
	Size      int     `yaml:"size"`
	RateLimit float64 `yaml:"rate_limit"` // requests per second, 0 = unlimited
	Burst     int     `yaml:"burst"`
}

// History configures the request history sink.
type History struct {
	Path     string `yaml:"path,omitempty"` // bolt file; empty keeps history in memory
	Capacity int    `yaml:"capacity"`
}

// Log configures logging.
type Log struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

// Health configures the health checker.
type Health struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Metrics configures Prometheus metrics.
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		S3: S3{
			Host:     "s3.amazonaws.com",
			Region:   "us-east-1",
			UseAWSV4: true,
		},
		Connection: Connection{
			Timeout:      20 * time.Second,
			Retries:      2,
			MaxRetries:   5,
			MaxRedirects: 5,
		},
		Pool: Pool{
			Size:  4,
			Burst: 1,
		},
		History: History{
			Capacity: 1000,
		},
		Log: Log{
			Level: "info",
		},
		Health: Health{
			Enabled:  true,
			Interval: 30 * time.Second,
			Timeout:  5 * time.Second,
		},
		Metrics: Metrics{
			Enabled: false,
			Address: ":9090",
			Path:    "/metrics",
		},
	}
}

// URL returns the configured endpoint as scheme://host[:port].
func (s S3) URL() string {
	scheme := "http"
	if s.SSL {
		scheme = "https"
	}
	if s.Port == 0 || (s.SSL && s.Port == 443) || (!s.SSL && s.Port == 80) {
		return scheme + "://" + bracketHost(s.Host)
	}
	return scheme + "://" + hostPort(s.Host, s.Port)
}
