package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingCredentials: tanpa VirusTotal key dan mock mode mati, service tidak bisa jalan
var ErrMissingCredentials = errors.New("VIRUSTOTAL_API_KEY is required unless mock_mode is enabled")

// placeholder values shipped in example files are treated as unset
var placeholders = map[string]bool{
	"your_api_key_here":            true,
	"your_virustotal_api_key":      true,
	"your_virustotal_api_key_here": true,
	"your-api-key":                 true,
	"<your_api_key>":               true,
	"changeme":                     true,
}

type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"readTimeout"`
		WriteTimeout    time.Duration `yaml:"writeTimeout"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
		AllowedOrigins  []string      `yaml:"allowedOrigins"`
		APIKey          string        `yaml:"apiKey"` // empty = no auth
		RateLimit       struct {
			Rate  float64 `yaml:"rate"` // tokens per second
			Burst int     `yaml:"burst"`
		} `yaml:"rateLimit"`
		MaxUploadMB int64 `yaml:"maxUploadMB"`
	} `yaml:"server"`

	Database struct {
		Driver string `yaml:"driver"` // sqlite | mysql | postgres
		File   string `yaml:"file"`   // sqlite path
		DSN    string `yaml:"dsn"`    // mysql/postgres
	} `yaml:"database"`

	Providers struct {
		MockMode      bool          `yaml:"mockMode"`
		VirusTotalKey string        `yaml:"virustotalKey"`
		URLScanKey    string        `yaml:"urlscanKey"`
		OTXKey        string        `yaml:"otxKey"`
		Timeout       time.Duration `yaml:"timeout"`
		Retries       int           `yaml:"retries"`
		Backoff       time.Duration `yaml:"backoff"`
		MaxBulkItems  int           `yaml:"maxBulkItems"`
	} `yaml:"providers"`

	Minio struct {
		Endpoint   string        `yaml:"endpoint"` // empty = archive disabled
		AccessKey  string        `yaml:"accessKey"`
		SecretKey  string        `yaml:"secretKey"`
		BucketName string        `yaml:"bucketName"`
		Region     string        `yaml:"region"`
		UseSSL     bool          `yaml:"useSSL"`
		Presign    time.Duration `yaml:"presign"`
	} `yaml:"minio"`

	OpenAI struct {
		APIKey  string `yaml:"apiKey"` // empty = AI analyst disabled
		Model   string `yaml:"model"`
		BaseURL string `yaml:"baseURL"`
	} `yaml:"openai"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // text | json
	} `yaml:"log"`
}

// Default config, dipakai kalau config.yaml tidak ada
func Default() *Config {
	var c Config
	c.Server.Port = 8080
	c.Server.ReadTimeout = 15 * time.Second
	c.Server.WriteTimeout = 120 * time.Second
	c.Server.ShutdownTimeout = 10 * time.Second
	c.Server.AllowedOrigins = []string{"*"}
	c.Server.RateLimit.Rate = 5
	c.Server.RateLimit.Burst = 20
	c.Server.MaxUploadMB = 32
	c.Database.Driver = "sqlite"
	c.Database.File = "data/scan_history.db"
	c.Providers.Timeout = 20 * time.Second
	c.Providers.Retries = 3
	c.Providers.Backoff = 500 * time.Millisecond
	c.Providers.MaxBulkItems = 500
	c.Minio.BucketName = "viruslens-reports"
	c.Minio.Region = "us-east-1"
	c.OpenAI.Model = "gpt-4o-mini"
	c.Log.Level = "info"
	c.Log.Format = "text"
	return &c
}

// Load baca .env, file config (opsional) lalu override dari environment.
func Load(path string) (*Config, error) {
	// .env tidak wajib ada; variabel yang sudah di-set tidak ditimpa
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// defaults + env only
	default:
		return nil, err
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.scrubPlaceholders()
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("VIRUSTOTAL_API_KEY", &c.Providers.VirusTotalKey)
	str("URLSCAN_API_KEY", &c.Providers.URLScanKey)
	str("OTX_API_KEY", &c.Providers.OTXKey)
	str("OPENAI_API_KEY", &c.OpenAI.APIKey)
	str("VL_DB_FILE", &c.Database.File)
	str("DATABASE_DRIVER", &c.Database.Driver)
	str("DATABASE_DSN", &c.Database.DSN)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("API_KEY", &c.Server.APIKey)
	str("MINIO_ENDPOINT", &c.Minio.Endpoint)
	str("MINIO_ACCESS_KEY", &c.Minio.AccessKey)
	str("MINIO_SECRET_KEY", &c.Minio.SecretKey)

	if v, ok := lookup("MOCK_MODE"); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("MOCK_MODE: %w", err)
		}
		c.Providers.MockMode = b
	}
	if v, ok := lookup("PORT"); ok && strings.TrimSpace(v) != "" {
		p, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = p
	}
	return nil
}

func (c *Config) scrubPlaceholders() {
	for _, k := range []*string{&c.Providers.VirusTotalKey, &c.Providers.URLScanKey, &c.Providers.OTXKey, &c.OpenAI.APIKey} {
		if IsPlaceholder(*k) {
			*k = ""
		}
	}
}

// IsPlaceholder reports whether v is an example value rather than a real key.
func IsPlaceholder(v string) bool {
	return placeholders[strings.ToLower(strings.TrimSpace(v))]
}

// Validate checks settings that make the service unusable.
func (c *Config) Validate() error {
	if !c.Providers.MockMode && c.Providers.VirusTotalKey == "" {
		return ErrMissingCredentials
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch strings.ToLower(c.Database.Driver) {
	case "", "sqlite", "sqlite3":
		if c.Database.File == "" {
			return errors.New("database.file is required for sqlite")
		}
	case "mysql", "postgres", "postgresql", "pg":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for %s", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Providers.Timeout <= 0 {
		return errors.New("providers.timeout must be positive")
	}
	return nil
}

// DatabaseDSN returns the sqlite file path or the configured DSN.
func (c *Config) DatabaseDSN() string {
	switch strings.ToLower(c.Database.Driver) {
	case "", "sqlite", "sqlite3":
		return c.Database.File
	default:
		return c.Database.DSN
	}
}
