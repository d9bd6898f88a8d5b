package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Duplicate submission policies
const (
	DuplicatePolicyReject   = "reject"
	DuplicatePolicyCoalesce = "coalesce"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Queue     QueueConfig
	Dubbing   DubbingConfig
	Playback  PlaybackConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
	Tracing   TracingConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	UseSSL          bool
	// PublicBaseURL, when set, is used instead of presigned URLs (CDN in front of the bucket)
	PublicBaseURL string
	PresignExpiry time.Duration
}

// QueueConfig holds message queue configuration
type QueueConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Vhost    string
}

// DubbingConfig holds remote dubbing service and orchestration settings
type DubbingConfig struct {
	ServiceURL        string
	APIKey            string
	CallbackURL       string
	CallbackSecret    string
	RequestTimeout    time.Duration
	PollInterval      time.Duration
	PollTimeout       time.Duration
	PollBatchSize     int
	PollConcurrency   int
	ProcessingTimeout time.Duration
	DuplicatePolicy   string
}

// PlaybackConfig holds playback session settings
type PlaybackConfig struct {
	ManifestTimeout    time.Duration
	MaxManifestRetries int
	RetryBackoff       time.Duration
	FallbackLanguages  []string
	OriginLabel        string
	SessionIdleTTL     time.Duration
	PreferenceTTL      time.Duration
	CatalogCacheTTL    time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// MetricsConfig holds metrics server configuration
type MetricsConfig struct {
	Enabled bool
	Port    int
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
}

// AuthConfig holds operator authentication configuration
type AuthConfig struct {
	JWTSecret string
}

// RateLimitConfig holds per-client request limits
type RateLimitConfig struct {
	RPS   int
	Burst int
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks values that have no safe fallback
func (c *Config) Validate() error {
	switch c.Dubbing.DuplicatePolicy {
	case DuplicatePolicyReject, DuplicatePolicyCoalesce:
	default:
		return fmt.Errorf("invalid dubbing.duplicatePolicy %q", c.Dubbing.DuplicatePolicy)
	}
	if c.Playback.MaxManifestRetries <= 0 {
		return fmt.Errorf("playback.maxManifestRetries must be positive, got %d", c.Playback.MaxManifestRetries)
	}
	if c.Playback.ManifestTimeout <= 0 {
		return fmt.Errorf("playback.manifestTimeout must be positive")
	}
	if c.Dubbing.PollTimeout <= 0 || c.Dubbing.RequestTimeout <= 0 {
		return fmt.Errorf("dubbing timeouts must be positive")
	}
	if c.Dubbing.ProcessingTimeout <= 0 {
		return fmt.Errorf("dubbing.processingTimeout must be positive")
	}
	if strings.TrimSpace(c.Dubbing.CallbackSecret) == "" {
		return fmt.Errorf("dubbing.callbackSecret is required to verify dubbing service callbacks")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.readTimeout", "30s")
	v.SetDefault("server.writeTimeout", "30s")
	v.SetDefault("server.shutdownTimeout", "10s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "coursedub")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Storage defaults
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.accessKeyID", "minioadmin")
	v.SetDefault("storage.secretAccessKey", "minioadmin")
	v.SetDefault("storage.bucketName", "courses")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.useSSL", false)
	v.SetDefault("storage.publicBaseURL", "")
	v.SetDefault("storage.presignExpiry", "1h")

	// Queue defaults
	v.SetDefault("queue.host", "localhost")
	v.SetDefault("queue.port", 5672)
	v.SetDefault("queue.user", "guest")
	v.SetDefault("queue.password", "guest")
	v.SetDefault("queue.vhost", "/")

	// Dubbing defaults
	v.SetDefault("dubbing.serviceURL", "http://localhost:9100")
	v.SetDefault("dubbing.apiKey", "")
	v.SetDefault("dubbing.callbackURL", "")
	v.SetDefault("dubbing.callbackSecret", "")
	v.SetDefault("dubbing.requestTimeout", "30s")
	v.SetDefault("dubbing.pollInterval", "30s")
	v.SetDefault("dubbing.pollTimeout", "10s")
	v.SetDefault("dubbing.pollBatchSize", 500)
	v.SetDefault("dubbing.pollConcurrency", 8)
	v.SetDefault("dubbing.processingTimeout", "2h")
	v.SetDefault("dubbing.duplicatePolicy", DuplicatePolicyReject)

	// Playback defaults
	v.SetDefault("playback.manifestTimeout", "10s")
	v.SetDefault("playback.maxManifestRetries", 3)
	v.SetDefault("playback.retryBackoff", "500ms")
	v.SetDefault("playback.fallbackLanguages", []string{"en", "es", "fr", "de", "ja"})
	v.SetDefault("playback.originLabel", "Original")
	v.SetDefault("playback.sessionIdleTTL", "4h")
	v.SetDefault("playback.preferenceTTL", "720h")
	v.SetDefault("playback.catalogCacheTTL", "5m")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.serviceName", "coursedub")
	v.SetDefault("tracing.endpoint", "http://localhost:14268/api/traces")

	// Auth defaults
	v.SetDefault("auth.jwtSecret", "")

	// Rate limit defaults
	v.SetDefault("rateLimit.rps", 10)
	v.SetDefault("rateLimit.burst", 20)
}
