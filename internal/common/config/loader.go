package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Queue names used across the process.
const (
	QueueCollectItem     = "collect-item"
	QueueCollectCategory = "collect-category"
)

// Load reads configs/config.yaml, overlays config.<APP_ENVIRONMENT>.yaml,
// then applies environment overrides, defaults and validation.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	paths := []string{".env", "../.env", "../../.env"}
	if root := findProjectRoot(); root != "" {
		paths = append(paths, filepath.Join(root, ".env"))
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if godotenv.Load(path) == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars resolves ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok || !strings.Contains(strVal, "$") {
			continue
		}
		if expanded := os.ExpandEnv(strVal); expanded != strVal {
			v.Set(key, expanded)
		}
	}
}

// overrideEmptyConfig fills credentials from well-known variable names when
// the YAML left them blank.
func overrideEmptyConfig(cfg *Config) {
	setIfEmpty(&cfg.Sources.Unsplash.AccessKey, "UNSPLASH_ACCESS_KEY")
	setIfEmpty(&cfg.Sources.Pixabay.APIKey, "PIXABAY_API_KEY")
	setIfEmpty(&cfg.Generator.APIKey, "GENERATOR_API_KEY")
	setIfEmpty(&cfg.Storage.S3.AccessKeyID, "AWS_ACCESS_KEY_ID")
	setIfEmpty(&cfg.Storage.S3.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	setIfEmpty(&cfg.Database.Postgres.User, "DB_USER")
	setIfEmpty(&cfg.Database.Postgres.Password, "DB_PASSWORD")
}

func setIfEmpty(field *string, envName string) {
	if *field != "" {
		return
	}
	if val := os.Getenv(envName); val != "" {
		*field = val
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "image-collector"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30000
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Redis.LockTTL == 0 {
		cfg.Database.Redis.LockTTL = 600000
	}

	if cfg.ItemStore.Driver == "" {
		cfg.ItemStore.Driver = "memory"
	}
	if cfg.ItemStore.Table == "" {
		cfg.ItemStore.Table = "vocabulary_items"
	}

	if cfg.Storage.Provider == "" {
		cfg.Storage.Provider = "local"
	}
	if cfg.Storage.CacheControl == "" {
		cfg.Storage.CacheControl = "public, max-age=31536000, immutable"
	}
	if cfg.Storage.Local.Root == "" {
		cfg.Storage.Local.Root = "./data/images"
	}

	if cfg.Queues == nil {
		cfg.Queues = map[string]QueueConfig{}
	}
	for _, name := range []string{QueueCollectItem, QueueCollectCategory} {
		if _, ok := cfg.Queues[name]; !ok {
			cfg.Queues[name] = defaultQueueConfig(name)
		}
	}
	for name, q := range cfg.Queues {
		def := defaultQueueConfig(name)
		if q.Concurrency == 0 {
			q.Concurrency = def.Concurrency
		}
		if q.MaxAttempts == 0 {
			q.MaxAttempts = def.MaxAttempts
		}
		if q.Backoff == "" {
			q.Backoff = def.Backoff
		}
		if q.BackoffDelay == 0 {
			q.BackoffDelay = def.BackoffDelay
		}
		if q.RemoveOnComplete == 0 {
			q.RemoveOnComplete = def.RemoveOnComplete
		}
		if q.RemoveOnFail == 0 {
			q.RemoveOnFail = def.RemoveOnFail
		}
		if q.StallTimeout == 0 {
			q.StallTimeout = def.StallTimeout
		}
		cfg.Queues[name] = q
	}

	c := &cfg.Collection
	if c.TargetCount == 0 {
		c.TargetCount = 3
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = 3600000
	}
	if c.ErrorLogSize == 0 {
		c.ErrorLogSize = 10
	}
	if c.SearchTimeout == 0 {
		c.SearchTimeout = 15000
	}
	if c.DownloadTimeout == 0 {
		c.DownloadTimeout = 20000
	}
	if c.PerPage == 0 {
		c.PerPage = 10
	}
	if c.CandidateFactor == 0 {
		c.CandidateFactor = 4
	}
	if c.MaxTerms == 0 {
		c.MaxTerms = 6
	}
	if len(c.Sources) == 0 {
		c.Sources = []string{"unsplash", "pixabay", "searxng"}
	}
	if c.BatchSize == 0 {
		c.BatchSize = 3
	}
	if c.BatchDelay == 0 {
		c.BatchDelay = 2000
	}
	if c.MaxDownloadBytes == 0 {
		c.MaxDownloadBytes = 15 << 20
	}
	if c.DedupDistance == 0 {
		c.DedupDistance = 10
	}
	if c.MaxPixels == 0 {
		c.MaxPixels = 40_000_000
	}

	if cfg.Quality.AutoApprovalThreshold == 0 {
		cfg.Quality.AutoApprovalThreshold = 8.5
	}
	if cfg.Quality.MinQualityThreshold == 0 {
		cfg.Quality.MinQualityThreshold = 5.0
	}

	if cfg.Sources.Unsplash.BaseURL == "" {
		cfg.Sources.Unsplash.BaseURL = "https://api.unsplash.com"
	}
	if cfg.Sources.Pixabay.BaseURL == "" {
		cfg.Sources.Pixabay.BaseURL = "https://pixabay.com/api/"
	}
	if cfg.Generator.Timeout == 0 {
		cfg.Generator.Timeout = 120000
	}
	if cfg.Generator.Style == "" {
		cfg.Generator.Style = "educational-illustration"
	}

	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 256
	}
	if cfg.Registry.Path == "" {
		cfg.Registry.Path = "./configs/job-registry.json"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func defaultQueueConfig(name string) QueueConfig {
	q := QueueConfig{
		Concurrency:      3,
		MaxAttempts:      3,
		Backoff:          "exponential",
		BackoffDelay:     5000,
		RemoveOnComplete: 100,
		RemoveOnFail:     50,
		StallTimeout:     300000,
	}
	if name == QueueCollectCategory {
		q.Concurrency = 1
		q.MaxAttempts = 1
		q.Backoff = "fixed"
		q.StallTimeout = 3600000
	}
	return q
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	switch cfg.ItemStore.Driver {
	case "memory":
	case "postgres":
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if cfg.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	default:
		return fmt.Errorf("item_store.driver %q is not supported", cfg.ItemStore.Driver)
	}

	switch cfg.Storage.Provider {
	case "local":
	case "s3":
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required")
		}
	case "gcs":
		if cfg.Storage.GCS.Bucket == "" {
			return fmt.Errorf("storage.gcs.bucket is required")
		}
	default:
		return fmt.Errorf("storage.provider %q is not supported", cfg.Storage.Provider)
	}
	if cfg.Storage.Fallback != "" && cfg.Storage.Fallback != "local" {
		return fmt.Errorf("storage.fallback %q is not supported", cfg.Storage.Fallback)
	}

	for name, q := range cfg.Queues {
		if q.Backoff != "fixed" && q.Backoff != "exponential" {
			return fmt.Errorf("queues.%s.backoff must be fixed or exponential", name)
		}
		if q.Concurrency < 1 {
			return fmt.Errorf("queues.%s.concurrency must be positive", name)
		}
	}

	if cfg.Quality.MinQualityThreshold > cfg.Quality.AutoApprovalThreshold {
		return fmt.Errorf("quality.min_quality_threshold must not exceed quality.auto_approval_threshold")
	}
	if cfg.Quality.AutoApprovalThreshold > 10 || cfg.Quality.MinQualityThreshold < 0 {
		return fmt.Errorf("quality thresholds must lie within [0, 10]")
	}

	if cfg.Events.Kafka.Enabled && (len(cfg.Events.Kafka.Brokers) == 0 || cfg.Events.Kafka.Topic == "") {
		return fmt.Errorf("events.kafka.brokers and events.kafka.topic are required when kafka is enabled")
	}
	if cfg.Events.SNS.Enabled && cfg.Events.SNS.TopicARN == "" {
		return fmt.Errorf("events.sns.topic_arn is required when sns is enabled")
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetQueueConfig retrieves a queue's configuration with fallback to defaults.
func GetQueueConfig(cfg *Config, name string) QueueConfig {
	if q, ok := cfg.Queues[name]; ok {
		return q
	}
	return defaultQueueConfig(name)
}

// IsQueueEnabled reports whether workers should be registered for a queue.
func IsQueueEnabled(cfg *Config, name string) bool {
	if q, ok := cfg.Queues[name]; ok {
		return !q.Disabled
	}
	return true
}
