package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App        AppConfig              `mapstructure:"app"`
	Server     ServerConfig           `mapstructure:"server"`
	Database   DatabaseConfig         `mapstructure:"database"`
	ItemStore  ItemStoreConfig        `mapstructure:"item_store"`
	Storage    StorageConfig          `mapstructure:"storage"`
	Queues     map[string]QueueConfig `mapstructure:"queues"`
	Collection CollectionConfig       `mapstructure:"collection"`
	Quality    QualityConfig          `mapstructure:"quality"`
	Sources    SourcesConfig          `mapstructure:"sources"`
	Generator  GeneratorConfig        `mapstructure:"generator"`
	Events     EventsConfig           `mapstructure:"events"`
	Registry   RegistryConfig         `mapstructure:"registry"`
	Logging    LoggingConfig          `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port            int `mapstructure:"port"`
	ReadTimeout     int `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int `mapstructure:"shutdown_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	LockTTL  int    `mapstructure:"lock_ttl"` // milliseconds
}

// ItemStoreConfig selects the item persistence backend: "memory" or "postgres".
// Locking uses Redis when an address is configured.
type ItemStoreConfig struct {
	Driver string `mapstructure:"driver"`
	Table  string `mapstructure:"table"`
}

// StorageConfig configures the blob store. Provider is one of s3, gcs, local.
// Fallback, when "local", mirrors failed primary writes to the local store.
type StorageConfig struct {
	Provider     string `mapstructure:"provider"`
	Fallback     string `mapstructure:"fallback"`
	CacheControl string `mapstructure:"cache_control"`

	S3 struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		Endpoint        string `mapstructure:"endpoint"`
		UsePathStyle    bool   `mapstructure:"use_path_style"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		PublicURL       string `mapstructure:"public_url"`
	} `mapstructure:"s3"`

	GCS struct {
		Bucket    string `mapstructure:"bucket"`
		PublicURL string `mapstructure:"public_url"`
	} `mapstructure:"gcs"`

	Local struct {
		Root      string `mapstructure:"root"`
		PublicURL string `mapstructure:"public_url"`
	} `mapstructure:"local"`
}

// QueueConfig holds the settings of one named job queue.
type QueueConfig struct {
	Disabled         bool   `mapstructure:"disabled"`
	Concurrency      int    `mapstructure:"concurrency"`
	MaxAttempts      int    `mapstructure:"max_attempts"`
	Backoff          string `mapstructure:"backoff"`       // fixed | exponential
	BackoffDelay     int    `mapstructure:"backoff_delay"` // milliseconds
	RemoveOnComplete int    `mapstructure:"remove_on_complete"`
	RemoveOnFail     int    `mapstructure:"remove_on_fail"`
	StallTimeout     int    `mapstructure:"stall_timeout"` // milliseconds
	Timeout          int    `mapstructure:"timeout"`       // milliseconds
}

type CollectionConfig struct {
	TargetCount      int      `mapstructure:"target_count"`
	MaxRetries       int      `mapstructure:"max_retries"`
	RetryInterval    int      `mapstructure:"retry_interval"` // milliseconds
	ErrorLogSize     int      `mapstructure:"error_log_size"`
	SearchTimeout    int      `mapstructure:"search_timeout"`   // milliseconds
	DownloadTimeout  int      `mapstructure:"download_timeout"` // milliseconds
	PerPage          int      `mapstructure:"per_page"`
	CandidateFactor  int      `mapstructure:"candidate_factor"`
	MaxTerms         int      `mapstructure:"max_terms"`
	Sources          []string `mapstructure:"sources"`
	UseAIGeneration  bool     `mapstructure:"use_ai_generation"`
	BatchSize        int      `mapstructure:"batch_size"`
	BatchDelay       int      `mapstructure:"batch_delay"` // milliseconds
	MaxDownloadBytes int64    `mapstructure:"max_download_bytes"`
	DedupDistance    int      `mapstructure:"dedup_distance"`
	MaxPixels        int      `mapstructure:"max_pixels"`
}

type QualityConfig struct {
	AutoApprovalThreshold float64 `mapstructure:"auto_approval_threshold"`
	MinQualityThreshold   float64 `mapstructure:"min_quality_threshold"`
}

type SourcesConfig struct {
	Unsplash struct {
		Enabled   bool   `mapstructure:"enabled"`
		BaseURL   string `mapstructure:"base_url"`
		AccessKey string `mapstructure:"access_key"`
	} `mapstructure:"unsplash"`

	Pixabay struct {
		Enabled bool   `mapstructure:"enabled"`
		BaseURL string `mapstructure:"base_url"`
		APIKey  string `mapstructure:"api_key"`
	} `mapstructure:"pixabay"`

	SearXNG struct {
		Enabled bool   `mapstructure:"enabled"`
		BaseURL string `mapstructure:"base_url"`
	} `mapstructure:"searxng"`
}

type GeneratorConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Style   string `mapstructure:"style"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

// EventsConfig configures where scheduler lifecycle events are published.
type EventsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`

	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		Region   string `mapstructure:"region"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`

	Kafka struct {
		Enabled bool     `mapstructure:"enabled"`
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
}

type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
