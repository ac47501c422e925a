package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Blob   BlobConfig   `yaml:"blob" mapstructure:"blob"`
	EDGAR  EDGARConfig  `yaml:"edgar" mapstructure:"edgar"`
	Tika   TikaConfig   `yaml:"tika" mapstructure:"tika"`
	Queue  QueueConfig  `yaml:"queue" mapstructure:"queue"`
	Worker WorkerConfig `yaml:"worker" mapstructure:"worker"`
	Crawl  CrawlConfig  `yaml:"crawl" mapstructure:"crawl"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the catalogue database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// BlobConfig configures the document object store. ClientType selects
// exactly one backend: S3, Blob (Azure Blob), ADL (Azure Data Lake) or
// Local.
type BlobConfig struct {
	ClientType   string `yaml:"client_type" mapstructure:"client_type"`
	DocumentPath string `yaml:"document_path" mapstructure:"document_path"`
	// Deflate compresses document artifacts at rest. Envelope and index
	// mirrors are always stored verbatim.
	Deflate bool        `yaml:"deflate" mapstructure:"deflate"`
	S3      S3Config    `yaml:"s3" mapstructure:"s3"`
	Azure   AzureConfig `yaml:"azure" mapstructure:"azure"`
	ADL     ADLConfig   `yaml:"adl" mapstructure:"adl"`
	Local   LocalConfig `yaml:"local" mapstructure:"local"`
}

// S3Config holds AWS S3 credentials and bucket settings.
type S3Config struct {
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Region          string `yaml:"region" mapstructure:"region"`
	AccessKeyID     string `yaml:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" mapstructure:"secret_access_key"`
	Endpoint        string `yaml:"endpoint" mapstructure:"endpoint"`
}

// AzureConfig holds Azure Blob Storage settings.
type AzureConfig struct {
	ConnectionString string `yaml:"connection_string" mapstructure:"connection_string"`
	Container        string `yaml:"container" mapstructure:"container"`
}

// ADLConfig holds Azure Data Lake Gen2 settings.
type ADLConfig struct {
	AccountName  string `yaml:"account_name" mapstructure:"account_name"`
	FileSystem   string `yaml:"file_system" mapstructure:"file_system"`
	TenantID     string `yaml:"tenant_id" mapstructure:"tenant_id"`
	ClientID     string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret"`
}

// LocalConfig holds local-filesystem store settings.
type LocalConfig struct {
	RootDir string `yaml:"root_dir" mapstructure:"root_dir"`
}

// EDGARConfig configures the SEC EDGAR HTTP client.
type EDGARConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	// UserAgent must identify the operator; SEC rejects anonymous agents.
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`
	// SleepSecs is the pause after every successful fetch. Zero disables it.
	SleepSecs float64 `yaml:"sleep_secs" mapstructure:"sleep_secs"`
	// BackoffSecs is the ordered failure ladder: the n-th consecutive
	// failure sleeps BackoffSecs[n] before retrying. Once exhausted the
	// fetch surrenders.
	BackoffSecs []float64 `yaml:"backoff_secs" mapstructure:"backoff_secs"`
	// RequestsPerSecond caps the request rate against sec.gov.
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MinYear           int     `yaml:"min_year" mapstructure:"min_year"`
}

// TikaConfig configures the text extraction service.
type TikaConfig struct {
	Endpoint         string `yaml:"endpoint" mapstructure:"endpoint"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries       int    `yaml:"max_retries" mapstructure:"max_retries"`
	FailureThreshold int    `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int    `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// QueueConfig configures the task queue backend.
type QueueConfig struct {
	Driver         string `yaml:"driver" mapstructure:"driver"`
	PollIntervalMs int    `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	MaxAttempts    int    `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// WorkerConfig configures queue consumers.
type WorkerConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// CrawlConfig configures the index crawl driver. Year, Quarter, Month and
// FormTypes are also honoured from the canonical EDGAR_YEAR, EDGAR_QUARTER,
// EDGAR_MONTH and FORM_TYPES environment variables.
type CrawlConfig struct {
	FormTypes      []string `yaml:"form_types" mapstructure:"form_types"`
	Year           int      `yaml:"year" mapstructure:"year"`
	Quarter        int      `yaml:"quarter" mapstructure:"quarter"`
	Month          int      `yaml:"month" mapstructure:"month"`
	NewOnly        bool     `yaml:"new_only" mapstructure:"new_only"`
	StoreRaw       bool     `yaml:"store_raw" mapstructure:"store_raw"`
	StoreText      bool     `yaml:"store_text" mapstructure:"store_text"`
	StoreProcessed bool     `yaml:"store_processed" mapstructure:"store_processed"`
	// DoubleGz handles historical mirrors whose index files were gzipped
	// twice.
	DoubleGz bool `yaml:"double_gz" mapstructure:"double_gz"`
	// MirrorURL optionally seeds index files from an EDGAR mirror
	// (http(s):// or ftp://) instead of sec.gov.
	MirrorURL string `yaml:"mirror_url" mapstructure:"mirror_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("EDGAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Canonical unprefixed variables kept for operational compatibility.
	_ = v.BindEnv("blob.client_type", "EDGAR_BLOB_CLIENT_TYPE", "CLIENT_TYPE")
	_ = v.BindEnv("blob.document_path", "EDGAR_BLOB_DOCUMENT_PATH", "S3_DOCUMENT_PATH")
	_ = v.BindEnv("crawl.form_types", "EDGAR_CRAWL_FORM_TYPES", "FORM_TYPES")
	_ = v.BindEnv("crawl.year", "EDGAR_CRAWL_YEAR", "EDGAR_YEAR")
	_ = v.BindEnv("crawl.quarter", "EDGAR_CRAWL_QUARTER", "EDGAR_QUARTER")
	_ = v.BindEnv("crawl.month", "EDGAR_CRAWL_MONTH", "EDGAR_MONTH")

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("blob.client_type", "Local")
	v.SetDefault("blob.document_path", "documents")
	v.SetDefault("blob.deflate", false)
	v.SetDefault("blob.local.root_dir", "/tmp/edgar-pipeline")
	v.SetDefault("blob.s3.region", "us-east-1")
	v.SetDefault("edgar.base_url", "https://www.sec.gov")
	v.SetDefault("edgar.user_agent", "edgar-pipeline admin@example.com")
	v.SetDefault("edgar.sleep_secs", 0.1)
	v.SetDefault("edgar.backoff_secs", []float64{5, 10, 30, 60, 120, 300})
	v.SetDefault("edgar.requests_per_second", 10)
	v.SetDefault("edgar.timeout_secs", 60)
	v.SetDefault("edgar.min_year", 1950)
	v.SetDefault("tika.endpoint", "http://localhost:9998")
	v.SetDefault("tika.timeout_secs", 120)
	v.SetDefault("tika.max_retries", 3)
	v.SetDefault("tika.failure_threshold", 5)
	v.SetDefault("tika.reset_timeout_secs", 30)
	v.SetDefault("queue.driver", "memory")
	v.SetDefault("queue.poll_interval_ms", 250)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("crawl.store_raw", true)
	v.SetDefault("crawl.store_text", true)
	v.SetDefault("crawl.store_processed", true)
	v.SetDefault("crawl.new_only", false)
	v.SetDefault("crawl.double_gz", false)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings a command depends on are present.
// Mode names match the CLI commands.
func (c *Config) Validate(mode string) error {
	var problems []string

	requireStore := func() {
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	}
	requireBlob := func() {
		switch c.Blob.ClientType {
		case "S3":
			if c.Blob.S3.Bucket == "" {
				problems = append(problems, "blob.s3.bucket is required")
			}
		case "Blob":
			if c.Blob.Azure.ConnectionString == "" || c.Blob.Azure.Container == "" {
				problems = append(problems, "blob.azure.connection_string and blob.azure.container are required")
			}
		case "ADL":
			if c.Blob.ADL.AccountName == "" || c.Blob.ADL.FileSystem == "" {
				problems = append(problems, "blob.adl.account_name and blob.adl.file_system are required")
			}
		case "Local":
			if c.Blob.Local.RootDir == "" {
				problems = append(problems, "blob.local.root_dir is required")
			}
		default:
			problems = append(problems, fmt.Sprintf("blob.client_type %q is not one of S3, Blob, ADL, Local", c.Blob.ClientType))
		}
	}

	switch mode {
	case "migrate", "status":
		requireStore()
	case "hygiene":
		requireBlob()
	case "download", "search":
		requireStore()
		requireBlob()
	case "crawl", "worker":
		requireStore()
		requireBlob()
		if c.Worker.Concurrency < 1 || c.Worker.Concurrency > 64 {
			problems = append(problems, "worker.concurrency must be between 1 and 64")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
