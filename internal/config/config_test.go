package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "Local", cfg.Blob.ClientType)
	assert.Equal(t, "documents", cfg.Blob.DocumentPath)
	assert.Equal(t, "https://www.sec.gov", cfg.EDGAR.BaseURL)
	assert.InDelta(t, 0.1, cfg.EDGAR.SleepSecs, 0.001)
	assert.Equal(t, []float64{5, 10, 30, 60, 120, 300}, cfg.EDGAR.BackoffSecs)
	assert.InDelta(t, 10, cfg.EDGAR.RequestsPerSecond, 0.001)
	assert.Equal(t, "http://localhost:9998", cfg.Tika.Endpoint)
	assert.Equal(t, "memory", cfg.Queue.Driver)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.True(t, cfg.Crawl.StoreRaw)
	assert.True(t, cfg.Crawl.StoreText)
	assert.True(t, cfg.Crawl.StoreProcessed)
	assert.False(t, cfg.Crawl.NewOnly)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
  database_url: edgar.db
log:
  level: debug
  format: console
blob:
  client_type: S3
  s3:
    bucket: edgar-documents
    region: us-west-2
edgar:
  sleep_secs: 0
  backoff_secs: [1, 2]
worker:
  concurrency: 8
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "S3", cfg.Blob.ClientType)
	assert.Equal(t, "edgar-documents", cfg.Blob.S3.Bucket)
	assert.Equal(t, "us-west-2", cfg.Blob.S3.Region)
	assert.Equal(t, []float64{1, 2}, cfg.EDGAR.BackoffSecs)
	assert.Equal(t, 8, cfg.Worker.Concurrency)
	// Defaults still apply for unset values
	assert.Equal(t, "documents", cfg.Blob.DocumentPath)
	assert.Equal(t, "https://www.sec.gov", cfg.EDGAR.BaseURL)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("EDGAR_STORE_DRIVER", "postgres")
	t.Setenv("EDGAR_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadCanonicalEnvNames(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("CLIENT_TYPE", "ADL")
	t.Setenv("S3_DOCUMENT_PATH", "corpus")
	t.Setenv("FORM_TYPES", "10-K,8-K")
	t.Setenv("EDGAR_YEAR", "1997")
	t.Setenv("EDGAR_QUARTER", "2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ADL", cfg.Blob.ClientType)
	assert.Equal(t, "corpus", cfg.Blob.DocumentPath)
	assert.Equal(t, []string{"10-K", "8-K"}, cfg.Crawl.FormTypes)
	assert.Equal(t, 1997, cfg.Crawl.Year)
	assert.Equal(t, 2, cfg.Crawl.Quarter)
	assert.Equal(t, 0, cfg.Crawl.Month)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config populated the way Load would leave it.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.DatabaseURL = "postgres://localhost/edgar"
	cfg.Blob.ClientType = "Local"
	cfg.Blob.Local.RootDir = "/tmp/edgar-pipeline"
	cfg.Worker.Concurrency = 4
	return cfg
}

func TestValidateMigrate(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("migrate"))

	cfg.Store.DatabaseURL = ""
	err := cfg.Validate("migrate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateCrawl_BlobBackends(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("crawl"))

	cfg.Blob.ClientType = "S3"
	err := cfg.Validate("crawl")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "blob.s3.bucket is required")

	cfg.Blob.S3.Bucket = "edgar-documents"
	assert.NoError(t, cfg.Validate("crawl"))

	cfg.Blob.ClientType = "Blob"
	err = cfg.Validate("crawl")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "blob.azure.connection_string")

	cfg.Blob.ClientType = "ADL"
	err = cfg.Validate("crawl")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "blob.adl.account_name")

	cfg.Blob.ClientType = "tape"
	err = cfg.Validate("crawl")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not one of S3, Blob, ADL, Local")
}

func TestValidateHygieneNeedsOnlyBlob(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""
	assert.NoError(t, cfg.Validate("hygiene"))

	cfg.Blob.Local.RootDir = ""
	err := cfg.Validate("hygiene")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "blob.local.root_dir is required")
}

func TestValidateWorkerConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Worker.Concurrency = 0
	err := cfg.Validate("worker")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "worker.concurrency must be between 1 and 64")

	cfg.Worker.Concurrency = 65
	err = cfg.Validate("worker")
	assert.Error(t, err)

	cfg.Worker.Concurrency = 64
	assert.NoError(t, cfg.Validate("worker"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
