package config

import (
	"fmt"
	"strings"
	"time"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/spf13/viper"
)

const (
	ProgressBackendFile     = "file"
	ProgressBackendPostgres = "postgres"

	DestinationBigQuery = "bigquery"
	DestinationDuckDB   = "duckdb"
	DestinationPostgres = "postgres"
)

type Config struct {
	Environment string `mapstructure:"ENVIRONMENT"`

	FTPHost       string   `mapstructure:"FTP_HOST"`
	FTPPort       int      `mapstructure:"FTP_PORT"`
	FTPBasePath   string   `mapstructure:"FTP_BASE_PATH"`
	FTPTimeoutSec int      `mapstructure:"FTP_TIMEOUT_SEC"`
	ExcludedFiles []string `mapstructure:"EXCLUDED_FILES"`

	ChunkSize      int    `mapstructure:"CHUNK_SIZE"`
	TempDir        string `mapstructure:"TEMP_DIR"`
	ProcessedDir   string `mapstructure:"PROCESSED_DIR"`
	DictionaryPath string `mapstructure:"DICTIONARY_PATH"`
	NotInformed    string `mapstructure:"NOT_INFORMED"`

	ProgressBackend string `mapstructure:"PROGRESS_BACKEND"`
	ProgressFile    string `mapstructure:"PROGRESS_FILE"`
	ProgressDSN     string `mapstructure:"PROGRESS_DSN"`

	DestinationDriver  string `mapstructure:"DESTINATION_DRIVER"`
	TableNameTemplate  string `mapstructure:"TABLE_NAME_TEMPLATE"`
	GCPProjectID       string `mapstructure:"GCP_PROJECT_ID"`
	GCPCredentialsPath string `mapstructure:"GCP_CREDENTIALS_PATH"`
	BigQueryDatasetID  string `mapstructure:"BIGQUERY_DATASET_ID"`
	BigQueryLocation   string `mapstructure:"BIGQUERY_LOCATION"`
	DuckDBPath         string `mapstructure:"DUCKDB_PATH"`
	DuckDBSchema       string `mapstructure:"DUCKDB_SCHEMA"`
	PostgresDSN        string `mapstructure:"POSTGRES_DSN"`
	PostgresSchema     string `mapstructure:"POSTGRES_SCHEMA"`

	MaxRetries        int     `mapstructure:"MAX_RETRIES"`
	RetryDelaySec     int     `mapstructure:"RETRY_DELAY_SEC"`
	BackoffMultiplier float64 `mapstructure:"BACKOFF_MULTIPLIER"`

	WatchAt string `mapstructure:"WATCH_AT"`
}

var envVars = []string{
	"ENVIRONMENT",
	"FTP_HOST", "FTP_PORT", "FTP_BASE_PATH", "FTP_TIMEOUT_SEC", "EXCLUDED_FILES",
	"CHUNK_SIZE", "TEMP_DIR", "PROCESSED_DIR", "DICTIONARY_PATH", "NOT_INFORMED",
	"PROGRESS_BACKEND", "PROGRESS_FILE", "PROGRESS_DSN",
	"DESTINATION_DRIVER", "TABLE_NAME_TEMPLATE",
	"GCP_PROJECT_ID", "GCP_CREDENTIALS_PATH", "BIGQUERY_DATASET_ID", "BIGQUERY_LOCATION",
	"DUCKDB_PATH", "DUCKDB_SCHEMA", "POSTGRES_DSN", "POSTGRES_SCHEMA",
	"MAX_RETRIES", "RETRY_DELAY_SEC", "BACKOFF_MULTIPLIER",
	"WATCH_AT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENVIRONMENT", "production")
	v.SetDefault("FTP_HOST", "ftp.mtps.gov.br")
	v.SetDefault("FTP_PORT", 21)
	v.SetDefault("FTP_BASE_PATH", "/pdet/microdados/RAIS/")
	v.SetDefault("FTP_TIMEOUT_SEC", 60)
	v.SetDefault("EXCLUDED_FILES", "RAIS_ESTAB_PUB.7z,RAIS_VINC_PUB_NI.7z")
	v.SetDefault("CHUNK_SIZE", 1_000_000)
	v.SetDefault("NOT_INFORMED", "N/I")
	v.SetDefault("PROGRESS_BACKEND", ProgressBackendFile)
	v.SetDefault("PROGRESS_FILE", "rais_progress.json")
	v.SetDefault("DESTINATION_DRIVER", DestinationBigQuery)
	v.SetDefault("TABLE_NAME_TEMPLATE", "{period}-12")
	v.SetDefault("BIGQUERY_LOCATION", "southamerica-east1")
	v.SetDefault("DUCKDB_SCHEMA", "main")
	v.SetDefault("POSTGRES_SCHEMA", "public")
	v.SetDefault("MAX_RETRIES", 3)
	v.SetDefault("RETRY_DELAY_SEC", 10)
	v.SetDefault("BACKOFF_MULTIPLIER", 2)
	v.SetDefault("WATCH_AT", "02:00")
}

// New reads the configuration from the environment, falling back to .env and
// .env.local files when the required variables are not exported.
func New() (Config, error) {
	log := logger.New("config").Function("New")
	log.Info("Initializing config")

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	for _, env := range envVars {
		if err := v.BindEnv(env); err != nil {
			log.Warn("Failed to bind environment variable", "env", env, "error", err)
		}
	}

	envVarsSet := v.IsSet("TEMP_DIR") && v.IsSet("PROCESSED_DIR") && v.IsSet("DICTIONARY_PATH")

	if envVarsSet {
		log.Info("Environment variables detected, skipping file loading")
	} else {
		log.Info("Environment variables not found, attempting to load from files")

		v.SetConfigFile(".env")
		v.SetConfigType("env")

		if err := v.ReadInConfig(); err != nil {
			log.Warn("Could not find .env file", "error", err)
		} else {
			log.Info("Loaded .env file")
		}

		v.SetConfigFile(".env.local")
		if err := v.MergeInConfig(); err != nil {
			log.Debug("No .env.local file found", "error", err)
		} else {
			log.Info("Loaded .env.local overrides")
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, log.Err("Fatal error: could not unmarshal config", err)
	}
	config.ExcludedFiles = normalizeList(config.ExcludedFiles)

	if err := validateConfig(config, log); err != nil {
		return Config{}, err
	}

	log.Info("Successfully initialized config",
		"destination", config.DestinationDriver,
		"progressBackend", config.ProgressBackend,
		"ftpHost", config.FTPHost)
	return config, nil
}

func validateConfig(config Config, log logger.Logger) error {
	required := map[string]string{
		"TEMP_DIR":        config.TempDir,
		"PROCESSED_DIR":   config.ProcessedDir,
		"DICTIONARY_PATH": config.DictionaryPath,
		"FTP_HOST":        config.FTPHost,
	}
	for key, value := range required {
		if strings.TrimSpace(value) == "" {
			return log.Err(
				"Fatal error: required configuration missing",
				fmt.Errorf("%s is not set", key),
				"key",
				key,
			)
		}
	}

	if config.ChunkSize <= 0 {
		return log.Error("Fatal error: invalid chunk size", "chunkSize", config.ChunkSize)
	}
	if config.MaxRetries < 0 {
		return log.Error("Fatal error: invalid max retries", "maxRetries", config.MaxRetries)
	}
	if config.BackoffMultiplier < 1 {
		return log.Error("Fatal error: backoff multiplier must be >= 1", "multiplier", config.BackoffMultiplier)
	}

	switch config.ProgressBackend {
	case ProgressBackendFile:
		if config.ProgressFile == "" {
			return log.Error("Fatal error: PROGRESS_FILE required for file progress backend")
		}
	case ProgressBackendPostgres:
		if config.ProgressDSN == "" {
			return log.Error("Fatal error: PROGRESS_DSN required for postgres progress backend")
		}
	default:
		return log.Error("Fatal error: unknown progress backend", "backend", config.ProgressBackend)
	}

	switch config.DestinationDriver {
	case DestinationBigQuery:
		if config.GCPProjectID == "" || config.BigQueryDatasetID == "" {
			return log.Error(
				"Fatal error: GCP_PROJECT_ID and BIGQUERY_DATASET_ID required for bigquery destination",
			)
		}
	case DestinationDuckDB:
		if config.DuckDBPath == "" {
			return log.Error("Fatal error: DUCKDB_PATH required for duckdb destination")
		}
	case DestinationPostgres:
		if config.PostgresDSN == "" {
			return log.Error("Fatal error: POSTGRES_DSN required for postgres destination")
		}
	default:
		return log.Error("Fatal error: unknown destination driver", "driver", config.DestinationDriver)
	}

	if _, err := time.Parse("15:04", config.WatchAt); err != nil {
		return log.Err("Fatal error: WATCH_AT must be HH:MM", err, "watchAt", config.WatchAt)
	}

	return nil
}

func (c Config) FTPAddress() string {
	return fmt.Sprintf("%s:%d", c.FTPHost, c.FTPPort)
}

func (c Config) FTPTimeout() time.Duration {
	return time.Duration(c.FTPTimeoutSec) * time.Second
}

func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySec) * time.Second
}

// TableName renders TABLE_NAME_TEMPLATE for a period.
func (c Config) TableName(period string) string {
	return strings.ReplaceAll(c.TableNameTemplate, "{period}", period)
}

func normalizeList(values []string) []string {
	var out []string
	for _, value := range values {
		for part := range strings.SplitSeq(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
