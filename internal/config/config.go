// Package config loads service settings from defaults, an optional TOML
// file and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvDevelopment selects the embedded SQLite backend when no backend is set.
const EnvDevelopment = "development"

// Backend names accepted in storage.backend.
const (
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
	BackendBigQuery  = "bigquery"
)

// Config holds application configuration.
type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Log         LogConfig       `mapstructure:"log"`
	Storage     StorageConfig   `mapstructure:"storage"`
	SQLite      SQLiteConfig    `mapstructure:"sqlite"`
	GCP         GCPConfig       `mapstructure:"gcp"`
	Firestore   FirestoreConfig `mapstructure:"firestore"`
	BigQuery    BigQueryConfig  `mapstructure:"bigquery"`
	Gemini      GeminiConfig    `mapstructure:"gemini"`
	GCS         GCSConfig       `mapstructure:"gcs"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxUploadBytes int64    `mapstructure:"max_upload_bytes"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

// StorageConfig.Backend may be empty; see Config.StorageBackend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type GCPConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

type FirestoreConfig struct {
	Collection string `mapstructure:"collection"`
}

type BigQueryConfig struct {
	Dataset string `mapstructure:"dataset"`
	Table   string `mapstructure:"table"`
}

// GeminiConfig configures the remote normalizer. An empty APIKey disables it.
type GeminiConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
	BaseURL string        `mapstructure:"base_url"`
}

// GCSConfig configures the upload archive. An empty Bucket disables it.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// legacyEnv maps keys to the unprefixed variable names older deployments use.
var legacyEnv = map[string]string{
	"environment":          "ENVIRONMENT",
	"storage.backend":      "DATABASE_BACKEND",
	"gemini.api_key":       "GEMINI_API_KEY",
	"gcs.bucket":           "GCP_BUCKET",
	"firestore.collection": "FIRESTORE_COLLECTION",
	"gcp.project_id":       "GOOGLE_CLOUD_PROJECT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "production")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173", "http://localhost:3000"})
	v.SetDefault("server.max_upload_bytes", int64(5*1024*1024))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
	v.SetDefault("storage.backend", "")
	v.SetDefault("sqlite.path", "expenses.db")
	v.SetDefault("gcp.project_id", "")
	v.SetDefault("gcp.credentials_file", "")
	v.SetDefault("firestore.collection", "expenses")
	v.SetDefault("bigquery.dataset", "expenses")
	v.SetDefault("bigquery.table", "expenses")
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.timeout", 30*time.Second)
	v.SetDefault("gemini.base_url", "")
	v.SetDefault("gcs.bucket", "")
}

// Load reads configuration from file and env. Env var overrides use prefix
// EXPENSES_ (EXPENSES_SERVER_PORT, ...) and win over the legacy names.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("toml")
	if cfgPath := os.Getenv("EXPENSES_CONFIG"); cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "expense-importer"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("EXPENSES")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, legacy := range legacyEnv {
		prefixed := "EXPENSES_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	// config file is optional
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// StorageBackend resolves the backend name: the explicit setting when
// present, otherwise sqlite in development and firestore everywhere else.
func (c Config) StorageBackend() string {
	if b := strings.ToLower(strings.TrimSpace(c.Storage.Backend)); b != "" {
		return b
	}
	if strings.EqualFold(c.Environment, EnvDevelopment) {
		return BackendSQLite
	}
	return BackendFirestore
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	switch c.StorageBackend() {
	case BackendSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("config: sqlite.path is required for the sqlite backend")
		}
	case BackendFirestore, BackendBigQuery:
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	if c.StorageBackend() == BackendBigQuery && c.GCP.ProjectID == "" {
		return fmt.Errorf("config: gcp.project_id is required for the bigquery backend")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("config: server.max_upload_bytes must be positive")
	}
	if c.Gemini.Timeout <= 0 {
		return fmt.Errorf("config: gemini.timeout must be positive")
	}
	return nil
}
