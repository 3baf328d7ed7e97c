package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// isolate clears every variable Load reads so the host environment cannot leak in.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("EXPENSES_CONFIG", "")
	for _, legacy := range legacyEnv {
		t.Setenv(legacy, "")
	}
	for _, name := range []string{
		"EXPENSES_ENVIRONMENT", "EXPENSES_STORAGE_BACKEND", "EXPENSES_SERVER_PORT",
		"EXPENSES_GEMINI_API_KEY", "EXPENSES_GEMINI_TIMEOUT", "EXPENSES_GCS_BUCKET",
		"EXPENSES_SERVER_ALLOWED_ORIGINS", "EXPENSES_SQLITE_PATH",
	} {
		t.Setenv(name, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "production", c.Environment)
	require.Equal(t, 8000, c.Server.Port)
	require.Equal(t, int64(5*1024*1024), c.Server.MaxUploadBytes)
	require.Equal(t, []string{"http://localhost:5173", "http://localhost:3000"}, c.Server.AllowedOrigins)
	require.Equal(t, 30*time.Second, c.Gemini.Timeout)
	require.Equal(t, "gemini-2.5-flash", c.Gemini.Model)
	require.Equal(t, "expenses", c.Firestore.Collection)
	require.Equal(t, BackendFirestore, c.StorageBackend())
}

func TestLoad_PrefixedEnv(t *testing.T) {
	isolate(t)
	t.Setenv("EXPENSES_SERVER_PORT", "9001")
	t.Setenv("EXPENSES_GEMINI_TIMEOUT", "5s")
	t.Setenv("EXPENSES_STORAGE_BACKEND", "sqlite")
	t.Setenv("EXPENSES_SQLITE_PATH", "/tmp/x.db")

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, 9001, c.Server.Port)
	require.Equal(t, 5*time.Second, c.Gemini.Timeout)
	require.Equal(t, BackendSQLite, c.StorageBackend())
	require.Equal(t, "/tmp/x.db", c.SQLite.Path)
}

func TestLoad_LegacyEnv(t *testing.T) {
	isolate(t)
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("GEMINI_API_KEY", "legacy-key")
	t.Setenv("GCP_BUCKET", "legacy-bucket")

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "development", c.Environment)
	require.Equal(t, BackendSQLite, c.StorageBackend())
	require.Equal(t, "legacy-key", c.Gemini.APIKey)
	require.Equal(t, "legacy-bucket", c.GCS.Bucket)
}

func TestLoad_PrefixedBeatsLegacy(t *testing.T) {
	isolate(t)
	t.Setenv("GEMINI_API_KEY", "legacy-key")
	t.Setenv("EXPENSES_GEMINI_API_KEY", "new-key")

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "new-key", c.Gemini.APIKey)
}

func TestLoad_ConfigFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
environment = "staging"

[server]
port = 8080

[storage]
backend = "bigquery"

[gcp]
project_id = "my-project"

[bigquery]
dataset = "finance"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("EXPENSES_CONFIG", path)

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "staging", c.Environment)
	require.Equal(t, 8080, c.Server.Port)
	require.Equal(t, BackendBigQuery, c.StorageBackend())
	require.Equal(t, "my-project", c.GCP.ProjectID)
	require.Equal(t, "finance", c.BigQuery.Dataset)
	require.Equal(t, "expenses", c.BigQuery.Table)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)
	t.Setenv("EXPENSES_CONFIG", filepath.Join(t.TempDir(), "nope.toml"))

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_UnknownBackend(t *testing.T) {
	isolate(t)
	t.Setenv("EXPENSES_STORAGE_BACKEND", "mongo")

	_, err := Load()
	require.ErrorContains(t, err, "unknown storage backend")
}

func TestConfig_StorageBackend(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"production default", Config{Environment: "production"}, BackendFirestore},
		{"development default", Config{Environment: "development"}, BackendSQLite},
		{"development is case-insensitive", Config{Environment: "Development"}, BackendSQLite},
		{"explicit wins", Config{Environment: "development", Storage: StorageConfig{Backend: "BigQuery"}}, BackendBigQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.StorageBackend(); got != tt.want {
				t.Errorf("StorageBackend() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		Environment: "development",
		SQLite:      SQLiteConfig{Path: "x.db"},
		Server:      ServerConfig{MaxUploadBytes: 1},
		Gemini:      GeminiConfig{Timeout: time.Second},
	}
	require.NoError(t, valid.Validate())

	noProject := valid
	noProject.Storage.Backend = BackendBigQuery
	require.Error(t, noProject.Validate())

	noLimit := valid
	noLimit.Server.MaxUploadBytes = 0
	require.Error(t, noLimit.Validate())
}
