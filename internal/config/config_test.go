package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cayleygraph/quad"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lemma.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, quad.IRI(DefaultInferredContext), cfg.InferredGraph())
	assert.Equal(t, zapcore.InfoLevel, cfg.Level())
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultDatabasePath, cfg.DatabasePath)
	assert.Equal(t, DefaultMaxRounds, cfg.MaxRounds)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
database: /var/lib/lemma/facts.db
max_rounds: 50
log_level: debug
metrics_addr: 127.0.0.1:9090
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/lemma/facts.db", cfg.DatabasePath)
	assert.Equal(t, 50, cfg.MaxRounds)
	assert.Equal(t, zapcore.DebugLevel, cfg.Level())
	assert.Equal(t, "127.0.0.1:9090", cfg.MetricsAddr)
	assert.Equal(t, DefaultReasonerCreator, cfg.ReasonerCreator, "unset keys keep defaults")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "database: file.db\nlog_level: info\n")
	t.Setenv(EnvDatabase, "env.db")
	t.Setenv(EnvInferredContext, "urn:graph:derived")
	t.Setenv(EnvLogLevel, "WARN")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env.db", cfg.DatabasePath)
	assert.Equal(t, quad.IRI("urn:graph:derived"), cfg.InferredGraph())
	assert.Equal(t, zapcore.WarnLevel, cfg.Level())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "bad yaml", body: "database: [", wantErr: "parse config"},
		{name: "zero rounds", body: "max_rounds: 0", wantErr: "maxrounds must be at least 1"},
		{name: "bad level", body: "log_level: loud", wantErr: "loglevel must be one of"},
		{name: "bad metrics addr", body: "metrics_addr: nope", wantErr: "metricsaddr must be host:port"},
		{name: "empty database", body: `database: ""`, wantErr: "databasepath is required"},
		{name: "bad context", body: `inferred_context: "<urn:x>"`, wantErr: "is not an IRI"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestInferredGraph_Disabled(t *testing.T) {
	cfg := Default()
	cfg.InferredContext = NoInferredContext
	require.NoError(t, cfg.Validate())
	assert.Nil(t, cfg.InferredGraph())
}
