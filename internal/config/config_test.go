package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	v := viper.New()
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	require.NoError(t, BindFlags(fs, v))
	require.NoError(t, fs.Parse(args))
	return Load(v)
}

func TestLoad_RequiresRollupURL(t *testing.T) {
	t.Setenv(EnvRollupURL, "")
	_, err := load(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvRollupURL)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(EnvRollupURL, "http://127.0.0.1:5004")
	c, err := load(t)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:5004", c.RollupURL)
	assert.Equal(t, "./configs/tuning.yaml", c.TuningPath)
	assert.Equal(t, "./data", c.DataDir)
	assert.Equal(t, filepath.Join("data", "index.db"), c.IndexPath())
	assert.False(t, c.DisableDB)
	assert.Equal(t, 0, c.MaxRetries)
	assert.Empty(t, c.ObserverAddr)
}

func TestLoad_FlagsEnvAndFile(t *testing.T) {
	t.Setenv(EnvRollupURL, "http://host:5004")
	t.Setenv("DAPP_OBSERVER_ADDR", "127.0.0.1:9090")

	cfgPath := filepath.Join(t.TempDir(), "dapp.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("max_retries: 3\ndisable_journal: true\n"), 0o644))

	c, err := load(t, "--config", cfgPath, "--disable-db", "--data", "/tmp/x")
	require.NoError(t, err)
	assert.True(t, c.DisableDB)
	assert.True(t, c.DisableJournal)
	assert.Equal(t, 3, c.MaxRetries)
	assert.Equal(t, "/tmp/x", c.DataDir)
	assert.Equal(t, "127.0.0.1:9090", c.ObserverAddr)
}

func TestLoad_NegativeRetries(t *testing.T) {
	t.Setenv(EnvRollupURL, "http://host:5004")
	_, err := load(t, "--max-retries", "-1")
	require.Error(t, err)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	t.Setenv(EnvRollupURL, "http://host:5004")
	_, err := load(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
