package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

// Тест проверяет создание новой конфигурации.
func TestNewConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GOPHNOTES_DATA_DIR", dir)

	config, err := NewConfig(newFlags(t))
	require.NoError(t, err)

	assert.Equal(t, dir, config.DataDir)
	assert.Equal(t, "http://localhost:8080", config.ServerURL)
	assert.True(t, config.SyncWithServer)
	assert.Equal(t, DriverSQLite, config.StoreDriver)
	assert.Equal(t, 500*time.Millisecond, config.Debounce)
	assert.Equal(t, 5*time.Second, config.ProbeInterval)
	assert.Equal(t, dir, config.SignalDir)
	assert.Equal(t, filepath.Join(dir, "gophnotes.log"), config.LogFile)
	assert.Equal(t, filepath.Join(dir, "notes.db"), config.StorePath())
	assert.Equal(t, filepath.Join(dir, "syncinfo.yaml"), config.SyncInfoPath())
	assert.NotEmpty(t, config.ClientID)
}

func TestNewConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FILE_STORAGE_PATH", dir)
	t.Setenv("SERVER_URL", "http://legacy:1")
	t.Setenv("SYNC_WITH_SERVER", "false")
	t.Setenv("GOPHNOTES_LOG_LEVEL", "debug")

	yaml := "store:\n  driver: badger\nsync:\n  debounce: 2s\nclient_id: from-file\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	config, err := NewConfig(newFlags(t, "--server-url", "http://flag:2"))
	require.NoError(t, err)

	assert.Equal(t, "http://flag:2", config.ServerURL, "flag beats environment")
	assert.False(t, config.SyncWithServer, "legacy variable")
	assert.Equal(t, "debug", config.LogLevel)
	assert.Equal(t, DriverBadger, config.StoreDriver, "config file")
	assert.Equal(t, 2*time.Second, config.Debounce)
	assert.Equal(t, "from-file", config.ClientID)
	assert.Equal(t, filepath.Join(dir, "badger"), config.StorePath())
}

func TestNewConfig_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("GOPHNOTES_DATA_DIR", t.TempDir())

	_, err := NewConfig(newFlags(t, "--store", "postgres"))
	assert.Error(t, err)
}
