// Package config resolves client options from defaults, an optional
// config.yaml in the data directory, the environment and command line flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
)

type Options struct {
	DataDir        string
	ServerURL      string
	SyncWithServer bool
	StoreDriver    string
	Debounce       time.Duration
	ProbeInterval  time.Duration
	RequestTimeout time.Duration
	SignalDir      string
	AuthToken      string
	ClientID       string
	LogFile        string
	LogLevel       string
	LogMaxSizeMB   int
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"data-dir":         "data_dir",
	"server-url":       "server_url",
	"sync-with-server": "sync_with_server",
	"store":            "store.driver",
	"debounce":         "sync.debounce",
	"probe-interval":   "net.probe_interval",
	"request-timeout":  "net.request_timeout",
	"signal-dir":       "net.signal_dir",
	"token":            "auth.token",
	"client-id":        "client_id",
	"log-file":         "log.file",
	"log-level":        "log.level",
}

// legacyEnv lists unprefixed variables still honoured for some keys.
var legacyEnv = map[string]string{
	"server_url":       "SERVER_URL",
	"sync_with_server": "SYNC_WITH_SERVER",
	"data_dir":         "FILE_STORAGE_PATH",
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("data-dir", "", "directory for the local store, logs and sync info")
	fs.String("server-url", "http://localhost:8080", "notes API base URL")
	fs.Bool("sync-with-server", true, "synchronize with the server")
	fs.String("store", DriverSQLite, "local store driver: sqlite or badger")
	fs.Duration("debounce", 500*time.Millisecond, "quiet period before an edit is sent")
	fs.Duration("probe-interval", 5*time.Second, "connectivity probe interval")
	fs.Duration("request-timeout", 10*time.Second, "timeout for a single API request")
	fs.String("signal-dir", "", "directory watched for the offline marker file")
	fs.String("token", "", "bearer token for the notes API")
	fs.String("client-id", "", "client identifier sent with every request")
	fs.String("log-file", "", "log file path")
	fs.String("log-level", "info", "log level: debug, info, warn or error")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("sync_with_server", true)
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("sync.debounce", 500*time.Millisecond)
	v.SetDefault("net.probe_interval", 5*time.Second)
	v.SetDefault("net.request_timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 10)
}

// NewConfig resolves Options. fs may be nil.
func NewConfig(fs *pflag.FlagSet) (*Options, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GOPHNOTES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		if err := v.BindEnv(key, "GOPHNOTES_"+strings.ToUpper(key), legacy); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", legacy, err)
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	dataDir := v.GetString("data_dir")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to find home directory: %w", err)
		}
		dataDir = filepath.Join(home, "gophnotes")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dataDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	opt := &Options{
		DataDir:        dataDir,
		ServerURL:      v.GetString("server_url"),
		SyncWithServer: v.GetBool("sync_with_server"),
		StoreDriver:    strings.ToLower(v.GetString("store.driver")),
		Debounce:       v.GetDuration("sync.debounce"),
		ProbeInterval:  v.GetDuration("net.probe_interval"),
		RequestTimeout: v.GetDuration("net.request_timeout"),
		SignalDir:      v.GetString("net.signal_dir"),
		AuthToken:      v.GetString("auth.token"),
		ClientID:       v.GetString("client_id"),
		LogFile:        v.GetString("log.file"),
		LogLevel:       v.GetString("log.level"),
		LogMaxSizeMB:   v.GetInt("log.max_size_mb"),
	}
	if opt.SignalDir == "" {
		opt.SignalDir = dataDir
	}
	if opt.LogFile == "" {
		opt.LogFile = filepath.Join(dataDir, "gophnotes.log")
	}
	if opt.ClientID == "" {
		opt.ClientID = uuid.NewString()
	}
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	return opt, nil
}

// Validate rejects option combinations the client cannot start with.
func (o *Options) Validate() error {
	switch o.StoreDriver {
	case DriverSQLite, DriverBadger:
	default:
		return fmt.Errorf("unknown store driver %q", o.StoreDriver)
	}
	if o.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative")
	}
	if o.ProbeInterval <= 0 {
		return fmt.Errorf("probe interval must be positive")
	}
	return nil
}

// StorePath is where the selected driver keeps its data.
func (o *Options) StorePath() string {
	if o.StoreDriver == DriverBadger {
		return filepath.Join(o.DataDir, "badger")
	}
	return filepath.Join(o.DataDir, "notes.db")
}

// SyncInfoPath is the file holding the last sync and fetch times.
func (o *Options) SyncInfoPath() string {
	return filepath.Join(o.DataDir, "syncinfo.yaml")
}
