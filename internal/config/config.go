package config

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvRollupURL = "ROLLUP_HTTP_SERVER_URL"
	EnvPrefix    = "DAPP"
)

// Keys shared by flags, env and the optional config file.
const (
	KeyRollupURL      = "rollup_http_server_url"
	KeyConfigFile     = "config"
	KeyTuning         = "tuning"
	KeyDataDir        = "data"
	KeyDisableDB      = "disable_db"
	KeyDisableJournal = "disable_journal"
	KeyObserverAddr   = "observer_addr"
	KeyMaxRetries     = "max_retries"
)

type Config struct {
	RollupURL      string
	TuningPath     string
	DataDir        string
	DisableDB      bool
	DisableJournal bool
	ObserverAddr   string
	MaxRetries     int
}

func (c Config) IndexPath() string { return filepath.Join(c.DataDir, "index.db") }

// BindFlags registers the run flags and binds them into v.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	fs.String("config", "", "optional YAML config file")
	fs.String("tuning", "./configs/tuning.yaml", "physics tuning file (defaults are used if it does not exist)")
	fs.String("data", "./data", "runtime data directory (journal, index)")
	fs.Bool("disable-db", false, "disable the SQLite request index")
	fs.Bool("disable-journal", false, "disable the input journal")
	fs.String("observer-addr", "", "serve the websocket observer on this address (empty disables)")
	fs.Int("max-retries", 0, "retries for failed host requests")

	binds := map[string]string{
		KeyConfigFile:     "config",
		KeyTuning:         "tuning",
		KeyDataDir:        "data",
		KeyDisableDB:      "disable-db",
		KeyDisableJournal: "disable-journal",
		KeyObserverAddr:   "observer-addr",
		KeyMaxRetries:     "max-retries",
	}
	for key, flag := range binds {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return errors.Wrapf(err, "bind %s", flag)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// The host contract fixes this name, so it is bound without the prefix.
	return v.BindEnv(KeyRollupURL, EnvRollupURL)
}

func Load(v *viper.Viper) (Config, error) {
	if path := v.GetString(KeyConfigFile); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrap(err, "read config file")
		}
	}
	c := Config{
		RollupURL:      strings.TrimSpace(v.GetString(KeyRollupURL)),
		TuningPath:     v.GetString(KeyTuning),
		DataDir:        v.GetString(KeyDataDir),
		DisableDB:      v.GetBool(KeyDisableDB),
		DisableJournal: v.GetBool(KeyDisableJournal),
		ObserverAddr:   strings.TrimSpace(v.GetString(KeyObserverAddr)),
		MaxRetries:     v.GetInt(KeyMaxRetries),
	}
	if c.RollupURL == "" {
		return c, errors.Errorf("%s is required", EnvRollupURL)
	}
	if c.MaxRetries < 0 {
		return c, errors.Errorf("max-retries must be >= 0, got %d", c.MaxRetries)
	}
	return c, nil
}
