package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the server needs at startup. Values come
// from tvbridge.yaml, TVBRIDGE_* environment variables, and flags, in
// increasing precedence.
type Config struct {
	Listen         string
	ADBDir         string
	CommandTimeout time.Duration
	ConnectTimeout time.Duration
	DBPath         string
	LogDir         string
}

// Init wires viper defaults, config file lookup and env binding.
// Missing config files are fine; defaults carry the day.
func Init() error {
	viper.SetDefault("listen", ":8080")
	viper.SetDefault("adb.dir", "")
	viper.SetDefault("timeout.command", "10s")
	viper.SetDefault("timeout.connect", "5s")
	viper.SetDefault("db.path", filepath.Join("data", "tvbridge.db"))
	viper.SetDefault("log.dir", "log")

	viper.SetConfigName("tvbridge")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".tvbridge"))
	}

	viper.SetEnvPrefix("TVBRIDGE")
	// Dotted keys map to underscored env names: adb.dir becomes
	// TVBRIDGE_ADB_DIR.
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}
	return nil
}

// Load materializes the current viper state into a Config.
func Load() Config {
	return Config{
		Listen:         viper.GetString("listen"),
		ADBDir:         viper.GetString("adb.dir"),
		CommandTimeout: viper.GetDuration("timeout.command"),
		ConnectTimeout: viper.GetDuration("timeout.connect"),
		DBPath:         viper.GetString("db.path"),
		LogDir:         viper.GetString("log.dir"),
	}
}
