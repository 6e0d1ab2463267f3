// Package config layers flags, FONO_* environment variables, a .env file
// and fono.yaml into one Config.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fono/coach"
)

const (
	EnvPrefix = "FONO"
	FileName  = "fono"
)

var ErrMissingIdentity = errors.New("client id not configured; run `fono setup`")

type Config struct {
	APIURL       string
	Token        string
	ClientID     int64
	ClientName   string
	SpecialistID int64
	Age          int
	UseGemini    bool
	Device       string
	LogPath      string
	ExportDir    string
	Timeout      time.Duration

	// File is the config file that was read, empty when none was found.
	File string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_url", "http://localhost:8080")
	v.SetDefault("specialist_id", 8)
	v.SetDefault("age", 25)
	v.SetDefault("use_gemini", true)
	v.SetDefault("export_dir", ".")
	v.SetDefault("timeout", 60*time.Second)
}

// BindFlags registers the persistent flags of cmd and binds them to v.
func BindFlags(v *viper.Viper, cmd *cobra.Command) error {
	flags := cmd.PersistentFlags()
	flags.String("config", "", "config file (default ./fono.yaml or $XDG_CONFIG_HOME/fono/fono.yaml)")
	flags.String("api-url", "", "training service base URL")
	flags.String("token", "", "bearer token for the training service")
	flags.Int64("client-id", 0, "client (patient) id")
	flags.String("client-name", "", "client name, used in export filenames")
	flags.Int64("specialist-id", 0, "specialist id")
	flags.Int("age", 0, "client age sent when a session starts")
	flags.Bool("use-gemini", true, "ask the service for Gemini analysis")
	flags.String("device", "", "capture device name")
	flags.String("logpath", "", "log directory (overrides FONO_LOG_PATH)")
	flags.String("export-dir", "", "directory for exported reports")
	flags.Duration("timeout", 0, "request timeout")

	for key, flag := range map[string]string{
		"api_url":       "api-url",
		"token":         "token",
		"client_id":     "client-id",
		"client_name":   "client-name",
		"specialist_id": "specialist-id",
		"age":           "age",
		"use_gemini":    "use-gemini",
		"device":        "device",
		"logpath":       "logpath",
		"export_dir":    "export-dir",
		"timeout":       "timeout",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("binding --%s: %w", flag, err)
		}
	}
	return nil
}

// Load reads the configuration. configFile overrides the search path; envFile
// is loaded into the environment first when it exists.
func Load(v *viper.Viper, configFile, envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := Dir(); err == nil {
			v.AddConfigPath(dir)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := Config{
		APIURL:       strings.TrimRight(v.GetString("api_url"), "/"),
		Token:        v.GetString("token"),
		ClientID:     v.GetInt64("client_id"),
		ClientName:   v.GetString("client_name"),
		SpecialistID: v.GetInt64("specialist_id"),
		Age:          v.GetInt("age"),
		UseGemini:    v.GetBool("use_gemini"),
		Device:       v.GetString("device"),
		LogPath:      v.GetString("logpath"),
		ExportDir:    v.GetString("export_dir"),
		Timeout:      v.GetDuration("timeout"),
		File:         v.ConfigFileUsed(),
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return cfg, nil
}

// Identity is the read-only identity handed to the protocol client.
func (c Config) Identity() coach.Identity {
	return coach.Identity{ClientID: c.ClientID, Name: c.ClientName, Token: c.Token}
}

// Validate checks what a training session needs.
func (c Config) Validate() error {
	if c.APIURL == "" {
		return errors.New("api_url is empty")
	}
	if c.ClientID <= 0 {
		return ErrMissingIdentity
	}
	if c.SpecialistID <= 0 {
		return fmt.Errorf("invalid specialist_id %d", c.SpecialistID)
	}
	return nil
}

// Dir is the per-user config directory.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "fono"), nil
}

// DefaultPath is where `fono setup` writes.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName+".yaml"), nil
}
