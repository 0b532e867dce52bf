package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const envPrefix = "FANHUB"

var (
	// GlobalConfig holds the global configuration instance
	GlobalConfig *Config

	loaded   *viper.Viper
	basePath string
)

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
		v.AddConfigPath("/etc/fanhub")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		fmt.Printf("Config file not found, using defaults and environment variables\n")
	} else {
		basePath = v.ConfigFileUsed()
		fmt.Printf("Using config file: %s\n", basePath)

		// config.<env>.yaml next to the base file overrides matching keys
		envConfigPath := filepath.Join(filepath.Dir(basePath),
			fmt.Sprintf("config.%s.yaml", Env()))
		if _, err := os.Stat(envConfigPath); err == nil {
			v.SetConfigFile(envConfigPath)
			if err := v.MergeInConfig(); err != nil {
				return nil, fmt.Errorf("failed to merge env config: %w", err)
			}
			fmt.Printf("Loaded environment config: %s\n", envConfigPath)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.SetDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	GlobalConfig = config
	loaded = v

	return config, nil
}

// GetConfig returns the global configuration instance
func GetConfig() *Config {
	if GlobalConfig == nil {
		panic("Config not loaded. Call LoadConfig first.")
	}
	return GlobalConfig
}

// WatchConfig reloads the configuration whenever the loaded file changes.
// The callback receives the freshly validated configuration.
func WatchConfig(callback func(*Config)) {
	if loaded == nil {
		return
	}
	path := basePath
	loaded.OnConfigChange(func(e fsnotify.Event) {
		fmt.Printf("Config file changed: %s\n", e.Name)
		cfg, err := LoadConfig(path)
		if err != nil {
			fmt.Printf("Failed to reload config: %v\n", err)
			return
		}
		if callback != nil {
			callback(cfg)
		}
	})
	loaded.WatchConfig()
}

// GetEnv returns environment variable value with fallback
func GetEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// Env returns the deployment environment name (dev, test, prod)
func Env() string {
	return GetEnv(envPrefix+"_ENV", "dev")
}
