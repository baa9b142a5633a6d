package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment variables.
// If configFile is empty, it searches for echo-judgment.yaml/.yml in standard locations.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// Name/type without search paths so ReadInConfig returns
		// ConfigFileNotFoundError, which callers tolerate.
		viper.SetConfigName("echo-judgment")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: ECHO_JUDGMENT_AUDIT_OUTPUT
	viper.SetEnvPrefix("ECHO_JUDGMENT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for echo-judgment.yaml or .yml.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	return findConfigFileInPaths([]string{
		".",
		filepath.Join(home, ".echo-judgment"),
		"/etc/echo-judgment",
	})
}

// findConfigFileInPaths returns the first echo-judgment.yaml/.yml found in paths.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "echo-judgment"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds nested keys so Unmarshal sees env overrides
// even when the key is absent from the file.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("server.allowed_origins")

	_ = viper.BindEnv("policy.path")
	_ = viper.BindEnv("policy.strict_when")

	_ = viper.BindEnv("audit.output")
	_ = viper.BindEnv("audit.fail_closed")
	_ = viper.BindEnv("audit.system")
	_ = viper.BindEnv("audit.platform")
	_ = viper.BindEnv("audit.cache_size")

	_ = viper.BindEnv("intent.classifier")
	_ = viper.BindEnv("intent.prefix")
	_ = viper.BindEnv("intent.expression")

	_ = viper.BindEnv("tracing.enabled")

	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and validates the result.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigRaw reads the configuration and applies defaults without
// validating, so CLI flags can override fields first.
func LoadConfigRaw() (*Config, error) {
	return loadFrom(viper.GetViper())
}

func loadFrom(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file: continue with env vars and defaults.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path of the loaded configuration file, if any.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
