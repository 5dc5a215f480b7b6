// Package config provides configuration loading for the Warden core.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper points Viper at the config file and wires env overrides. An
// explicit configFile wins; otherwise the standard locations are searched
// for warden.yaml/.yml. The search insists on a YAML extension because
// Viper's own SetConfigName lookup would happily match the extensionless
// "warden" binary sitting in the working directory.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// Nothing found. Leave name/type set with no search paths so
		// ReadInConfig reports ConfigFileNotFoundError, which callers
		// treat as env-vars-only mode.
		viper.SetConfigName("warden")
		viper.SetConfigType("yaml")
	}

	// WARDEN_SERVER_GATEWAY_HOST overrides server.gateway_host, and so on.
	viper.SetEnvPrefix("WARDEN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile walks the standard locations for warden.yaml or .yml:
// the working directory, ~/.warden, then /etc/warden (ProgramData on
// Windows).
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".warden"),
	}
	if runtime.GOOS == "windows" {
		// %ProgramData%\warden (typically C:\ProgramData\warden)
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "warden"))
		}
	} else {
		paths = append(paths, "/etc/warden")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths returns the first warden.yaml or warden.yml found
// in the given directories, or "" when none exists.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "warden"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys registers every nested key with Viper so AutomaticEnv
// picks it up; unbound nested keys are invisible to env overrides.
// WARDEN_LEDGER_DIR overrides ledger.dir.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.gateway_host")
	_ = viper.BindEnv("server.gateway_port")
	_ = viper.BindEnv("server.log_level")

	_ = viper.BindEnv("ledger.dir")
	_ = viper.BindEnv("ledger.cache_size")

	_ = viper.BindEnv("state.path")

	_ = viper.BindEnv("security.sandbox_enabled")
	_ = viper.BindEnv("security.policy_engine_enabled")
	_ = viper.BindEnv("security.canary_tokens_enabled")
	_ = viper.BindEnv("security.egress_filtering_enabled")
	_ = viper.BindEnv("security.audit_logging_enabled")
	_ = viper.BindEnv("security.skill_signature_required")

	_ = viper.BindEnv("threat.max_failed_auth")
	_ = viper.BindEnv("threat.auth_window")
	_ = viper.BindEnv("threat.block_duration")
	_ = viper.BindEnv("threat.max_requests_per_minute")
	_ = viper.BindEnv("threat.max_data_volume")
	_ = viper.BindEnv("threat.archive_path")

	// sso.providers is a list of objects; env override is not practical,
	// providers come from the config file.

	_ = viper.BindEnv("telemetry.enabled")

	_ = viper.BindEnv("seed")
	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the config, applies defaults and dev-mode defaults, and
// validates. Callers that let CLI flags flip DevMode first should use
// LoadConfigRaw and run SetDevDefaults/Validate themselves.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file: pure env-var configuration.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigRaw reads the config and applies plain defaults, skipping dev
// defaults and validation so flag overrides can land in between.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the loaded config file's path, or "" in
// env-vars-only mode.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
