package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Beerjiw/okbuck/internal/log"
	"github.com/BurntSushi/toml"
)

// ConfigFileName is the name of the project-level config file.
const ConfigFileName = "okbuck.toml"

// ConfigDirName is the name of the project-level config directory.
const ConfigDirName = ".okbuck"

// GlobalConfigDir is the name of the global config directory inside user's config.
const GlobalConfigDir = "okbuck"

// LoadFrom loads configuration for the project rooted at (or below) dir:
//  1. Built-in defaults
//  2. Global user config
//  3. Project config found by walking up from dir
//  4. Environment variables (OKBUCK_*)
//
// CLI flags are applied separately after LoadFrom returns.
func LoadFrom(dir string) *Config {
	cfg := NewConfig()

	if globalCfg := loadConfigFile(GetGlobalConfigPath()); globalCfg != nil {
		cfg.Merge(globalCfg)
	}

	if projectCfg := loadProjectConfigFrom(dir); projectCfg != nil {
		cfg.Merge(projectCfg)
	}

	applyEnvironmentVariables(cfg)

	return cfg
}

// loadProjectConfigFrom looks for project configuration starting from the given directory.
func loadProjectConfigFrom(dir string) *Config {
	current := dir
	for {
		for _, candidate := range GetProjectConfigPaths(current) {
			if cfg := loadConfigFile(candidate); cfg != nil {
				return cfg
			}
		}

		if isWorkspaceRoot(current) {
			break
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return nil
}

// isWorkspaceRoot checks for markers of a Gradle or Buck project root.
func isWorkspaceRoot(dir string) bool {
	markers := []string{".git", "settings.gradle", "settings.gradle.kts", ".buckconfig"}
	for _, marker := range markers {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// loadConfigFile loads a configuration from a TOML file. Missing files are
// silently skipped; malformed ones are skipped with a warning.
func loadConfigFile(path string) *Config {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		log.Warn("ignoring malformed config file", "path", path, "error", err)
		return nil
	}
	log.Debug("loaded config file", "path", path)

	return &cfg
}

// applyEnvironmentVariables applies OKBUCK_* environment variables to the config.
func applyEnvironmentVariables(cfg *Config) {
	if v := os.Getenv("OKBUCK_STATE_FILE"); v != "" {
		cfg.State.File = v
	}
	if v := os.Getenv("OKBUCK_DESCRIPTOR_FILE_NAME"); v != "" {
		cfg.Descriptor.FileName = v
	}
	if v := os.Getenv("OKBUCK_CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := os.Getenv("OKBUCK_CLEAN_WORKERS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Clean.Workers = n
		} else {
			log.Warn("ignoring OKBUCK_CLEAN_WORKERS", "value", v, "error", err)
		}
	}
	applyBoolEnv("OKBUCK_CLEAN_LOCK", &cfg.Clean.Lock)
}

// applyBoolEnv applies a boolean environment variable to a pointer.
func applyBoolEnv(envVar string, target **bool) {
	if v := os.Getenv(envVar); v != "" {
		v = strings.ToLower(v)
		if v == "true" || v == "1" || v == "yes" {
			t := true
			*target = &t
		} else if v == "false" || v == "0" || v == "no" {
			f := false
			*target = &f
		}
	}
}

// GetGlobalConfigPath returns the path to the global config file.
func GetGlobalConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, GlobalConfigDir, "config.toml")
}

// GetProjectConfigPaths returns potential project config paths for a given directory.
func GetProjectConfigPaths(dir string) []string {
	return []string{
		filepath.Join(dir, ConfigDirName, "config.toml"),
		filepath.Join(dir, ConfigFileName),
	}
}
