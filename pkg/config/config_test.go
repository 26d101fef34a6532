package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// isolate points the global config at an empty directory and clears OKBUCK_* variables.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	for _, env := range []string{
		"OKBUCK_STATE_FILE",
		"OKBUCK_DESCRIPTOR_FILE_NAME",
		"OKBUCK_CACHE_DIR",
		"OKBUCK_CLEAN_WORKERS",
		"OKBUCK_CLEAN_LOCK",
	} {
		t.Setenv(env, "")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	if cfg.State.File != ".okbuck/state/STATE" {
		t.Errorf("state file = %q", cfg.State.File)
	}
	if cfg.Descriptor.FileName != "BUCK" {
		t.Errorf("descriptor name = %q", cfg.Descriptor.FileName)
	}
	if cfg.Cache.Dir != ".okbuck/cache" {
		t.Errorf("cache dir = %q", cfg.Cache.Dir)
	}
	if cfg.Clean.Workers != DefaultWorkers {
		t.Errorf("workers = %d", cfg.Clean.Workers)
	}
	if cfg.LockEnabled() {
		t.Error("lock should be disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestMerge(t *testing.T) {
	cfg := NewConfig()
	trueVal := true
	cfg.Merge(&Config{
		Descriptor: DescriptorConfig{FileName: "BUILD"},
		Clean:      CleanConfig{Lock: &trueVal},
	})

	if cfg.Descriptor.FileName != "BUILD" {
		t.Errorf("descriptor name = %q, want BUILD", cfg.Descriptor.FileName)
	}
	if cfg.State.File != DefaultStateFile {
		t.Errorf("unset fields should keep their value, state file = %q", cfg.State.File)
	}
	if cfg.Clean.Workers != DefaultWorkers {
		t.Errorf("zero workers should not override, got %d", cfg.Clean.Workers)
	}
	if !cfg.LockEnabled() {
		t.Error("lock should be enabled after merge")
	}

	cfg.Merge(nil)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"nested descriptor", func(c *Config) { c.Descriptor.FileName = "gen/BUCK" }, "descriptor.file_name"},
		{"empty descriptor", func(c *Config) { c.Descriptor.FileName = "" }, "descriptor.file_name"},
		{"dotdot descriptor", func(c *Config) { c.Descriptor.FileName = ".." }, "descriptor.file_name"},
		{"absolute state", func(c *Config) { c.State.File = "/tmp/STATE" }, "state.file"},
		{"escaping state", func(c *Config) { c.State.File = "../STATE" }, "state.file"},
		{"absolute cache", func(c *Config) { c.Cache.Dir = "/var/cache" }, "cache.dir"},
		{"root cache", func(c *Config) { c.Cache.Dir = "." }, "cache.dir"},
		{"zero workers", func(c *Config) { c.Clean.Workers = 0 }, "clean.workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromProjectConfig(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".okbuck", "config.toml"), `
[descriptor]
file_name = "BUILD"

[clean]
workers = 8
lock = true
`)

	cfg := LoadFrom(root)
	if cfg.Descriptor.FileName != "BUILD" {
		t.Errorf("descriptor name = %q, want BUILD", cfg.Descriptor.FileName)
	}
	if cfg.Clean.Workers != 8 {
		t.Errorf("workers = %d, want 8", cfg.Clean.Workers)
	}
	if !cfg.LockEnabled() {
		t.Error("lock should be enabled")
	}
	if cfg.Cache.Dir != DefaultCacheDir {
		t.Errorf("cache dir = %q, want default", cfg.Cache.Dir)
	}
}

func TestLoadFromSearchesParents(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "settings.gradle"), "")
	writeFile(t, filepath.Join(root, ConfigFileName), "[cache]\ndir = \"build/okbuck-cache\"\n")
	sub := filepath.Join(root, "app", "lib")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	if got := LoadFrom(sub).Cache.Dir; got != "build/okbuck-cache" {
		t.Errorf("cache dir = %q, want build/okbuck-cache", got)
	}
}

func TestLoadFromStopsAtWorkspaceRoot(t *testing.T) {
	isolate(t)
	outer := t.TempDir()
	writeFile(t, filepath.Join(outer, ConfigFileName), "[descriptor]\nfile_name = \"OUTER\"\n")
	inner := filepath.Join(outer, "project")
	writeFile(t, filepath.Join(inner, ".buckconfig"), "")

	if got := LoadFrom(inner).Descriptor.FileName; got != DefaultDescriptorName {
		t.Errorf("descriptor name = %q, config above the workspace root should be ignored", got)
	}
}

func TestLoadFromGlobalConfig(t *testing.T) {
	isolate(t)
	writeFile(t, GetGlobalConfigPath(), "[clean]\nworkers = 2\n")

	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".git", "HEAD"), "")
	if got := LoadFrom(root).Clean.Workers; got != 2 {
		t.Errorf("workers = %d, want 2 from global config", got)
	}
}

func TestLoadFromMalformedConfig(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ConfigFileName), "[descriptor\nfile_name = ")
	writeFile(t, filepath.Join(root, ".git", "HEAD"), "")

	if got := LoadFrom(root).Descriptor.FileName; got != DefaultDescriptorName {
		t.Errorf("malformed config should be skipped, got %q", got)
	}
}

func TestEnvironmentOverridesProject(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".git", "HEAD"), "")
	writeFile(t, filepath.Join(root, ConfigFileName), "[state]\nfile = \"state/A\"\n[clean]\nlock = true\n")

	t.Setenv("OKBUCK_STATE_FILE", "state/B")
	t.Setenv("OKBUCK_CACHE_DIR", "tmp/cache")
	t.Setenv("OKBUCK_DESCRIPTOR_FILE_NAME", "TARGETS")
	t.Setenv("OKBUCK_CLEAN_WORKERS", " 16 ")
	t.Setenv("OKBUCK_CLEAN_LOCK", "no")

	cfg := LoadFrom(root)
	if cfg.State.File != "state/B" {
		t.Errorf("state file = %q, want state/B", cfg.State.File)
	}
	if cfg.Cache.Dir != "tmp/cache" {
		t.Errorf("cache dir = %q, want tmp/cache", cfg.Cache.Dir)
	}
	if cfg.Descriptor.FileName != "TARGETS" {
		t.Errorf("descriptor name = %q, want TARGETS", cfg.Descriptor.FileName)
	}
	if cfg.Clean.Workers != 16 {
		t.Errorf("workers = %d, want 16", cfg.Clean.Workers)
	}
	if cfg.LockEnabled() {
		t.Error("OKBUCK_CLEAN_LOCK=no should disable the lock")
	}
}

func TestInvalidWorkersEnvIgnored(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".git", "HEAD"), "")
	t.Setenv("OKBUCK_CLEAN_WORKERS", "many")

	if got := LoadFrom(root).Clean.Workers; got != DefaultWorkers {
		t.Errorf("workers = %d, want default", got)
	}
}

func TestGetProjectConfigPaths(t *testing.T) {
	paths := GetProjectConfigPaths("/proj")
	if len(paths) != 2 {
		t.Fatalf("got %d paths, want 2", len(paths))
	}
	if paths[0] != filepath.Join("/proj", ".okbuck", "config.toml") {
		t.Errorf("paths[0] = %q", paths[0])
	}
	if paths[1] != filepath.Join("/proj", "okbuck.toml") {
		t.Errorf("paths[1] = %q", paths[1])
	}
}
