package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Beerjiw/okbuck/cmd/okbuck/internal/clean"
	"github.com/Beerjiw/okbuck/cmd/okbuck/internal/state"
	"github.com/Beerjiw/okbuck/pkg/config"
	"github.com/spf13/cobra"
)

// inputFlags are shared by commands that take the current entry set.
type inputFlags struct {
	root        string
	entriesFile string
	json        bool
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.root, "root", "",
		"Project root directory (default: current directory)")
	cmd.Flags().StringVarP(&f.entriesFile, "entries-file", "f", "",
		"File listing the current entries, one per line ('-' for stdin)")
	cmd.Flags().BoolVar(&f.json, "json", false,
		"Output as JSON")
}

// projectRoot returns the absolute project root.
func (f *inputFlags) projectRoot() (string, error) {
	root := f.root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid project root %q: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("invalid project root: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("project root %s is not a directory", abs)
	}
	return abs, nil
}

// currentEntries merges positional entries with the entries file.
func (f *inputFlags) currentEntries(cmd *cobra.Command, args []string) (state.Set, error) {
	entries := state.NewSet()
	for _, arg := range args {
		id, err := state.NormalizeEntryID(arg)
		if err != nil {
			return nil, err
		}
		if id != "" {
			entries.Add(id)
		}
	}

	if f.entriesFile == "" {
		return entries, nil
	}

	var r io.Reader
	if f.entriesFile == "-" {
		r = cmd.InOrStdin()
	} else {
		file, err := os.Open(f.entriesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open entries file: %w", err)
		}
		defer func() { _ = file.Close() }()
		r = file
	}

	listed, err := state.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}
	for _, raw := range state.Sorted(listed) {
		id, err := state.NormalizeEntryID(string(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid entry in %s: %w", f.entriesFile, err)
		}
		entries.Add(id)
	}
	return entries, nil
}

// loadOptions resolves configuration for root and turns it into task options.
func loadOptions(root string, apply func(*config.Config)) (clean.Options, error) {
	cfg := config.LoadFrom(root)
	if apply != nil {
		apply(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return clean.Options{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return clean.OptionsFromConfig(root, cfg), nil
}
