package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/Beerjiw/okbuck/cmd/okbuck/internal/artifact"
	"github.com/Beerjiw/okbuck/cmd/okbuck/internal/clean"
	"github.com/Beerjiw/okbuck/cmd/okbuck/internal/state"
	"github.com/Beerjiw/okbuck/pkg/config"
	"github.com/spf13/cobra"
)

var cleanFlags struct {
	input   inputFlags
	workers int
	lock    bool
}

var cleanCmd = &cobra.Command{
	Use:   "clean [entry...]",
	Short: "Delete BUCK files of entries that are no longer generated",
	Long: `Deletes stale BUCK files and records the current entries.

The current entries are the project-relative directories the generator wrote
BUCK files for in this run. They are taken from the arguments and from
--entries-file, one per line.

Entries recorded by the previous run but missing now have their BUCK file
deleted. The generator cache directory is removed on every run. Failed
deletions are reported as warnings; only a failure to read or write the state
record makes the command fail.`,
	SilenceUsage: true,
	RunE:         runClean,
}

func init() {
	cleanFlags.input.register(cleanCmd)
	cleanCmd.Flags().IntVar(&cleanFlags.workers, "workers", 0,
		"Maximum concurrent deletions (default from config)")
	cleanCmd.Flags().BoolVar(&cleanFlags.lock, "lock", false,
		"Hold the state lock for the whole run")

	rootCmd.AddCommand(cleanCmd)
}

// CleanOutput is the JSON output format for okbuck clean.
type CleanOutput struct {
	Stale           []state.EntryID  `json:"stale"`
	Summary         artifact.Summary `json:"summary"`
	Failed          []FailedOutput   `json:"failed,omitempty"`
	Cache           string           `json:"cache"`
	Entries         int              `json:"entries"`
	BaselineChanged bool             `json:"baseline_changed"`
	Fingerprint     string           `json:"fingerprint"`
}

// FailedOutput describes one deletion that did not succeed.
type FailedOutput struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

func runClean(cmd *cobra.Command, args []string) error {
	root, err := cleanFlags.input.projectRoot()
	if err != nil {
		return err
	}
	current, err := cleanFlags.input.currentEntries(cmd, args)
	if err != nil {
		return err
	}

	opts, err := loadOptions(root, func(cfg *config.Config) {
		if cmd.Flags().Changed("workers") {
			cfg.Clean.Workers = cleanFlags.workers
		}
		if cmd.Flags().Changed("lock") {
			lock := cleanFlags.lock
			cfg.Clean.Lock = &lock
		}
	})
	if err != nil {
		return err
	}

	report, err := clean.NewTask(nil, nil, opts).Run(cmd.Context(), current)
	if err != nil {
		return err
	}

	if cleanFlags.input.json {
		return outputJSON(cmd.OutOrStdout(), newCleanOutput(report))
	}
	printCleanReport(cmd.OutOrStdout(), report)
	return nil
}

func newCleanOutput(r *clean.Report) CleanOutput {
	out := CleanOutput{
		Stale:           r.Stale,
		Summary:         r.Summary(),
		Cache:           r.Cache.Outcome.String(),
		Entries:         r.Current,
		BaselineChanged: r.BaselineChanged(),
		Fingerprint:     r.Fingerprint,
	}
	for _, f := range r.Failed() {
		out.Failed = append(out.Failed, FailedOutput{Path: f.Path, Error: f.Err.Error()})
	}
	return out
}

func printCleanReport(w io.Writer, r *clean.Report) {
	s := r.Summary()
	if len(r.Stale) == 0 {
		fmt.Fprintln(w, "No stale BUCK files")
	} else {
		fmt.Fprintf(w, "Stale entries (%d): %d removed, %d already gone, %d failed\n",
			len(r.Stale), s.Removed, s.NotFound, s.Failed)
		for i, id := range r.Stale {
			fmt.Fprintf(w, "  - %s (%s)\n", id, r.Deletions[i].Outcome)
		}
	}

	if failed := r.Failed(); len(failed) > 0 {
		fmt.Fprintf(w, "\nCould not remove (%d):\n", len(failed))
		for _, f := range failed {
			fmt.Fprintf(w, "  ! %s: %v\n", f.Path, f.Err)
		}
	}

	fmt.Fprintf(w, "Recorded %d entries\n", r.Current)
}

func outputJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
