package cli

import (
	"fmt"

	"github.com/Beerjiw/okbuck/cmd/okbuck/internal/clean"
	"github.com/Beerjiw/okbuck/cmd/okbuck/internal/state"
	"github.com/spf13/cobra"
)

var statusFlags struct {
	input inputFlags
}

var statusCmd = &cobra.Command{
	Use:   "status [entry...]",
	Short: "Show which BUCK files a clean would delete",
	Long: `Compares the current entries against the state record and lists the
entries whose BUCK files 'okbuck clean' would delete.

Nothing is deleted and the state record is neither created nor modified.`,
	SilenceUsage: true,
	RunE:         runStatus,
}

func init() {
	statusFlags.input.register(statusCmd)
	rootCmd.AddCommand(statusCmd)
}

// StatusOutput is the JSON output format for okbuck status.
type StatusOutput struct {
	Stale       bool            `json:"stale"`
	Entries     []state.EntryID `json:"entries"`
	Descriptors []string        `json:"descriptors"`
	StateFile   string          `json:"state_file"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	root, err := statusFlags.input.projectRoot()
	if err != nil {
		return err
	}
	current, err := statusFlags.input.currentEntries(cmd, args)
	if err != nil {
		return err
	}
	opts, err := loadOptions(root, nil)
	if err != nil {
		return err
	}

	stale, err := clean.NewTask(nil, nil, opts).Plan(cmd.Context(), current)
	if err != nil {
		return err
	}

	output := StatusOutput{
		Stale:       len(stale) > 0,
		Entries:     stale,
		Descriptors: make([]string, 0, len(stale)),
		StateFile:   opts.StatePath(),
	}
	for _, id := range stale {
		path, err := clean.DescriptorPath(opts.Root, id, opts.DescriptorName)
		if err != nil {
			path = fmt.Sprintf("%s (%v)", id, err)
		}
		output.Descriptors = append(output.Descriptors, path)
	}

	if statusFlags.input.json {
		return outputJSON(cmd.OutOrStdout(), output)
	}

	w := cmd.OutOrStdout()
	if !output.Stale {
		fmt.Fprintln(w, "BUCK files are up to date")
		return nil
	}
	fmt.Fprintf(w, "Stale entries (%d):\n", len(stale))
	for _, path := range output.Descriptors {
		fmt.Fprintf(w, "  %s\n", path)
	}
	fmt.Fprintln(w, "\nRun 'okbuck clean' to delete them")
	return nil
}
