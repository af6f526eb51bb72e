package app

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/eos-updater/internal/output"
	"github.com/blackwell-systems/eos-updater/internal/store"
)

var (
	historyLimit int

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Show past upgrade runs",
		Long: `Show recorded upgrade runs, newest first.

Every 'eos-updater upgrade' that got past the confirmation is recorded with
its steps, exit codes, the packages it changed and what was still pending
afterwards. Use 'history show ID' for the details of one run.`,
		Example: `  # Recent runs
  eos-updater history

  # Details of run 12
  eos-updater history show 12`,
		Args: cobra.NoArgs,
		RunE: runHistory,
	}

	historyShowCmd = &cobra.Command{
		Use:   "show ID",
		Short: "Show the details of one run",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShow,
	}
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show")

	historyCmd.AddCommand(historyShowCmd)
	RootCmd.AddCommand(historyCmd)
}

func openHistory() (*store.Store, error) {
	path, err := getDBPath()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history %s: %w", path, err)
	}
	return st, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	if historyLimit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", historyLimit)
	}

	st, err := openHistory()
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(commandContext(cmd), historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), output.RenderRunTable(runs))
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid run ID %q", args[0])
	}

	st, err := openHistory()
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.GetRun(commandContext(cmd), id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("run %d not found (see 'eos-updater history')", id)
	}
	if err != nil {
		return fmt.Errorf("failed to load run %d: %w", id, err)
	}
	fmt.Fprint(cmd.OutOrStdout(), output.RenderRunDetail(run))
	return nil
}
