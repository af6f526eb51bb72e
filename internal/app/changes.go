package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blackwell-systems/eos-updater/internal/changelog"
	"github.com/blackwell-systems/eos-updater/internal/output"
)

// lastRunScan bounds how many recent runs are searched for a log marker.
const lastRunScan = 20

var (
	changesOffset int64
	changesFollow bool

	changesCmd = &cobra.Command{
		Use:   "changes",
		Short: "List packages changed in the pacman log",
		Long: `List the packages that were upgraded, installed or downgraded according
to the pacman log, flagging the ones that call for a restart.

Without --offset the listing starts where the most recent recorded upgrade
started, or at the beginning of the log when there is none.

With --follow the command keeps watching the log and prints packages as
pacman records them, until Ctrl+C.`,
		Example: `  # Changes from the last upgrade
  eos-updater changes

  # Everything in the log
  eos-updater changes --offset 0

  # Watch another terminal's upgrade
  eos-updater changes --follow`,
		RunE: runChanges,
	}
)

func init() {
	changesCmd.Flags().Int64Var(&changesOffset, "offset", 0, "byte offset in the log to start from")
	changesCmd.Flags().BoolVarP(&changesFollow, "follow", "f", false, "keep watching the log for new changes")

	RootCmd.AddCommand(changesCmd)
}

func runChanges(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if changesOffset < 0 {
		return fmt.Errorf("--offset must not be negative, got %d", changesOffset)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := changelog.NewFile(s.cfg.LogPath, s.logger)
	classifier := s.cfg.Classifier()
	out := cmd.OutOrStdout()

	from := changelog.At(changesOffset)
	if !cmd.Flags().Changed("offset") {
		from = s.lastRunMarker(ctx)
	}

	names, next, err := log.Read(from)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", log.Path(), err)
	}
	fmt.Fprint(out, output.RenderChanges(names, classifier.IsCritical))

	if !changesFollow {
		return nil
	}

	fmt.Fprintf(out, "\nWatching %s (Ctrl+C to stop)\n", log.Path())
	err = log.Follow(ctx, next, func(names []string) {
		fmt.Fprint(out, output.RenderChanges(names, classifier.IsCritical))
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// lastRunMarker returns where the newest recorded upgrade started reading
// the log. Without history it is the start of the log.
func (s *session) lastRunMarker(ctx context.Context) changelog.Marker {
	st, err := openHistory()
	if err != nil {
		s.logger.Debug("no history for changes", zap.Error(err))
		return changelog.At(0)
	}
	defer st.Close()

	runs, err := st.ListRuns(ctx, lastRunScan)
	if err != nil {
		s.logger.Debug("list runs", zap.Error(err))
		return changelog.At(0)
	}
	for _, run := range runs {
		if run.MarkerKnown && !run.Aborted {
			return changelog.At(run.MarkerOffset)
		}
	}
	return changelog.At(0)
}
