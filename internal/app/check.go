package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/eos-updater/internal/changelog"
	"github.com/blackwell-systems/eos-updater/internal/pipeline"
	"github.com/blackwell-systems/eos-updater/internal/runner"
	"github.com/blackwell-systems/eos-updater/internal/ui"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Show pending updates from every enabled source",
	Long: `Query every enabled source and list what it would update.

Nothing is installed. The queries run in parallel and the results are shown
in install order: pacman, then AUR, then Flatpak. At most 30 lines are shown
per source (see summary_limit in the config file).`,
	Example: `  # Everything
  eos-updater check

  # Only Flatpak
  eos-updater check --skip pacman,aur`,
	RunE: runCheck,
}

func init() {
	RootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shell := ui.New(ui.Options{In: os.Stdin, Out: cmd.OutOrStdout(), Logger: s.logger})
	defer shell.Close()

	ctrl, err := s.controller(shell, nil, false)
	if err != nil {
		return err
	}
	if _, err := ctrl.ShowUpdates(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// controller wires a pipeline controller to the session's config. The
// snapshot command is only passed on when withSnapshot is set.
func (s *session) controller(shell pipeline.Shell, rec pipeline.Recorder, withSnapshot bool) (*pipeline.Controller, error) {
	policy, err := pipeline.ParseCancelPolicy(s.cfg.CancelPolicy)
	if err != nil {
		return nil, err
	}
	opts := pipeline.Options{
		Catalog:      s.catalog,
		Runner:       pipeline.NewExecRunner(runner.New(s.logger)),
		Log:          changelog.NewFile(s.cfg.LogPath, s.logger),
		Shell:        shell,
		Classifier:   s.cfg.Classifier(),
		Recorder:     rec,
		Env:          runner.DefaultEnvironments(),
		CancelPolicy: policy,
		SummaryLimit: s.cfg.SummaryLimit,
		Logger:       s.logger,
	}
	if withSnapshot {
		opts.SnapshotCommand = s.cfg.SnapshotCommand
	}
	return pipeline.New(opts)
}
