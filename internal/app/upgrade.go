package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blackwell-systems/eos-updater/internal/pipeline"
	"github.com/blackwell-systems/eos-updater/internal/ui"
)

var (
	upgradeYes        bool
	upgradeNoSnapshot bool

	upgradeCmd = &cobra.Command{
		Use:   "upgrade",
		Short: "Install pending updates from every enabled source",
		Long: `Install updates from every enabled source, one after another, in your
terminal.

Order: pacman, then AUR, then Flatpak. A failing source does not stop the
ones after it. sudo and the package managers may ask questions; type the
answers as usual.

When snapshot_command is set in the config file it runs first. If it fails
you are asked whether to continue without a snapshot.

Afterwards the remaining updates are listed, and if the kernel, a graphics
driver or a core library such as glibc or systemd changed you are asked to
restart.

Press Ctrl+C to cancel. By default the running command is allowed to finish
and the remaining ones are skipped; set cancel_policy = "interrupt" to stop
it instead.`,
		Example: `  # Install everything
  eos-updater upgrade

  # No questions from eos-updater itself
  eos-updater upgrade --yes

  # Only system packages, without the snapshot
  eos-updater upgrade --skip aur,flatpak --no-snapshot`,
		RunE: runUpgrade,
	}
)

func init() {
	upgradeCmd.Flags().BoolVarP(&upgradeYes, "yes", "y", false, "accept the default answer to every eos-updater prompt")
	upgradeCmd.Flags().BoolVar(&upgradeNoSnapshot, "no-snapshot", false, "do not run snapshot_command")

	RootCmd.AddCommand(upgradeCmd)
}

func runUpgrade(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shell := ui.New(ui.Options{In: os.Stdin, Out: cmd.OutOrStdout(), AssumeYes: upgradeYes, Logger: s.logger})
	defer shell.Close()
	// In raw mode Ctrl+C arrives as a keystroke, not as SIGINT.
	shell.OnInterrupt(stop)

	var rec pipeline.Recorder
	if st, err := openHistory(); err != nil {
		s.logger.Warn("history disabled", zap.Error(err))
	} else {
		defer st.Close()
		rec = &historyRecorder{store: st, keep: s.cfg.HistoryKeep, logger: s.logger}
	}

	ctrl, err := s.controller(shell, rec, !upgradeNoSnapshot)
	if err != nil {
		return err
	}
	report, err := ctrl.Install(ctx)
	if err != nil {
		return err
	}
	if report == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing installed.")
		return nil
	}
	if n := report.Failed(); n > 0 {
		return fmt.Errorf("%d of %d update steps failed", n, len(report.Steps))
	}
	return nil
}
