package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	dbPath     string
	configPath string
	skipIDs    []string
	debug      bool

	// RootCmd is the root command for eos-updater
	RootCmd = &cobra.Command{
		Use:   "eos-updater",
		Short: "Update pacman, AUR and Flatpak packages in one pass",
		Long: `eos-updater lists pending updates from the system package manager, the
AUR helper and Flatpak, installs them one after another in your terminal,
and tells you when a kernel, driver or core library update needs a reboot.

Install commands run in a pseudo-terminal, so sudo password prompts and
package manager questions work as usual.

Sources (in install order):
  • pacman   system packages (checkupdates / sudo pacman -Syu)
  • aur      AUR packages (yay -Qua / yay -Sua)
  • flatpak  sandboxed apps (flatpak list --updates / flatpak update)

Examples:
  # Show pending updates
  eos-updater check

  # Install everything
  eos-updater upgrade

  # Skip the AUR and Flatpak
  eos-updater upgrade --skip aur,flatpak

  # Packages changed by the last upgrade
  eos-updater changes

  # Past runs
  eos-updater history`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "eos-updater: pacman, AUR and Flatpak updates in one pass")
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), "Run 'eos-updater check' to see pending updates.")
			fmt.Fprintln(cmd.OutOrStdout(), "Run 'eos-updater upgrade' to install them.")
			fmt.Fprintln(cmd.OutOrStdout(), "Run 'eos-updater --help' for all commands.")
			return nil
		},
	}
)

func init() {
	// Global flags
	RootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "history database path (default: ~/.eos-updater/history.db)")
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/eos-updater/config.toml)")
	RootCmd.PersistentFlags().StringSliceVar(&skipIDs, "skip", nil, "sources to leave out: pacman, aur, flatpak (repeatable)")
	RootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "write debug logs to stderr")

	RootCmd.SuggestionsMinimumDistance = 2
}

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}
