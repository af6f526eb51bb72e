package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blackwell-systems/eos-updater/internal/backend"
	"github.com/blackwell-systems/eos-updater/internal/config"
	"github.com/blackwell-systems/eos-updater/internal/logging"
)

// session is what every command needs: the loaded config, the catalog with
// --skip applied, and a logger.
type session struct {
	cfg      *config.Config
	catalog  *backend.Catalog
	logger   *zap.Logger
	closeLog func()
}

func openSession() (*session, error) {
	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("failed to locate config: %w", err)
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}
	if err := applySkips(catalog, skipIDs); err != nil {
		return nil, err
	}

	// The file log is best effort; a read-only home must not stop updates.
	logDir, err := config.StateDir()
	if err != nil {
		logDir = ""
	}
	logger, closeLog, err := logging.New(logging.Options{Dir: logDir, Debug: debug})
	if err != nil {
		logger, closeLog, err = logging.New(logging.Options{Debug: debug})
		if err != nil {
			return nil, err
		}
	}
	logger.Debug("config loaded", zap.String("path", path), zap.Strings("skip", skipIDs))

	return &session{cfg: cfg, catalog: catalog, logger: logger, closeLog: closeLog}, nil
}

func (s *session) Close() {
	s.closeLog()
}

// applySkips disables the backends named by --skip.
func applySkips(catalog *backend.Catalog, ids []string) error {
	for _, id := range ids {
		if id == "" {
			continue
		}
		if err := catalog.SetEnabled(id, false); err != nil {
			return fmt.Errorf("--skip: %w", err)
		}
	}
	return nil
}

// getDBPath returns the database path, using the flag value or default
func getDBPath() (string, error) {
	if dbPath != "" {
		return dbPath, nil
	}

	dir, err := config.StateDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// commandContext returns the command's context, or Background when the
// command was not started through Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}
