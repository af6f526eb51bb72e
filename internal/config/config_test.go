package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/eos-updater/internal/backend"
	"github.com/blackwell-systems/eos-updater/internal/changelog"
	"github.com/blackwell-systems/eos-updater/internal/pipeline"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, changelog.DefaultPath, cfg.LogPath)
	assert.Equal(t, string(pipeline.CancelWait), cfg.CancelPolicy)
	assert.Equal(t, pipeline.DefaultSummaryLimit, cfg.SummaryLimit)
	assert.Equal(t, DefaultHistoryKeep, cfg.HistoryKeep)
}

func TestLoad_FullFile(t *testing.T) {
	path := writeConfig(t, `
log_path = "/tmp/pacman.log"
cancel_policy = "interrupt"
snapshot_command = ["sudo", "timeshift", "--create"]
summary_limit = 10
history_keep = 5

[backends.flatpak]
enabled = false

[backends.aur]
label = "Paru"
query = ["paru", "-Qua"]
install = ["paru", "-Sua"]

[critical]
exact = ["mesa"]
prefixes = ["amd-ucode"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/pacman.log", cfg.LogPath)
	assert.Equal(t, "interrupt", cfg.CancelPolicy)
	assert.Equal(t, []string{"sudo", "timeshift", "--create"}, cfg.SnapshotCommand)
	assert.Equal(t, 10, cfg.SummaryLimit)
	assert.Equal(t, 5, cfg.HistoryKeep)

	cat, err := cfg.Catalog()
	require.NoError(t, err)
	var enabled []string
	for _, s := range cat.Enabled() {
		enabled = append(enabled, s.ID)
	}
	assert.Equal(t, []string{backend.Pacman, backend.AUR}, enabled)

	aur, ok := cat.Lookup(backend.AUR)
	require.True(t, ok)
	assert.Equal(t, "Paru", aur.Label)
	assert.Equal(t, []string{"paru", "-Qua"}, aur.Query)
	assert.Equal(t, []string{"paru", "-Sua"}, aur.Install)

	cls := cfg.Classifier()
	assert.True(t, cls.IsCritical("mesa"))
	assert.True(t, cls.IsCritical("amd-ucode"))
	assert.True(t, cls.IsCritical("systemd"))
}

func TestLoad_ExpandsHome(t *testing.T) {
	path := writeConfig(t, `log_path = "~/pacman.log"`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.NotContains(t, cfg.LogPath, "~")
	assert.Equal(t, "pacman.log", filepath.Base(cfg.LogPath))
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", `colour = "blue"`},
		{"unknown backend", "[backends.snap]\nenabled = true"},
		{"bad cancel policy", `cancel_policy = "kill"`},
		{"negative limit", `summary_limit = -1`},
		{"negative keep", `history_keep = -3`},
		{"not toml", `this is = = not toml`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid), "got %v", err)
		})
	}
}

func TestLoad_EmptyValuesFallBack(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log_path = \"\"\ncancel_policy = \"\"\n"))
	require.NoError(t, err)
	assert.Equal(t, changelog.DefaultPath, cfg.LogPath)
	assert.Equal(t, string(pipeline.CancelWait), cfg.CancelPolicy)
}

func TestLoad_Unreadable(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalid))
}

func TestDir_XDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	dir, err := Dir()
	require.NoError(t, err)
	assert.Equal(t, "/custom/config/eos-updater", dir)

	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, "/custom/config/eos-updater/config.toml", path)
}

func TestDir_FallsBackToHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	dir, err := Dir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(".config", "eos-updater"), filepath.Join(filepath.Base(filepath.Dir(dir)), filepath.Base(dir)))
}

func TestStateDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	homedir.Reset()

	dir, err := StateDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".eos-updater"), dir)
}
