package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_CreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.ReferenceYear, again.ReferenceYear)
	assert.Equal(t, cfg.Listen, again.Listen)
	assert.Equal(t, cfg.RefreshCron, again.RefreshCron)
	assert.Empty(t, again.ExtractCommand)
	assert.Nil(t, again.BasicAuth)
}

func TestLoad_PartialFileIsNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
reference_year: 2017
extract_command: ["./pdftoics.native"]
stale_after_minutes: 5
basic_auth:
  username: admin
  password: secret
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2017, cfg.ReferenceYear)
	assert.Equal(t, []string{"./pdftoics.native"}, cfg.ExtractCommand)
	assert.Equal(t, 5*time.Minute, cfg.StaleAfter())
	require.NotNil(t, cfg.BasicAuth)
	assert.Equal(t, "admin", cfg.BasicAuth.Username)

	// Unset values fall back to defaults.
	assert.Equal(t, "courses_data.json", cfg.CoursesPath)
	assert.Equal(t, "events.json", cfg.EventsPath)
	assert.Equal(t, "M2 IF", cfg.ProductID)
	assert.Equal(t, "M2IF.ics", cfg.DownloadFilename)
	assert.Equal(t, "*/10 * * * *", cfg.RefreshCron)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("reference_year: [nope"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSave_RejectsEmptyInput(t *testing.T) {
	assert.Error(t, Save("", DefaultConfig()))
	assert.Error(t, Save(filepath.Join(t.TempDir(), "c.yaml"), nil))
	_, err := Load("")
	assert.Error(t, err)
}

func TestWriteFileAtomic_Replaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.json")

	require.NoError(t, WriteFileAtomic(path, []byte("old"), 0o644))
	require.NoError(t, WriteFileAtomic(path, []byte("new"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}
