package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wsiserve/config"
	"wsiserve/failures"
	"wsiserve/staging"
	"wsiserve/success"
)

const fakeConverter = `#!/bin/sh
out="$2"; id="$3"
mkdir -p "$out/${id}_files/0"
echo tile > "$out/${id}_files/0/0_0.jpeg"
printf '<Image/>' > "$out/$id.dzi"
`

// writeConfig writes a config file rooted in a temp dir and returns its path.
func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-convert.sh")
	require.NoError(t, os.WriteFile(script, []byte(fakeConverter), 0o755))

	yaml := fmt.Sprintf(`
staging:
  dir: %[1]s/uploads
slides:
  dir: %[1]s/public/slides
data:
  dir: %[1]s/data
conversion:
  command: /bin/sh
  args: [%[2]s]
logging:
  level: ERROR
  console: true
`, dir, script)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path, dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { configPath = "" })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestConvertThenListSlides(t *testing.T) {
	cfgPath, dir := writeConfig(t)
	input := filepath.Join(dir, "case 7.svs")
	require.NoError(t, os.WriteFile(input, []byte("slide bytes"), 0o644))

	out, err := execute(t, "--config", cfgPath, "convert", input)
	require.NoError(t, err)
	assert.Regexp(t, `^/slides/slide_\d+_[0-9a-f]{8}\.dzi\n$`, out)

	out, err = execute(t, "--config", cfgPath, "slides", "--base-url", "http://localhost:3001")
	require.NoError(t, err)
	assert.Contains(t, out, "http://localhost:3001/slides/slide_")

	staged, err := os.ReadDir(filepath.Join(dir, "uploads"))
	require.NoError(t, err)
	assert.Empty(t, staged)
}

func TestSlidesEmpty(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	out, err := execute(t, "--config", cfgPath, "slides")
	require.NoError(t, err)
	assert.Equal(t, "No slides published\n", out)
}

func TestConvertRejectsUnsupportedFile(t *testing.T) {
	cfgPath, dir := writeConfig(t)
	input := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(input, []byte("text"), 0o644))

	_, err := execute(t, "--config", cfgPath, "convert", input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UnsupportedFormat")
}

func TestSweepCommand(t *testing.T) {
	cfgPath, dir := writeConfig(t)
	uploads := filepath.Join(dir, "uploads")
	require.NoError(t, os.MkdirAll(uploads, 0o755))
	old := filepath.Join(uploads, "1-abc123-old.svs")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	out, err := execute(t, "--config", cfgPath, "sweep", "--older-than", "24h")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Removed 1 staged uploads"), out)
	assert.NoFileExists(t, old)
}

type countingCleaner struct {
	calls  int
	maxAge time.Duration
}

func (c *countingCleaner) CleanupOldRecords(maxAge time.Duration) (int, error) {
	c.calls++
	c.maxAge = maxAge
	return 2, nil
}

func (c *countingCleaner) Sweep(maxAge time.Duration) (int, error) {
	return c.CleanupOldRecords(maxAge)
}

func TestHousekeeperRunOnce(t *testing.T) {
	ledger := &countingCleaner{}
	sweeper := &countingCleaner{}
	h := &housekeeper{
		cfg: config.HousekeepingConfig{
			RecordRetention:  time.Hour,
			StagingRetention: 2 * time.Hour,
		},
		ledgers: map[string]recordCleaner{"success": ledger},
		sweeper: sweeper,
	}
	h.runOnce()
	assert.Equal(t, 1, ledger.calls)
	assert.Equal(t, time.Hour, ledger.maxAge)
	assert.Equal(t, 1, sweeper.calls)
	assert.Equal(t, 2*time.Hour, sweeper.maxAge)

	// zero retention disables both parts
	h.cfg = config.HousekeepingConfig{}
	h.runOnce()
	assert.Equal(t, 1, ledger.calls)
	assert.Equal(t, 1, sweeper.calls)
}

func TestOpenAppStrictAndDegraded(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	cfg, _, err := config.Load(cfgPath)
	require.NoError(t, err)
	cfg.Mirrors = []config.MirrorConfig{{Name: "local", Type: "directServe", Options: map[string]string{"baseDir": t.TempDir()}}}

	a, err := openApp(cfg, true)
	require.NoError(t, err)
	require.NotNil(t, a.worker)
	deps := a.routeDeps()
	assert.NotNil(t, deps.Successes)
	assert.NotNil(t, deps.Failures)
	assert.NotNil(t, deps.Mirrors)
	a.Close()

	// a regular file where the success ledger should be cannot be opened
	cfg.Data.Dir = t.TempDir()
	cfg.Mirrors = nil
	require.NoError(t, os.WriteFile(cfg.SuccessDBPath(), []byte("x"), 0o644))

	_, err = openApp(cfg, true)
	assert.Error(t, err)

	degraded, err := openApp(cfg, false)
	require.NoError(t, err)
	defer degraded.Close()
	assert.Nil(t, degraded.successes)
	assert.NotNil(t, degraded.failures)
	assert.Nil(t, degraded.routeDeps().Successes)
	assert.Nil(t, degraded.routeDeps().Mirrors)
}

func TestNewHousekeeperUsesOpenLedgers(t *testing.T) {
	dir := t.TempDir()
	s, err := success.Open(filepath.Join(dir, "s.db"))
	require.NoError(t, err)
	defer s.Close()
	f, err := failures.Open(filepath.Join(dir, "f.db"))
	require.NoError(t, err)
	defer f.Close()

	cfg := config.DefaultConfig()
	cfg.Staging.Dir = filepath.Join(dir, "uploads")
	h := newHousekeeper(&app{cfg: &cfg, stager: staging.NewStore(cfg.Staging), successes: s, failures: f})
	assert.Len(t, h.ledgers, 2)
	h.runOnce()
}
