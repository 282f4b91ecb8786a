package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wsiserve/config"
	"wsiserve/converter"
	"wsiserve/failures"
	"wsiserve/models"
	"wsiserve/naming"
	"wsiserve/staging"
	"wsiserve/success"
)

const fakeConverter = `#!/bin/sh
mode="$1"; in="$2"; out="$3"; id="$4"
test -f "$in" || { echo "input missing: $in" >&2; exit 2; }
case "$mode" in
ok)
  mkdir -p "$out/${id}_files/0"
  echo tile > "$out/${id}_files/0/0_0.jpeg"
  printf '<Image/>' > "$out/$id.dzi"
  ;;
fail)
  mkdir -p "$out/${id}_files/0"
  echo "ERROR: cannot open slide $in" >&2
  exit 1
  ;;
esac
`

type memSuccesses struct {
	mu   sync.Mutex
	recs []success.SuccessRecord
}

func (m *memSuccesses) Record(rec success.SuccessRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

type memFailures struct {
	mu   sync.Mutex
	recs []failures.FailureRecord
}

func (m *memFailures) Record(rec failures.FailureRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

type memMirrors struct {
	mu  sync.Mutex
	ids []string
}

func (m *memMirrors) Enqueue(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, id)
	return nil
}

type fixture struct {
	pipeline   *Pipeline
	stagingDir string
	slidesDir  string
	successes  *memSuccesses
	failures   *memFailures
	mirrors    *memMirrors
}

func newFixture(t *testing.T, mode string) *fixture {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-convert.sh")
	require.NoError(t, os.WriteFile(script, []byte(fakeConverter), 0o755))

	cfg := config.DefaultConfig()
	cfg.Staging.Dir = filepath.Join(dir, "uploads")
	cfg.Slides.Dir = filepath.Join(dir, "public", "slides")
	cfg.Conversion.Command = "/bin/sh"
	cfg.Conversion.Args = []string{script, mode}
	cfg.Conversion.MaxConcurrent = 4

	f := &fixture{
		stagingDir: cfg.Staging.Dir,
		slidesDir:  cfg.Slides.Dir,
		successes:  &memSuccesses{},
		failures:   &memFailures{},
		mirrors:    &memMirrors{},
	}
	f.pipeline = New(
		staging.NewStore(cfg.Staging),
		naming.NewSlideNamer(cfg.Slides.IDPrefix),
		converter.NewInvoker(cfg.Conversion, cfg.Slides),
		cfg.Slides.Dir,
	).WithLedger(f.successes, f.failures).WithMirrors(f.mirrors)
	return f
}

func entries(t *testing.T, dir string) []string {
	t.Helper()
	list, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	names := make([]string, 0, len(list))
	for _, e := range list {
		names = append(names, e.Name())
	}
	return names
}

func TestHandleUploadSuccess(t *testing.T) {
	f := newFixture(t, "ok")
	body := bytes.Repeat([]byte("x"), 10<<10)

	res, err := f.pipeline.HandleUpload(context.Background(), bytes.NewReader(body), "biopsy 01.svs")
	require.NoError(t, err)

	assert.Regexp(t, `^slide_\d+_[0-9a-f]{8}$`, res.OutputID)
	assert.Equal(t, "/slides/"+res.OutputID+".dzi", res.Path)
	assert.Equal(t, "biopsy 01.svs", res.OriginalName)
	assert.Equal(t, int64(len(body)), res.Size)

	// staged input removed, manifest published
	assert.Empty(t, entries(t, f.stagingDir))
	assert.FileExists(t, filepath.Join(f.slidesDir, res.OutputID+".dzi"))

	require.Len(t, f.successes.recs, 1)
	assert.Equal(t, res.OutputID, f.successes.recs[0].OutputID)
	assert.Equal(t, res.Path, f.successes.recs[0].PublicPath)
	assert.Equal(t, []string{res.OutputID}, f.mirrors.ids)
	assert.Empty(t, f.failures.recs)
}

func TestHandleUploadConversionFailure(t *testing.T) {
	f := newFixture(t, "fail")

	res, err := f.pipeline.HandleUpload(context.Background(), strings.NewReader("not a slide"), "broken.ndpi")
	require.Error(t, err)
	assert.Nil(t, res)

	var me *models.Error
	require.True(t, errors.As(err, &me))
	assert.Equal(t, models.KindConversionFailed, me.Kind)
	assert.Equal(t, 1, me.ExitCode)
	assert.Contains(t, me.Diagnostic, "cannot open slide")

	// staged file kept, nothing published
	staged := entries(t, f.stagingDir)
	require.Len(t, staged, 1)
	assert.True(t, strings.HasSuffix(staged[0], "-broken.ndpi"))
	assert.Empty(t, entries(t, f.slidesDir))

	require.Len(t, f.failures.recs, 1)
	rec := f.failures.recs[0]
	assert.Equal(t, failures.StageConversion, rec.Stage)
	assert.Equal(t, "broken.ndpi", rec.OriginalName)
	assert.Equal(t, filepath.Join(f.stagingDir, staged[0]), rec.StagedPath)
	assert.Empty(t, f.successes.recs)
	assert.Empty(t, f.mirrors.ids)
}

func TestHandleUploadRejectsBeforeConverting(t *testing.T) {
	f := newFixture(t, "ok")

	_, err := f.pipeline.HandleUpload(context.Background(), strings.NewReader("data"), "notes.txt")
	assert.True(t, models.IsKind(err, models.KindUnsupportedFormat))
	assert.Empty(t, entries(t, f.stagingDir))
	assert.Empty(t, entries(t, f.slidesDir))
	assert.Empty(t, f.failures.recs)
}

func TestConcurrentIdenticalUploads(t *testing.T) {
	f := newFixture(t, "ok")
	const n = 8

	var wg sync.WaitGroup
	results := make([]*models.UploadResult, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.pipeline.HandleUpload(context.Background(),
				strings.NewReader(fmt.Sprintf("slide %d", i)), "same name.svs")
		}()
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for i := range n {
		require.NoError(t, errs[i])
		assert.False(t, seen[results[i].OutputID], "duplicate id %s", results[i].OutputID)
		seen[results[i].OutputID] = true
	}

	manifests := 0
	for _, name := range entries(t, f.slidesDir) {
		if strings.HasSuffix(name, ".dzi") {
			manifests++
		}
	}
	assert.Equal(t, n, manifests)
	assert.Empty(t, entries(t, f.stagingDir))
}

type stubConverter struct{ err error }

func (s stubConverter) Convert(context.Context, string, string, string) (string, error) {
	return "", s.err
}

func TestUntypedConverterErrorBecomesConversionFailed(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Staging.Dir = dir
	p := New(staging.NewStore(cfg.Staging), naming.NewSlideNamer("slide"),
		stubConverter{err: context.Canceled}, filepath.Join(dir, "out"))

	_, err := p.HandleUpload(context.Background(), strings.NewReader("x"), "a.svs")
	assert.True(t, models.IsKind(err, models.KindConversionFailed))
	assert.ErrorIs(t, err, context.Canceled)
}
