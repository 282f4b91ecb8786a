package converter

import (
	"os"
	"path/filepath"
	"testing"

	"wsiserve/config"

	"github.com/stretchr/testify/require"
)

// fakeConverter is a POSIX shell stand-in for the real tool. The first
// argument selects the behaviour; the rest follow the converter contract.
const fakeConverter = `#!/bin/sh
mode="$1"; in="$2"; out="$3"; id="$4"
case "$mode" in
ok)
  mkdir -p "$out/${id}_files/0"
  echo tile > "$out/${id}_files/0/0_0.jpeg"
  printf '<Image TileSize="254"/>' > "$out/$id.dzi"
  echo "SUCCESS: Created $out/$id.dzi"
  ;;
warn)
  echo "Warning: TIFFReadDirectory: unknown field with tag 32997" >&2
  printf '<Image/>' > "$out/$id.dzi"
  ;;
fail)
  mkdir -p "$out/${id}_files/0"
  echo partial > "$out/${id}_files/0/0_0.jpeg"
  echo "ERROR: Unsupported or missing image file: $in" >&2
  exit 3
  ;;
nomanifest)
  echo "did nothing"
  ;;
exclusive)
  mkdir "$out/.busy" 2>/dev/null || { echo "overlapping conversion" >&2; exit 9; }
  sleep 0.2
  printf '<Image/>' > "$out/$id.dzi"
  rmdir "$out/.busy"
  ;;
slow)
  exec sleep 5
  ;;
killed)
  kill -9 $$
  ;;
esac
`

// newFakeInvoker returns an invoker running the fake converter in mode.
func newFakeInvoker(t *testing.T, mode string, mutate func(*config.ConversionConfig)) *Invoker {
	t.Helper()
	script := filepath.Join(t.TempDir(), "fake-convert.sh")
	require.NoError(t, os.WriteFile(script, []byte(fakeConverter), 0o755))

	cfg := config.DefaultConfig()
	cfg.Conversion.Command = "/bin/sh"
	cfg.Conversion.Args = []string{script, mode}
	cfg.Conversion.MaxConcurrent = 4
	if mutate != nil {
		mutate(&cfg.Conversion)
	}
	return NewInvoker(cfg.Conversion, cfg.Slides)
}
