package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"WSISERVE_CONFIG", "PORT", "WSISERVE_PORT", "WSISERVE_ADDRESS",
		"WSISERVE_STAGING_DIR", "WSISERVE_SLIDES_DIR", "WSISERVE_CONVERTER",
		"WSISERVE_MAX_UPLOAD_BYTES", "WSISERVE_MAX_CONCURRENT_CONVERSIONS",
		"WSISERVE_CONVERSION_TIMEOUT", "WSISERVE_DATA_DIR", "WSISERVE_LOG_LEVEL",
		"WSISERVE_LOG_FILE", "WSISERVE_PUBLIC_BASE_URL",
		"WSISERVE_TRUST_PROXY_HEADERS", "WSISERVE_CORS_ORIGINS",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()

	assert.Equal(t, 3001, c.Server.Port)
	assert.Equal(t, int64(5*1024*1024*1024), c.Staging.MaxUploadBytes)
	assert.ElementsMatch(t, []string{"svs", "tiff", "tif", "ndpi", "vms", "vmu", "scn"}, c.Staging.AllowedExtensions)
	assert.Equal(t, "/slides", c.Slides.ServeRoot)
	assert.Equal(t, "dzi", c.Slides.ManifestExtension)
	assert.Equal(t, "slide", c.Slides.IDPrefix)
	assert.Equal(t, "python3", c.Conversion.Command)
	assert.Equal(t, []string{"convert.py"}, c.Conversion.Args)
	assert.GreaterOrEqual(t, c.Conversion.MaxConcurrent, 1)
	assert.Equal(t, []string{"*"}, c.Server.CORSAllowedOrigins)
	assert.False(t, c.Server.TrustProxyHeaders)
	require.NoError(t, c.Validate())
}

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	c, source, err := Load("")
	require.NoError(t, err)
	assert.Contains(t, source, "built-in defaults")
	assert.Equal(t, "./uploads", c.Staging.Dir)
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := `
server:
  port: 8088
staging:
  dir: /srv/wsi/stage
  maxUploadBytes: 1048576
slides:
  dir: /srv/wsi/public/slides
conversion:
  command: /usr/local/bin/wsi2dzi
  args: []
  maxConcurrent: 2
  timeout: 30m
mirrors:
  - name: archive
    type: s3
    options:
      bucket: slides-archive
      region: eu-west-1
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))
	t.Setenv("WSISERVE_MAX_CONCURRENT_CONVERSIONS", "6")

	c, source, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, source)
	assert.Equal(t, 8088, c.Server.Port)
	assert.Equal(t, "/srv/wsi/stage", c.Staging.Dir)
	assert.Equal(t, int64(1048576), c.Staging.MaxUploadBytes)
	assert.Equal(t, "/usr/local/bin/wsi2dzi", c.Conversion.Command)
	assert.Empty(t, c.Conversion.Args)
	assert.Equal(t, 30*time.Minute, c.Conversion.Timeout)
	assert.Equal(t, 6, c.Conversion.MaxConcurrent)
	require.Len(t, c.Mirrors, 1)
	assert.Equal(t, "slides-archive", c.Mirrors[0].Options["bucket"])
	// untouched sections keep their defaults
	assert.Equal(t, "dzi", c.Slides.ManifestExtension)
}

func TestLoad_ConverterEnvSplitsArgs(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("WSISERVE_CONVERTER", "python3 /opt/wsi/convert.py")

	c, _, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "python3", c.Conversion.Command)
	assert.Equal(t, []string{"/opt/wsi/convert.py"}, c.Conversion.Args)
}

func TestLoad_InvalidEnv(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("WSISERVE_PORT", "not-a-port")

	_, _, err := Load("")
	assert.Error(t, err)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	clearEnv(t)
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"no extensions", func(c *Config) { c.Staging.AllowedExtensions = nil }},
		{"zero ceiling", func(c *Config) { c.Staging.MaxUploadBytes = 0 }},
		{"root serve path", func(c *Config) { c.Slides.ServeRoot = "/" }},
		{"dotted manifest ext", func(c *Config) { c.Slides.ManifestExtension = ".dzi" }},
		{"no command", func(c *Config) { c.Conversion.Command = "" }},
		{"zero concurrency", func(c *Config) { c.Conversion.MaxConcurrent = 0 }},
		{"staging inside slides", func(c *Config) {
			c.Slides.Dir = "/srv/public"
			c.Staging.Dir = "/srv/public/uploads"
		}},
		{"slides inside staging", func(c *Config) {
			c.Staging.Dir = "/srv/stage"
			c.Slides.Dir = "/srv/stage/slides"
		}},
		{"data inside slides", func(c *Config) {
			c.Slides.Dir = "/srv/public"
			c.Data.Dir = "/srv/public/data"
		}},
		{"slides inside data", func(c *Config) {
			c.Data.Dir = "/srv/data"
			c.Slides.Dir = "/srv/data/slides"
		}},
		{"no data dir", func(c *Config) { c.Data.Dir = "" }},
		{"unknown mirror", func(c *Config) {
			c.Mirrors = []MirrorConfig{{Name: "x", Type: "ftp"}}
		}},
		{"duplicate mirror", func(c *Config) {
			c.Mirrors = []MirrorConfig{{Name: "x", Type: "s3"}, {Name: "x", Type: "gcs"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestSiblingDirsAreNotNested(t *testing.T) {
	c := DefaultConfig()
	c.Staging.Dir = "/srv/slides-stage"
	c.Slides.Dir = "/srv/slides"
	assert.NoError(t, c.Validate())
}

func TestDataPaths(t *testing.T) {
	c := DefaultConfig()
	c.Data.Dir = "/var/lib/wsiserve"

	assert.Equal(t, filepath.Join("/var/lib/wsiserve", "success.db"), c.SuccessDBPath())
	assert.Equal(t, filepath.Join("/var/lib/wsiserve", "failures.db"), c.FailuresDBPath())
	assert.Equal(t, filepath.Join("/var/lib/wsiserve", "MirrorQueue.db"), c.MirrorQueuePath())
	assert.Equal(t, "0.0.0.0:3001", c.Addr())
}

func TestLoad_ProxyAndCORSEnv(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("WSISERVE_TRUST_PROXY_HEADERS", "true")
	t.Setenv("WSISERVE_CORS_ORIGINS", "https://viewer.example.org, https://lab.example.org")

	cfg, _, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Server.TrustProxyHeaders)
	assert.Equal(t, []string{"https://viewer.example.org", "https://lab.example.org"}, cfg.Server.CORSAllowedOrigins)

	t.Setenv("WSISERVE_CORS_ORIGINS", "none")
	cfg, _, err = Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Server.CORSAllowedOrigins)

	t.Setenv("WSISERVE_TRUST_PROXY_HEADERS", "maybe")
	_, _, err = Load("")
	assert.Error(t, err)
}
