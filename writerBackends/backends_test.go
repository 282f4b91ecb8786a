package writerbackends

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wsiserve/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectServeSession(t *testing.T) {
	base := t.TempDir()
	s, err := Open(context.Background(), config.MirrorConfig{
		Name:    "local",
		Type:    "directServe",
		Options: map[string]string{"baseDir": base, "folder": "../mirror"},
	})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(context.Background(), "slide_1.dzi", strings.NewReader("<Image/>")))
	require.NoError(t, s.Put(context.Background(), "slide_1_files/0/0_0.jpeg", strings.NewReader("tile")))
	require.NoError(t, s.Put(context.Background(), "../../escape.jpeg", strings.NewReader("tile")))

	data, err := os.ReadFile(filepath.Join(base, "mirror", "slide_1.dzi"))
	require.NoError(t, err)
	assert.Equal(t, "<Image/>", string(data))
	assert.FileExists(t, filepath.Join(base, "mirror", "slide_1_files", "0", "0_0.jpeg"))
	assert.FileExists(t, filepath.Join(base, "mirror", "escape.jpeg"))
	leftovers, err := filepath.Glob(filepath.Join(base, "mirror", "*.part"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestDirectServeRequiresBaseDir(t *testing.T) {
	_, err := OpenDirectServe(map[string]string{})
	assert.Error(t, err)
}

func TestOpenValidatesOptions(t *testing.T) {
	cases := []config.MirrorConfig{
		{Name: "ftp", Type: "ftp"},
		{Name: "s3-nobucket", Type: "s3", Options: map[string]string{"region": "us-east-1"}},
		{Name: "s3-nokeys", Type: "s3", Options: map[string]string{"bucket": "b", "region": "us-east-1"}},
		{Name: "gcs-nobucket", Type: "gcs"},
		{Name: "gcs-badcreds", Type: "gcs", Options: map[string]string{"bucket": "b", "credentialsJSON": "%%%"}},
		{Name: "sftp-nohost", Type: "sftp", Options: map[string]string{"user": "u", "remotePath": "/x"}},
		{Name: "sftp-noauth", Type: "sftp", Options: map[string]string{"host": "h", "user": "u", "remotePath": "/x"}},
		{Name: "sftp-badkey", Type: "sftp", Options: map[string]string{"host": "h", "user": "u", "remotePath": "/x", "privateKey": "not a key"}},
	}
	for _, m := range cases {
		_, err := Open(context.Background(), m)
		assert.Error(t, err, m.Name)
	}
}

func TestS3SessionConstruction(t *testing.T) {
	s, err := OpenS3(context.Background(), map[string]string{
		"bucket":    "slides",
		"region":    "us-east-1",
		"accessKey": "AKIA",
		"secretKey": "secret",
		"endpoint":  "http://127.0.0.1:9000",
		"prefix":    "archive",
	})
	require.NoError(t, err)
	assert.Equal(t, "archive", s.(*s3Session).prefix)
	assert.NoError(t, s.Close())
}

func TestObjectKey(t *testing.T) {
	cases := []struct{ prefix, rel, want string }{
		{"", "slide_1.dzi", "slide_1.dzi"},
		{"archive", "slide_1_files/0/0_0.jpeg", "archive/slide_1_files/0/0_0.jpeg"},
		{"archive/", "../../etc/passwd", "archive/etc/passwd"},
		{"", `slide_1_files\1\0_0.jpeg`, "slide_1_files/1/0_0.jpeg"},
	}
	for _, c := range cases {
		got, err := objectKey(c.prefix, c.rel)
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}

	_, err := objectKey("p", "")
	assert.Error(t, err)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/xml", contentType("slide.dzi"))
	assert.Equal(t, "image/jpeg", contentType("a/b/0_0.jpeg"))
	assert.Equal(t, "image/png", contentType("a/b/0_0.png"))
	assert.Equal(t, "application/octet-stream", contentType("noext"))
}
