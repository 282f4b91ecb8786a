package writerbackends

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"wsiserve/config"
)

// Session writes the files of one slide to one backend. Implementations
// must accept concurrent Put calls.
type Session interface {
	// Put stores r under relPath, a slash separated path relative to the
	// slide root such as "slide_1_files/12/3_4.jpeg".
	Put(ctx context.Context, relPath string, r io.Reader) error
	Close() error
}

// Open connects to the backend described by m.
func Open(ctx context.Context, m config.MirrorConfig) (Session, error) {
	accessInfo := make(map[string]string, len(m.Options))
	for k, v := range m.Options {
		accessInfo[k] = v
	}

	var (
		s   Session
		err error
	)
	switch m.Type {
	case "directServe":
		s, err = OpenDirectServe(accessInfo)
	case "s3":
		s, err = OpenS3(ctx, accessInfo)
	case "gcs":
		s, err = OpenGCS(ctx, accessInfo)
	case "sftp":
		s, err = OpenSFTP(ctx, accessInfo)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", m.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("mirror %s (%s): %w", m.Name, m.Type, err)
	}
	return s, nil
}

// objectKey joins an optional prefix and a relative path into a clean
// slash separated key that cannot climb out of the prefix.
func objectKey(prefix, relPath string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(relPath, "\\", "/"))
	if clean == "/" {
		return "", fmt.Errorf("empty object path")
	}
	return strings.TrimPrefix(path.Join("/", prefix, clean), "/"), nil
}

func contentType(relPath string) string {
	switch strings.ToLower(path.Ext(relPath)) {
	case ".dzi":
		return "application/xml"
	case ".jpeg", ".jpg":
		return "image/jpeg"
	}
	if t := mime.TypeByExtension(path.Ext(relPath)); t != "" {
		return t
	}
	return "application/octet-stream"
}
