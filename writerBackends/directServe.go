package writerbackends

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"wsiserve/logger"
	"wsiserve/utils"
)

// directServeSession copies slides into another local directory, typically
// one exported by a separate web server or a network mount.
type directServeSession struct {
	root string
}

// OpenDirectServe expects accessInfo["baseDir"] and optionally ["folder"].
func OpenDirectServe(accessInfo map[string]string) (Session, error) {
	baseDir := accessInfo["baseDir"]
	if baseDir == "" {
		return nil, fmt.Errorf("missing required accessInfo key: baseDir")
	}
	root := filepath.Join(baseDir, filepath.Clean("/"+accessInfo["folder"]))
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	return &directServeSession{root: root}, nil
}

func (d *directServeSession) Put(ctx context.Context, relPath string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := objectKey("", relPath)
	if err != nil {
		return err
	}
	fullPath := filepath.Join(d.root, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	// write to a temp name so readers never see a half-written tile
	suffix, err := utils.GenerateRandomHex(4)
	if err != nil {
		return err
	}
	tmp := fullPath + "." + suffix + ".part"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", tmp, err)
	}
	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write to file %s: %w", fullPath, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close file %s: %w", fullPath, err)
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move %s into place: %w", fullPath, err)
	}

	logger.Debugf("Saved '%s' to '%s'", relPath, fullPath)
	return nil
}

func (d *directServeSession) Close() error { return nil }
