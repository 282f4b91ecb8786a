package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode"

	"wsiserve/config"
	"wsiserve/logger"
	"wsiserve/models"
	"wsiserve/utils"
)

const (
	copyBufferSize = 1 << 20
	tokenLength    = 6
	maxNameLength  = 120
)

// Store writes uploads into the staging directory under names that cannot
// collide and cannot escape the directory.
type Store struct {
	dir      string
	maxBytes int64
	allowed  map[string]bool
	now      func() time.Time
}

func NewStore(cfg config.StagingConfig) *Store {
	allowed := make(map[string]bool, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	return &Store{
		dir:      cfg.Dir,
		maxBytes: cfg.MaxUploadBytes,
		allowed:  allowed,
		now:      time.Now,
	}
}

// Dir returns the staging directory.
func (s *Store) Dir() string { return s.dir }

// Stage streams r to a new file in the staging directory. The extension is
// checked before anything touches the disk; a body larger than the ceiling
// or an aborted read leaves no file behind.
func (s *Store) Stage(ctx context.Context, r io.Reader, declaredFilename string) (*models.StagedFile, error) {
	ext, ok := s.acceptedExtension(declaredFilename)
	if !ok {
		return nil, models.NewError(models.KindUnsupportedFormat,
			fmt.Sprintf("unsupported file type %q, allowed: %s", filepath.Ext(declaredFilename), s.allowedList()), nil)
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	name, err := s.uniqueName(declaredFilename, ext)
	if err != nil {
		return nil, fmt.Errorf("failed to generate staging name: %w", err)
	}
	path := filepath.Join(s.dir, name)

	// O_EXCL turns a name collision into an error instead of an overwrite
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0640)
	if err != nil {
		return nil, fmt.Errorf("failed to create staging file: %w", err)
	}

	src := io.LimitReader(&contextReader{ctx: ctx, r: r}, s.maxBytes+1)
	n, copyErr := io.CopyBuffer(f, src, make([]byte, copyBufferSize))
	closeErr := f.Close()

	if copyErr == nil && n > s.maxBytes {
		copyErr = models.NewError(models.KindPayloadTooLarge,
			fmt.Sprintf("file exceeds the %d byte limit", s.maxBytes), nil)
	}
	if copyErr == nil && closeErr != nil {
		copyErr = fmt.Errorf("failed to close staging file: %w", closeErr)
	}
	if copyErr != nil {
		discard(path)
		return nil, classifyCopyError(copyErr, s.maxBytes)
	}

	logger.Debugf("Staged %q as %s (%d bytes)", declaredFilename, path, n)
	return &models.StagedFile{
		OriginalName: declaredFilename,
		Path:         path,
		Size:         n,
		Extension:    ext,
	}, nil
}

// Remove deletes a staged file. Paths outside the staging directory are refused.
func (s *Store) Remove(path string) error {
	if !s.owns(path) {
		return fmt.Errorf("refusing to remove %s: not in staging directory", path)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Sweep removes staged files last modified before now-maxAge and returns how
// many were removed. A missing staging directory is not an error.
func (s *Store) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read staging directory: %w", err)
	}

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warnf("Failed to sweep staged file %s: %v", path, err)
			continue
		}
		removed++
	}
	return removed, nil
}

func (s *Store) owns(path string) bool {
	dir, err := filepath.Abs(s.dir)
	if err != nil {
		return false
	}
	p, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return filepath.Dir(p) == dir
}

func (s *Store) acceptedExtension(filename string) (string, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		return "", false
	}
	return ext, s.allowed[ext]
}

func (s *Store) allowedList() string {
	exts := make([]string, 0, len(s.allowed))
	for ext := range s.allowed {
		exts = append(exts, "."+ext)
	}
	slices.Sort(exts)
	return strings.Join(exts, ", ")
}

func (s *Store) uniqueName(declared, ext string) (string, error) {
	token, err := utils.RandomToken(tokenLength)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d-%s-%s", s.now().UnixMilli(), token, SanitizeFilename(declared, ext)), nil
}

// SanitizeFilename reduces an untrusted client filename to a single safe path
// element: directories are dropped, whitespace runs become "_", ".." is
// removed and anything outside [A-Za-z0-9._-] is discarded.
func SanitizeFilename(name, ext string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	suffix := filepath.Ext(name)
	stem := strings.TrimSuffix(name, suffix)
	if !strings.EqualFold(suffix, "."+ext) {
		stem, suffix = name, "."+ext
	}

	var b strings.Builder
	inSpace := false
	for _, r := range stem {
		switch {
		case unicode.IsSpace(r):
			if !inSpace {
				b.WriteByte('_')
			}
			inSpace = true
			continue
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' || r == '-'):
			b.WriteRune(r)
		}
		inSpace = false
	}

	clean := b.String()
	for strings.Contains(clean, "..") {
		clean = strings.ReplaceAll(clean, "..", ".")
	}
	clean = strings.Trim(clean, ".")
	if clean == "" {
		clean = "upload"
	}
	if len(clean)+len(suffix) > maxNameLength {
		clean = clean[:maxNameLength-len(suffix)]
	}
	return clean + suffix
}

func classifyCopyError(err error, limit int64) error {
	var appErr *models.Error
	if errors.As(err, &appErr) {
		return err
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return models.NewError(models.KindPayloadTooLarge,
			fmt.Sprintf("request body exceeds the %d byte limit", limit), err)
	}
	return fmt.Errorf("failed to write staging file: %w", err)
}

func discard(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warnf("Failed to remove partial staging file %s: %v", path, err)
	}
}

// contextReader stops a copy as soon as the request context is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
