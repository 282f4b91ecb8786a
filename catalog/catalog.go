package catalog

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"wsiserve/config"
	"wsiserve/models"
)

// Catalog is a read-only view of the published slides directory. Every call
// rescans the directory; nothing is cached.
type Catalog struct {
	dir       string
	serveRoot string
	suffix    string
}

func New(cfg config.SlidesConfig) *Catalog {
	return &Catalog{
		dir:       cfg.Dir,
		serveRoot: strings.TrimRight(cfg.ServeRoot, "/"),
		suffix:    "." + cfg.ManifestExtension,
	}
}

// List returns the manifests in the slides directory, sorted by name, with
// URL set to the public path. A directory that does not exist yet is an
// empty catalog; one that cannot be read is CatalogUnavailable.
func (c *Catalog) List() ([]models.PublishedSlide, error) {
	return c.ListWithBase("")
}

// ListWithBase is List with URLs prefixed by baseURL (scheme://host).
func (c *Catalog) ListWithBase(baseURL string) ([]models.PublishedSlide, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.PublishedSlide{}, nil
		}
		return nil, models.NewError(models.KindCatalogUnavailable, "failed to list slides", err)
	}

	base := strings.TrimRight(baseURL, "/")
	slides := make([]models.PublishedSlide, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || !strings.HasSuffix(name, c.suffix) || name == c.suffix {
			continue
		}
		slides = append(slides, models.PublishedSlide{
			Name: name,
			URL:  base + path.Join(c.serveRoot, name),
		})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].Name < slides[j].Name })
	return slides, nil
}

// Contains reports whether a manifest for outputID is published.
func (c *Catalog) Contains(outputID string) (bool, error) {
	info, err := os.Stat(filepath.Join(c.dir, outputID+c.suffix))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat manifest: %w", err)
	}
	return info.Mode().IsRegular(), nil
}
