package index

import (
	"log/slog"
	"time"

	"github.com/starford/fmschema/internal/checksum"
	"github.com/starford/fmschema/internal/models"
	"github.com/starford/fmschema/internal/parser"
)

// Extract turns raw file bytes into a Document. When cache is non-nil an
// entry with a matching checksum is reused, and fresh results are stored.
// Cache failures are logged and never fail the extraction.
func Extract(cache Cache, path string, data []byte, modTime time.Time, logger *slog.Logger) (models.Document, error) {
	cs := checksum.Sum(data)

	if cache != nil {
		e, ok, err := cache.Lookup(path, cs)
		if err != nil {
			logger.Warn("index: lookup failed", slog.String("path", path), slog.String("error", err.Error()))
		} else if ok {
			return models.Document{
				Path:        path,
				Checksum:    cs,
				Format:      e.Format,
				Frontmatter: e.Frontmatter,
				BodyLen:     e.BodyLen,
				Cached:      true,
				UpdatedAt:   modTime,
			}, nil
		}
	}

	res, err := parser.Parse(data)
	if err != nil {
		return models.Document{}, err
	}
	doc := models.Document{
		Path:        path,
		Checksum:    cs,
		Format:      res.Format,
		Frontmatter: res.Frontmatter,
		BodyLen:     len(res.Body),
		UpdatedAt:   modTime,
	}

	if cache != nil {
		entry := Entry{
			Path:        path,
			Checksum:    cs,
			Format:      res.Format,
			Frontmatter: res.Frontmatter,
			BodyLen:     doc.BodyLen,
			UpdatedAt:   modTime,
		}
		if err := cache.Upsert(entry); err != nil {
			logger.Warn("index: upsert failed", slog.String("path", path), slog.String("error", err.Error()))
		} else {
			logger.Debug("index: cached", slog.String("path", path))
		}
	}
	return doc, nil
}
