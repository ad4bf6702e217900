package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Entry is one cached extraction result.
type Entry struct {
	Path        string
	Checksum    string
	Format      string
	Frontmatter map[string]any
	BodyLen     int
	UpdatedAt   time.Time
}

// Lookup returns the cached entry for path when its checksum still matches.
func (db *DB) Lookup(path, checksum string) (*Entry, bool, error) {
	var (
		e     Entry
		fmRaw string
	)
	err := db.conn.QueryRow(`
		SELECT path, checksum, format, frontmatter, body_len, updated_at
		FROM documents WHERE path = ? AND checksum = ?
	`, path, checksum).Scan(&e.Path, &e.Checksum, &e.Format, &fmRaw, &e.BodyLen, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("index: lookup %s: %w", path, err)
	}
	if err := yaml.Unmarshal([]byte(fmRaw), &e.Frontmatter); err != nil {
		// A corrupt row is a miss; the caller re-extracts and overwrites it.
		return nil, false, nil
	}
	if e.Frontmatter == nil {
		e.Frontmatter = map[string]any{}
	}
	return &e, true, nil
}

// Upsert inserts or replaces the cached entry for e.Path.
func (db *DB) Upsert(e Entry) error {
	fm := e.Frontmatter
	if fm == nil {
		fm = map[string]any{}
	}
	// YAML keeps int and float distinct across a round trip, JSON does not.
	fmYAML, err := yaml.Marshal(fm)
	if err != nil {
		return fmt.Errorf("index: encode frontmatter %s: %w", e.Path, err)
	}
	if e.Format == "" {
		e.Format = "none"
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}
	_, err = db.conn.Exec(`
		INSERT INTO documents (path, checksum, format, frontmatter, body_len, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum    = excluded.checksum,
			format      = excluded.format,
			frontmatter = excluded.frontmatter,
			body_len    = excluded.body_len,
			updated_at  = excluded.updated_at
	`, e.Path, e.Checksum, e.Format, string(fmYAML), e.BodyLen, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert %s: %w", e.Path, err)
	}
	return nil
}

// Delete removes the cached entry for path.
func (db *DB) Delete(path string) error {
	if _, err := db.conn.Exec(`DELETE FROM documents WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete %s: %w", path, err)
	}
	return nil
}

// AllChecksums returns a map of path → checksum for every cached document.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// Prune deletes every entry whose path is not in keep and returns the count.
func (db *DB) Prune(keep map[string]struct{}) (int, error) {
	checksums, err := db.AllChecksums()
	if err != nil {
		return 0, err
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	n := 0
	for p := range checksums {
		if _, ok := keep[p]; ok {
			continue
		}
		if _, err := tx.Exec(`DELETE FROM documents WHERE path = ?`, p); err != nil {
			return 0, fmt.Errorf("index: prune %s: %w", p, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("index: commit prune: %w", err)
	}
	return n, nil
}

// Count returns the number of cached documents.
func (db *DB) Count() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}
