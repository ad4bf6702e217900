package index

// Cache is the extraction cache consulted by the build pipeline.
// Consumers depend on this interface rather than *DB so tests can run
// without SQLite.
type Cache interface {
	Lookup(path, checksum string) (*Entry, bool, error)
	Upsert(e Entry) error
	Delete(path string) error
	AllChecksums() (map[string]string, error)
	Prune(keep map[string]struct{}) (int, error)
	Count() (int, error)
	Close() error
}

// Verify *DB satisfies Cache at compile time.
var _ Cache = (*DB)(nil)
