// Package persistence defines the optional checkpoint-store contract
// used by the sqlite and postgres backends. It deliberately holds no
// reference to either backend package — each backend imports this
// package for the shared types, and the CLI entry point is what chooses
// between them, to avoid a package import cycle.
package persistence

// DirRecord is a checkpointed DirHandle: a resolved path and the
// provider-assigned directory id it resolved to.
type DirRecord struct {
	Path   string
	FileID string
}

// FileRecord is a checkpointed FileEntry (or directory, when IsDir is
// true — directories and files share one table, following the
// reference schema, since both are addressed by the same parent/name
// pair during a cache warm-load).
type FileRecord struct {
	FileID   string
	ParentID string
	Filename string
	IsDir    bool
	Size     int64
	PickCode string
}

// Backend is the optional warm-start checkpoint store described in
// SPEC_FULL.md §4.10. It is never consulted on the read/write hot path;
// the in-memory cache remains authoritative at runtime. A Backend is
// written to asynchronously after cache mutations and read once, at
// startup, to avoid re-walking the provider's namespace from a cold
// cache.
type Backend interface {
	Type() string

	SaveToken(accessToken, refreshToken string) error
	LoadToken() (accessToken, refreshToken string, ok bool, err error)

	SaveDir(path, fileID string) error
	LoadDirs() ([]DirRecord, error)

	SaveFile(rec FileRecord) error
	DeleteFile(parentID, filename string) error
	LoadFiles() ([]FileRecord, error)

	Close() error
}
