package open115

import (
	"context"
	"errors"

	"github.com/restic115/gateway/pkg/e"
)

// FileInfo is the exported read-path result: everything a restic HEAD
// or GET needs without leaking the internal cache representation.
type FileInfo struct {
	Name     string
	Size     int64
	PickCode string
}

// GetFileInfo resolves an object by type/name using only the cache — it
// never lists or creates. Returns e.ErrNotFound if either the parent
// directory or the object itself is not currently cached.
func (c *Client) GetFileInfo(ctx context.Context, t FileType, name string) (FileInfo, error) {
	objectName := c.ns.objectName(t, name)

	parentID, err := c.findTypeDirID(ctx, t, name)
	if err != nil {
		return FileInfo{}, err
	}

	entry, ok := c.cache.findFile(parentID, objectName)
	if !ok {
		return FileInfo{}, e.ErrNotFound
	}
	return FileInfo{Name: entry.Name, Size: entry.Size, PickCode: entry.PickCode}, nil
}

// ListFiles returns every object of type t. For TypeData this
// concatenates every shard directory; for every other type it lists the
// type's single directory. config is not a listable type — callers must
// reject it before calling this.
func (c *Client) ListFiles(ctx context.Context, t FileType) ([]FileInfo, error) {
	var entries []fileEntry
	var err error

	if t == TypeData {
		entries, err = c.listDataFiles(ctx)
	} else {
		var dirID string
		dirID, err = c.findTypeDirID(ctx, t, "")
		if err != nil {
			if errors.Is(err, e.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		entries, err = c.listDir(ctx, dirID)
	}
	if err != nil {
		return nil, err
	}

	out := make([]FileInfo, 0, len(entries))
	for _, ent := range entries {
		out = append(out, FileInfo{Name: ent.Name, Size: ent.Size, PickCode: ent.PickCode})
	}
	return out, nil
}

// DeleteFile removes an object. Per the REST surface's idempotent-by-
// contract rule, an object that does not exist (or whose parent
// directory was never even observed) is not an error — the caller
// always gets a clean success.
func (c *Client) DeleteFile(ctx context.Context, t FileType, name string) error {
	objectName := c.ns.objectName(t, name)

	parentID, err := c.findTypeDirID(ctx, t, name)
	if err != nil {
		return nil
	}

	entry, _ := c.cache.findFile(parentID, objectName)
	c.deleteFile(ctx, parentID, objectName, entry.FileID)
	return nil
}

// UploadObject is the namespace-aware entry point the REST adapter uses
// for POST /:type/:name (and POST /config).
func (c *Client) UploadObject(ctx context.Context, t FileType, name string, content []byte) (FileInfo, error) {
	entry, err := c.UploadFile(ctx, t, name, content)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{Name: entry.Name, Size: entry.Size, PickCode: entry.PickCode}, nil
}
