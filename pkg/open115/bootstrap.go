package open115

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/restic115/gateway/pkg/e"
)

// listPageSize is the provider's paginated listing page size. The
// reference implementation uses this literal value throughout.
const listPageSize = 1150

// InitRepository ensures the repository root and every typed subdirectory
// except config exist, creating any missing segment idempotently. config
// lives at the root itself and needs no subdirectory of its own.
func (c *Client) InitRepository(ctx context.Context) error {
	if _, err := c.ensurePath(ctx, c.ns.typeDirPath(TypeConfig)); err != nil {
		return err
	}
	for _, t := range allTypedSubdirs {
		if _, err := c.ensurePath(ctx, c.ns.typeDirPath(t)); err != nil {
			return err
		}
	}
	return nil
}

// getTypeDirID resolves (creating as needed) the directory that holds
// objects of type t, or for TypeData the shard directory for name.
func (c *Client) getTypeDirID(ctx context.Context, t FileType, name string) (string, error) {
	return c.ensurePath(ctx, c.ns.objectDirPath(t, name))
}

// findTypeDirID resolves the directory for type t/name using only the
// cache, for read paths that must never create anything.
func (c *Client) findTypeDirID(ctx context.Context, t FileType, name string) (string, error) {
	return c.findPathID(ctx, c.ns.objectDirPath(t, name))
}

// fetchFilesFromAPI walks the provider's paginated listing endpoint for
// parentID until exhausted, merging every page into the cache before
// returning the full set. Concurrent callers for the same parentID
// attach to a single in-flight fetch rather than issuing duplicate
// requests.
func (c *Client) fetchFilesFromAPI(ctx context.Context, parentID string) ([]fileEntry, error) {
	c.listingMu.Lock()
	if ch, inFlight := c.listingInFlight[parentID]; inFlight {
		c.listingMu.Unlock()
		select {
		case res := <-ch:
			return res.entries, res.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	ch := make(chan listingResult, 1)
	c.listingInFlight[parentID] = ch
	c.listingMu.Unlock()

	entries, err := c.fetchFilesPages(ctx, parentID)

	c.listingMu.Lock()
	delete(c.listingInFlight, parentID)
	c.listingMu.Unlock()

	result := listingResult{entries: entries, err: err}
	ch <- result
	close(ch)

	return entries, err
}

func (c *Client) fetchFilesPages(ctx context.Context, parentID string) ([]fileEntry, error) {
	var all []fileEntry
	offset := 0

	for {
		data, err := c.getJSON(ctx, "/open/ufile/files", url.Values{
			"cid":    {parentID},
			"limit":  {strconv.Itoa(listPageSize)},
			"offset": {strconv.Itoa(offset)},
		})
		if err != nil {
			return nil, err
		}

		var page []fileListEntry
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("%w: malformed file listing page", e.ErrUpstreamFailure)
		}
		if len(page) == 0 {
			break
		}

		for _, p := range page {
			if p.isDir() {
				continue
			}
			all = append(all, fileEntry{
				Name:     p.Name,
				ParentID: parentID,
				Size:     p.Size,
				PickCode: p.PC,
				FileID:   p.FID,
			})
		}

		if len(page) < listPageSize {
			break
		}
		offset += listPageSize
	}

	c.cache.replaceListing(parentID, all)
	return all, nil
}

// listDir returns the FileEntry set for a directory, using the cache if
// it has already been populated by a listing, or fetching (and caching)
// a fresh page set otherwise.
func (c *Client) listDir(ctx context.Context, parentID string) ([]fileEntry, error) {
	if entries, ok := c.cache.list(parentID); ok {
		return entries, nil
	}
	return c.fetchFilesFromAPI(ctx, parentID)
}

// listDataFiles concatenates every data shard's contents. The data/
// directory itself is resolved read-only: a repository that has never
// stored a data object has no data/ directory yet, which is not an
// error.
func (c *Client) listDataFiles(ctx context.Context) ([]fileEntry, error) {
	dataDirID, err := c.findPathID(ctx, c.ns.typeDirPath(TypeData))
	if err != nil {
		return nil, nil
	}

	shardIDs, err := c.listShardDirIDs(ctx, dataDirID)
	if err != nil {
		return nil, err
	}

	var all []fileEntry
	for _, shardID := range shardIDs {
		entries, err := c.listDir(ctx, shardID)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	return all, nil
}

// listShardDirIDs lists the data/ directory's own children to discover
// which of the up-to-256 shard directories currently exist. This is the
// one place the gateway lists a directory whose contents are themselves
// other directories rather than files.
func (c *Client) listShardDirIDs(ctx context.Context, dataDirID string) ([]string, error) {
	data, err := c.getJSON(ctx, "/open/ufile/files", url.Values{
		"cid":   {dataDirID},
		"limit": {strconv.Itoa(listPageSize)},
	})
	if err != nil {
		return nil, err
	}

	var page []fileListEntry
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("%w: malformed shard listing", e.ErrUpstreamFailure)
	}

	var ids []string
	for _, p := range page {
		if p.isDir() {
			ids = append(ids, p.FID)
			c.cache.putDir(dirHandle{ID: p.FID, Path: c.ns.dataShardDirPath(p.Name)})
		}
	}
	return ids, nil
}
