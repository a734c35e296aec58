package open115

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/restic115/gateway/pkg/e"
	"github.com/restic115/gateway/pkg/persistence"
)

// repoRootParentID is the provider's directory id for the account root,
// i.e. the implicit parent of a repository's top-level directory.
const repoRootParentID = "0"

// Config collects everything Client needs that a caller (the CLI entry
// point) assembles from flags/env.
type Config struct {
	APIBase           string
	UserAgent         string
	RepoPath          string
	RateLimitRPS      float64
	RateLimitBurst    float64
	RequestTimeout    time.Duration
	TokenInvalidCodes []int64
}

// Client is the authenticated transport plus the namespace-aware
// directory operations built on top of it. One Client is shared by every
// inbound request the gateway serves.
type Client struct {
	httpClient *http.Client
	tokens     *TokenManager
	apiBase    string
	userAgent  string
	limiter    *rateLimiter
	cache      *cache
	ns         *namespace

	tokenInvalidCodes map[int64]bool

	listingMu       sync.Mutex
	listingInFlight map[string]chan listingResult

	// persist is the optional warm-start checkpoint backend (SPEC_FULL.md
	// §4.10). nil when disabled, which is the default.
	persist persistence.Backend
}

// SetPersistence wires an optional checkpoint backend. Every subsequent
// cache-mutating operation (directory resolution, upload, delete) best-
// effort checkpoints into it; the in-memory cache stays authoritative
// regardless of checkpoint success.
func (c *Client) SetPersistence(b persistence.Backend) {
	c.persist = b
}

// WarmStart loads a previously checkpointed cache from the persistence
// backend, if one is configured. Unreachable or empty storage is not an
// error — it just means the process starts with a cold cache, same as
// if persistence were disabled.
func (c *Client) WarmStart(ctx context.Context) error {
	if c.persist == nil {
		return nil
	}

	dirs, err := c.persist.LoadDirs()
	if err != nil {
		return fmt.Errorf("loading cached directories: %w", err)
	}
	for _, d := range dirs {
		c.cache.putDir(dirHandle{ID: d.FileID, Path: d.Path})
	}

	files, err := c.persist.LoadFiles()
	if err != nil {
		return fmt.Errorf("loading cached files: %w", err)
	}
	for _, f := range files {
		if f.IsDir {
			continue
		}
		c.cache.insertFile(fileEntry{
			Name:     f.Filename,
			ParentID: f.ParentID,
			Size:     f.Size,
			PickCode: f.PickCode,
			FileID:   f.FileID,
		})
	}

	log.Info().Int("dirs", len(dirs)).Int("files", len(files)).Msg("warm-started cache from persistence layer")
	return nil
}

func (c *Client) checkpointDir(path, fileID string) {
	if c.persist == nil {
		return
	}
	if err := c.persist.SaveDir(path, fileID); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to checkpoint directory")
	}
}

func (c *Client) checkpointFile(ent fileEntry) {
	if c.persist == nil {
		return
	}
	rec := persistence.FileRecord{FileID: ent.FileID, ParentID: ent.ParentID, Filename: ent.Name, Size: ent.Size, PickCode: ent.PickCode}
	if err := c.persist.SaveFile(rec); err != nil {
		log.Warn().Err(err).Str("name", ent.Name).Msg("failed to checkpoint file")
	}
}

func (c *Client) checkpointDelete(parentID, name string) {
	if c.persist == nil {
		return
	}
	if err := c.persist.DeleteFile(parentID, name); err != nil {
		log.Warn().Err(err).Str("name", name).Msg("failed to checkpoint file deletion")
	}
}

type listingResult struct {
	entries []fileEntry
	err     error
}

// NewClient wires a transport client around an already-constructed
// TokenManager. The cache and namespace mapper are owned by the client
// for the lifetime of the process.
func NewClient(cfg Config, tokens *TokenManager) *Client {
	invalid := make(map[int64]bool, len(cfg.TokenInvalidCodes))
	for _, c := range cfg.TokenInvalidCodes {
		invalid[c] = true
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &Client{
		httpClient:        &http.Client{Timeout: timeout},
		tokens:            tokens,
		apiBase:           strings.TrimRight(cfg.APIBase, "/"),
		userAgent:         cfg.UserAgent,
		limiter:           newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		cache:             newCache(),
		ns:                newNamespace(cfg.RepoPath),
		tokenInvalidCodes: invalid,
		listingInFlight:   make(map[string]chan listingResult),
	}
}

func isQuotaLimited(code int64) bool {
	return code == 406
}

func isRateLimitedCode(code int64) bool {
	return isQuotaLimited(code) || code == 40140117
}

// doJSON is the single request/retry/refresh/backoff implementation
// shared by every JSON-speaking provider call. method/path/form describe
// the request; GET requests carry form as a query string, everything
// else as an x-www-form-urlencoded body.
func (c *Client) doJSON(ctx context.Context, method, path string, form url.Values) (envelope, error) {
	tokenRetried := false

	for attempt := 1; attempt <= maxRateLimitRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return envelope{}, err
		}

		token, err := c.tokens.GetToken(ctx)
		if err != nil {
			return envelope{}, fmt.Errorf("%w: %v", e.ErrTokenInvalid, err)
		}

		req, err := c.buildRequest(ctx, method, path, form, token)
		if err != nil {
			return envelope{}, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return envelope{}, fmt.Errorf("open115: transport error calling %s: %w", path, err)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return envelope{}, fmt.Errorf("open115: reading response from %s: %w", path, readErr)
		}

		if resp.StatusCode == http.StatusUnauthorized && !tokenRetried {
			tokenRetried = true
			if _, err := c.tokens.RefreshToken(ctx); err != nil {
				return envelope{}, fmt.Errorf("%w: refresh after 401 failed: %v", e.ErrTokenInvalid, err)
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			if attempt < maxRateLimitRetries {
				backoffSleep(ctx, attempt)
				continue
			}
		}

		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return envelope{}, fmt.Errorf("%w: decoding response from %s: %v", e.ErrUpstreamFailure, path, err)
		}

		if c.tokenInvalidCodes[env.Code] && !tokenRetried {
			tokenRetried = true
			if _, err := c.tokens.RefreshToken(ctx); err != nil {
				return envelope{}, fmt.Errorf("%w: refresh after code %d failed: %v", e.ErrTokenInvalid, env.Code, err)
			}
			continue
		}

		if isRateLimitedCode(env.Code) && attempt < maxRateLimitRetries {
			backoffSleep(ctx, attempt)
			continue
		}

		if env.ok() {
			return env, nil
		}

		if isQuotaLimited(env.Code) {
			return envelope{}, fmt.Errorf("%w: %w", e.ErrRateLimited, &e.UpstreamError{Code: env.Code, Message: env.Message})
		}

		return envelope{}, &e.UpstreamError{Code: env.Code, Message: env.Message}
	}

	return envelope{}, fmt.Errorf("%w: exhausted retries calling %s", e.ErrRateLimited, path)
}

func (c *Client) buildRequest(ctx context.Context, method, path string, form url.Values, token string) (*http.Request, error) {
	target := c.apiBase + path

	var req *http.Request
	var err error
	if method == http.MethodGet {
		if len(form) > 0 {
			target += "?" + form.Encode()
		}
		req, err = http.NewRequestWithContext(ctx, method, target, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, target, strings.NewReader(form.Encode()))
	}
	if err != nil {
		return nil, err
	}

	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	env, err := c.doJSON(ctx, http.MethodGet, path, query)
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

func (c *Client) postFormJSON(ctx context.Context, path string, form url.Values) (json.RawMessage, error) {
	env, err := c.doJSON(ctx, http.MethodPost, path, form)
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

// createDirectory is idempotent: if the name already exists under
// parentID, the search fast path resolves the existing id instead of
// surfacing the provider's "already exists" failure.
func (c *Client) createDirectory(ctx context.Context, parentID, name string) (string, error) {
	data, err := c.postFormJSON(ctx, "/open/folder/add", url.Values{
		"pid":       {parentID},
		"file_name": {name},
	})
	if err != nil {
		var upErr *e.UpstreamError
		if errors.As(err, &upErr) {
			if id, ok, searchErr := c.searchDir(ctx, parentID, name); searchErr == nil && ok {
				return id, nil
			}
		}
		return "", err
	}

	var m mkdirData
	if err := json.Unmarshal(data, &m); err != nil || m.FileID == "" {
		return "", fmt.Errorf("%w: malformed folder/add response", e.ErrUpstreamFailure)
	}
	return m.FileID, nil
}

// searchDir is the name-based search fast path used when a directory's
// id is unknown and listing the parent would be wasteful.
func (c *Client) searchDir(ctx context.Context, parentID, name string) (string, bool, error) {
	data, err := c.getJSON(ctx, "/open/ufile/search", url.Values{
		"cid":          {parentID},
		"search_value": {name},
	})
	if err != nil {
		return "", false, err
	}

	var entries []searchEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return "", false, nil
	}
	for _, ent := range entries {
		if ent.isDir() && ent.FileName == name && ent.ParentID == parentID {
			return ent.FileID, true, nil
		}
	}
	return "", false, nil
}

// ensurePath resolves path to a directory id, creating any missing
// segment along the way. Used by write paths only; read paths must use
// findPathID instead.
func (c *Client) ensurePath(ctx context.Context, path string) (string, error) {
	return c.walkPath(ctx, path, true)
}

// findPathID resolves path to a directory id using only what is already
// cached, never creating anything and never issuing an upstream listing
// call. A miss on any segment is reported as NotFound.
func (c *Client) findPathID(ctx context.Context, path string) (string, error) {
	return c.walkPath(ctx, path, false)
}

func (c *Client) walkPath(ctx context.Context, path string, create bool) (string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return repoRootParentID, nil
	}

	segments := strings.Split(trimmed, "/")
	parentID := repoRootParentID
	cum := ""

	for _, seg := range segments {
		cum += "/" + seg

		if d, ok := c.cache.dirByPath(cum); ok {
			parentID = d.ID
			continue
		}

		if !create {
			return "", fmt.Errorf("%w: directory %q not cached", e.ErrNotFound, cum)
		}

		id, err := c.createDirectory(ctx, parentID, seg)
		if err != nil {
			return "", err
		}
		c.cache.putDir(dirHandle{ID: id, Path: cum})
		c.checkpointDir(cum, id)
		parentID = id
	}

	return parentID, nil
}

// deleteFile treats any provider response as success: the object is
// removed from the local cache unconditionally and the operation never
// propagates an upstream error, matching delete's idempotent-by-contract
// status in the REST surface.
func (c *Client) deleteFile(ctx context.Context, parentID, name, fileID string) {
	if fileID != "" {
		if _, err := c.postFormJSON(ctx, "/open/ufile/delete", url.Values{
			"file_ids":  {fileID},
			"parent_id": {parentID},
		}); err != nil {
			// Best-effort: the provider may already consider it gone.
			_ = err
		}
	}
	c.cache.removeFile(parentID, name)
	c.checkpointDelete(parentID, name)
}

// getDownloadURL resolves a pick_code to a signed URL, consulting and
// populating the short-TTL ticket cache.
func (c *Client) getDownloadURL(ctx context.Context, pickCode string) (string, error) {
	if t, ok := c.cache.ticket(pickCode); ok {
		return t.URL, nil
	}

	data, err := c.postFormJSON(ctx, "/open/ufile/downurl", url.Values{"pick_code": {pickCode}})
	if err != nil {
		return "", err
	}

	var byFileID map[string]downURLEntry
	if err := json.Unmarshal(data, &byFileID); err != nil {
		return "", fmt.Errorf("%w: malformed downurl response", e.ErrUpstreamFailure)
	}

	for _, entry := range byFileID {
		if entry.URL.URL != "" {
			upstreamExpiry, ok := signedURLExpiry(entry.URL.URL)
			if !ok {
				// No parseable expiry on the signed URL itself: don't let
				// that masquerade as a real upstream deadline. Push it far
				// enough out that putTicket's min() always keeps its own
				// downloadTicketTTL default instead.
				upstreamExpiry = time.Now().Add(24 * time.Hour)
			}
			c.cache.putTicket(pickCode, entry.URL.URL, upstreamExpiry)
			return entry.URL.URL, nil
		}
	}

	return "", fmt.Errorf("%w: no download url in response", e.ErrUpstreamFailure)
}

// signedURLExpiry extracts the issuer-stated expiry from a signed download
// URL, if one is present. Covers the two query-parameter conventions OSS
// and OSS-compatible CDNs actually use: an absolute Unix-seconds "Expires"
// (OSS V1 / S3-style signing), or a relative "x-oss-expires" duration
// measured from an "x-oss-date" timestamp (OSS V4 signing). Returns
// ok=false when neither is present so the caller can fall back rather than
// treat an unparsed URL as already-expired.
func signedURLExpiry(rawURL string) (time.Time, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return time.Time{}, false
	}
	q := u.Query()

	if raw := q.Get("Expires"); raw != "" {
		if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return time.Unix(secs, 0), true
		}
	}

	if raw := q.Get("x-oss-expires"); raw != "" {
		if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
			if dateStr := q.Get("x-oss-date"); dateStr != "" {
				if signedAt, err := time.Parse("20060102T150405Z", dateStr); err == nil {
					return signedAt.Add(time.Duration(secs) * time.Second), true
				}
			}
		}
	}

	return time.Time{}, false
}
