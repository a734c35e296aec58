package open115

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	refreshTokenURL     = "https://passportapi.115.com/open/refreshToken"
	maxRateLimitRetries = 6
	refreshExpiryBuffer = 5 * time.Minute
)

// TokenManager owns the current access/refresh token pair and keeps it
// fresh. Refresh is coalesced: concurrent callers observing an expired
// token block on the same in-flight refresh rather than issuing duplicate
// requests against the provider.
type TokenManager struct {
	httpClient *http.Client

	mu          sync.Mutex
	access      string
	refresh     string
	expiresAt   *time.Time
	refreshing  bool
	refreshDone chan struct{}
	refreshErr  error

	persistEnabled bool
	persistPath    string

	// refreshURL overrides refreshTokenURL; only ever set by tests.
	refreshURL string

	// onRefresh, if set, is called with the new pair after every
	// successful refresh — used to checkpoint into the optional
	// persistence backend without this package depending on it directly.
	onRefresh func(accessToken, refreshToken string)
}

// SetOnRefresh installs a callback invoked after every successful token
// refresh. Intended for checkpointing into an optional persistence
// backend; failures in the callback are the caller's responsibility to
// log, since this package has no opinion on how persistence errors
// should be surfaced.
func (t *TokenManager) SetOnRefresh(fn func(accessToken, refreshToken string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRefresh = fn
}

// NewTokenManager seeds the manager with the operator-provided access and
// refresh tokens. expiresAt is left unknown (nil) until the first refresh,
// matching the reference behavior that an unknown expiry is never treated
// as expired.
func NewTokenManager(httpClient *http.Client, accessToken, refreshToken string, persistEnabled bool, persistPath string) *TokenManager {
	return &TokenManager{
		httpClient:     httpClient,
		access:         accessToken,
		refresh:        refreshToken,
		persistEnabled: persistEnabled,
		persistPath:    persistPath,
	}
}

// Adopt overwrites the held access/refresh pair, e.g. with a pair loaded
// from a persistence backend that may be newer than the one passed on
// the command line. The expiry is reset to unknown since the caller
// has no way to know when the adopted access token actually expires.
func (t *TokenManager) Adopt(accessToken, refreshToken string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.access = accessToken
	t.refresh = refreshToken
	t.expiresAt = nil
}

// RequireTokens fails fast if either token is unset, before any network
// call is attempted. This is distinct from expiry: it catches "never
// configured at all."
func (t *TokenManager) RequireTokens() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.access == "" || t.refresh == "" {
		return fmt.Errorf("open115: access token and refresh token must both be set")
	}
	return nil
}

func (t *TokenManager) isExpiredLocked() bool {
	if t.expiresAt == nil {
		return false
	}
	return time.Now().Add(refreshExpiryBuffer).After(*t.expiresAt)
}

// GetToken returns a usable access token, refreshing it first if the
// current one is known to be expired (or about to be).
func (t *TokenManager) GetToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	if !t.isExpiredLocked() {
		tok := t.access
		t.mu.Unlock()
		return tok, nil
	}
	t.mu.Unlock()
	return t.RefreshToken(ctx)
}

// RefreshToken forces a refresh, coalescing concurrent callers onto the
// single in-flight request.
func (t *TokenManager) RefreshToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	if t.refreshing {
		done := t.refreshDone
		t.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		t.mu.Lock()
		tok, err := t.access, t.refreshErr
		t.mu.Unlock()
		return tok, err
	}
	t.refreshing = true
	t.refreshDone = make(chan struct{})
	refreshTok := t.refresh
	t.mu.Unlock()

	tok, err := t.doRefresh(ctx, refreshTok)

	t.mu.Lock()
	if err == nil {
		t.access = tok
	}
	t.refreshErr = err
	t.refreshing = false
	close(t.refreshDone)
	t.mu.Unlock()

	return tok, err
}

func (t *TokenManager) doRefresh(ctx context.Context, refreshTok string) (string, error) {
	var lastErr error

	target := t.refreshURL
	if target == "" {
		target = refreshTokenURL
	}

	for attempt := 1; attempt <= maxRateLimitRetries; attempt++ {
		form := url.Values{"refresh_token": {refreshTok}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := t.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if attempt == maxRateLimitRetries {
				return "", fmt.Errorf("open115: refresh token request failed: %w", err)
			}
			backoffSleep(ctx, attempt)
			continue
		}

		var env envelope
		decodeErr := json.NewDecoder(resp.Body).Decode(&env)
		resp.Body.Close()
		if decodeErr != nil {
			lastErr = decodeErr
			if attempt == maxRateLimitRetries {
				return "", fmt.Errorf("open115: refresh token response decode failed: %w", decodeErr)
			}
			backoffSleep(ctx, attempt)
			continue
		}

		if env.ok() {
			var data refreshTokenData
			if err := json.Unmarshal(env.Data, &data); err != nil || data.AccessToken == "" || data.RefreshToken == "" {
				return "", fmt.Errorf("open115: refresh token response missing access_token/refresh_token")
			}

			t.mu.Lock()
			t.refresh = data.RefreshToken
			if data.ExpiresIn > 0 {
				exp := time.Now().Add(time.Duration(data.ExpiresIn) * time.Second)
				t.expiresAt = &exp
			} else {
				t.expiresAt = nil
			}
			access, refresh := data.AccessToken, data.RefreshToken
			t.mu.Unlock()

			if t.persistEnabled {
				if err := t.persistTokens(access, refresh); err != nil {
					log.Warn().Err(err).Msg("failed to persist refreshed tokens")
				}
			}
			if t.onRefresh != nil {
				t.onRefresh(access, refresh)
			}

			return access, nil
		}

		if isRefreshRateLimited(env.Code) && attempt < maxRateLimitRetries {
			backoffSleep(ctx, attempt)
			continue
		}

		return "", fmt.Errorf("open115: refresh token denied: code=%d message=%s", env.Code, env.Message)
	}

	return "", lastErr
}

func isRefreshRateLimited(code int64) bool {
	return code == 40140117
}

func backoffSleep(ctx context.Context, attempt int) {
	wait := time.Duration(1) << uint(attempt-1)
	if wait > 16 {
		wait = 16
	}
	select {
	case <-time.After(wait * time.Second):
	case <-ctx.Done():
	}
}

// parseBoolish accepts the same loose boolean vocabulary as the reference
// implementation's env var parsing.
func parseBoolish(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "t", "yes", "y", "on":
		return true, true
	case "0", "false", "f", "no", "n", "off":
		return false, true
	default:
		return false, false
	}
}

// ParseBoolish is the exported form used by CLI/config parsing.
func ParseBoolish(s string) (bool, bool) {
	return parseBoolish(s)
}

// upsertEnvVarLine rewrites a single line of a .env-style file if it
// assigns the given key, leaving comments and unrelated lines untouched.
// The replacement is always written without surrounding whitespace around
// '=', even if the original line had some.
func upsertEnvVarLine(line, key, value string) (string, bool) {
	trimmed := strings.TrimLeft(line, " \t")
	if strings.HasPrefix(trimmed, "#") {
		return "", false
	}
	if !strings.HasPrefix(trimmed, key) {
		return "", false
	}
	rest := strings.TrimSpace(trimmed[len(key):])
	if !strings.HasPrefix(rest, "=") {
		return "", false
	}
	return fmt.Sprintf("%s=%s", key, value), true
}

const (
	envKeyAccessToken  = "OPEN115_ACCESS_TOKEN"
	envKeyRefreshToken = "OPEN115_REFRESH_TOKEN"
)

// persistTokens atomically rewrites the configured token store file,
// preserving comments and unrelated lines, updating in place any existing
// OPEN115_ACCESS_TOKEN/OPEN115_REFRESH_TOKEN assignment and appending one
// for whichever key was not already present.
func (t *TokenManager) persistTokens(accessToken, refreshToken string) error {
	content, err := os.ReadFile(t.persistPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		content = nil
	}

	hadTrailingNewline := len(content) > 0 && content[len(content)-1] == '\n'
	lines := strings.Split(string(content), "\n")

	var seenAccess, seenRefresh bool
	for i, line := range lines {
		if replaced, ok := upsertEnvVarLine(line, envKeyAccessToken, accessToken); ok {
			lines[i] = replaced
			seenAccess = true
			continue
		}
		if replaced, ok := upsertEnvVarLine(line, envKeyRefreshToken, refreshToken); ok {
			lines[i] = replaced
			seenRefresh = true
			continue
		}
	}

	if !seenAccess {
		lines = append(lines, fmt.Sprintf("%s=%s", envKeyAccessToken, accessToken))
	}
	if !seenRefresh {
		lines = append(lines, fmt.Sprintf("%s=%s", envKeyRefreshToken, refreshToken))
	}

	out := strings.Join(lines, "\n")
	if hadTrailingNewline && !strings.HasSuffix(out, "\n") {
		out += "\n"
	}

	// Suffix the temp file with a uuid rather than a fixed name so two
	// gateway processes pointed at the same token store never clobber
	// each other's in-flight rewrite.
	tmpPath := t.persistPath + ".tmp." + uuid.NewString()
	dir := filepath.Dir(t.persistPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if _, err := w.WriteString(out); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, t.persistPath)
}
