package open115

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/restic115/gateway/pkg/e"
)

// DownloadRange is an inclusive byte range, already validated by the
// caller (see pkg/restic's range parser).
type DownloadRange struct {
	Start, End int64
	Set        bool
}

// DownloadFile resolves pickCode to a signed URL (cached, short-TTL) and
// streams the requested range from it. If the CDN rejects the cached URL
// with 403/410, the URL is evicted and a single re-resolve-and-retry is
// attempted.
func (c *Client) DownloadFile(ctx context.Context, pickCode string, r DownloadRange) (*http.Response, error) {
	resp, err := c.downloadOnce(ctx, pickCode, r)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusGone {
		resp.Body.Close()
		c.cache.evictTicket(pickCode)

		resp, err = c.downloadOnce(ctx, pickCode, r)
		if err != nil {
			return nil, err
		}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: download returned status %d", e.ErrUpstreamFailure, resp.StatusCode)
	}

	return resp, nil
}

func (c *Client) downloadOnce(ctx context.Context, pickCode string, r DownloadRange) (*http.Response, error) {
	signedURL, err := c.getDownloadURL(ctx, pickCode)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signedURL, nil)
	if err != nil {
		return nil, err
	}
	if r.Set {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", r.Start, r.End))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: download transport error: %v", e.ErrUpstreamFailure, err)
	}
	return resp, nil
}

// DrainAndClose is a small helper for callers that need to discard a
// response body on an error path without leaking the connection.
func DrainAndClose(resp *http.Response) {
	if resp == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
