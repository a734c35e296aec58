package open115

import (
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec // required by the provider's upload-init hashing scheme
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/restic115/gateway/pkg/e"
)

// MaxUploadBytes is the hard cap enforced at ingest, before any bytes
// reach the provider.
const MaxUploadBytes = 1 << 30 // 1 GiB

const maxSignCheckAttempts = 3

const (
	initStatusInstantDedup = 2
	initStatusSignCheckLow = 6
	initStatusSignCheckHi  = 8
)

const preHashSampleSize = 128 * 1024

// UploadFile runs the full upload pipeline for content addressed at
// type t and name under the gateway's namespace: an init attempt
// (instant dedup or sign-check loop), OSS credential fetch, OSS PUT with
// callback, and cache installation from the callback's authoritative
// identity. The parent directory is created if necessary, since upload
// is a write path.
func (c *Client) UploadFile(ctx context.Context, t FileType, name string, content []byte) (fileEntry, error) {
	if len(content) > MaxUploadBytes {
		return fileEntry{}, fmt.Errorf("%w: %d bytes exceeds %d byte limit", e.ErrPayloadTooLarge, len(content), MaxUploadBytes)
	}

	objectName := c.ns.objectName(t, name)
	parentID, err := c.getTypeDirID(ctx, t, name)
	if err != nil {
		return fileEntry{}, err
	}

	fileID := sha1Hex(content)
	sampleLen := preHashSampleSize
	if sampleLen > len(content) {
		sampleLen = len(content)
	}
	preID := sha1Hex(content[:sampleLen])

	form := url.Values{
		"file_name": {objectName},
		"file_size": {strconv.Itoa(len(content))},
		"target":    {"U_1_" + parentID},
		"fileid":    {fileID},
		"preid":     {preID},
	}

	var initData map[string]interface{}
	for attempt := 0; attempt < maxSignCheckAttempts; attempt++ {
		data, err := c.postFormJSON(ctx, "/open/upload/init", form)
		if err != nil {
			return fileEntry{}, err
		}
		if err := json.Unmarshal(data, &initData); err != nil {
			return fileEntry{}, fmt.Errorf("%w: malformed upload/init response", e.ErrUpstreamFailure)
		}

		status := initFieldInt(initData, "status")

		if status == initStatusInstantDedup {
			fid := initFieldString(initData, "file_id", "fileId")
			pickCode := initFieldString(initData, "pick_code", "pickCode")
			if fid == "" {
				return fileEntry{}, fmt.Errorf("%w: instant-dedup response missing file_id", e.ErrUpstreamFailure)
			}
			entry := fileEntry{Name: objectName, ParentID: parentID, Size: int64(len(content)), PickCode: pickCode, FileID: fid}
			c.cache.insertFile(entry)
			c.checkpointFile(entry)
			return entry, nil
		}

		if status >= initStatusSignCheckLow && status <= initStatusSignCheckHi {
			signCheck := initFieldString(initData, "sign_check", "signCheck")
			signKey := initFieldString(initData, "sign_key", "signKey")
			start, end, ok := parseSignCheckRange(signCheck)
			if !ok || end >= int64(len(content)) || start > end {
				return fileEntry{}, fmt.Errorf("%w: invalid sign_check range %q", e.ErrUpstreamFailure, signCheck)
			}
			signVal := strings.ToUpper(sha1Hex(content[start : end+1]))
			form.Set("sign_key", signKey)
			form.Set("sign_val", signVal)
			continue
		}

		// Anything else means OSS upload is required.
		return c.uploadViaOSS(ctx, initData, objectName, parentID, content)
	}

	return fileEntry{}, fmt.Errorf("%w: exceeded sign-check retries for upload/init", e.ErrUpstreamFailure)
}

func (c *Client) uploadViaOSS(ctx context.Context, initData map[string]interface{}, objectName, parentID string, content []byte) (fileEntry, error) {
	bucket := initFieldString(initData, "bucket", "Bucket")
	object := initFieldString(initData, "object", "Object")
	if bucket == "" || object == "" {
		return fileEntry{}, fmt.Errorf("%w: upload/init response missing bucket/object", e.ErrUpstreamFailure)
	}

	callback, callbackVar, ok := extractCallbackPair(initData)
	if !ok {
		return fileEntry{}, fmt.Errorf("%w: upload/init response missing callback", e.ErrUpstreamFailure)
	}

	tok, err := c.getUploadToken(ctx)
	if err != nil {
		return fileEntry{}, err
	}

	req, err := ossPutRequest(tok, bucket, object, callback, callbackVar, bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return fileEntry{}, err
	}
	req = req.WithContext(ctx)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fileEntry{}, fmt.Errorf("%w: oss put failed: %v", e.ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	var result ossCallbackResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fileEntry{}, fmt.Errorf("%w: malformed oss callback body", e.ErrUpstreamFailure)
	}

	if resp.StatusCode != http.StatusOK || !result.ok() || result.Data == nil || result.Data.FileID == "" || result.Data.PickCode == "" {
		return fileEntry{}, fmt.Errorf("%w: oss callback did not confirm upload (status=%d)", e.ErrUpstreamFailure, resp.StatusCode)
	}

	entry := fileEntry{
		Name:     objectName,
		ParentID: parentID,
		Size:     int64(len(content)),
		PickCode: result.Data.PickCode,
		FileID:   result.Data.FileID,
	}
	c.cache.insertFile(entry)
	c.checkpointFile(entry)
	return entry, nil
}

// getUploadToken fetches OSS STS credentials. The response's data field
// is polymorphic: it may be an array (take the first element), an object
// directly matching the credential shape, an object nested under
// "token" or "data", or — as a last resort — the first value found in
// the object map.
func (c *Client) getUploadToken(ctx context.Context) (ossUploadToken, error) {
	data, err := c.postFormJSON(ctx, "/open/upload/get_token", nil)
	if err != nil {
		return ossUploadToken{}, err
	}

	tok, ok := parseUploadToken(data)
	if !ok {
		return ossUploadToken{}, fmt.Errorf("%w: unrecognized get_token response shape", e.ErrUpstreamFailure)
	}
	return tok, nil
}

func parseUploadToken(data json.RawMessage) (ossUploadToken, bool) {
	var asArray []uploadToken
	if err := json.Unmarshal(data, &asArray); err == nil && len(asArray) > 0 {
		return toOSSToken(asArray[0]), true
	}

	var asObject map[string]json.RawMessage
	if err := json.Unmarshal(data, &asObject); err != nil {
		return ossUploadToken{}, false
	}

	var direct uploadToken
	if err := json.Unmarshal(data, &direct); err == nil && (direct.AccessKeyID != "" || direct.SecurityToken != "") {
		return toOSSToken(direct), true
	}

	for _, key := range []string{"token", "data"} {
		if raw, ok := asObject[key]; ok {
			if tok, ok := parseUploadToken(raw); ok {
				return tok, true
			}
		}
	}

	for _, raw := range asObject {
		var candidate uploadToken
		if err := json.Unmarshal(raw, &candidate); err == nil && (candidate.AccessKeyID != "" || candidate.SecurityToken != "") {
			return toOSSToken(candidate), true
		}
	}

	return ossUploadToken{}, false
}

func toOSSToken(u uploadToken) ossUploadToken {
	return ossUploadToken{
		Endpoint:        u.Endpoint,
		AccessKeyID:     u.AccessKeyID,
		AccessKeySecret: u.accessKeySecret(),
		SecurityToken:   u.SecurityToken,
	}
}

// extractCallbackPair looks for data.callback (array or single object),
// trying direct callback/callback_var keys first, then a nested
// value/Value wrapper with callback/Callback and
// callback_var/callbackVar/CallbackVar key variants.
func extractCallbackPair(initData map[string]interface{}) (string, string, bool) {
	raw, ok := initData["callback"]
	if !ok {
		return "", "", false
	}

	var candidates []map[string]interface{}
	switch v := raw.(type) {
	case map[string]interface{}:
		candidates = []map[string]interface{}{v}
	case []interface{}:
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				candidates = append(candidates, m)
			}
		}
	default:
		return "", "", false
	}

	for _, m := range candidates {
		if cb, cbVar, ok := extractCallbackFields(m); ok {
			return cb, cbVar, true
		}
		for _, wrapKey := range []string{"value", "Value"} {
			if wrapped, ok := m[wrapKey].(map[string]interface{}); ok {
				if cb, cbVar, ok := extractCallbackFields(wrapped); ok {
					return cb, cbVar, true
				}
			}
		}
	}

	return "", "", false
}

func extractCallbackFields(m map[string]interface{}) (string, string, bool) {
	cb, ok := stringField(m, "callback", "Callback")
	if !ok {
		return "", "", false
	}
	cbVar, _ := stringField(m, "callback_var", "callbackVar", "CallbackVar")
	return cb, cbVar, true
}

func stringField(m map[string]interface{}, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

func initFieldString(data map[string]interface{}, keys ...string) string {
	s, _ := stringField(data, keys...)
	return s
}

func initFieldInt(data map[string]interface{}, key string) int64 {
	v, ok := data[key]
	if !ok {
		return 0
	}
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	default:
		return 0
	}
}

// parseSignCheckRange parses the "start-end" byte range the provider
// requests for a sign-check re-attempt.
func parseSignCheckRange(s string) (int64, int64, bool) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	start, err1 := strconv.ParseInt(parts[0], 10, 64)
	end, err2 := strconv.ParseInt(parts[1], 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return start, end, true
}

func sha1Hex(b []byte) string {
	sum := sha1.Sum(b) //nolint:gosec
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
