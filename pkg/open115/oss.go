package open115

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // required by OSS's V1 signing scheme
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const ossOctetStreamContentType = "application/octet-stream"

// ossUploadToken is the STS-style credential needed to PUT an object
// directly to OSS with a server-side callback.
type ossUploadToken struct {
	Endpoint        string
	AccessKeyID     string
	AccessKeySecret string
	SecurityToken   string
}

// ossDate formats the current time the way OSS's V1 string-to-sign
// expects: an RFC1123-shaped GMT timestamp.
func ossDate(t time.Time) string {
	return t.UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT")
}

// ossObjectURL builds the virtual-hosted-style URL for bucket/object
// against the given endpoint, preferring "{bucket}.{host}/{object}"
// unless the host already carries that prefix.
func ossObjectURL(endpoint, bucket, object string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("open115: invalid oss endpoint %q: %w", endpoint, err)
	}
	host := u.Host
	if host == "" {
		host = u.Path
		u.Path = ""
	}
	if !strings.HasPrefix(host, bucket+".") {
		host = bucket + "." + host
	}
	u.Host = host
	u.Path = "/" + strings.TrimPrefix(object, "/")
	return u.String(), nil
}

// ossSignPut computes the Authorization header value for a PutObject
// call carrying x-oss-callback/x-oss-callback-var headers, using OSS's
// V1 HMAC-SHA1 scheme. callbackB64 and callbackVarB64 must already be
// base64-encoded, since the canonicalized-headers string is built from
// the encoded values, not the plaintext.
func ossSignPut(tok ossUploadToken, bucket, object, date, callbackB64, callbackVarB64 string) string {
	headers := map[string]string{
		"x-oss-callback":     callbackB64,
		"x-oss-callback-var": callbackVarB64,
	}
	if tok.SecurityToken != "" {
		headers["x-oss-security-token"] = tok.SecurityToken
	}

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var canonicalizedHeaders strings.Builder
	for _, k := range keys {
		canonicalizedHeaders.WriteString(strings.ToLower(k))
		canonicalizedHeaders.WriteString(":")
		canonicalizedHeaders.WriteString(strings.TrimSpace(headers[k]))
		canonicalizedHeaders.WriteString("\n")
	}

	canonicalizedResource := "/" + bucket + "/" + strings.TrimPrefix(object, "/")

	stringToSign := strings.Join([]string{
		http.MethodPut,
		"",
		ossOctetStreamContentType,
		date,
		canonicalizedHeaders.String() + canonicalizedResource,
	}, "\n")

	mac := hmac.New(sha1.New, []byte(tok.AccessKeySecret))
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return fmt.Sprintf("OSS %s:%s", tok.AccessKeyID, signature)
}

// ossPutRequest builds the signed HTTP request for an OSS PutObject
// call with callback. callback/callbackVar are plaintext; they are
// base64-encoded here before being used both as header values and as
// signature inputs.
func ossPutRequest(tok ossUploadToken, bucket, object, callback, callbackVar string, body io.Reader, size int64) (*http.Request, error) {
	target, err := ossObjectURL(tok.Endpoint, bucket, object)
	if err != nil {
		return nil, err
	}

	callbackB64 := base64.StdEncoding.EncodeToString([]byte(callback))
	callbackVarB64 := base64.StdEncoding.EncodeToString([]byte(callbackVar))
	date := ossDate(time.Now())

	req, err := http.NewRequest(http.MethodPut, target, body)
	if err != nil {
		return nil, err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", ossOctetStreamContentType)
	req.Header.Set("Date", date)
	req.Header.Set("x-oss-callback", callbackB64)
	req.Header.Set("x-oss-callback-var", callbackVarB64)
	if tok.SecurityToken != "" {
		req.Header.Set("x-oss-security-token", tok.SecurityToken)
	}
	req.Header.Set("Authorization", ossSignPut(tok, bucket, object, date, callbackB64, callbackVarB64))

	return req, nil
}
