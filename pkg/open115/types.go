package open115

import (
	"encoding/json"
	"strings"
)

// polyState accepts the provider's "state" field in whatever shape it comes
// back as: real bool, 0/1, or a stringified "true"/"0". Unrecognised shapes
// decode to false rather than erroring, since a refresh failure response
// commonly omits the field entirely.
type polyState bool

func (p *polyState) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = polyState(parseState(v))
	return nil
}

func parseState(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true":
			return true
		default:
			return false
		}
	default:
		return false
	}
}

// envelope is the common shape of every 115 Open Platform JSON response:
// {state, code, message, data}. data is left as RawMessage because its
// shape varies by endpoint (and, for get_token/upload_init, varies within
// the same endpoint depending on account and upload path).
type envelope struct {
	State   polyState       `json:"state"`
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	// Count is only meaningful on the paginated listing endpoint; every
	// other endpoint either omits it or leaves it zero.
	Count int64 `json:"count"`
}

func (e envelope) ok() bool {
	return bool(e.State) && e.Code == 0
}

// fileListEntry mirrors the provider's terse field names: fid (file id),
// pid (parent id), fc ("0" for folder, non-zero for file), fn (name),
// fs (size), pc (pick_code).
type fileListEntry struct {
	FID  string `json:"fid"`
	PID  string `json:"pid"`
	FC   string `json:"fc"`
	Name string `json:"fn"`
	Size int64  `json:"fs"`
	PC   string `json:"pc"`
	SHA1 string `json:"sha1"`
}

func (f fileListEntry) isDir() bool { return f.FC == "0" }

// searchEntry mirrors /open/ufile/search's response shape, which spells
// out its field names in full rather than using the listing endpoint's
// terse fid/pid/fc/fn/fs/pc. The two endpoints are not interchangeable:
// decoding a search response as fileListEntry leaves every field empty.
type searchEntry struct {
	FileID       string `json:"file_id"`
	FileName     string `json:"file_name"`
	ParentID     string `json:"parent_id"`
	PickCode     string `json:"pick_code"`
	FileCategory string `json:"file_category"`
	SHA1         string `json:"sha1"`
}

// isDir reports whether the entry is a folder: "0" per the search
// endpoint's documented file_category convention.
func (s searchEntry) isDir() bool { return s.FileCategory == "0" }

// mkdirData is the /open/folder/add success payload.
type mkdirData struct {
	FileName string `json:"file_name"`
	FileID   string `json:"file_id"`
}

// uploadToken is the OSS STS-style credential returned by get_token. The
// provider's docs and SDKs disagree on the exact key for AccessKeySecret;
// AccessKeySecrett (double t) has been observed in the wild, so it is
// tolerated as a fallback.
type uploadToken struct {
	Endpoint            string `json:"endpoint"`
	AccessKeyID         string `json:"AccessKeyId"`
	AccessKeySecret     string `json:"AccessKeySecret"`
	AccessKeySecretTypo string `json:"AccessKeySecrett"`
	SecurityToken       string `json:"SecurityToken"`
}

func (u uploadToken) accessKeySecret() string {
	if u.AccessKeySecret != "" {
		return u.AccessKeySecret
	}
	return u.AccessKeySecretTypo
}

// ossCallbackData is the authoritative record of a just-completed upload,
// returned inside the body of the OSS PutObject response.
type ossCallbackData struct {
	PickCode string `json:"pick_code"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
	FileID   string `json:"file_id"`
	SHA1     string `json:"sha1"`
	CID      string `json:"cid"`
}

type ossCallbackResult struct {
	envelope
	Data *ossCallbackData `json:"data"`
}

// refreshTokenData is the payload of a successful token refresh.
type refreshTokenData struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// downURLEntry is the per-file_id value inside a downurl response's data
// object: {"<fid>": {"url": {"url": "https://..."}}}.
type downURLEntry struct {
	URL struct {
		URL string `json:"url"`
	} `json:"url"`
}
