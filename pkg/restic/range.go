package restic

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/restic115/gateway/pkg/e"
)

// ContentRange is a satisfiable, inclusive byte range resolved against a
// known object size.
type ContentRange struct {
	Start, End int64
}

// ParseRange parses a single Range header value in the forms
// bytes=S-E, bytes=S-, and bytes=-N against a known object size.
// A malformed header is e.ErrBadRequest (400); an unsatisfiable one
// (including any range against a zero-length object) is
// e.RangeError (416).
func ParseRange(header string, size int64) (ContentRange, error) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return ContentRange{}, fmt.Errorf("%w: range header missing %q prefix", e.ErrBadRequest, prefix)
	}
	spec := strings.TrimPrefix(header, prefix)

	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return ContentRange{}, fmt.Errorf("%w: malformed range %q", e.ErrBadRequest, header)
	}

	if size == 0 {
		return ContentRange{}, &e.RangeError{Size: size}
	}

	var start, end int64
	var err error

	if parts[0] == "" {
		// Suffix form: bytes=-N, the last N bytes of the object.
		if parts[1] == "" {
			return ContentRange{}, fmt.Errorf("%w: malformed range %q", e.ErrBadRequest, header)
		}
		n, perr := strconv.ParseInt(parts[1], 10, 64)
		if perr != nil {
			return ContentRange{}, fmt.Errorf("%w: malformed range %q", e.ErrBadRequest, header)
		}
		start = size - n
		if start < 0 {
			start = 0
		}
		end = size - 1
	} else {
		start, err = strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return ContentRange{}, fmt.Errorf("%w: malformed range %q", e.ErrBadRequest, header)
		}
		if parts[1] == "" {
			end = size - 1
		} else {
			end, err = strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return ContentRange{}, fmt.Errorf("%w: malformed range %q", e.ErrBadRequest, header)
			}
		}
	}

	if end > size-1 {
		end = size - 1
	}

	if start > end || start >= size {
		return ContentRange{}, &e.RangeError{Size: size}
	}

	return ContentRange{Start: start, End: end}, nil
}

// ContentRangeHeader formats the Content-Range header for a satisfiable
// range response.
func ContentRangeHeader(r ContentRange, size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// UnsatisfiableContentRangeHeader formats the Content-Range header for
// a 416 response.
func UnsatisfiableContentRangeHeader(size int64) string {
	return fmt.Sprintf("bytes */%d", size)
}
