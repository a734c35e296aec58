package restic

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/restic115/gateway/pkg/e"
)

func TestParseRange(t *testing.T) {
	tables := []struct {
		name          string
		header        string
		size          int64
		expectedRange ContentRange
		expectErr     error
	}{
		{
			name:          "simple range",
			header:        "bytes=0-15",
			size:          1048576,
			expectedRange: ContentRange{Start: 0, End: 15},
		},
		{
			name:          "open-ended range clamps to size",
			header:        "bytes=10-",
			size:          20,
			expectedRange: ContentRange{Start: 10, End: 19},
		},
		{
			name:          "suffix range",
			header:        "bytes=-5",
			size:          20,
			expectedRange: ContentRange{Start: 15, End: 19},
		},
		{
			name:          "suffix range larger than size clamps to 0",
			header:        "bytes=-100",
			size:          20,
			expectedRange: ContentRange{Start: 0, End: 19},
		},
		{
			name:      "missing prefix is malformed",
			header:    "0-15",
			size:      20,
			expectErr: e.ErrBadRequest,
		},
		{
			name:      "non-numeric is malformed",
			header:    "bytes=a-b",
			size:      20,
			expectErr: e.ErrBadRequest,
		},
		{
			name:      "zero size is always unsatisfiable",
			header:    "bytes=0-0",
			size:      0,
			expectErr: e.ErrRangeNotSatisfiable,
		},
		{
			name:      "start beyond size is unsatisfiable",
			header:    "bytes=25-30",
			size:      20,
			expectErr: e.ErrRangeNotSatisfiable,
		},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			got, err := ParseRange(table.header, table.size)
			if table.expectErr != nil {
				if !errors.Is(err, table.expectErr) {
					t.Fatalf("err = %v, want errors.Is(_, %v)", err, table.expectErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(table.expectedRange, got); diff != "" {
				t.Fatalf("range mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
