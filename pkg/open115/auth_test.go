package open115

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestUpsertEnvVarLine(t *testing.T) {
	tables := []struct {
		name     string
		line     string
		key      string
		value    string
		wantLine string
		wantOK   bool
	}{
		{
			name:     "exact match no whitespace",
			line:     "OPEN115_ACCESS_TOKEN=old",
			key:      "OPEN115_ACCESS_TOKEN",
			value:    "new",
			wantLine: "OPEN115_ACCESS_TOKEN=new",
			wantOK:   true,
		},
		{
			name:     "match with surrounding whitespace is normalized away",
			line:     "  OPEN115_ACCESS_TOKEN  =  old  ",
			key:      "OPEN115_ACCESS_TOKEN",
			value:    "new",
			wantLine: "OPEN115_ACCESS_TOKEN=new",
			wantOK:   true,
		},
		{
			name:   "comment line untouched",
			line:   "# OPEN115_ACCESS_TOKEN=old",
			key:    "OPEN115_ACCESS_TOKEN",
			value:  "new",
			wantOK: false,
		},
		{
			name:   "unrelated key untouched",
			line:   "OTHER_VAR=old",
			key:    "OPEN115_ACCESS_TOKEN",
			value:  "new",
			wantOK: false,
		},
		{
			name:   "prefix without equals is unrelated",
			line:   "OPEN115_ACCESS_TOKEN_EXTRA=old",
			key:    "OPEN115_ACCESS_TOKEN",
			value:  "new",
			wantOK: false,
		},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			got, ok := upsertEnvVarLine(table.line, table.key, table.value)
			if ok != table.wantOK {
				t.Fatalf("ok = %v, want %v", ok, table.wantOK)
			}
			if ok && got != table.wantLine {
				t.Fatalf("line = %q, want %q", got, table.wantLine)
			}
		})
	}
}

func TestPersistTokens(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")

	initial := "# comment\nOPEN115_ACCESS_TOKEN=old-access\nUNRELATED=1\n"
	if err := os.WriteFile(path, []byte(initial), 0o600); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	tm := &TokenManager{persistPath: path}
	if err := tm.persistTokens("new-access", "new-refresh"); err != nil {
		t.Fatalf("persistTokens: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}

	want := "# comment\nOPEN115_ACCESS_TOKEN=new-access\nUNRELATED=1\nOPEN115_REFRESH_TOKEN=new-refresh\n"
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Fatalf("content mismatch (-want +got):\n%s", diff)
	}
}

func TestParseBoolish(t *testing.T) {
	tables := []struct {
		in     string
		want   bool
		wantOK bool
	}{
		{"true", true, true},
		{" YES ", true, true},
		{"0", false, true},
		{"off", false, true},
		{"maybe", false, false},
		{"", false, false},
	}

	for _, table := range tables {
		got, ok := parseBoolish(table.in)
		if ok != table.wantOK || (ok && got != table.want) {
			t.Errorf("parseBoolish(%q) = (%v, %v), want (%v, %v)", table.in, got, ok, table.want, table.wantOK)
		}
	}
}
