package open115

import "testing"

func TestShardPrefix(t *testing.T) {
	tables := []struct {
		name string
		want string
	}{
		{"abcdef0123456789", "ab"},
		{"a", "a"},
		{"", ""},
	}

	for _, table := range tables {
		if got := shardPrefix(table.name); got != table.want {
			t.Errorf("shardPrefix(%q) = %q, want %q", table.name, got, table.want)
		}
	}
}

func TestNamespacePaths(t *testing.T) {
	ns := newNamespace("/restic-backup")

	if got, want := ns.typeDirPath(TypeConfig), "/restic-backup"; got != want {
		t.Errorf("config dir = %q, want %q", got, want)
	}
	if got, want := ns.typeDirPath(TypeKeys), "/restic-backup/keys"; got != want {
		t.Errorf("keys dir = %q, want %q", got, want)
	}
	if got, want := ns.dataShardDirPath("abcdef0123"), "/restic-backup/data/ab"; got != want {
		t.Errorf("data shard dir = %q, want %q", got, want)
	}
	if got, want := ns.objectName(TypeConfig, "whatever"), "config"; got != want {
		t.Errorf("config object name = %q, want %q", got, want)
	}
}

func TestParseFileType(t *testing.T) {
	valid := []string{"config", "data", "keys", "locks", "snapshots", "index"}
	for _, v := range valid {
		if _, err := ParseFileType(v); err != nil {
			t.Errorf("ParseFileType(%q) unexpected error: %v", v, err)
		}
	}
	if _, err := ParseFileType("bogus"); err == nil {
		t.Errorf("ParseFileType(bogus) expected error, got nil")
	}
}
