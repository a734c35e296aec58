package open115

import (
	"fmt"
	"strings"

	"github.com/restic115/gateway/pkg/e"
)

// FileType is the restic object kind, matching spec's RestObject.Kind.
type FileType int

const (
	TypeConfig FileType = iota
	TypeData
	TypeKeys
	TypeLocks
	TypeSnapshots
	TypeIndex
)

func (t FileType) String() string {
	switch t {
	case TypeConfig:
		return "config"
	case TypeData:
		return "data"
	case TypeKeys:
		return "keys"
	case TypeLocks:
		return "locks"
	case TypeSnapshots:
		return "snapshots"
	case TypeIndex:
		return "index"
	default:
		return "unknown"
	}
}

func (t FileType) isConfig() bool { return t == TypeConfig }

// ParseFileType matches the restic path segment exactly (lowercase,
// no aliases).
func ParseFileType(s string) (FileType, error) {
	switch s {
	case "config":
		return TypeConfig, nil
	case "data":
		return TypeData, nil
	case "keys":
		return TypeKeys, nil
	case "locks":
		return TypeLocks, nil
	case "snapshots":
		return TypeSnapshots, nil
	case "index":
		return TypeIndex, nil
	default:
		return 0, fmt.Errorf("%w: unknown object type %q", e.ErrBadRequest, s)
	}
}

// allTypedSubdirs is the canonical subtree init_repository creates under
// the repository root, excluding config, which lives at the root itself.
var allTypedSubdirs = []FileType{TypeData, TypeKeys, TypeLocks, TypeSnapshots, TypeIndex}

// shardPrefix extracts the 2-hex shard prefix used to cap fan-out under
// data/. Names shorter than 2 characters use themselves as the whole
// prefix, matching the reference implementation's length-clamped slice.
func shardPrefix(name string) string {
	if len(name) <= 2 {
		return name
	}
	return name[:2]
}

// namespace translates restic object identifiers into provider folder
// paths, holding no state beyond the immutable repository root.
type namespace struct {
	repoPath string
}

func newNamespace(repoPath string) *namespace {
	return &namespace{repoPath: strings.TrimRight(repoPath, "/")}
}

// typeDirPath returns the provider-side directory that directly
// contains objects of the given type. config resolves to the repository
// root itself — it is never a subdirectory.
func (n *namespace) typeDirPath(t FileType) string {
	if t.isConfig() {
		return n.repoPath
	}
	return n.repoPath + "/" + t.String()
}

// dataShardDirPath returns the directory that holds a single data
// object, i.e. <root>/data/<name[0:2]>.
func (n *namespace) dataShardDirPath(name string) string {
	return n.typeDirPath(TypeData) + "/" + shardPrefix(name)
}

// objectDirPath returns the directory an object of type t and name
// lives directly under. For TypeData that is the shard directory; for
// every other type it is the type's own directory (or the root, for
// config).
func (n *namespace) objectDirPath(t FileType, name string) string {
	if t == TypeData {
		return n.dataShardDirPath(name)
	}
	return n.typeDirPath(t)
}

// objectName is the provider-side file name for an object. config is
// literally "config"; everything else uses the restic-supplied name
// verbatim (already lowercase hex by convention, but not validated here
// — that is the REST adapter's job).
func (n *namespace) objectName(t FileType, name string) string {
	if t.isConfig() {
		return "config"
	}
	return name
}
