package plumbing

import "io"

// ObjectType tags the four object kinds plus the two delta pseudo-types used
// only inside a packfile (spec §3, §4.8).
type ObjectType int8

const (
	InvalidObject  ObjectType = 0
	CommitObject   ObjectType = 1
	TreeObject     ObjectType = 2
	BlobObject     ObjectType = 3
	TagObject      ObjectType = 4
	OFSDeltaObject ObjectType = 6
	REFDeltaObject ObjectType = 7

	AnyObject ObjectType = -1
)

func (t ObjectType) String() string {
	switch t {
	case CommitObject:
		return "commit"
	case TreeObject:
		return "tree"
	case BlobObject:
		return "blob"
	case TagObject:
		return "tag"
	case OFSDeltaObject:
		return "ofs-delta"
	case REFDeltaObject:
		return "ref-delta"
	case AnyObject:
		return "any"
	default:
		return "unknown"
	}
}

// Bytes returns the ASCII bytes of the type's name, as used in the hashed
// object header ("<type> <size>\0...").
func (t ObjectType) Bytes() []byte { return []byte(t.String()) }

// Valid reports whether t is one of the four storable object kinds.
func (t ObjectType) Valid() bool {
	return t == CommitObject || t == TreeObject || t == BlobObject || t == TagObject
}

// IsDelta reports whether t is one of the two in-pack delta pseudo-types.
func (t ObjectType) IsDelta() bool { return t == OFSDeltaObject || t == REFDeltaObject }

// ParseObjectType parses the ASCII name of an object type.
func ParseObjectType(s string) (ObjectType, error) {
	switch s {
	case "commit":
		return CommitObject, nil
	case "tree":
		return TreeObject, nil
	case "blob":
		return BlobObject, nil
	case "tag":
		return TagObject, nil
	case "ofs-delta":
		return OFSDeltaObject, nil
	case "ref-delta":
		return REFDeltaObject, nil
	}
	return InvalidObject, ErrInvalidType
}

// EncodedObject is the generic, storage-agnostic view of any git object:
// its hash, type, size, and a way to stream its content bytes either way.
// Loose storage, pack storage and the in-memory store all produce/consume
// values satisfying this interface.
type EncodedObject interface {
	Hash() Hash
	Type() ObjectType
	SetType(ObjectType)
	Size() int64
	SetSize(int64)
	Reader() (io.ReadCloser, error)
	Writer() (io.WriteCloser, error)
}

// DeltaObject is an EncodedObject that is still in delta form against a
// base; the object store resolves these internally and a caller of Read
// never observes one directly.
type DeltaObject interface {
	EncodedObject
	BaseHash() Hash
	ActualHash() Hash
	ActualSize() int64
}
