package packfile

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/kirdyuk/govcs/plumbing"
)

type PackfileSuite struct {
	suite.Suite
}

func TestPackfileSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(PackfileSuite))
}

func (s *PackfileSuite) TestLEB128RoundTrip() {
	for _, v := range []uint64{0, 1, 127, 128, 300, 1 << 20, 1 << 40} {
		var buf bytes.Buffer
		s.Require().NoError(encodeLEB128(&buf, v))
		got, err := decodeLEB128(bytes.NewReader(buf.Bytes()))
		s.Require().NoError(err)
		s.Equal(v, got, "value %d", v)
	}
}

func (s *PackfileSuite) TestTypeAndSizeRoundTrip() {
	cases := []struct {
		typ  int
		size uint64
	}{
		{int(plumbing.BlobObject), 0},
		{int(plumbing.CommitObject), 15},
		{int(plumbing.TreeObject), 1 << 20},
	}
	for _, c := range cases {
		var buf bytes.Buffer
		s.Require().NoError(encodeTypeAndSize(&buf, c.typ, c.size))
		gotType, gotSize, err := decodeTypeAndSize(bytes.NewReader(buf.Bytes()))
		s.Require().NoError(err)
		s.Equal(c.typ, gotType)
		s.Equal(c.size, gotSize)
	}
}

func (s *PackfileSuite) TestOFSOffsetRoundTrip() {
	for _, off := range []int64{0, 1, 127, 128, 16384, 1 << 30} {
		var buf bytes.Buffer
		s.Require().NoError(encodeOFSOffset(&buf, off))
		got, err := decodeOFSOffset(bytes.NewReader(buf.Bytes()))
		s.Require().NoError(err)
		s.Equal(off, got)
	}
}

func (s *PackfileSuite) TestCreateApplyDeltaRoundTrip() {
	base := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 20)
	target := append(append([]byte{}, base...), []byte(" and then some extra tail content")...)
	target = append(target[:50], append([]byte("INSERTED-MIDDLE-CONTENT-HERE"), target[50:]...)...)

	delta := CreateDelta(base, target)
	got, err := ApplyDelta(base, delta)
	s.Require().NoError(err)
	s.Equal(target, got)
}

func (s *PackfileSuite) TestApplyDeltaRejectsBaseSizeMismatch() {
	base := []byte("hello world")
	delta := CreateDelta(base, []byte("hello world!"))
	_, err := ApplyDelta([]byte("different base length"), delta)
	s.ErrorIs(err, plumbing.ErrMalformedPack)
}

func (s *PackfileSuite) TestApplyDeltaOnEmptyTarget() {
	base := []byte("some base content")
	delta := CreateDelta(base, nil)
	got, err := ApplyDelta(base, delta)
	s.Require().NoError(err)
	s.Empty(got)
}

func (s *PackfileSuite) TestEncodeDecodeRoundTripLiteralObjects() {
	blob := []byte("hello, pack!")
	blobHash := plumbing.NewHasher(plumbing.BlobObject, int64(len(blob)))
	blobHash.Write(blob)

	entries := []ObjectEntry{
		{Hash: blobHash.Sum(), Type: plumbing.BlobObject, Content: blob},
	}

	var buf bytes.Buffer
	packHash, idx, err := Encode(&buf, entries)
	s.Require().NoError(err)
	s.False(packHash.IsZero())
	s.Equal(1, len(idx.Entries()))

	objs, decodedHash, err := Decode(bytes.NewReader(buf.Bytes()), nil)
	s.Require().NoError(err)
	s.Equal(packHash, decodedHash)
	s.Require().Len(objs, 1)
	s.Equal(plumbing.BlobObject, objs[0].Type)
	s.Equal(blob, objs[0].Content)
}

func (s *PackfileSuite) TestEncodeDecodeResolvesRefDelta() {
	base := []byte("base content shared across versions, long enough to delta well")
	target := append(append([]byte{}, base...), []byte(" plus a suffix")...)

	baseHash := plumbing.NewHasher(plumbing.BlobObject, int64(len(base)))
	baseHash.Write(base)
	baseH := baseHash.Sum()

	targetHash := plumbing.NewHasher(plumbing.BlobObject, int64(len(target)))
	targetHash.Write(target)
	targetH := targetHash.Sum()

	delta := CreateDelta(base, target)

	entries := []ObjectEntry{
		{Hash: baseH, Type: plumbing.BlobObject, Content: base},
		{Hash: targetH, Type: plumbing.BlobObject, Content: delta, BaseHash: baseH},
	}

	var buf bytes.Buffer
	_, _, err := Encode(&buf, entries)
	s.Require().NoError(err)

	objs, _, err := Decode(bytes.NewReader(buf.Bytes()), nil)
	s.Require().NoError(err)
	s.Require().Len(objs, 2)

	byHash := make(map[plumbing.Hash]Object, len(objs))
	for _, o := range objs {
		byHash[o.Hash] = o
	}
	resolved, ok := byHash[targetH]
	s.Require().True(ok)
	s.Equal(target, resolved.Content)
}

func (s *PackfileSuite) TestDecodeRejectsBadTrailerChecksum() {
	entries := []ObjectEntry{{Hash: plumbing.NewHash("0000000000000000000000000000000000000001"), Type: plumbing.BlobObject, Content: []byte("x")}}
	var buf bytes.Buffer
	_, _, err := Encode(&buf, entries)
	s.Require().NoError(err)

	corrupt := buf.Bytes()
	corrupt[len(corrupt)-1] ^= 0xff

	_, _, err = Decode(bytes.NewReader(corrupt), nil)
	s.ErrorIs(err, plumbing.ErrBadChecksum)
}
