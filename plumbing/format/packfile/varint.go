package packfile

import "io"

// encodeTypeAndSize writes the pack object header: the high 4 bits of the
// first byte select a continuation flag plus 3 type bits and the low 4
// size bits; further size bits follow 7-at-a-time, little-endian, each
// byte's high bit meaning "more follows" (spec §4.8, "Object header in
// pack").
func encodeTypeAndSize(w io.Writer, t int, size uint64) error {
	first := byte(size&0x0f) | byte(t<<4)
	size >>= 4
	if size != 0 {
		first |= 0x80
	}
	if _, err := w.Write([]byte{first}); err != nil {
		return err
	}
	for size != 0 {
		b := byte(size & 0x7f)
		size >>= 7
		if size != 0 {
			b |= 0x80
		}
		if _, err := w.Write([]byte{b}); err != nil {
			return err
		}
	}
	return nil
}

func decodeTypeAndSize(r io.ByteReader) (t int, size uint64, err error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, 0, err
	}
	t = int(b>>4) & 0x07
	size = uint64(b & 0x0f)
	shift := uint(4)
	for b&0x80 != 0 {
		b, err = r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		size |= uint64(b&0x7f) << shift
		shift += 7
	}
	return t, size, nil
}

// encodeLEB128 writes a plain little-endian base-128 varint, 7 bits per
// byte, continuation in the high bit. Used for delta header source/target
// sizes (spec §4.8, "Delta encoding").
func encodeLEB128(w io.Writer, v uint64) error {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		if _, err := w.Write([]byte{b}); err != nil {
			return err
		}
		if v == 0 {
			return nil
		}
	}
}

func decodeLEB128(r io.ByteReader) (uint64, error) {
	var v uint64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
		shift += 7
	}
}

// encodeOFSOffset writes the distance-to-base encoding used by OFS_DELTA:
// big-endian 7-bit groups where each continuation byte's accumulated value
// gets offset by (1<<7), per git's pack-format.txt (spec §4.8, "Object
// header in pack").
func encodeOFSOffset(w io.Writer, offset int64) error {
	var buf [10]byte
	i := len(buf)
	i--
	buf[i] = byte(offset & 0x7f)
	offset >>= 7
	for offset != 0 {
		offset--
		i--
		buf[i] = byte(offset&0x7f) | 0x80
		offset >>= 7
	}
	_, err := w.Write(buf[i:])
	return err
}

func decodeOFSOffset(r io.ByteReader) (int64, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	offset := int64(b & 0x7f)
	for b&0x80 != 0 {
		b, err = r.ReadByte()
		if err != nil {
			return 0, err
		}
		offset++
		offset = (offset << 7) | int64(b&0x7f)
	}
	return offset, nil
}
