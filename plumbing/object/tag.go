package object

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/kirdyuk/govcs/plumbing"
	"github.com/kirdyuk/govcs/storage"
)

// Tag is an annotated tag object: a named, signed-or-not pointer to another
// object plus a message (spec §3, "Tag"). Lightweight tags have no Tag
// object at all — they are plain refs, handled entirely by the refs layer.
type Tag struct {
	s storage.EncodedObjectStorer

	Hash       plumbing.Hash
	Name       string
	TargetHash plumbing.Hash
	TargetType plumbing.ObjectType
	Tagger     Signature
	Message    string
}

func (t *Tag) ID() plumbing.Hash         { return t.Hash }
func (t *Tag) Type() plumbing.ObjectType { return plumbing.TagObject }

// Target decodes and returns the tagged object.
func (t *Tag) Target() (Object, error) {
	eo, err := t.s.EncodedObject(t.TargetType, t.TargetHash)
	if err != nil {
		return nil, err
	}
	return DecodeObject(t.s, eo)
}

func (t *Tag) Decode(o plumbing.EncodedObject) error {
	if o.Type() != plumbing.TagObject {
		return plumbing.ErrInvalidType
	}
	r, err := o.Reader()
	if err != nil {
		return err
	}
	defer r.Close()

	t.Hash = o.Hash()

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("%w: %v", plumbing.ErrMalformedObject, err)
		}
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			break
		}

		sp := strings.IndexByte(line, ' ')
		if sp == -1 {
			return fmt.Errorf("%w: malformed tag header %q", plumbing.ErrMalformedObject, line)
		}
		key, value := line[:sp], line[sp+1:]

		switch key {
		case "object":
			h, err := plumbing.FromHex(value)
			if err != nil {
				return fmt.Errorf("%w: bad object hash", plumbing.ErrMalformedObject)
			}
			t.TargetHash = h
		case "type":
			ty, err := plumbing.ParseObjectType(value)
			if err != nil {
				return fmt.Errorf("%w: %v", plumbing.ErrMalformedObject, err)
			}
			t.TargetType = ty
		case "tag":
			t.Name = value
		case "tagger":
			t.Tagger.Decode([]byte(value))
		}

		if err == io.EOF {
			break
		}
	}

	msg, err := io.ReadAll(br)
	if err != nil {
		return err
	}
	t.Message = string(msg)
	return nil
}

func (t *Tag) Encode(o plumbing.EncodedObject) error {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "object %s\n", t.TargetHash.String())
	fmt.Fprintf(&buf, "type %s\n", t.TargetType.String())
	fmt.Fprintf(&buf, "tag %s\n", t.Name)
	buf.WriteString("tagger ")
	t.Tagger.Encode(&buf)
	buf.WriteByte('\n')
	buf.WriteByte('\n')
	buf.WriteString(t.Message)

	o.SetSize(int64(buf.Len()))
	w, err := o.Writer()
	if err != nil {
		return err
	}
	defer w.Close()
	_, err = w.Write(buf.Bytes())
	if err == nil {
		t.Hash = o.Hash()
	}
	return err
}
