package packp

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/kirdyuk/govcs/plumbing"
	"github.com/kirdyuk/govcs/plumbing/format/pktline"
)

// AdvRefs is the parsed response of GET <url>/info/refs?service=... (spec
// §4.9, "Ref advertisement").
type AdvRefs struct {
	Service      string
	Head         plumbing.ReferenceName // resolved from the symref capability, if present
	References   map[plumbing.ReferenceName]plumbing.Hash
	Capabilities *Capabilities
}

// ErrEmptyAdvertisement is returned when the server advertises no refs at
// all (an empty repository), signalled by a single "0000...capabilities^{}"
// zero-id line.
var ErrEmptyAdvertisement = fmt.Errorf("packp: empty ref advertisement")

const zeroHexHash = "0000000000000000000000000000000000000000"

// DecodeAdvRefs parses the service-announcement pkt-line, the flush that
// follows it, and the per-ref lines up to the terminating flush.
func DecodeAdvRefs(r io.Reader) (*AdvRefs, error) {
	br := bufio.NewReader(r)

	_, first, err := pktline.ReadPacket(br)
	if err != nil {
		return nil, err
	}
	service := strings.TrimSpace(strings.TrimPrefix(string(first), "# service="))

	if _, _, err := pktline.ReadPacket(br); err != nil && err != io.EOF {
		return nil, err
	}

	adv := &AdvRefs{
		Service:      service,
		References:   make(map[plumbing.ReferenceName]plumbing.Hash),
		Capabilities: NewCapabilities(),
	}

	first_ref := true
	for {
		n, payload, err := pktline.ReadPacket(br)
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		if n == pktline.Flush {
			break
		}

		line := strings.TrimRight(string(payload), "\n")
		if first_ref {
			first_ref = false
			if nul := strings.IndexByte(line, 0); nul != -1 {
				adv.Capabilities.Decode(line[nul+1:])
				line = line[:nul]
			}
		}

		sp := strings.IndexByte(line, ' ')
		if sp == -1 {
			continue
		}
		hash, name := line[:sp], line[sp+1:]
		if hash == zeroHexHash && name == "capabilities^{}" {
			continue
		}
		h, err := plumbing.FromHex(hash)
		if err != nil {
			return nil, fmt.Errorf("packp: bad ref hash %q: %w", hash, err)
		}
		adv.References[plumbing.ReferenceName(name)] = h
	}

	if len(adv.References) == 0 {
		return adv, ErrEmptyAdvertisement
	}

	if sym := adv.Capabilities.SymbolicReference("HEAD"); sym != "" {
		adv.Head = plumbing.ReferenceName(sym)
	}

	return adv, nil
}
