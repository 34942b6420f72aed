package packp

import (
	"fmt"
	"io"
	"strings"

	"github.com/kirdyuk/govcs/plumbing"
	"github.com/kirdyuk/govcs/plumbing/format/pktline"
)

// Command is one ref update sent to git-receive-pack: create (Old is
// zero), delete (New is zero), or update.
type Command struct {
	Name plumbing.ReferenceName
	Old  plumbing.Hash
	New  plumbing.Hash
}

// ReceivePackRequest is the update-commands preamble POSTed to
// git-receive-pack, followed directly by the pack data (spec §4.10).
type ReceivePackRequest struct {
	Commands     []Command
	Capabilities []string
}

// Encode writes the command list as pkt-lines (capabilities on the first
// line) terminated by a flush. The packfile bytes follow on the same
// stream, written separately by the caller.
func (r *ReceivePackRequest) Encode(w io.Writer) error {
	for i, c := range r.Commands {
		line := fmt.Sprintf("%s %s %s", zeroIfEmpty(c.Old), zeroIfEmpty(c.New), c.Name)
		if i == 0 && len(r.Capabilities) > 0 {
			line += "\x00" + strings.Join(r.Capabilities, " ")
		}
		if err := pktline.WritePacketString(w, line+"\n"); err != nil {
			return err
		}
	}
	return pktline.WriteFlush(w)
}

func zeroIfEmpty(h plumbing.Hash) string {
	if h.IsZero() {
		return zeroHexHash
	}
	return h.String()
}
