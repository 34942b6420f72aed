package packp

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/kirdyuk/govcs/plumbing"
	"github.com/kirdyuk/govcs/plumbing/format/pktline"
)

// UploadPackRequest is the want/have/done negotiation body POSTed to
// git-upload-pack (spec §4.9, §4.10).
type UploadPackRequest struct {
	Wants        []plumbing.Hash
	Haves        []plumbing.Hash
	Capabilities []string
	Depth        int // 0 means unbounded
}

// Encode writes the request as framed pkt-lines, capabilities on the first
// want line only, a flush, then haves terminated by "done".
func (r *UploadPackRequest) Encode(w io.Writer) error {
	for i, h := range r.Wants {
		line := fmt.Sprintf("want %s", h)
		if i == 0 && len(r.Capabilities) > 0 {
			line += " " + strings.Join(r.Capabilities, " ")
		}
		if err := pktline.WritePacketString(w, line+"\n"); err != nil {
			return err
		}
	}
	if r.Depth > 0 {
		if err := pktline.WritePacketString(w, fmt.Sprintf("deepen %d\n", r.Depth)); err != nil {
			return err
		}
	}
	if err := pktline.WriteFlush(w); err != nil {
		return err
	}
	for _, h := range r.Haves {
		if err := pktline.WritePacketString(w, fmt.Sprintf("have %s\n", h)); err != nil {
			return err
		}
	}
	if err := pktline.WritePacketString(w, "done\n"); err != nil {
		return err
	}
	return nil
}

// ServerResponse is the NAK/ACK preamble upload-pack sends before the
// packfile (or sideband-framed packfile) data.
type ServerResponse struct {
	ACKs []plumbing.Hash
}

// DecodeServerResponse reads ACK/NAK lines until the first one that isn't,
// leaving the reader positioned at the start of the (possibly
// sideband-multiplexed) pack data.
func DecodeServerResponse(r *bufio.Reader) (*ServerResponse, error) {
	resp := &ServerResponse{}
	for {
		n, payload, err := pktline.ReadPacket(r)
		if err != nil {
			return nil, err
		}
		if n <= 0 {
			continue
		}
		line := strings.TrimSpace(string(payload))
		if line == "NAK" {
			return resp, nil
		}
		if strings.HasPrefix(line, "ACK ") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				if h, err := plumbing.FromHex(fields[1]); err == nil {
					resp.ACKs = append(resp.ACKs, h)
				}
			}
			continue
		}
		return resp, nil
	}
}

// ReportStatus is the parsed reply to git-receive-pack (spec §4.10, "ok/ng
// push response").
type ReportStatus struct {
	UnpackOK bool
	UnpackError string
	Commands map[plumbing.ReferenceName]string // "ok" or the ng message
}

// DecodeReportStatus parses the report-status pkt-lines: "unpack ok|<msg>"
// followed by one "ok <ref>" / "ng <ref> <msg>" per update command.
func DecodeReportStatus(r io.Reader) (*ReportStatus, error) {
	status := &ReportStatus{Commands: make(map[plumbing.ReferenceName]string)}
	br := bufio.NewReader(r)

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

		switch {
		case strings.HasPrefix(line, "unpack "):
			msg := strings.TrimPrefix(line, "unpack ")
			status.UnpackOK = msg == "ok"
			if !status.UnpackOK {
				status.UnpackError = msg
			}
		case strings.HasPrefix(line, "ok "):
			status.Commands[plumbing.ReferenceName(strings.TrimPrefix(line, "ok "))] = "ok"
		case strings.HasPrefix(line, "ng "):
			rest := strings.TrimPrefix(line, "ng ")
			sp := strings.IndexByte(rest, ' ')
			if sp == -1 {
				status.Commands[plumbing.ReferenceName(rest)] = "ng"
				continue
			}
			status.Commands[plumbing.ReferenceName(rest[:sp])] = rest[sp+1:]
		}
	}

	return status, nil
}
