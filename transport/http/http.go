// Package http implements the Smart HTTP v1 client: ref discovery,
// fetch-pack and push-pack over plain net/http, plus URL normalization and
// credential handling (spec §4.10, §6 "Wire protocol").
package http

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/kirdyuk/govcs/internal/trace"
	"github.com/kirdyuk/govcs/plumbing"
	"github.com/kirdyuk/govcs/plumbing/format/packfile"
	"github.com/kirdyuk/govcs/plumbing/format/packp"
	"github.com/kirdyuk/govcs/plumbing/format/pktline"
	"github.com/kirdyuk/govcs/storage"
)

const (
	uploadPackService  = "git-upload-pack"
	receivePackService = "git-receive-pack"
)

// AuthMethod sets whatever credentials a request needs before it is sent.
type AuthMethod interface {
	SetAuth(r *http.Request)
}

// BasicAuth sends credentials via the HTTP Basic scheme, the form GitHub
// and friends expect for HTTPS personal-access-token authentication.
type BasicAuth struct {
	Username, Password string
}

func (a *BasicAuth) SetAuth(r *http.Request) { r.SetBasicAuth(a.Username, a.Password) }

// TokenAuth sends credentials via a bearer Authorization header.
type TokenAuth struct {
	Token string
}

func (a *TokenAuth) SetAuth(r *http.Request) {
	r.Header.Set("Authorization", "Bearer "+a.Token)
}

// AuthFromEnvironment builds a TokenAuth from GITHUB_TOKEN or <TOOL>_TOKEN
// (spec §6, "Environment variables").
func AuthFromEnvironment(tool string) AuthMethod {
	if tok := os.Getenv(strings.ToUpper(tool) + "_TOKEN"); tok != "" {
		return &TokenAuth{Token: tok}
	}
	if tok := os.Getenv("GITHUB_TOKEN"); tok != "" {
		return &TokenAuth{Token: tok}
	}
	return nil
}

// NormalizeURL rewrites an SSH-style "user@host:path" remote into an HTTPS
// URL and appends a ".git" suffix if missing (spec §6, "URL normalization").
func NormalizeURL(raw string) string {
	if at := strings.Index(raw, "@"); at != -1 && !strings.Contains(raw, "://") {
		if colon := strings.Index(raw[at:], ":"); colon != -1 {
			host := raw[at+1 : at+colon]
			path := raw[at+colon+1:]
			raw = "https://" + host + "/" + path
		}
	}
	if !strings.HasSuffix(raw, ".git") {
		raw += ".git"
	}
	return raw
}

// Client is a Smart HTTP v1 client bound to one remote URL.
type Client struct {
	URL  string
	Auth AuthMethod
	HTTP *http.Client
}

// NewClient returns a Client, normalizing url and defaulting to
// http.DefaultClient.
func NewClient(rawURL string, auth AuthMethod) *Client {
	return &Client{URL: NormalizeURL(rawURL), Auth: auth, HTTP: http.DefaultClient}
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", "govcs/1.0")
	if c.Auth != nil {
		c.Auth.SetAuth(req)
	}
	trace.Transport.Printf("%s %s", req.Method, req.URL)
	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		defer res.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("transport/http: %s: %d %s", req.URL, res.StatusCode, string(body))
	}
	return res, nil
}

// DiscoverRefs implements GET <url>/info/refs?service=<service> (spec
// §4.10, "discover_refs").
func (c *Client) DiscoverRefs(forPush bool) (*packp.AdvRefs, error) {
	service := uploadPackService
	if forPush {
		service = receivePackService
	}

	u := c.URL + "/info/refs?service=" + service
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "*/*")

	res, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	return packp.DecodeAdvRefs(res.Body)
}

// FetchPack implements git-upload-pack negotiation and writes every
// delta-resolved object from the returned pack into s (spec §4.10,
// "fetch_pack").
func (c *Client) FetchPack(s storage.EncodedObjectStorer, wants, haves []plumbing.Hash) error {
	reqBody := &bytes.Buffer{}
	upReq := &packp.UploadPackRequest{
		Wants:        wants,
		Haves:        haves,
		Capabilities: []string{"side-band-64k", "ofs-delta"},
	}
	if err := upReq.Encode(reqBody); err != nil {
		return err
	}

	u := c.URL + "/" + uploadPackService
	req, err := http.NewRequest(http.MethodPost, u, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-git-upload-pack-request")
	req.Header.Set("Accept", "application/x-git-upload-pack-result")
	req.ContentLength = int64(reqBody.Len())

	res, err := c.do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	packData, err := demultiplexSideband(res.Body)
	if err != nil {
		return err
	}

	resolve := func(h plumbing.Hash) (plumbing.ObjectType, []byte, bool) {
		if s.HasEncodedObject(h) != nil {
			return 0, nil, false
		}
		o, err := s.EncodedObject(plumbing.AnyObject, h)
		if err != nil {
			return 0, nil, false
		}
		r, err := o.Reader()
		if err != nil {
			return 0, nil, false
		}
		defer r.Close()
		b, err := io.ReadAll(r)
		if err != nil {
			return 0, nil, false
		}
		return o.Type(), b, true
	}

	objects, _, err := packfile.Decode(bytes.NewReader(packData), resolve)
	if err != nil {
		return err
	}

	for _, o := range objects {
		eo := s.NewEncodedObject()
		eo.SetType(o.Type)
		eo.SetSize(int64(len(o.Content)))
		w, err := eo.Writer()
		if err != nil {
			return err
		}
		if _, err := w.Write(o.Content); err != nil {
			w.Close()
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
		if _, err := s.SetEncodedObject(eo); err != nil {
			return err
		}
	}
	return nil
}

// demultiplexSideband strips the NAK/ACK preamble and, if the server used
// side-band-64k, demultiplexes band 1 (pack data) from bands 2/3
// (progress/error) (spec §4.9, "Sideband-64k payload prefixes"). Progress
// text is discarded; an error band ends the read with an error.
func demultiplexSideband(r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)
	if _, err := packp.DecodeServerResponse(br); err != nil && err != io.EOF {
		return nil, err
	}

	var pack bytes.Buffer
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
		if len(payload) == 0 {
			continue
		}
		switch payload[0] {
		case 1:
			pack.Write(payload[1:])
		case 2:
			// progress text: discarded.
		case 3:
			return nil, fmt.Errorf("transport/http: remote error: %s", strings.TrimSpace(string(payload[1:])))
		default:
			pack.Write(payload)
		}
	}
	return pack.Bytes(), nil
}

// PushResult is the outcome of PushPack.
type PushResult struct {
	UnpackOK bool
	Commands map[plumbing.ReferenceName]string
}

// PushPack implements git-receive-pack: POST the update commands followed
// by a packfile, then parse the report-status reply (spec §4.10,
// "push_pack").
func (c *Client) PushPack(commands []packp.Command, pack []byte) (*PushResult, error) {
	reqBody := &bytes.Buffer{}
	rpReq := &packp.ReceivePackRequest{
		Commands:     commands,
		Capabilities: []string{"report-status"},
	}
	if err := rpReq.Encode(reqBody); err != nil {
		return nil, err
	}
	reqBody.Write(pack)

	u := c.URL + "/" + receivePackService
	req, err := http.NewRequest(http.MethodPost, u, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-git-receive-pack-request")
	req.Header.Set("Accept", "application/x-git-receive-pack-result")
	req.Header.Set("Content-Length", strconv.Itoa(reqBody.Len()))

	res, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	status, err := packp.DecodeReportStatus(res.Body)
	if err != nil {
		return nil, err
	}
	return &PushResult{UnpackOK: status.UnpackOK, Commands: status.Commands}, nil
}
