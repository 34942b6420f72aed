package object

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signature is the author or committer identity stamped on a commit or
// annotated tag: name, email, timestamp and UTC offset (spec §3, "Commit").
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// Decode parses a line of the form "Name <email> 1700000000 +0000" as found
// in a commit or tag object, without the leading "author "/"committer "
// keyword (the caller strips that).
func (s *Signature) Decode(b []byte) {
	open := bytes.LastIndexByte(b, '<')
	close := bytes.LastIndexByte(b, '>')
	if open == -1 || close == -1 || open > close {
		s.Name = string(bytes.TrimSpace(b))
		return
	}

	s.Name = string(bytes.TrimSpace(b[:open]))
	s.Email = string(b[open+1 : close])

	hasTime := close+2 < len(b)
	if !hasTime {
		return
	}

	fields := strings.Fields(string(b[close+2:]))
	if len(fields) != 2 {
		return
	}

	secs, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return
	}

	loc := parseTimezone(fields[1])
	s.When = time.Unix(secs, 0).In(loc)
}

// Encode writes the signature in the canonical "Name <email> secs +hhmm"
// form used in commit/tag objects.
func (s *Signature) Encode(w *bytes.Buffer) {
	fmt.Fprintf(w, "%s <%s> %d %s", s.Name, s.Email, s.When.Unix(), formatTimezone(s.When))
}

func parseTimezone(tz string) *time.Location {
	if len(tz) != 5 || (tz[0] != '+' && tz[0] != '-') {
		return time.UTC
	}
	hh, err1 := strconv.Atoi(tz[1:3])
	mm, err2 := strconv.Atoi(tz[3:5])
	if err1 != nil || err2 != nil {
		return time.UTC
	}
	offset := hh*3600 + mm*60
	if tz[0] == '-' {
		offset = -offset
	}
	return time.FixedZone(tz, offset)
}

func formatTimezone(t time.Time) string {
	_, offset := t.Zone()
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	return fmt.Sprintf("%s%02d%02d", sign, offset/3600, (offset%3600)/60)
}
