// Package packp implements the ref advertisement and want/have/done
// negotiation layered on top of pkt-line framing (spec §4.9).
package packp

import (
	"fmt"
	"sort"
	"strings"
)

// Capabilities is the space-separated, optionally key=value set of
// protocol extensions advertised on the first ref line or the flush
// terminating a client request.
type Capabilities struct {
	m map[string]*Capability
	o []string
}

// Capability is one named capability and its (possibly empty) values.
type Capability struct {
	Name   string
	Values []string
}

func NewCapabilities() *Capabilities {
	return &Capabilities{m: make(map[string]*Capability)}
}

func (c *Capabilities) IsEmpty() bool { return len(c.o) == 0 }

// Decode parses a capability-list string such as
// "multi_ack side-band-64k agent=git/2.1.0".
func (c *Capabilities) Decode(raw string) {
	for _, p := range strings.Fields(raw) {
		parts := strings.SplitN(p, "=", 2)
		var value string
		if len(parts) == 2 {
			value = parts[1]
		}
		c.Add(parts[0], value)
	}
}

func (c *Capabilities) Get(name string) *Capability { return c.m[name] }

func (c *Capabilities) Add(name string, values ...string) {
	if _, ok := c.m[name]; !ok {
		c.m[name] = &Capability{Name: name}
		c.o = append(c.o, name)
	}
	for _, v := range values {
		if v != "" {
			c.m[name].Values = append(c.m[name].Values, v)
		}
	}
}

func (c *Capabilities) Supports(name string) bool {
	_, ok := c.m[name]
	return ok
}

// SymbolicReference returns the target of a "symref=HEAD:refs/heads/main"
// style capability entry for the given symbolic name.
func (c *Capabilities) SymbolicReference(sym string) string {
	cap := c.Get("symref")
	if cap == nil {
		return ""
	}
	for _, v := range cap.Values {
		parts := strings.SplitN(v, ":", 2)
		if len(parts) == 2 && parts[0] == sym {
			return parts[1]
		}
	}
	return ""
}

func (c *Capabilities) Sort() { sort.Strings(c.o) }

func (c *Capabilities) String() string {
	var parts []string
	for _, name := range c.o {
		cap := c.m[name]
		if len(cap.Values) == 0 {
			parts = append(parts, name)
			continue
		}
		for _, v := range cap.Values {
			parts = append(parts, fmt.Sprintf("%s=%s", name, v))
		}
	}
	return strings.Join(parts, " ")
}
