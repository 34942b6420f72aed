// Package dotgit implements the on-disk layout of a repository's metadata
// directory (".git" by default, but the name is configurable — spec §6):
// loose object paths, the refs tree, packed-refs, and the pack directory.
// Every write that must be crash-safe goes through a temp-file-then-rename.
package dotgit

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kirdyuk/govcs/plumbing"
)

// DotGit is a thin, stateless wrapper around the repository metadata
// directory rooted at Path.
type DotGit struct {
	Path string
}

// New returns a DotGit rooted at path (e.g. "/repo/.git").
func New(path string) *DotGit { return &DotGit{Path: path} }

// Init creates the directory skeleton of a fresh repository.
func (d *DotGit) Init() error {
	for _, dir := range []string{"objects", "objects/pack", "refs/heads", "refs/tags", "refs/remotes"} {
		if err := os.MkdirAll(filepath.Join(d.Path, dir), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// --- loose objects -----------------------------------------------------

func (d *DotGit) objectPath(h plumbing.Hash) string {
	hex := h.String()
	return filepath.Join(d.Path, "objects", hex[:2], hex[2:])
}

// HasLooseObject reports whether h exists as a loose object file.
func (d *DotGit) HasLooseObject(h plumbing.Hash) bool {
	_, err := os.Stat(d.objectPath(h))
	return err == nil
}

// OpenLooseObject opens the raw (deflated) contents of loose object h.
func (d *DotGit) OpenLooseObject(h plumbing.Hash) (*os.File, error) {
	f, err := os.Open(d.objectPath(h))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, plumbing.ErrObjectNotFound
		}
		return nil, err
	}
	return f, nil
}

// NewLooseObjectWriter returns a temp file sibling of the final object
// path; the caller writes deflated content then calls the returned
// finish func with the computed hash to rename it into place.
func (d *DotGit) NewLooseObjectWriter() (*os.File, func(h plumbing.Hash) error, error) {
	dir := filepath.Join(d.Path, "objects")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}
	tmp, err := os.CreateTemp(dir, "incoming-*")
	if err != nil {
		return nil, nil, err
	}

	finish := func(h plumbing.Hash) error {
		target := d.objectPath(h)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			os.Remove(tmp.Name())
			return err
		}
		// A duplicate write for the same content-derived hash is a
		// harmless no-op: leave the existing file as-is.
		if _, err := os.Stat(target); err == nil {
			os.Remove(tmp.Name())
			return nil
		}
		return os.Rename(tmp.Name(), target)
	}

	return tmp, finish, nil
}

// IterLooseObjects calls fn for every loose object hash found on disk.
func (d *DotGit) IterLooseObjects(fn func(plumbing.Hash) error) error {
	objDir := filepath.Join(d.Path, "objects")
	entries, err := os.ReadDir(objDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, e := range entries {
		if !e.IsDir() || len(e.Name()) != 2 {
			continue
		}
		sub := filepath.Join(objDir, e.Name())
		inner, err := os.ReadDir(sub)
		if err != nil {
			return err
		}
		for _, f := range inner {
			if f.IsDir() || len(f.Name()) != 38 {
				continue
			}
			h, err := plumbing.FromHex(e.Name() + f.Name())
			if err != nil {
				continue
			}
			if err := fn(h); err != nil {
				return err
			}
		}
	}
	return nil
}

// --- pack files ----------------------------------------------------------

// PackIDs returns the ids (pack-<id>) of every .pack file present.
func (d *DotGit) PackIDs() ([]string, error) {
	dir := filepath.Join(d.Path, "objects", "pack")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "pack-") && strings.HasSuffix(name, ".pack") {
			ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(name, "pack-"), ".pack"))
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (d *DotGit) PackPath(id string) string {
	return filepath.Join(d.Path, "objects", "pack", "pack-"+id+".pack")
}

func (d *DotGit) IdxPath(id string) string {
	return filepath.Join(d.Path, "objects", "pack", "pack-"+id+".idx")
}

// NewPackFiles creates pack-<id>.pack and pack-<id>.idx as temp files, to be
// renamed into place by the caller once both are fully written.
func (d *DotGit) NewPackFiles(id string) (pack, idx *os.File, finish func() error, err error) {
	dir := filepath.Join(d.Path, "objects", "pack")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, nil, err
	}
	pack, err = os.CreateTemp(dir, "pack-incoming-*.pack")
	if err != nil {
		return nil, nil, nil, err
	}
	idx, err = os.CreateTemp(dir, "pack-incoming-*.idx")
	if err != nil {
		pack.Close()
		os.Remove(pack.Name())
		return nil, nil, nil, err
	}

	finish = func() error {
		if err := os.Rename(pack.Name(), d.PackPath(id)); err != nil {
			return err
		}
		return os.Rename(idx.Name(), d.IdxPath(id))
	}
	return pack, idx, finish, nil
}

// --- refs ------------------------------------------------------------

func (d *DotGit) refPath(name plumbing.ReferenceName) string {
	return filepath.Join(d.Path, filepath.FromSlash(string(name)))
}

// ReadLooseRef reads and parses the single loose ref file name, if present.
func (d *DotGit) ReadLooseRef(name plumbing.ReferenceName) (*plumbing.Reference, error) {
	b, err := os.ReadFile(d.refPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, plumbing.ErrRefNotFound
		}
		return nil, err
	}
	return parseRefContent(name, strings.TrimSpace(string(b)))
}

func parseRefContent(name plumbing.ReferenceName, content string) (*plumbing.Reference, error) {
	if strings.HasPrefix(content, "ref: ") {
		target := plumbing.ReferenceName(strings.TrimSpace(strings.TrimPrefix(content, "ref: ")))
		return plumbing.NewSymbolicReference(name, target), nil
	}
	h, err := plumbing.FromHex(content)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed ref file for %s", plumbing.ErrRefNotFound, name)
	}
	return plumbing.NewHashReference(name, h), nil
}

// WriteLooseRef atomically writes r's loose ref file.
func (d *DotGit) WriteLooseRef(r *plumbing.Reference) error {
	path := d.refPath(r.Name())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	content := r.String() + "\n"
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-ref-*")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// RemoveLooseRef deletes the loose ref file for name, if any.
func (d *DotGit) RemoveLooseRef(name plumbing.ReferenceName) error {
	err := os.Remove(d.refPath(name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// IterLooseRefs walks refs/ recursively (skipping the pack directory,
// which lives under objects/), invoking fn for every loose ref found.
func (d *DotGit) IterLooseRefs(fn func(*plumbing.Reference) error) error {
	return d.walkRefDir("refs", fn)
}

func (d *DotGit) walkRefDir(rel string, fn func(*plumbing.Reference) error) error {
	dir := filepath.Join(d.Path, rel)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		relPath := rel + "/" + e.Name()
		if e.IsDir() {
			if err := d.walkRefDir(relPath, fn); err != nil {
				return err
			}
			continue
		}
		r, err := d.ReadLooseRef(plumbing.ReferenceName(relPath))
		if err != nil {
			continue
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// --- packed-refs -------------------------------------------------------

// ReadPackedRefs parses the packed-refs file, if present, returning a
// name->hash map (spec §4.2: "Packed-refs").
func (d *DotGit) ReadPackedRefs() (map[plumbing.ReferenceName]plumbing.Hash, error) {
	out := make(map[plumbing.ReferenceName]plumbing.Hash)
	f, err := os.Open(filepath.Join(d.Path, "packed-refs"))
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "^") {
			continue
		}
		sp := strings.IndexByte(line, ' ')
		if sp == -1 {
			continue
		}
		h, err := plumbing.FromHex(line[:sp])
		if err != nil {
			continue
		}
		out[plumbing.ReferenceName(line[sp+1:])] = h
	}
	return out, sc.Err()
}

// WritePackedRefs rewrites packed-refs atomically from the given map; used
// when a CAS update must scrub a stale entry (spec §9 Open Question 4 and
// §5 "packed-refs reading vs loose-refs precedence").
func (d *DotGit) WritePackedRefs(refs map[plumbing.ReferenceName]plumbing.Hash) error {
	names := make([]string, 0, len(refs))
	for n := range refs {
		names = append(names, string(n))
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("# pack-refs with: peeled fully-peeled sorted\n")
	for _, n := range names {
		fmt.Fprintf(&b, "%s %s\n", refs[plumbing.ReferenceName(n)].String(), n)
	}

	path := filepath.Join(d.Path, "packed-refs")
	tmp, err := os.CreateTemp(d.Path, ".tmp-packed-refs-*")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// --- HEAD / simple files -------------------------------------------------

func (d *DotGit) ReadHead() (*plumbing.Reference, error) { return d.ReadLooseRef(plumbing.HEAD) }

func (d *DotGit) WriteHead(r *plumbing.Reference) error { return d.WriteLooseRef(r) }

// ReadFile and WriteFile expose the flat files under the metadata directory used by
// the resumable state machines and merge bookkeeping (MERGE_HEAD,
// MERGE_MSG, journal.json, etc.) — spec §6 "On-disk layout".
func (d *DotGit) ReadFile(name string) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(d.Path, name))
	if os.IsNotExist(err) {
		return nil, os.ErrNotExist
	}
	return b, err
}

func (d *DotGit) WriteFile(name string, content []byte) error {
	path := filepath.Join(d.Path, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (d *DotGit) RemoveFile(name string) error {
	err := os.Remove(filepath.Join(d.Path, name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (d *DotGit) HasFile(name string) bool {
	_, err := os.Stat(filepath.Join(d.Path, name))
	return err == nil
}

// Reader opens name for reading (used for the index file and config).
func (d *DotGit) Reader(name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(d.Path, name))
	if os.IsNotExist(err) {
		return nil, os.ErrNotExist
	}
	return f, err
}
