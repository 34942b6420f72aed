package repository

import (
	"bytes"
	"fmt"

	"github.com/kirdyuk/govcs/config"
	"github.com/kirdyuk/govcs/plumbing"
	"github.com/kirdyuk/govcs/plumbing/format/packfile"
	"github.com/kirdyuk/govcs/plumbing/format/packp"
	"github.com/kirdyuk/govcs/plumbing/object"
	"github.com/kirdyuk/govcs/transport/http"
)

// clientForRemote builds an http.Client for a configured remote, applying
// token credentials from the environment (spec §4.10, "fetch_pack" /
// "push_pack").
func (r *Repository) clientForRemote(remoteName string, forPush bool) (*http.Client, *config.RemoteConfig, error) {
	rc, ok := r.Config.Remote(remoteName)
	if !ok {
		return nil, nil, fmt.Errorf("repository: no remote %q configured", remoteName)
	}
	url := rc.URL
	if forPush && rc.PushURL != "" {
		url = rc.PushURL
	}
	c := http.NewClient(url, http.AuthFromEnvironment(remoteName))
	return c, rc, nil
}

// Fetch downloads every advertised branch and tag from remoteName and
// updates refs/remotes/<remoteName>/<branch> to match (spec §4.10,
// "fetch_pack"; SUPPLEMENTED FEATURES, remote-tracking refs).
func (r *Repository) Fetch(remoteName string) error {
	c, _, err := r.clientForRemote(remoteName, false)
	if err != nil {
		return err
	}

	adv, err := c.DiscoverRefs(false)
	if err != nil {
		return err
	}

	haves := r.localTips()

	var wants []plumbing.Hash
	for name, h := range adv.References {
		if name == plumbing.HEAD {
			continue
		}
		if r.Storage.HasEncodedObject(h) == nil {
			continue
		}
		wants = append(wants, h)
	}
	if len(wants) == 0 {
		return nil
	}

	if err := c.FetchPack(r.Storage, wants, haves); err != nil {
		return err
	}

	for name, h := range adv.References {
		if !name.IsBranch() {
			continue
		}
		tracking := plumbing.NewRemoteReferenceName(remoteName, name.Short())
		cur, err := r.Storage.Reference(tracking)
		if err != nil && !isRefNotFound(err) {
			return err
		}
		if err == nil && cur.Hash() == h {
			continue
		}
		if isRefNotFound(err) {
			cur = nil
		}
		if err := r.Storage.CheckAndSetReference(plumbing.NewHashReference(tracking, h), cur); err != nil {
			return err
		}
	}
	return nil
}

// localTips returns the hash of every locally known branch tip, used as
// the "have" set so the server only sends objects we are missing.
func (r *Repository) localTips() []plumbing.Hash {
	var haves []plumbing.Hash
	it, err := r.Storage.IterReferences()
	if err != nil {
		return nil
	}
	defer it.Close()
	it.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() == plumbing.HashReference && ref.Name().IsBranch() {
			haves = append(haves, ref.Hash())
		}
		return nil
	})
	return haves
}

// Push uploads every object reachable from ref's local value but not from
// the remote's current value of ref, then asks the remote to move ref
// there (spec §4.10, "push_pack"). The comparison is a plain ancestor scan
// over commits/trees/blobs, not a true pack negotiation: Non-goals exclude
// thin-pack deltification against arbitrary remote state, so this always
// ships a self-contained pack.
func (r *Repository) Push(remoteName string, ref plumbing.ReferenceName) error {
	c, _, err := r.clientForRemote(remoteName, true)
	if err != nil {
		return err
	}

	local, err := r.Storage.Reference(ref)
	if err != nil {
		return err
	}
	if local.Type() != plumbing.HashReference {
		return fmt.Errorf("repository: push source %s is not a direct reference", ref)
	}

	adv, err := c.DiscoverRefs(true)
	if err != nil {
		return err
	}
	remoteHash := adv.References[ref]

	entries, err := r.objectsNotIn(local.Hash(), remoteHash)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if _, _, err := packfile.Encode(&buf, entries); err != nil {
		return err
	}

	cmd := packp.Command{Name: ref, Old: remoteHash, New: local.Hash()}
	result, err := c.PushPack([]packp.Command{cmd}, buf.Bytes())
	if err != nil {
		return err
	}
	if !result.UnpackOK {
		return fmt.Errorf("repository: push to %s rejected: %v", remoteName, result.Commands[ref])
	}
	if status, ok := result.Commands[ref]; ok && status != "ok" {
		return fmt.Errorf("repository: push to %s rejected %s: %s", remoteName, ref, status)
	}
	return nil
}

// objectsNotIn walks commit, tree and blob objects reachable from newHash,
// stopping at anything already reachable from oldHash (the zero hash means
// the remote ref does not exist yet, so nothing is excluded).
func (r *Repository) objectsNotIn(newHash, oldHash plumbing.Hash) ([]packfile.ObjectEntry, error) {
	exclude := make(map[plumbing.Hash]bool)
	if !oldHash.IsZero() {
		oldCommit, err := object.GetCommit(r.Storage, oldHash)
		if err == nil {
			if err := r.markReachable(oldCommit.Hash, exclude); err != nil {
				return nil, err
			}
		}
	}

	var entries []packfile.ObjectEntry
	seen := make(map[plumbing.Hash]bool)
	var walk func(h plumbing.Hash) error
	walk = func(h plumbing.Hash) error {
		if exclude[h] || seen[h] {
			return nil
		}
		seen[h] = true

		eo, err := r.Storage.EncodedObject(plumbing.AnyObject, h)
		if err != nil {
			return err
		}
		content, err := readAll(eo)
		if err != nil {
			return err
		}
		entries = append(entries, packfile.ObjectEntry{Hash: h, Type: eo.Type(), Content: content})

		switch eo.Type() {
		case plumbing.CommitObject:
			c, err := object.GetCommit(r.Storage, h)
			if err != nil {
				return err
			}
			if err := walk(c.TreeHash); err != nil {
				return err
			}
			for _, p := range c.ParentHashes {
				if exclude[p] {
					continue
				}
				if err := walk(p); err != nil {
					return err
				}
			}
		case plumbing.TreeObject:
			t, err := object.GetTree(r.Storage, h)
			if err != nil {
				return err
			}
			for _, e := range t.Entries {
				if err := walk(e.Hash); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(newHash); err != nil {
		return nil, err
	}
	return entries, nil
}

// markReachable flags every commit/tree/blob reachable from start as
// excluded, without materializing their content (the remote already has
// them).
func (r *Repository) markReachable(start plumbing.Hash, exclude map[plumbing.Hash]bool) error {
	if exclude[start] {
		return nil
	}
	exclude[start] = true

	eo, err := r.Storage.EncodedObject(plumbing.AnyObject, start)
	if err != nil {
		return nil // object we don't have locally can't bound our walk further
	}

	switch eo.Type() {
	case plumbing.CommitObject:
		c, err := object.GetCommit(r.Storage, start)
		if err != nil {
			return nil
		}
		if err := r.markReachable(c.TreeHash, exclude); err != nil {
			return err
		}
		for _, p := range c.ParentHashes {
			if err := r.markReachable(p, exclude); err != nil {
				return err
			}
		}
	case plumbing.TreeObject:
		t, err := object.GetTree(r.Storage, start)
		if err != nil {
			return nil
		}
		for _, e := range t.Entries {
			if err := r.markReachable(e.Hash, exclude); err != nil {
				return err
			}
		}
	}
	return nil
}

func readAll(eo plumbing.EncodedObject) ([]byte, error) {
	rc, err := eo.Reader()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
