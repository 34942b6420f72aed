// Package journal implements the append-only operation log: every
// history-mutating operation records a before/after snapshot so it can be
// inspected or used to recover the repository's recent activity (spec §3
// "Journal entry", §4.7 "Journal is append-only").
package journal

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/kirdyuk/govcs/internal/trace"
	"github.com/kirdyuk/govcs/plumbing"
)

const journalFile = "journal.json"

// DefaultCapacity is the number of entries kept before the oldest are
// evicted FIFO (spec §4.7, "capped at a configurable size, default 100").
const DefaultCapacity = 100

// FileStore is the minimal file-bookkeeping surface the journal needs; both
// storage/filesystem.Storage and storage/memory.Storage satisfy it.
type FileStore interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, content []byte) error
	HasFile(name string) bool
}

// State is a point-in-time snapshot of repository position, taken before
// and after an operation runs.
type State struct {
	Head      plumbing.Hash          `json:"head"`
	Branch    plumbing.ReferenceName `json:"branch,omitempty"`
	IndexHash plumbing.Hash          `json:"indexHash"`
}

// Entry is one journal record (spec §3, "Journal entry").
type Entry struct {
	UUID          string    `json:"uuid"`
	Timestamp     time.Time `json:"timestamp"`
	Operation     string    `json:"operation"`
	Args          []string  `json:"args,omitempty"`
	Description   string    `json:"description"`
	Before        State     `json:"before"`
	After         State     `json:"after"`
	AffectedFiles []string  `json:"affectedFiles,omitempty"`
	CommitHash    plumbing.Hash `json:"commitHash,omitempty"`
}

// NewEntry stamps a fresh entry with a generated uuid and the current time.
// Callers fill Before up front and After once the operation completes.
func NewEntry(operation string, args []string, description string, before State) *Entry {
	return &Entry{
		UUID:        uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		Operation:   operation,
		Args:        args,
		Description: description,
		Before:      before,
	}
}

// Journal is a FIFO-capped append-only log persisted as a single JSON file.
type Journal struct {
	store    FileStore
	Capacity int
}

// Open returns a Journal backed by store, using DefaultCapacity unless
// overridden by setting the returned Journal's Capacity field.
func Open(store FileStore) *Journal {
	return &Journal{store: store, Capacity: DefaultCapacity}
}

// Entries returns every recorded entry, oldest first. An absent journal
// file is treated as an empty log rather than an error.
func (j *Journal) Entries() ([]Entry, error) {
	if !j.store.HasFile(journalFile) {
		return nil, nil
	}
	raw, err := j.store.ReadFile(journalFile)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Append adds e to the log, evicting the oldest entries first if the
// result would exceed Capacity.
func (j *Journal) Append(e *Entry) error {
	entries, err := j.Entries()
	if err != nil {
		return err
	}
	entries = append(entries, *e)
	trace.Journal.Printf("append %s %s", e.Operation, e.UUID)

	cap := j.Capacity
	if cap <= 0 {
		cap = DefaultCapacity
	}
	if len(entries) > cap {
		evicted := len(entries) - cap
		entries = entries[evicted:]
		trace.Journal.Printf("evicted %d entries, capacity %d", evicted, cap)
	}

	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return j.store.WriteFile(journalFile, raw)
}

// Last returns the most recently appended entry, or false if the journal
// is empty.
func (j *Journal) Last() (Entry, bool, error) {
	entries, err := j.Entries()
	if err != nil {
		return Entry{}, false, err
	}
	if len(entries) == 0 {
		return Entry{}, false, nil
	}
	return entries[len(entries)-1], true, nil
}
