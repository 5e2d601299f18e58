// Package txlog implements the external transaction tracker: durable
// bookkeeping of in-flight sstable generations so a crash between
// "file created" and "commit recorded" can be recognized and cleaned
// up on the next startup. It is grounded in
// davidvella/xp/core/storage/pebble.Storage (pebble.DB for durable
// key/value state, gob for value encoding) for the persistence layer,
// and in davidvella/xp/wal.Writer's use of github.com/google/btree for
// the in-memory ordered index of live generations.
package txlog

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/google/btree"

	"github.com/coldtable/sstable/descriptor"
)

type status byte

const (
	statusPending status = iota
	statusCommitted
)

// liveEntry is one tracked generation's durable record.
type liveEntry struct {
	Descriptor descriptor.Descriptor
	Status     status
}

func (a liveEntry) Less(b liveEntry) bool {
	if a.Descriptor.Keyspace != b.Descriptor.Keyspace {
		return a.Descriptor.Keyspace < b.Descriptor.Keyspace
	}
	if a.Descriptor.Table != b.Descriptor.Table {
		return a.Descriptor.Table < b.Descriptor.Table
	}
	return a.Descriptor.Generation < b.Descriptor.Generation
}

// Tracker records, for every sstable generation being built, whether
// it has reached a durable commit. TrackNew must be called before any
// component file is created, so a crash always leaves either no trace
// or a pending record an orphan scan can find.
type Tracker struct {
	db   *pebble.DB
	mu   sync.Mutex
	live *btree.BTreeG[liveEntry]
}

// Open opens (creating if necessary) the tracker's pebble store at path.
func Open(path string) (*Tracker, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("txlog: open pebble store: %w", err)
	}
	t := &Tracker{
		db:   db,
		live: btree.NewG[liveEntry](8, liveEntry.Less),
	}
	if err := t.loadExisting(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return t, nil
}

func (t *Tracker) loadExisting() error {
	iter, err := t.db.NewIter(nil)
	if err != nil {
		return fmt.Errorf("txlog: iterate existing entries: %w", err)
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		entry, err := decodeEntry(iter.Value())
		if err != nil {
			return fmt.Errorf("txlog: decode entry %q: %w", iter.Key(), err)
		}
		t.live.ReplaceOrInsert(entry)
	}
	return nil
}

// Close closes the underlying pebble store.
func (t *Tracker) Close() error {
	return t.db.Close()
}

func keyFor(d descriptor.Descriptor) []byte {
	return []byte(fmt.Sprintf("%s/%s/%020d", d.Keyspace, d.Table, d.Generation))
}

func decodeEntry(raw []byte) (liveEntry, error) {
	var e liveEntry
	dec := gob.NewDecoder(bytes.NewReader(raw))
	err := dec.Decode(&e)
	return e, err
}

func encodeEntry(e liveEntry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// TrackNew registers d as pending before any of its component files
// are created.
func (t *Tracker) TrackNew(d descriptor.Descriptor) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := liveEntry{Descriptor: d, Status: statusPending}
	val, err := encodeEntry(entry)
	if err != nil {
		return fmt.Errorf("txlog: encode entry: %w", err)
	}
	if err := t.db.Set(keyFor(d), val, pebble.Sync); err != nil {
		return fmt.Errorf("txlog: record pending: %w", err)
	}
	t.live.ReplaceOrInsert(entry)
	return nil
}

// Committed marks d as durably committed.
func (t *Tracker) Committed(d descriptor.Descriptor) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := liveEntry{Descriptor: d, Status: statusCommitted}
	val, err := encodeEntry(entry)
	if err != nil {
		return fmt.Errorf("txlog: encode entry: %w", err)
	}
	if err := t.db.Set(keyFor(d), val, pebble.Sync); err != nil {
		return fmt.Errorf("txlog: record commit: %w", err)
	}
	t.live.ReplaceOrInsert(entry)
	return nil
}

// Aborted removes d's bookkeeping entirely; its files were never
// published.
func (t *Tracker) Aborted(d descriptor.Descriptor) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.db.Delete(keyFor(d), pebble.Sync); err != nil {
		return fmt.Errorf("txlog: delete entry: %w", err)
	}
	t.live.Delete(liveEntry{Descriptor: d})
	return nil
}

// LiveGenerations returns every tracked generation number for
// (keyspace, table), committed or pending, in ascending order.
func (t *Tracker) LiveGenerations(keyspace, table string) []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []int64
	t.live.Ascend(func(e liveEntry) bool {
		if e.Descriptor.Keyspace == keyspace && e.Descriptor.Table == table {
			out = append(out, e.Descriptor.Generation)
		}
		return true
	})
	return out
}

// RecoverOrphans returns every tracked generation stuck in
// statusPending: a writer that registered but never reached Committed,
// meaning the process died mid-build and its temp files (if any) are
// safe to delete.
func (t *Tracker) RecoverOrphans() []descriptor.Descriptor {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []descriptor.Descriptor
	t.live.Ascend(func(e liveEntry) bool {
		if e.Status == statusPending {
			out = append(out, e.Descriptor)
		}
		return true
	})
	return out
}
