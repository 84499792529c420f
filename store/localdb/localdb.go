// Package localdb is the in-process implementation of the local store.
//
// Tables are plain ordered maps guarded by a single RWMutex, with a
// ristretto cache in front of point reads. Writes commit under the
// lock and notify live queries before the lock is released, so a
// subscriber can never observe state older than an acknowledged write.
package localdb

import (
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto"

	"github.com/recallhq/recall-go-sdk/core"
	"github.com/recallhq/recall-go-sdk/store"
)

// Config tunes the local database.
type Config struct {
	// MaxRecordsPerTable caps table growth to model a bounded client
	// persistence medium. Zero means unlimited.
	MaxRecordsPerTable int

	// CacheMaxCost is the ristretto cost budget for the point-read
	// cache. Zero selects a default suitable for chat workloads.
	CacheMaxCost int64
}

// DB implements store.Store.
type DB struct {
	mu     sync.RWMutex
	tables map[string]*table
	cache  *ristretto.Cache
	cfg    Config
	closed bool
}

type table struct {
	recs  map[string]any
	order []string // keys in first-insertion order
	subs  []*subscription
}

// New creates an empty local database.
func New(cfg Config) (*DB, error) {
	maxCost := cfg.CacheMaxCost
	if maxCost == 0 {
		maxCost = 1 << 24
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create read cache: %w", err)
	}
	return &DB{
		tables: make(map[string]*table),
		cache:  cache,
		cfg:    cfg,
	}, nil
}

func (d *DB) getOrCreateTable(name string) *table {
	t, ok := d.tables[name]
	if !ok {
		t = &table{recs: make(map[string]any)}
		d.tables[name] = t
	}
	return t
}

func cacheKey(tbl, key string) string { return tbl + "\x00" + key }

// Read returns the record stored under key.
func (d *DB) Read(tbl, key string) (any, bool, error) {
	if v, ok := d.cache.Get(cacheKey(tbl, key)); ok {
		return v, true, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, false, core.ErrCorrupt
	}
	t, ok := d.tables[tbl]
	if !ok {
		return nil, false, nil
	}
	v, ok := t.recs[key]
	if ok {
		d.cache.Set(cacheKey(tbl, key), v, 1)
	}
	return v, ok, nil
}

// Write stores a record and notifies live queries on the table.
func (d *DB) Write(tbl, key string, v any) error {
	if v == nil {
		return fmt.Errorf("write %s/%s: nil record: %w", tbl, key, core.ErrCorrupt)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return core.ErrCorrupt
	}

	t := d.getOrCreateTable(tbl)
	_, exists := t.recs[key]
	if !exists && d.cfg.MaxRecordsPerTable > 0 && len(t.recs) >= d.cfg.MaxRecordsPerTable {
		return fmt.Errorf("write %s/%s: %w", tbl, key, core.ErrStorageFull)
	}

	t.recs[key] = v
	if !exists {
		t.order = append(t.order, key)
	}
	d.cache.Set(cacheKey(tbl, key), v, 1)
	// Flush the async set so a read-your-write against the cache can
	// never observe a previously cached version.
	d.cache.Wait()

	// Commit is done; notify while still holding the lock so snapshots
	// reach subscribers in commit order.
	t.notifyLocked()
	return nil
}

// Delete removes a record if present.
func (d *DB) Delete(tbl, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return core.ErrCorrupt
	}
	t, ok := d.tables[tbl]
	if !ok {
		return nil
	}
	if _, ok := t.recs[key]; !ok {
		return nil
	}
	delete(t.recs, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	d.cache.Del(cacheKey(tbl, key))
	// ristretto applies mutations asynchronously; flush so a point read
	// issued right after the delete cannot resurrect the record.
	d.cache.Wait()
	t.notifyLocked()
	return nil
}

// List returns matching records in insertion order.
func (d *DB) List(tbl string, match store.Predicate) ([]any, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, core.ErrCorrupt
	}
	t, ok := d.tables[tbl]
	if !ok {
		return nil, nil
	}
	return t.snapshotLocked(match), nil
}

// Subscribe opens a live query over the table with an immediate first
// emission of current state.
func (d *DB) Subscribe(tbl string, match store.Predicate) store.Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()

	sub := &subscription{
		db:    d,
		tbl:   tbl,
		match: match,
		ch:    make(chan []any, 1),
	}
	t := d.getOrCreateTable(tbl)
	t.subs = append(t.subs, sub)
	sub.push(t.snapshotLocked(match))
	return sub
}

// Close shuts the database down and closes open subscriptions.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	for _, t := range d.tables {
		for _, s := range t.subs {
			s.closeLocked()
		}
		t.subs = nil
	}
	d.cache.Close()
	return nil
}

func (t *table) snapshotLocked(match store.Predicate) []any {
	out := make([]any, 0, len(t.order))
	for _, k := range t.order {
		v := t.recs[k]
		if match == nil || match(v) {
			out = append(out, v)
		}
	}
	return out
}

func (t *table) notifyLocked() {
	for _, s := range t.subs {
		s.push(t.snapshotLocked(s.match))
	}
}

// subscription delivers coalesced snapshots: the channel holds at most
// one pending snapshot and a newer one replaces it, so a slow reader
// always receives the latest committed state next.
type subscription struct {
	db    *DB
	tbl   string
	match store.Predicate

	pushMu sync.Mutex
	ch     chan []any
	closed bool
}

func (s *subscription) Snapshots() <-chan []any { return s.ch }

func (s *subscription) push(snap []any) {
	s.pushMu.Lock()
	defer s.pushMu.Unlock()
	if s.closed {
		return
	}
	select {
	case <-s.ch: // drop the stale pending snapshot
	default:
	}
	s.ch <- snap
}

func (s *subscription) Close() {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if t, ok := s.db.tables[s.tbl]; ok {
		for i, other := range t.subs {
			if other == s {
				t.subs = append(t.subs[:i], t.subs[i+1:]...)
				break
			}
		}
	}
	s.closeLocked()
}

func (s *subscription) closeLocked() {
	s.pushMu.Lock()
	defer s.pushMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
