package localdb_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/recallhq/recall-go-sdk/core"
	"github.com/recallhq/recall-go-sdk/store"
	"github.com/recallhq/recall-go-sdk/store/localdb"
)

func newDB(t *testing.T) *localdb.DB {
	t.Helper()
	db, err := localdb.New(localdb.Config{})
	if err != nil {
		t.Fatalf("Failed to create db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func recvSnapshot(t *testing.T, sub store.Subscription) []any {
	t.Helper()
	select {
	case snap, ok := <-sub.Snapshots():
		if !ok {
			t.Fatal("Subscription closed unexpectedly")
		}
		return snap
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for snapshot")
		return nil
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	db := newDB(t)

	if err := db.Write(store.TableChats, "c1", "hello"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	v, ok, err := db.Read(store.TableChats, "c1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !ok || v.(string) != "hello" {
		t.Errorf("Read = %v, ok=%v; want hello, true", v, ok)
	}

	// Absent keys report ok=false, not an error.
	_, ok, err = db.Read(store.TableChats, "missing")
	if err != nil || ok {
		t.Errorf("Read missing key: ok=%v err=%v; want false, nil", ok, err)
	}
}

func TestWriteRejectsNilRecord(t *testing.T) {
	db := newDB(t)

	err := db.Write(store.TableChats, "c1", nil)
	if !errors.Is(err, core.ErrCorrupt) {
		t.Errorf("Write(nil) = %v; want ErrCorrupt", err)
	}
}

func TestStorageFull(t *testing.T) {
	db, err := localdb.New(localdb.Config{MaxRecordsPerTable: 2})
	if err != nil {
		t.Fatalf("Failed to create db: %v", err)
	}
	defer db.Close()

	for i := 0; i < 2; i++ {
		if err := db.Write(store.TableMessages, fmt.Sprintf("m%d", i), i); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	if err := db.Write(store.TableMessages, "m2", 2); !errors.Is(err, core.ErrStorageFull) {
		t.Errorf("Write over capacity = %v; want ErrStorageFull", err)
	}

	// Overwriting an existing key is not a capacity violation.
	if err := db.Write(store.TableMessages, "m0", 99); err != nil {
		t.Errorf("Overwrite at capacity failed: %v", err)
	}
}

func TestListInsertionOrder(t *testing.T) {
	db := newDB(t)

	for _, k := range []string{"b", "a", "c"} {
		if err := db.Write(store.TableMessages, k, k); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	// Overwrites must not move a record.
	if err := db.Write(store.TableMessages, "b", "b2"); err != nil {
		t.Fatalf("Overwrite failed: %v", err)
	}

	got, err := db.List(store.TableMessages, nil)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []any{"b2", "a", "c"}
	if len(got) != len(want) {
		t.Fatalf("List returned %d records; want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List[%d] = %v; want %v", i, got[i], want[i])
		}
	}
}

func TestSubscribeEmitsCurrentStateFirst(t *testing.T) {
	db := newDB(t)

	if err := db.Write(store.TableChats, "c1", "one"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	sub := db.Subscribe(store.TableChats, nil)
	defer sub.Close()

	snap := recvSnapshot(t, sub)
	if len(snap) != 1 || snap[0].(string) != "one" {
		t.Errorf("First snapshot = %v; want [one]", snap)
	}
}

func TestSubscribeObservesCommit(t *testing.T) {
	db := newDB(t)

	sub := db.Subscribe(store.TableChats, nil)
	defer sub.Close()

	if snap := recvSnapshot(t, sub); len(snap) != 0 {
		t.Fatalf("Initial snapshot = %v; want empty", snap)
	}

	if err := db.Write(store.TableChats, "c1", "one"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	snap := recvSnapshot(t, sub)
	if len(snap) != 1 || snap[0].(string) != "one" {
		t.Errorf("Snapshot after write = %v; want [one]", snap)
	}
}

func TestSubscribeCoalescesToLatest(t *testing.T) {
	db := newDB(t)

	sub := db.Subscribe(store.TableChats, nil)
	defer sub.Close()

	// Do not read between writes: the pending snapshot must be replaced,
	// never left stale.
	for i := 0; i < 5; i++ {
		if err := db.Write(store.TableChats, "c1", i); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	snap := recvSnapshot(t, sub)
	if len(snap) != 1 || snap[0].(int) != 4 {
		t.Errorf("Coalesced snapshot = %v; want latest write [4]", snap)
	}
}

func TestSubscribeWithPredicate(t *testing.T) {
	db := newDB(t)

	sub := db.Subscribe(store.TableMessages, func(v any) bool {
		return v.(int)%2 == 0
	})
	defer sub.Close()
	recvSnapshot(t, sub)

	for i := 0; i < 4; i++ {
		if err := db.Write(store.TableMessages, fmt.Sprintf("m%d", i), i); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	snap := recvSnapshot(t, sub)
	if len(snap) != 2 || snap[0].(int) != 0 || snap[1].(int) != 2 {
		t.Errorf("Filtered snapshot = %v; want [0 2]", snap)
	}
}

func TestResubscribeAfterClose(t *testing.T) {
	db := newDB(t)

	sub := db.Subscribe(store.TableChats, nil)
	recvSnapshot(t, sub)
	sub.Close()
	sub.Close() // closing twice is a no-op

	if err := db.Write(store.TableChats, "c1", "one"); err != nil {
		t.Fatalf("Write after close failed: %v", err)
	}

	sub2 := db.Subscribe(store.TableChats, nil)
	defer sub2.Close()
	snap := recvSnapshot(t, sub2)
	if len(snap) != 1 {
		t.Errorf("Resubscribe snapshot = %v; want [one]", snap)
	}
}

func TestDeleteNotifies(t *testing.T) {
	db := newDB(t)

	if err := db.Write(store.TableChats, "c1", "one"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	sub := db.Subscribe(store.TableChats, nil)
	defer sub.Close()
	recvSnapshot(t, sub)

	if err := db.Delete(store.TableChats, "c1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if snap := recvSnapshot(t, sub); len(snap) != 0 {
		t.Errorf("Snapshot after delete = %v; want empty", snap)
	}

	// Read must miss the cache as well as the table.
	_, ok, err := db.Read(store.TableChats, "c1")
	if err != nil || ok {
		t.Errorf("Read after delete: ok=%v err=%v; want false, nil", ok, err)
	}
}
