package bufferpool

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/arcdb/pagepool/pkg/pagestore"
)

const testPageSize = 32

func newTestManager(t *testing.T, poolSize int) (*Manager, *pagestore.FileStore) {
	t.Helper()
	dir := t.TempDir()
	store, err := pagestore.NewFileStore(filepath.Join(dir, "pool.db"), testPageSize)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	m, err := New(poolSize, testPageSize, store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m, store
}

func TestNewRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	store, err := pagestore.NewFileStore(filepath.Join(dir, "pool.db"), testPageSize)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	defer store.Close()

	cases := []struct {
		name     string
		poolSize int
		pageSize int
		store    pagestore.Store
	}{
		{"zero pool size", 0, testPageSize, store},
		{"negative pool size", -1, testPageSize, store},
		{"zero page size", 4, 0, store},
		{"mismatched page size", 4, testPageSize + 1, store},
		{"nil store", 4, testPageSize, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.poolSize, tc.pageSize, tc.store); err == nil {
				t.Fatal("expected ConfigError, got nil")
			} else if _, ok := err.(*ConfigError); !ok {
				t.Fatalf("expected *ConfigError, got %T: %v", err, err)
			}
		})
	}
}

// Scenario 1: basic round-trip. A page written and unpinned dirty must
// read back with the same content after it is fetched again.
func TestBasicRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, 4)

	id, handle, err := m.NewPage(ctx)
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	if handle == nil {
		t.Fatal("expected a handle, got nil")
	}
	copy(handle.Data(), []byte("round trip payload"))
	if !m.UnpinPage(id, true) {
		t.Fatal("UnpinPage failed")
	}

	handle2, err := m.FetchPage(ctx, id)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if handle2 == nil {
		t.Fatal("expected a handle on refetch, got nil")
	}
	if string(handle2.Data()[:len("round trip payload")]) != "round trip payload" {
		t.Errorf("refetched data = %q", handle2.Data())
	}
	m.UnpinPage(id, false)
}

// Scenario 2: LRU eviction order. With a pool of size 2, creating and
// unpinning A then B, then bringing in a third page C, must evict A (the
// least recently used) and leave B resident.
func TestLRUEvictionOrder(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, 2)

	idA, hA, _ := m.NewPage(ctx)
	m.UnpinPage(idA, false)
	idB, hB, _ := m.NewPage(ctx)
	m.UnpinPage(idB, false)
	_ = hA
	_ = hB

	idC, hC, err := m.NewPage(ctx)
	if err != nil {
		t.Fatalf("NewPage C: %v", err)
	}
	if hC == nil {
		t.Fatal("expected C to find a victim frame")
	}
	m.UnpinPage(idC, false)

	if _, ok := m.directory[idA]; ok {
		t.Error("expected A (least recently used) to have been evicted")
	}
	if _, ok := m.directory[idB]; !ok {
		t.Error("expected B to remain resident")
	}
}

// Scenario 3: write-back on evict. With a pool of size 1, dirtying the
// resident page and then forcing an eviction must write the dirty content
// to the store before the frame is reused.
func TestWriteBackOnEvict(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t, 1)

	idA, hA, _ := m.NewPage(ctx)
	copy(hA.Data(), []byte("dirty content"))
	m.UnpinPage(idA, true)

	idB, hB, err := m.NewPage(ctx)
	if err != nil {
		t.Fatalf("NewPage B: %v", err)
	}
	if hB == nil {
		t.Fatal("expected B to evict A and find a victim frame")
	}
	m.UnpinPage(idB, false)

	onDisk, err := store.Read(ctx, idA)
	if err != nil {
		t.Fatalf("Read evicted page from store: %v", err)
	}
	if string(onDisk[:len("dirty content")]) != "dirty content" {
		t.Errorf("evicted page content = %q, want write-back of %q", onDisk, "dirty content")
	}
}

// Scenario 4: a pinned page can never be chosen as a victim, even when it
// is the only resident page and the pool is full.
func TestPinPreventsEviction(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, 1)

	idA, _, _ := m.NewPage(ctx)
	// idA stays pinned (never unpinned).

	_, handle, err := m.NewPage(ctx)
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	if handle != nil {
		t.Fatal("expected no victim to be available while the only frame is pinned")
	}
	if _, ok := m.directory[idA]; !ok {
		t.Error("pinned page A must remain resident")
	}
}

// Scenario 5: deleting a pinned page must fail and must not touch the
// store.
func TestDeletePinnedFails(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t, 2)

	id, _, _ := m.NewPage(ctx)
	// id stays pinned.

	if m.DeletePage(ctx, id) {
		t.Fatal("expected DeletePage to fail on a pinned page")
	}
	exists, err := store.Exists(ctx, id)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Error("pinned page must not have been deallocated from the store")
	}
}

// Scenario 6: the dirty bit is sticky. Once any unpin marks a page dirty,
// a later unpin with markDirty=false must not clear it, and eviction must
// still write the page back.
func TestDirtyBitIsSticky(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t, 1)

	id, handle, _ := m.NewPage(ctx)
	copy(handle.Data(), []byte("sticky"))
	m.UnpinPage(id, true)

	// Re-fetch, unpin clean — must not erase the earlier dirty mark.
	handle2, err := m.FetchPage(ctx, id)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	m.UnpinPage(id, false)
	_ = handle2

	idB, hB, err := m.NewPage(ctx)
	if err != nil {
		t.Fatalf("NewPage B: %v", err)
	}
	if hB == nil {
		t.Fatal("expected B to evict A")
	}
	m.UnpinPage(idB, false)

	onDisk, err := store.Read(ctx, id)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(onDisk[:len("sticky")]) != "sticky" {
		t.Errorf("sticky-dirty page was not written back: got %q", onDisk)
	}
}

func TestUnpinUnknownPageFails(t *testing.T) {
	m, _ := newTestManager(t, 2)
	if m.UnpinPage(9999, false) {
		t.Error("expected UnpinPage of a non-resident page to fail")
	}
}

func TestDoubleUnpinFails(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, 2)

	id, _, _ := m.NewPage(ctx)
	if !m.UnpinPage(id, false) {
		t.Fatal("first UnpinPage should succeed")
	}
	if m.UnpinPage(id, false) {
		t.Error("second UnpinPage on an already-unpinned page should fail")
	}
}

// Open Question 2 (SPEC_FULL.md §4.D): NewPage on a fully pinned pool
// still allocates a PageID in the store even though no frame can be
// bound to it. This is a documented leak, not a bug, and this test pins
// it down as a concrete boundary.
func TestNewPageLeaksIDWhenPoolFull(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t, 1)

	_, _, err := m.NewPage(ctx)
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	// Pool's one frame stays pinned.

	leakedID, handle, err := m.NewPage(ctx)
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	if handle != nil {
		t.Fatal("expected no frame available")
	}
	exists, err := store.Exists(ctx, leakedID)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Error("expected the leaked id to still have been allocated in the store")
	}
}

func TestFetchMissingPageReturnsNilHandleNoError(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, 2)

	handle, err := m.FetchPage(ctx, 12345)
	if err != nil {
		t.Fatalf("FetchPage of never-allocated page: unexpected error %v", err)
	}
	if handle != nil {
		t.Error("expected nil handle for a page that was never allocated")
	}
}

func TestFlushAllWritesOnlyDirtyPages(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t, 4)

	idClean, hClean, _ := m.NewPage(ctx)
	copy(hClean.Data(), []byte("should not persist"))
	m.UnpinPage(idClean, false)

	idDirty, hDirty, _ := m.NewPage(ctx)
	copy(hDirty.Data(), []byte("should persist"))
	m.UnpinPage(idDirty, true)

	if err := m.FlushAll(ctx); err != nil {
		t.Fatalf("FlushAll: %v", err)
	}

	cleanOnDisk, err := store.Read(ctx, idClean)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	for _, b := range cleanOnDisk {
		if b != 0 {
			t.Fatalf("expected clean page to remain zeroed on disk, got %v", cleanOnDisk)
		}
	}

	dirtyOnDisk, err := store.Read(ctx, idDirty)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(dirtyOnDisk[:len("should persist")]) != "should persist" {
		t.Errorf("dirty page content = %q", dirtyOnDisk)
	}
}

func TestEventHookReceivesTransitions(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, 1)

	var kinds []EventKind
	m.SetEventHook(func(ev Event) {
		kinds = append(kinds, ev.Kind)
	})

	id, _, _ := m.NewPage(ctx)
	m.UnpinPage(id, false)
	m.FetchPage(ctx, id)
	m.UnpinPage(id, false)

	if len(kinds) == 0 {
		t.Fatal("expected at least one event")
	}
	if kinds[0] != EventNewPage {
		t.Errorf("first event = %v, want %v", kinds[0], EventNewPage)
	}
}

func TestStatsReflectsOccupancy(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, 4)

	id, _, _ := m.NewPage(ctx)
	stats := m.Stats()
	if stats.Capacity != 4 {
		t.Errorf("Capacity = %d, want 4", stats.Capacity)
	}
	if stats.Resident != 1 {
		t.Errorf("Resident = %d, want 1", stats.Resident)
	}
	if stats.Pinned != 1 {
		t.Errorf("Pinned = %d, want 1", stats.Pinned)
	}
	if stats.Evictable != 0 {
		t.Errorf("Evictable = %d, want 0 while page is pinned", stats.Evictable)
	}

	m.UnpinPage(id, false)
	stats = m.Stats()
	if stats.Pinned != 0 {
		t.Errorf("Pinned = %d, want 0 after unpin", stats.Pinned)
	}
	if stats.Evictable != 1 {
		t.Errorf("Evictable = %d, want 1 after unpin", stats.Evictable)
	}
}
