// Package bufferpool implements the in-memory buffer pool manager (BPM) of
// a database storage layer: a fixed-size cache of fixed-size pages that
// mediates all access between higher-level database code and a
// page-granular backing store (pkg/pagestore).
//
// The manager guarantees that every page a client fetches stays resident
// and stable for as long as the client holds a pin on it, that dirty
// modifications are written back before a frame is reused, and that frame
// reuse follows a least-recently-used policy restricted to currently
// unpinned frames.
package bufferpool

import (
	"context"
	"fmt"
	"sync"

	"github.com/arcdb/pagepool/pkg/pagestore"
)

// ConfigError is returned by New when construction arguments are invalid.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "bufferpool: bad config: " + e.Msg }

// EventKind labels a frame state transition reported through the event
// hook registered with SetEventHook. Consumers (pkg/poolapi's WebSocket
// feed, in this repository) use it purely for observability; it has no
// bearing on the manager's own correctness.
type EventKind string

const (
	EventFetchHit     EventKind = "fetch_hit"
	EventFetchMiss    EventKind = "fetch_miss_load"
	EventFetchStarved EventKind = "fetch_no_victim"
	EventNewPage      EventKind = "new_page"
	EventNewStarved   EventKind = "new_no_victim"
	EventUnpin        EventKind = "unpin"
	EventEvict        EventKind = "evict"
	EventDelete       EventKind = "delete"
	EventFlush        EventKind = "flush"
)

// Event describes one frame state transition.
type Event struct {
	Kind   EventKind
	PageID pagestore.PageID
}

// PageHandle is the client-visible handle to a pinned, resident frame. It
// exposes read/write access to the page's data buffer and read access to
// its id; everything else about the frame (pin count, dirty bit, which
// slot it occupies) is manager-internal.
type PageHandle struct {
	id   pagestore.PageID
	data []byte
}

// ID returns the page id this handle refers to.
func (h *PageHandle) ID() pagestore.PageID { return h.id }

// Data returns the page's mutable data buffer. Writes through this slice
// are visible to any other holder of the same pin and must happen-before
// the corresponding UnpinPage(id, markDirty=true) call.
func (h *PageHandle) Data() []byte { return h.data }

// Manager is the buffer pool manager: it owns the frame array, the page
// directory, the free list, and the LRU replacer, and implements the five
// public operations plus the victim-selection protocol that ties them
// together.
type Manager struct {
	mu sync.Mutex

	store    pagestore.Store
	pageSize int

	frames    []*frame
	directory map[pagestore.PageID]frameIndex
	freeList  []frameIndex
	replacer  *lruReplacer

	hits      int64
	misses    int64
	evictions int64

	onEvent func(Event)
}

// New creates a buffer pool manager with poolSize frames of pageSize bytes
// each, backed by store. poolSize and pageSize must be positive and
// pageSize must match the store's own page size.
func New(poolSize, pageSize int, store pagestore.Store) (*Manager, error) {
	if poolSize <= 0 {
		return nil, &ConfigError{Msg: fmt.Sprintf("pool size must be positive, got %d", poolSize)}
	}
	if pageSize <= 0 {
		return nil, &ConfigError{Msg: fmt.Sprintf("page size must be positive, got %d", pageSize)}
	}
	if store == nil {
		return nil, &ConfigError{Msg: "store must not be nil"}
	}
	if pageSize != store.PageSize() {
		return nil, &ConfigError{Msg: fmt.Sprintf("page size %d does not match store page size %d", pageSize, store.PageSize())}
	}

	m := &Manager{
		store:     store,
		pageSize:  pageSize,
		frames:    make([]*frame, poolSize),
		directory: make(map[pagestore.PageID]frameIndex, poolSize),
		freeList:  make([]frameIndex, poolSize),
		replacer:  newLRUReplacer(),
	}
	for i := 0; i < poolSize; i++ {
		m.frames[i] = newFrame(pageSize)
		m.freeList[i] = frameIndex(i)
	}
	return m, nil
}

// SetEventHook registers fn to be called, outside the manager's lock, after
// every frame state transition. Passing nil disables event reporting. fn
// runs synchronously on the goroutine that made the call, after the lock
// is released, so a slow fn delays that call's return but does not hold
// up other callers.
func (m *Manager) SetEventHook(fn func(Event)) {
	m.mu.Lock()
	m.onEvent = fn
	m.mu.Unlock()
}

func (m *Manager) emit(events []Event) {
	if len(events) == 0 {
		return
	}
	m.mu.Lock()
	hook := m.onEvent
	m.mu.Unlock()
	if hook == nil {
		return
	}
	for _, ev := range events {
		hook(ev)
	}
}

// findVictim implements §victim selection: prefer a free frame; otherwise
// ask the replacer for its least-recently-used evictable frame. Must be
// called with m.mu held.
func (m *Manager) findVictim() (frameIndex, bool) {
	if n := len(m.freeList); n > 0 {
		idx := m.freeList[0]
		m.freeList = m.freeList[1:]
		return idx, true
	}

	idx, ok := m.replacer.evict()
	if !ok {
		return 0, false
	}
	if m.frames[idx].pinCount != 0 {
		// Defensive: the replacer contract guarantees this can't
		// happen (remove() is called the instant a frame is
		// re-pinned), but don't hand out a pinned frame if it does.
		return 0, false
	}
	return idx, true
}

// evictVictim writes back a victim frame's current occupant if dirty and
// removes it from the page directory, leaving the frame cleared and ready
// to be bound to a new page. Must be called with m.mu held.
func (m *Manager) evictVictim(ctx context.Context, idx frameIndex) ([]Event, error) {
	f := m.frames[idx]
	if !f.resident {
		return nil, nil
	}

	var events []Event
	if f.dirty {
		if err := m.store.Write(ctx, f.pageID, f.data); err != nil {
			return nil, fmt.Errorf("evict page %d: %w", f.pageID, err)
		}
		f.dirty = false
	}
	events = append(events, Event{Kind: EventEvict, PageID: f.pageID})
	delete(m.directory, f.pageID)
	f.clear()
	m.evictions++
	return events, nil
}

// FetchPage returns a pinned, resident frame whose content equals the
// store's current content for id, or a nil handle if no victim is
// available or the page does not exist in the store. A non-nil error is
// reserved for store failures other than "page not found".
func (m *Manager) FetchPage(ctx context.Context, id pagestore.PageID) (*PageHandle, error) {
	m.mu.Lock()

	if idx, ok := m.directory[id]; ok {
		f := m.frames[idx]
		f.pinCount++
		m.replacer.remove(idx)
		m.hits++
		handle := &PageHandle{id: id, data: f.data}
		m.mu.Unlock()
		m.emit([]Event{{Kind: EventFetchHit, PageID: id}})
		return handle, nil
	}

	// Resolve the Open Question in SPEC_FULL.md §4.D(1): validate
	// existence before touching a victim, so a missing page never
	// leaves a victim frame partially detached.
	exists, err := m.store.Exists(ctx, id)
	if err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("fetch page %d: %w", id, err)
	}
	if !exists {
		m.mu.Unlock()
		return nil, nil
	}

	idx, ok := m.findVictim()
	if !ok {
		m.mu.Unlock()
		m.emit([]Event{{Kind: EventFetchStarved, PageID: id}})
		return nil, nil
	}

	evictEvents, err := m.evictVictim(ctx, idx)
	if err != nil {
		// The victim still holds its old page: make it evictable again.
		m.replacer.touch(idx)
		m.mu.Unlock()
		return nil, err
	}

	data, err := m.store.Read(ctx, id)
	if err != nil {
		// The victim is now empty: return it to the free list.
		m.freeList = append(m.freeList, idx)
		m.mu.Unlock()
		return nil, fmt.Errorf("fetch page %d: %w", id, err)
	}

	f := m.frames[idx]
	copy(f.data, data)
	f.resident = true
	f.pageID = id
	f.pinCount = 1
	f.dirty = false
	m.directory[id] = idx
	m.replacer.remove(idx)
	m.misses++

	handle := &PageHandle{id: id, data: f.data}
	m.mu.Unlock()
	m.emit(append(evictEvents, Event{Kind: EventFetchMiss, PageID: id}))
	return handle, nil
}

// NewPage allocates a fresh page in the store and returns it pinned in the
// pool with zeroed content. The PageID is returned even when no frame is
// available (the id was already allocated by the store before victim
// selection — see SPEC_FULL.md §4.D(2) for why this documented
// leak-on-full is kept rather than "fixed").
func (m *Manager) NewPage(ctx context.Context) (pagestore.PageID, *PageHandle, error) {
	id, err := m.store.Allocate(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("new page: %w", err)
	}

	m.mu.Lock()

	idx, ok := m.findVictim()
	if !ok {
		m.mu.Unlock()
		m.emit([]Event{{Kind: EventNewStarved, PageID: id}})
		return id, nil, nil
	}

	evictEvents, err := m.evictVictim(ctx, idx)
	if err != nil {
		// The victim still holds its old page: make it evictable again.
		m.replacer.touch(idx)
		m.mu.Unlock()
		return id, nil, err
	}

	f := m.frames[idx]
	f.clear()
	f.resident = true
	f.pageID = id
	f.pinCount = 1
	f.dirty = false
	for i := range f.data {
		f.data[i] = 0
	}
	m.directory[id] = idx
	m.replacer.remove(idx)

	handle := &PageHandle{id: id, data: f.data}
	m.mu.Unlock()
	m.emit(append(evictEvents, Event{Kind: EventNewPage, PageID: id}))
	return id, handle, nil
}

// UnpinPage decrements id's pin count. If markDirty is true the frame is
// marked dirty; the dirty bit is sticky — unpinning again with
// markDirty=false never clears a bit some earlier unpin already set. Once
// the pin count reaches zero the frame becomes evictable.
//
// Returns false, with no state change, if the page isn't resident or its
// pin count is already zero.
func (m *Manager) UnpinPage(id pagestore.PageID, markDirty bool) bool {
	m.mu.Lock()

	idx, ok := m.directory[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	f := m.frames[idx]
	if f.pinCount == 0 {
		m.mu.Unlock()
		return false
	}

	f.pinCount--
	if markDirty {
		f.dirty = true
	}
	if f.pinCount == 0 {
		m.replacer.touch(idx)
	}
	m.mu.Unlock()
	m.emit([]Event{{Kind: EventUnpin, PageID: id}})
	return true
}

// DeletePage removes id from both the pool and the store. It fails
// (returns false, store untouched) if the page is resident and currently
// pinned.
//
// Per SPEC_FULL.md §5, the manager holds m.mu across the store calls below
// rather than releasing it around them: the store is an external
// collaborator serialized on its own, but nothing else may observe id as
// "freed in the pool but not yet deallocated in the store" in between.
func (m *Manager) DeletePage(ctx context.Context, id pagestore.PageID) bool {
	m.mu.Lock()

	if idx, resident := m.directory[id]; resident {
		f := m.frames[idx]
		if f.pinCount != 0 {
			m.mu.Unlock()
			return false
		}
		delete(m.directory, id)
		m.replacer.remove(idx)
		f.clear()
		m.freeList = append(m.freeList, idx)
	}

	exists, err := m.store.Exists(ctx, id)
	if err != nil {
		m.mu.Unlock()
		return false
	}
	if exists {
		if err := m.store.Deallocate(ctx, id); err != nil {
			m.mu.Unlock()
			return false
		}
	}
	m.mu.Unlock()
	m.emit([]Event{{Kind: EventDelete, PageID: id}})
	return true
}

// FlushPage writes id's frame to the store if dirty and clears its dirty
// bit. Returns false if the page isn't resident or the store write fails;
// pin counts are unaffected either way. Held across the store write for the same reason
// as DeletePage above.
func (m *Manager) FlushPage(ctx context.Context, id pagestore.PageID) bool {
	m.mu.Lock()

	idx, ok := m.directory[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	f := m.frames[idx]
	if f.dirty {
		if err := m.store.Write(ctx, id, f.data); err != nil {
			m.mu.Unlock()
			return false
		}
		f.dirty = false
	}
	m.mu.Unlock()
	m.emit([]Event{{Kind: EventFlush, PageID: id}})
	return true
}

// FlushAll flushes every resident dirty page. Iteration order over the
// page directory is unspecified (spec.md §9.3). Pin counts are unaffected.
// The whole pass runs under a single lock acquisition, matching the
// single-critical-section discipline of every other public operation.
func (m *Manager) FlushAll(ctx context.Context) error {
	m.mu.Lock()

	var flushed []pagestore.PageID
	for id, idx := range m.directory {
		f := m.frames[idx]
		if !f.dirty {
			continue
		}
		if err := m.store.Write(ctx, id, f.data); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("flush all: page %d: %w", id, err)
		}
		f.dirty = false
		flushed = append(flushed, id)
	}
	m.mu.Unlock()

	events := make([]Event, len(flushed))
	for i, id := range flushed {
		events[i] = Event{Kind: EventFlush, PageID: id}
	}
	m.emit(events)
	return nil
}

// Stats is a point-in-time snapshot of pool occupancy, used by
// pkg/poolapi's observability surface and by tests asserting the
// cross-component invariants in SPEC_FULL.md §8.
type Stats struct {
	Capacity  int
	Resident  int
	Free      int
	Pinned    int
	Evictable int
	Hits      int64
	Misses    int64
	Evictions int64
}

// FrameInfo is a point-in-time snapshot of a single frame, used by
// pkg/poolapi's GraphQL surface to expose per-slot introspection.
type FrameInfo struct {
	Index    int
	Resident bool
	PageID   pagestore.PageID
	Pinned   bool
	Dirty    bool
}

// Frame returns a snapshot of the frame at idx, or ok=false if idx is out
// of range.
func (m *Manager) Frame(idx int) (info FrameInfo, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if idx < 0 || idx >= len(m.frames) {
		return FrameInfo{}, false
	}
	f := m.frames[idx]
	return FrameInfo{
		Index:    idx,
		Resident: f.resident,
		PageID:   f.pageID,
		Pinned:   f.pinCount > 0,
		Dirty:    f.dirty,
	}, true
}

// Stats returns a snapshot of the pool's current occupancy.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	pinned := 0
	for _, f := range m.frames {
		if f.resident && f.pinCount > 0 {
			pinned++
		}
	}
	return Stats{
		Capacity:  len(m.frames),
		Resident:  len(m.directory),
		Free:      len(m.freeList),
		Pinned:    pinned,
		Evictable: m.replacer.size(),
		Hits:      m.hits,
		Misses:    m.misses,
		Evictions: m.evictions,
	}
}
