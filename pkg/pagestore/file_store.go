package pagestore

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
)

// superblockSize is the fixed region at the start of the data file that
// holds store-wide bookkeeping, ahead of the first page slot. Keeping it a
// constant, generously-padded size means page slot offsets never have to
// change even if the superblock layout grows.
const superblockSize = 64

const superblockMagic = "PGST"

// FileStore is a Store backed by a single data file. Pages are laid out at
// fixed offsets (superblockSize + id*slotSize); deallocated ids are
// threaded onto an on-disk free-page chain so Allocate prefers reuse over
// growing the file, the same shape as the teacher codebase's DiskManager
// plus FreePageList, adapted to a single-file, checksum-per-slot layout.
type FileStore struct {
	mu         sync.Mutex
	file       *os.File
	pageSize   int
	slotSize   int
	nextPageID PageID
	hasFree    bool
	headFree   PageID
	freeCount  int
	// freeSet mirrors the on-disk chain so Exists is O(1) instead of a
	// chain walk; it is kept in sync by pushFreePage/popFreePage, the
	// only two places ids move into or out of the chain.
	freeSet map[PageID]struct{}

	totalReads  int64
	totalWrites int64
}

// NewFileStore opens (creating if necessary) a file-backed store with the
// given page size.
func NewFileStore(path string, pageSize int) (*FileStore, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("pagestore: page size must be positive, got %d", pageSize)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("pagestore: open data file: %w", err)
	}

	fs := &FileStore{
		file:     f,
		pageSize: pageSize,
		slotSize: checksumSize + pageSize,
		freeSet:  make(map[PageID]struct{}),
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pagestore: stat data file: %w", err)
	}

	if info.Size() == 0 {
		if err := fs.writeSuperblock(); err != nil {
			f.Close()
			return nil, err
		}
		return fs, nil
	}

	if err := fs.loadSuperblock(); err != nil {
		f.Close()
		return nil, err
	}
	if err := fs.rebuildFreeSet(); err != nil {
		f.Close()
		return nil, err
	}
	return fs, nil
}

// PageSize implements Store.
func (fs *FileStore) PageSize() int { return fs.pageSize }

func (fs *FileStore) slotOffset(id PageID) int64 {
	return superblockSize + int64(id)*int64(fs.slotSize)
}

func (fs *FileStore) writeSuperblock() error {
	buf := make([]byte, superblockSize)
	copy(buf[0:4], superblockMagic)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(fs.nextPageID))
	if fs.hasFree {
		binary.LittleEndian.PutUint32(buf[12:16], 1)
	}
	binary.LittleEndian.PutUint32(buf[16:20], uint32(fs.headFree))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(fs.freeCount))
	if _, err := fs.file.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("pagestore: write superblock: %w", err)
	}
	return nil
}

func (fs *FileStore) loadSuperblock() error {
	buf := make([]byte, superblockSize)
	if _, err := fs.file.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("pagestore: read superblock: %w", err)
	}
	if string(buf[0:4]) != superblockMagic {
		return fmt.Errorf("pagestore: data file missing superblock magic")
	}
	fs.nextPageID = PageID(binary.LittleEndian.Uint32(buf[8:12]))
	fs.hasFree = binary.LittleEndian.Uint32(buf[12:16]) != 0
	fs.headFree = PageID(binary.LittleEndian.Uint32(buf[16:20]))
	fs.freeCount = int(binary.LittleEndian.Uint32(buf[20:24]))
	return nil
}

// rebuildFreeSet walks the on-disk free-page chain once at open time and
// mirrors every id it finds into freeSet. The teacher's equivalent
// (loadFreePageList) gave up and reset to empty on any reopen; walking the
// chain here means Exists is accurate immediately after reopening a store
// that had deallocated pages.
func (fs *FileStore) rebuildFreeSet() error {
	fs.freeSet = make(map[PageID]struct{})
	if !fs.hasFree {
		return nil
	}

	page := fs.headFree
	hasNext := true
	for hasNext {
		fs.freeSet[page] = struct{}{}
		buf := make([]byte, fs.pageSize)
		if _, err := fs.file.ReadAt(buf, fs.slotOffset(page)+checksumSize); err != nil {
			return fmt.Errorf("pagestore: rebuild free list: read page %d: %w", page, err)
		}
		var entries []PageID
		hasNext, page, entries = decodeFreeListPage(buf)
		for _, id := range entries {
			fs.freeSet[id] = struct{}{}
		}
	}
	return nil
}

func (fs *FileStore) writeSlotLocked(id PageID, data []byte) error {
	sum := checksum(data)
	buf := make([]byte, fs.slotSize)
	copy(buf[:checksumSize], sum[:])
	copy(buf[checksumSize:], data)
	if _, err := fs.file.WriteAt(buf, fs.slotOffset(id)); err != nil {
		return err
	}
	fs.totalWrites++
	return nil
}

func (fs *FileStore) readSlotLocked(id PageID) ([]byte, error) {
	buf := make([]byte, fs.slotSize)
	if _, err := fs.file.ReadAt(buf, fs.slotOffset(id)); err != nil {
		return nil, err
	}
	var sum [checksumSize]byte
	copy(sum[:], buf[:checksumSize])
	data := make([]byte, fs.pageSize)
	copy(data, buf[checksumSize:])
	if !verifyChecksum(data, sum) {
		return nil, ErrCorrupted
	}
	fs.totalReads++
	return data, nil
}

// Allocate implements Store.
func (fs *FileStore) Allocate(ctx context.Context) (PageID, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	id, reused, err := fs.popFreePage()
	if err != nil {
		return 0, wrapStoreError("allocate", err)
	}
	if !reused {
		id = fs.nextPageID
		fs.nextPageID++
	}

	zero := make([]byte, fs.pageSize)
	if err := fs.writeSlotLocked(id, zero); err != nil {
		return 0, wrapStoreError("allocate", err)
	}
	if err := fs.writeSuperblock(); err != nil {
		return 0, wrapStoreError("allocate", err)
	}
	return id, nil
}

// Deallocate implements Store.
func (fs *FileStore) Deallocate(ctx context.Context, id PageID) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if id >= fs.nextPageID {
		return wrapStoreError("deallocate", fmt.Errorf("page %d was never allocated", id))
	}
	if _, free := fs.freeSet[id]; free {
		return wrapStoreError("deallocate", fmt.Errorf("page %d is already free", id))
	}
	if err := fs.pushFreePage(id); err != nil {
		return wrapStoreError("deallocate", err)
	}
	return fs.writeSuperblock()
}

// Write implements Store.
func (fs *FileStore) Write(ctx context.Context, id PageID, data []byte) error {
	if len(data) != fs.pageSize {
		return ErrBadSize
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if !fs.existsLocked(id) {
		return wrapStoreError("write", ErrNotFound)
	}
	if err := fs.writeSlotLocked(id, data); err != nil {
		return wrapStoreError("write", err)
	}
	return nil
}

// Read implements Store.
func (fs *FileStore) Read(ctx context.Context, id PageID) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if !fs.existsLocked(id) {
		return nil, ErrNotFound
	}
	data, err := fs.readSlotLocked(id)
	if err != nil {
		if err == ErrCorrupted {
			return nil, wrapStoreError("read", ErrCorrupted)
		}
		return nil, wrapStoreError("read", err)
	}
	return data, nil
}

// Exists implements Store.
func (fs *FileStore) Exists(ctx context.Context, id PageID) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.existsLocked(id), nil
}

func (fs *FileStore) existsLocked(id PageID) bool {
	if id >= fs.nextPageID {
		return false
	}
	_, free := fs.freeSet[id]
	return !free
}

// Sync flushes the data file to durable storage.
func (fs *FileStore) Sync() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.file.Sync()
}

// Close flushes and closes the underlying data file.
func (fs *FileStore) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.file.Sync(); err != nil {
		return err
	}
	return fs.file.Close()
}

// Stats reports basic I/O counters, mirroring the teacher DiskManager's
// Stats method.
func (fs *FileStore) Stats() map[string]int64 {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return map[string]int64{
		"next_page_id": int64(fs.nextPageID),
		"free_pages":   int64(fs.freeCount),
		"total_reads":  fs.totalReads,
		"total_writes": fs.totalWrites,
	}
}

// pushFreePage threads id onto the free-page chain. Must be called with
// fs.mu held.
func (fs *FileStore) pushFreePage(id PageID) error {
	if !fs.hasFree {
		buf := make([]byte, fs.pageSize)
		encodeFreeListPage(buf, 0, false, nil)
		if err := fs.writeSlotLocked(id, buf); err != nil {
			return err
		}
		fs.hasFree = true
		fs.headFree = id
		fs.freeCount = 1
		fs.freeSet[id] = struct{}{}
		return nil
	}

	headBuf, err := fs.readSlotLocked(fs.headFree)
	if err != nil {
		return err
	}
	hasNext, next, entries := decodeFreeListPage(headBuf)

	if len(entries) < maxFreeListEntries(fs.pageSize) {
		entries = append(entries, id)
		encodeFreeListPage(headBuf, next, hasNext, entries)
		if err := fs.writeSlotLocked(fs.headFree, headBuf); err != nil {
			return err
		}
		fs.freeCount++
		fs.freeSet[id] = struct{}{}
		return nil
	}

	// Head page is full: the page being freed becomes the new head,
	// chained to the old one.
	newHead := make([]byte, fs.pageSize)
	encodeFreeListPage(newHead, fs.headFree, true, nil)
	if err := fs.writeSlotLocked(id, newHead); err != nil {
		return err
	}
	fs.headFree = id
	fs.freeCount++
	fs.freeSet[id] = struct{}{}
	return nil
}

// popFreePage removes and returns a page id from the free chain. Must be
// called with fs.mu held. ok is false (with a nil error) when the chain is
// empty.
func (fs *FileStore) popFreePage() (id PageID, ok bool, err error) {
	if !fs.hasFree {
		return 0, false, nil
	}

	headBuf, err := fs.readSlotLocked(fs.headFree)
	if err != nil {
		return 0, false, err
	}
	hasNext, next, entries := decodeFreeListPage(headBuf)

	if len(entries) > 0 {
		id = entries[len(entries)-1]
		entries = entries[:len(entries)-1]
		encodeFreeListPage(headBuf, next, hasNext, entries)
		if err := fs.writeSlotLocked(fs.headFree, headBuf); err != nil {
			return 0, false, err
		}
		fs.freeCount--
		delete(fs.freeSet, id)
		return id, true, nil
	}

	// The head page itself has no entries left; reclaim it as the
	// returned free page and advance the chain.
	oldHead := fs.headFree
	fs.hasFree = hasNext
	fs.headFree = next
	fs.freeCount--
	delete(fs.freeSet, oldHead)
	return oldHead, true, nil
}
