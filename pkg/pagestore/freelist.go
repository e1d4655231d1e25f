package pagestore

import "encoding/binary"

// freeListHeaderSize is the size, in bytes, of the bookkeeping header that
// precedes the entry list inside a free-list page's payload: a "next
// free-list page" id plus an entry count.
const freeListHeaderSize = 8

// freeListNone marks the end of the free-list chain in the on-disk "next"
// field.
const freeListNone = ^uint32(0)

// encodeFreeListPage serializes a free-list bookkeeping page: the id of the
// next page in the chain (or freeListNone) followed by up to
// maxFreeListEntries(pageSize) free page ids. buf must be exactly pageSize
// bytes; any bytes beyond the header and entries are left untouched.
func encodeFreeListPage(buf []byte, next PageID, hasNext bool, entries []PageID) {
	nextVal := freeListNone
	if hasNext {
		nextVal = uint32(next)
	}
	binary.LittleEndian.PutUint32(buf[0:4], nextVal)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(entries)))
	for i, id := range entries {
		off := freeListHeaderSize + i*4
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(id))
	}
}

// decodeFreeListPage is the inverse of encodeFreeListPage.
func decodeFreeListPage(buf []byte) (hasNext bool, next PageID, entries []PageID) {
	nextVal := binary.LittleEndian.Uint32(buf[0:4])
	hasNext = nextVal != freeListNone
	next = PageID(nextVal)

	count := binary.LittleEndian.Uint32(buf[4:8])
	entries = make([]PageID, 0, count)
	for i := uint32(0); i < count; i++ {
		off := freeListHeaderSize + int(i)*4
		entries = append(entries, PageID(binary.LittleEndian.Uint32(buf[off:off+4])))
	}
	return hasNext, next, entries
}

// maxFreeListEntries returns how many free page ids fit in a single
// free-list page's payload, given the store's configured page size.
func maxFreeListEntries(pageSize int) int {
	return (pageSize - freeListHeaderSize) / 4
}
