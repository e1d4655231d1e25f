package bufferpool

import "github.com/arcdb/pagepool/pkg/pagestore"

// frame is one slot of the pool: a fixed-size buffer plus the metadata the
// manager needs to decide whether it can be reused. Frames are created once
// at pool construction and never reallocated; only their contents change.
type frame struct {
	pageID   pagestore.PageID
	resident bool // false means this frame currently holds no page
	pinCount int
	dirty    bool
	data     []byte
}

func newFrame(pageSize int) *frame {
	return &frame{data: make([]byte, pageSize)}
}

// clear resets a frame to the empty state: no page, no pins, not dirty.
// The data buffer is left as-is (its content is conceptually undefined
// until the frame is bound to a page again).
func (f *frame) clear() {
	f.resident = false
	f.pageID = 0
	f.pinCount = 0
	f.dirty = false
}

func (f *frame) isEvictable() bool {
	return f.resident && f.pinCount == 0
}
