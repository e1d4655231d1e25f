package bufferpool

import "container/list"

// frameIndex identifies a slot in the pool's frame array.
type frameIndex int

// lruReplacer is the ordered set of frame indices that are currently
// evictable, most-recently-touched at the front and least-recently-touched
// at the back. It is the same shape as the teacher codebase's
// pkg/cache.LRUCache and pkg/index.NodeCache — a doubly linked list plus an
// index map for O(1) touch/remove/evict — specialized to frame indices
// instead of cache keys or page ids, since the buffer pool manager already
// owns the notion of "key" (the page directory) and only needs recency
// ordering over frame slots here.
type lruReplacer struct {
	order *list.List
	nodes map[frameIndex]*list.Element
}

func newLRUReplacer() *lruReplacer {
	return &lruReplacer{
		order: list.New(),
		nodes: make(map[frameIndex]*list.Element),
	}
}

// touch moves idx to the most-recently-used position, inserting it if it
// isn't already present. Called when a frame transitions from pinned to
// unpinned.
func (r *lruReplacer) touch(idx frameIndex) {
	if elem, ok := r.nodes[idx]; ok {
		r.order.MoveToFront(elem)
		return
	}
	r.nodes[idx] = r.order.PushFront(idx)
}

// remove takes idx out of the replacer; a no-op if idx isn't present.
// Called when a frame transitions from unpinned to pinned, or is about to
// be deleted.
func (r *lruReplacer) remove(idx frameIndex) {
	elem, ok := r.nodes[idx]
	if !ok {
		return
	}
	r.order.Remove(elem)
	delete(r.nodes, idx)
}

// evict removes and returns the least-recently-used index, or ok=false if
// the replacer is empty.
func (r *lruReplacer) evict() (idx frameIndex, ok bool) {
	back := r.order.Back()
	if back == nil {
		return 0, false
	}
	idx = back.Value.(frameIndex)
	r.order.Remove(back)
	delete(r.nodes, idx)
	return idx, true
}

// size reports how many frame indices the replacer currently holds.
func (r *lruReplacer) size() int {
	return r.order.Len()
}
