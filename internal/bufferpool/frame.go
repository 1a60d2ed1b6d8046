package bufferpool

import "github.com/tuannm99/novabuf/internal/storage"

// frameDesc is the bookkeeping for one pool slot. frameNo never changes;
// gen changes on every set and clear, so a guard can tell whether the
// frame still holds the mapping it was issued for.
type frameDesc struct {
	file     storage.File
	pageNo   storage.PageNo
	frameNo  int
	gen      uint64
	pinCount int32
	dirty    bool
	refBit   bool
	valid    bool
}

func newFrameTable(capacity int) []frameDesc {
	descs := make([]frameDesc, capacity)
	for i := range descs {
		descs[i].frameNo = i
		descs[i].pageNo = storage.InvalidPageNo
	}
	return descs
}

// newSlots carves capacity page slots out of one contiguous arena.
func newSlots(capacity int) [][]byte {
	arena := make([]byte, capacity*storage.PageSize)
	slots := make([][]byte, capacity)
	for i := range slots {
		slots[i] = arena[i*storage.PageSize : (i+1)*storage.PageSize : (i+1)*storage.PageSize]
	}
	return slots
}

// set marks the frame as holding (file, pageNo) with its first pin.
func (d *frameDesc) set(file storage.File, pageNo storage.PageNo) {
	d.file = file
	d.pageNo = pageNo
	d.pinCount = 1
	d.dirty = false
	d.refBit = true
	d.valid = true
	d.gen++
}

func (d *frameDesc) clear() {
	d.file = nil
	d.pageNo = storage.InvalidPageNo
	d.pinCount = 0
	d.dirty = false
	d.refBit = false
	d.valid = false
	d.gen++
}

func (d *frameDesc) key() pageKey {
	return pageKey{file: d.file.ID(), pageNo: d.pageNo}
}

func (d *frameDesc) ownedBy(id storage.FileID) bool {
	return d.file != nil && d.file.ID() == id
}
