package bufferpool

import "github.com/tuannm99/novabuf/internal/storage"

// PageGuard is a pinned, borrowed view of one cached page. Data aliases
// pool memory and is only valid until Release, or until the page is
// disposed under it. A stale guard's Release returns ErrPageNotFound. A guard is owned by a
// single caller and is not safe for concurrent use.
//
//	g, err := pool.FetchPage(f, 3)
//	if err != nil { ... }
//	defer g.Release()
type PageGuard struct {
	m        *Manager
	file     storage.File
	pageNo   storage.PageNo
	frameNo  int
	gen      uint64
	data     []byte
	dirty    bool
	released bool
}

func (m *Manager) newGuard(f storage.File, pageNo storage.PageNo, frameNo int) *PageGuard {
	return &PageGuard{
		m:       m,
		file:    f,
		pageNo:  pageNo,
		frameNo: frameNo,
		gen:     m.descs[frameNo].gen,
		data:    m.pages[frameNo],
	}
}

func (g *PageGuard) Data() []byte { return g.data }

func (g *PageGuard) File() storage.File { return g.file }

func (g *PageGuard) PageNo() storage.PageNo { return g.pageNo }

func (g *PageGuard) FrameNo() int { return g.frameNo }

// MarkDirty records that Data was modified; Release will unpin dirty.
func (g *PageGuard) MarkDirty() { g.dirty = true }

// Release unpins the page exactly once.
func (g *PageGuard) Release() error {
	if g.released {
		return ErrGuardReleased
	}
	g.released = true
	g.data = nil
	return g.m.unpinFrame(g.file, g.pageNo, g.frameNo, g.gen, g.dirty)
}
