package bufferpool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tuannm99/novabuf/internal/storage"
	"github.com/tuannm99/novabuf/pkg/clockx"
)

var DefaultCapacity = 128

var _ Pool = (*Manager)(nil)

// Manager is a fixed-size buffer pool shared by all files. Frames are
// replaced with CLOCK (second chance). One mutex guards every operation,
// so a frame claimed by the clock is populated before anyone else can
// observe it.
type Manager struct {
	mu     sync.Mutex
	pages  [][]byte    // page slot storage, len == capacity
	descs  []frameDesc // frame descriptor table, parallel to pages
	index  *pageIndex  // (file,pageNo) -> frame index
	clock  *clockx.Clock
	closed bool

	log     *zap.Logger
	reg     prometheus.Registerer
	metrics *Metrics
}

type Option func(*Manager)

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithMetrics registers the pool collectors on reg. A registry holds the
// collectors of one pool only; New fails for a second pool on it.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(m *Manager) { m.reg = reg }
}

func New(capacity int, opts ...Option) (*Manager, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	m := &Manager{
		pages: newSlots(capacity),
		descs: newFrameTable(capacity),
		index: newPageIndex(capacity),
		clock: clockx.New(capacity),
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	metrics, err := newMetrics(m.reg, m)
	if err != nil {
		return nil, err
	}
	m.metrics = metrics
	return m, nil
}

func (m *Manager) Capacity() int { return len(m.descs) }

// allocFrame runs the clock over the descriptor table and returns a
// frame that is free to populate. A dirty victim is written back first;
// if that write fails the victim stays cached and the error is returned.
// Caller holds m.mu.
func (m *Manager) allocFrame() (int, error) {
	frameNo, err := m.clock.Sweep(func(i int) (bool, error) {
		d := &m.descs[i]
		switch {
		case !d.valid:
			return true, nil
		case d.pinCount != 0:
			return false, nil
		case d.refBit:
			d.refBit = false
			return false, nil
		}

		if d.dirty {
			if err := d.file.WritePage(d.pageNo, m.pages[i]); err != nil {
				return false, fmt.Errorf("bufferpool: write back page %d of %s from frame %d: %w",
					d.pageNo, d.file.ID(), i, err)
			}
			m.metrics.WriteBacks.Inc()
			m.log.Debug("wrote back dirty victim",
				zap.Int("frame", i), zap.Stringer("file", d.file.ID()), zap.Stringer("page", d.pageNo))
		}
		if err := m.index.remove(d.key()); err != nil {
			return false, fmt.Errorf("%w: valid frame %d has no index entry: %w", ErrBadBuffer, i, err)
		}
		m.log.Debug("evicted frame",
			zap.Int("frame", i), zap.Stringer("file", d.file.ID()), zap.Stringer("page", d.pageNo))
		d.clear()
		m.metrics.Evictions.Inc()
		return true, nil
	})
	if errors.Is(err, clockx.ErrExhausted) {
		m.metrics.BufferExceeded.Inc()
		return -1, ErrBufferExceeded
	}
	return frameNo, err
}

// populate reads pageNo of f into frame i and publishes the mapping.
// Caller holds m.mu and obtained i from allocFrame.
func (m *Manager) populate(f storage.File, pageNo storage.PageNo, i int) error {
	if err := f.ReadPage(pageNo, m.pages[i]); err != nil {
		return fmt.Errorf("bufferpool: read page %d of %s: %w", pageNo, f.ID(), err)
	}
	if err := m.index.insert(pageKey{file: f.ID(), pageNo: pageNo}, i); err != nil {
		return fmt.Errorf("%w: insert page %d of %s: %w", ErrBadBuffer, pageNo, f.ID(), err)
	}
	m.descs[i].set(f, pageNo)
	return nil
}

// FetchPage pins (f, pageNo), reading it from f on a miss.
func (m *Manager) FetchPage(f storage.File, pageNo storage.PageNo) (*PageGuard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	// 1) HIT
	if i, err := m.index.lookup(pageKey{file: f.ID(), pageNo: pageNo}); err == nil {
		d := &m.descs[i]
		d.pinCount++
		d.refBit = true
		m.metrics.Hits.Inc()
		return m.newGuard(f, pageNo, i), nil
	}

	// 2) MISS: claim a frame, then load
	m.metrics.Misses.Inc()
	i, err := m.allocFrame()
	if err != nil {
		return nil, fmt.Errorf("bufferpool: fetch page %d of %s: %w", pageNo, f.ID(), err)
	}
	if err := m.populate(f, pageNo, i); err != nil {
		return nil, err
	}
	return m.newGuard(f, pageNo, i), nil
}

// UnpinPage drops one pin on (f, pageNo). dirty is sticky: an unpin with
// dirty=false never clears an earlier dirty mark.
func (m *Manager) UnpinPage(f storage.File, pageNo storage.PageNo, dirty bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	i, err := m.index.lookup(pageKey{file: f.ID(), pageNo: pageNo})
	if err != nil {
		return fmt.Errorf("%w: page %d of %s", ErrPageNotFound, pageNo, f.ID())
	}
	return m.unpinLocked(&m.descs[i], dirty)
}

// unpinFrame unpins on behalf of a guard. The frame must still hold the
// mapping of generation gen; after a dispose and re-fetch of the same page
// the old guard must not take the new holder's pin.
func (m *Manager) unpinFrame(f storage.File, pageNo storage.PageNo, frameNo int, gen uint64, dirty bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	d := &m.descs[frameNo]
	if !d.valid || d.gen != gen {
		return fmt.Errorf("%w: page %d of %s (frame %d was reused)", ErrPageNotFound, pageNo, f.ID(), frameNo)
	}
	return m.unpinLocked(d, dirty)
}

func (m *Manager) unpinLocked(d *frameDesc, dirty bool) error {
	if d.pinCount == 0 {
		return fmt.Errorf("%w: page %d of %s", ErrPageNotPinned, d.pageNo, d.file.ID())
	}
	d.pinCount--
	if dirty {
		d.dirty = true
	}
	return nil
}

// AllocPage allocates a new page in f and pins it in the pool.
//
// If claiming a frame or reading the page back fails, the page stays
// allocated in f; its number is included in the returned error.
func (m *Manager) AllocPage(f storage.File) (storage.PageNo, *PageGuard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return storage.InvalidPageNo, nil, ErrClosed
	}

	pageNo, err := f.AllocatePage()
	if err != nil {
		return storage.InvalidPageNo, nil, fmt.Errorf("bufferpool: allocate page in %s: %w", f.ID(), err)
	}

	i, err := m.allocFrame()
	if err != nil {
		return pageNo, nil, fmt.Errorf("bufferpool: cache new page %d of %s: %w", pageNo, f.ID(), err)
	}
	if err := m.populate(f, pageNo, i); err != nil {
		return pageNo, nil, err
	}
	m.log.Debug("allocated page",
		zap.Int("frame", i), zap.Stringer("file", f.ID()), zap.Stringer("page", pageNo))
	return pageNo, m.newGuard(f, pageNo, i), nil
}

// DisposePage drops (f, pageNo) from the pool, whatever its pin count,
// and releases it in f. Disposing an uncached page is not an error.
func (m *Manager) DisposePage(f storage.File, pageNo storage.PageNo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	key := pageKey{file: f.ID(), pageNo: pageNo}
	if i, err := m.index.lookup(key); err == nil {
		if m.descs[i].pinCount > 0 {
			m.log.Warn("disposing pinned page",
				zap.Int("frame", i), zap.Stringer("file", f.ID()), zap.Stringer("page", pageNo),
				zap.Int32("pins", m.descs[i].pinCount))
		}
		m.descs[i].clear()
		if err := m.index.remove(key); err != nil {
			return fmt.Errorf("%w: dispose page %d of %s: %w", ErrBadBuffer, pageNo, f.ID(), err)
		}
	}

	if err := f.DisposePage(pageNo); err != nil {
		return fmt.Errorf("bufferpool: dispose page %d of %s: %w", pageNo, f.ID(), err)
	}
	return nil
}

// FlushFile writes back and drops every frame owned by f. It stops at
// the first pinned page with ErrPagePinned; frames visited before that
// are already flushed.
func (m *Manager) FlushFile(f storage.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	id := f.ID()
	flushed := 0
	for i := range m.descs {
		d := &m.descs[i]
		if !d.ownedBy(id) {
			continue
		}
		if !d.valid {
			m.log.Error("invalid frame still tagged with file",
				zap.Int("frame", i), zap.Stringer("file", id))
			return fmt.Errorf("%w: invalid frame %d tagged with %s", ErrBadBuffer, i, id)
		}
		if d.pinCount > 0 {
			return fmt.Errorf("%w: page %d of %s (pins=%d)", ErrPagePinned, d.pageNo, id, d.pinCount)
		}
		if d.dirty {
			if err := d.file.WritePage(d.pageNo, m.pages[i]); err != nil {
				return fmt.Errorf("bufferpool: flush page %d of %s: %w", d.pageNo, id, err)
			}
			d.dirty = false
			m.metrics.WriteBacks.Inc()
		}
		if err := m.index.remove(d.key()); err != nil {
			return fmt.Errorf("%w: valid frame %d has no index entry: %w", ErrBadBuffer, i, err)
		}
		d.clear()
		flushed++
	}
	m.log.Info("flushed file", zap.Stringer("file", id), zap.Int("frames", flushed))
	return nil
}

// FlushAll writes back every dirty frame and keeps it cached.
func (m *Manager) FlushAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	for i := range m.descs {
		d := &m.descs[i]
		if !d.valid || !d.dirty {
			continue
		}
		if err := d.file.WritePage(d.pageNo, m.pages[i]); err != nil {
			return fmt.Errorf("bufferpool: flush page %d of %s: %w", d.pageNo, d.file.ID(), err)
		}
		d.dirty = false
		m.metrics.WriteBacks.Inc()
	}
	return nil
}

// Close writes back all dirty frames, pinned or not, and shuts the pool
// down. Every frame is attempted; failures are combined.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.closed = true

	var err error
	flushed := 0
	for i := range m.descs {
		d := &m.descs[i]
		if !d.valid || !d.dirty {
			continue
		}
		if werr := d.file.WritePage(d.pageNo, m.pages[i]); werr != nil {
			err = multierr.Append(err, fmt.Errorf("bufferpool: flush page %d of %s from frame %d: %w",
				d.pageNo, d.file.ID(), i, werr))
			continue
		}
		d.dirty = false
		flushed++
		m.metrics.WriteBacks.Inc()
	}
	m.log.Info("buffer pool closed", zap.Int("flushed", flushed), zap.Error(err))
	return err
}

// Stats is a point-in-time summary of the frame table.
type Stats struct {
	Capacity int
	Valid    int
	Pinned   int
	Dirty    int
	Indexed  int
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{Capacity: len(m.descs), Indexed: m.index.count()}
	for i := range m.descs {
		d := &m.descs[i]
		if !d.valid {
			continue
		}
		s.Valid++
		if d.pinCount > 0 {
			s.Pinned++
		}
		if d.dirty {
			s.Dirty++
		}
	}
	return s
}
