package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
)

var _ File = (*PagedFile)(nil)

// PagedFile stores fixed-size pages in a directory on an afero.Fs.
// Segments are stored as: Base, Base.1, Base.2, ...
//
// Disposed page numbers are kept on an in-memory free list and handed
// out again by AllocatePage. The free list is not persisted: after a
// reopen every page below the high-water mark is live again.
type PagedFile struct {
	id   FileID
	fs   afero.Fs
	dir  string
	base string

	mu       sync.Mutex
	numPages PageNo
	free     []PageNo
	disposed map[PageNo]struct{}
}

// OpenPagedFile opens (or creates) the segment set dir/base on fs.
// The page count is recovered from the existing segment sizes.
func OpenPagedFile(fs afero.Fs, dir, base string) (*PagedFile, error) {
	if err := fs.MkdirAll(dir, FileMode0755); err != nil {
		return nil, fmt.Errorf("storage: create dir %s: %w", dir, err)
	}
	pf := &PagedFile{
		id:       NewFileID(),
		fs:       fs,
		dir:      dir,
		base:     base,
		disposed: make(map[PageNo]struct{}),
	}
	n, err := pf.countPages()
	if err != nil {
		return nil, err
	}
	pf.numPages = n
	return pf, nil
}

func (pf *PagedFile) ID() FileID { return pf.id }

func (pf *PagedFile) Name() string { return filepath.Join(pf.dir, pf.base) }

// NumPages returns the high-water mark, disposed pages included.
func (pf *PagedFile) NumPages() PageNo {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	return pf.numPages
}

func (pf *PagedFile) segmentPath(segNo int32) string {
	name := pf.base
	if segNo > 0 {
		name = fmt.Sprintf("%s.%d", pf.base, segNo)
	}
	return filepath.Join(pf.dir, name)
}

func (pf *PagedFile) openSegment(segNo int32) (afero.File, error) {
	// RDWR | CREATE (no truncate)
	return pf.fs.OpenFile(pf.segmentPath(segNo), os.O_RDWR|os.O_CREATE, FileMode0644)
}

func locate(pageNo PageNo) (segNo int32, offset int64) {
	segNo = int32(pageNo) / MaxPagePerSegment
	pageInSeg := int64(pageNo) % MaxPagePerSegment
	return segNo, pageInSeg * PageSize
}

// countPages sums whole pages over all existing segments.
func (pf *PagedFile) countPages() (PageNo, error) {
	var total PageNo
	for segNo := int32(0); ; segNo++ {
		info, err := pf.fs.Stat(pf.segmentPath(segNo))
		if err != nil {
			if os.IsNotExist(err) {
				break
			}
			return 0, err
		}
		total += PageNo(info.Size() / PageSize)
	}
	return total, nil
}

// checkLocked validates pageNo against the high-water mark and the
// disposed set. Caller holds pf.mu.
func (pf *PagedFile) checkLocked(pageNo PageNo) error {
	if pageNo < 0 || pageNo >= pf.numPages {
		return fmt.Errorf("%w: page %d of %s (pages=%d)", ErrPageOutOfRange, pageNo, pf.Name(), pf.numPages)
	}
	if _, ok := pf.disposed[pageNo]; ok {
		return fmt.Errorf("%w: page %d of %s", ErrPageDisposed, pageNo, pf.Name())
	}
	return nil
}

// ReadPage reads exactly one page into dst. A short segment is
// zero-filled past EOF.
func (pf *PagedFile) ReadPage(pageNo PageNo, dst []byte) error {
	if len(dst) != PageSize {
		return ErrWrongSize
	}
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if err := pf.checkLocked(pageNo); err != nil {
		return err
	}
	return pf.readAt(pageNo, dst)
}

func (pf *PagedFile) readAt(pageNo PageNo, dst []byte) (err error) {
	segNo, off := locate(pageNo)
	f, err := pf.openSegment(segNo)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(f))

	n, err := f.ReadAt(dst, off)
	if err != nil && err != io.EOF {
		return err
	}
	clear(dst[n:])
	return nil
}

// WritePage writes exactly one page from src at pageNo.
func (pf *PagedFile) WritePage(pageNo PageNo, src []byte) error {
	if len(src) != PageSize {
		return ErrWrongSize
	}
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if err := pf.checkLocked(pageNo); err != nil {
		return err
	}
	return pf.writeAt(pageNo, src)
}

func (pf *PagedFile) writeAt(pageNo PageNo, src []byte) (err error) {
	segNo, off := locate(pageNo)
	f, err := pf.openSegment(segNo)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(f))

	n, err := f.WriteAt(src, off)
	if err != nil {
		return err
	}
	if n != PageSize {
		return io.ErrShortWrite
	}
	return nil
}

// AllocatePage reserves a page number, reusing disposed pages first.
// The page is zeroed on disk before it is returned.
func (pf *PagedFile) AllocatePage() (PageNo, error) {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	var pageNo PageNo
	reused := false
	if n := len(pf.free); n > 0 {
		pageNo = pf.free[n-1]
		reused = true
	} else {
		pageNo = pf.numPages
	}

	if err := pf.writeAt(pageNo, make([]byte, PageSize)); err != nil {
		return InvalidPageNo, fmt.Errorf("storage: allocate page %d of %s: %w", pageNo, pf.Name(), err)
	}

	if reused {
		pf.free = pf.free[:len(pf.free)-1]
		delete(pf.disposed, pageNo)
	} else {
		pf.numPages++
	}
	return pageNo, nil
}

// DisposePage releases pageNo for reuse by a later AllocatePage.
func (pf *PagedFile) DisposePage(pageNo PageNo) error {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if err := pf.checkLocked(pageNo); err != nil {
		return err
	}
	pf.disposed[pageNo] = struct{}{}
	pf.free = append(pf.free, pageNo)
	return nil
}
