package bufferpool

import (
	"errors"
	"sync"

	"github.com/tuannm99/novabuf/internal/storage"
)

var errInjected = errors.New("injected I/O failure")

// memFile is an in-memory storage.File that counts I/O per page.
type memFile struct {
	id storage.FileID

	mu       sync.Mutex
	pages    map[storage.PageNo][]byte
	next     storage.PageNo
	reads    map[storage.PageNo]int
	writes   map[storage.PageNo]int
	disposed []storage.PageNo

	failRead    bool
	failWrite   bool
	failAlloc   bool
	failDispose bool
}

var _ storage.File = (*memFile)(nil)

// newMemFile returns a file with n pages; page p is filled with byte(p+1).
func newMemFile(n int) *memFile {
	f := &memFile{
		id:     storage.NewFileID(),
		pages:  make(map[storage.PageNo][]byte),
		reads:  make(map[storage.PageNo]int),
		writes: make(map[storage.PageNo]int),
	}
	for i := 0; i < n; i++ {
		buf := make([]byte, storage.PageSize)
		for j := range buf {
			buf[j] = byte(i + 1)
		}
		f.pages[storage.PageNo(i)] = buf
	}
	f.next = storage.PageNo(n)
	return f
}

func (f *memFile) ID() storage.FileID { return f.id }

func (f *memFile) ReadPage(pageNo storage.PageNo, dst []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRead {
		return errInjected
	}
	src, ok := f.pages[pageNo]
	if !ok {
		return storage.ErrPageOutOfRange
	}
	f.reads[pageNo]++
	copy(dst, src)
	return nil
}

func (f *memFile) WritePage(pageNo storage.PageNo, src []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrite {
		return errInjected
	}
	if _, ok := f.pages[pageNo]; !ok {
		return storage.ErrPageOutOfRange
	}
	f.writes[pageNo]++
	f.pages[pageNo] = append([]byte(nil), src...)
	return nil
}

func (f *memFile) AllocatePage() (storage.PageNo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAlloc {
		return storage.InvalidPageNo, errInjected
	}
	p := f.next
	f.next++
	f.pages[p] = make([]byte, storage.PageSize)
	return p, nil
}

func (f *memFile) DisposePage(pageNo storage.PageNo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDispose {
		return errInjected
	}
	if _, ok := f.pages[pageNo]; !ok {
		return storage.ErrPageOutOfRange
	}
	delete(f.pages, pageNo)
	f.disposed = append(f.disposed, pageNo)
	return nil
}

func (f *memFile) readCount(p storage.PageNo) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[p]
}

func (f *memFile) writeCount(p storage.PageNo) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes[p]
}

func (f *memFile) stored(p storage.PageNo) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pages[p]
}

// restore brings a disposed page back as a zeroed page.
func (f *memFile) restore(p storage.PageNo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[p] = make([]byte, storage.PageSize)
}
