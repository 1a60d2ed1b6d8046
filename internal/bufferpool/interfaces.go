package bufferpool

import (
	"io"

	"github.com/tuannm99/novabuf/internal/storage"
)

// Pool is what record and index layers see of the buffer manager.
type Pool interface {
	FetchPage(f storage.File, pageNo storage.PageNo) (*PageGuard, error)
	UnpinPage(f storage.File, pageNo storage.PageNo, dirty bool) error
	AllocPage(f storage.File) (storage.PageNo, *PageGuard, error)
	DisposePage(f storage.File, pageNo storage.PageNo) error
	FlushFile(f storage.File) error
	FlushAll() error
	Stats() Stats
	Dump(w io.Writer) error
	Close() error
}
