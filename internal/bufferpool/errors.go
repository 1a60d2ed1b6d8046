package bufferpool

import "errors"

var (
	ErrBufferExceeded = errors.New("bufferpool: no free frame available (all pinned)")
	ErrPageNotFound   = errors.New("bufferpool: page not in buffer pool")
	ErrPageNotPinned  = errors.New("bufferpool: page is not pinned")
	ErrPagePinned     = errors.New("bufferpool: page is pinned")
	ErrBadBuffer      = errors.New("bufferpool: frame descriptor inconsistent")
	ErrClosed         = errors.New("bufferpool: manager is closed")
	ErrGuardReleased  = errors.New("bufferpool: page guard already released")

	ErrIndexNotFound = errors.New("bufferpool: page index entry not found")
	ErrIndexExists   = errors.New("bufferpool: page index entry already exists")
	ErrIndexFull     = errors.New("bufferpool: page index is full")
)
