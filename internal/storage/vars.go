package storage

import (
	"errors"
)

const (
	OneKB = 1 << 10 // 1,024
	OneGB = 1 << 30 // 1,073,741,824

	SegmentSize       = 1 << 30                // 1,073,741,824 (1 GiB)
	PageSize          = 1 << 13                // 8,192 (8 KiB)
	MaxPagePerSegment = SegmentSize / PageSize // 131,072 pages/segment
)

const (
	FileMode0644 = 0o644
	FileMode0755 = 0o755
)

var (
	ErrWrongSize      = errors.New("storage: buffer size != PageSize")
	ErrPageOutOfRange = errors.New("storage: page number out of range")
	ErrPageDisposed   = errors.New("storage: page is disposed")
)
