package bufferpool

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/tuannm99/novabuf/internal/storage"
)

// pageKey uniquely identifies a cached page.
type pageKey struct {
	file   storage.FileID
	pageNo storage.PageNo
}

func (k pageKey) hash() uint64 {
	var buf [20]byte
	copy(buf[:16], k.file[:])
	binary.LittleEndian.PutUint32(buf[16:], uint32(k.pageNo))
	return xxhash.Sum64(buf[:])
}

type indexEntry struct {
	key     pageKey
	frameNo int
	next    *indexEntry
}

// pageIndex maps (file, pageNo) -> frame number with separate chaining.
// It holds at most one entry per frame.
type pageIndex struct {
	buckets []*indexEntry
	size    int
	limit   int
}

func newPageIndex(frames int) *pageIndex {
	return &pageIndex{
		buckets: make([]*indexEntry, int(float64(frames)*1.2)+1),
		limit:   frames,
	}
}

func (x *pageIndex) bucket(k pageKey) int {
	return int(k.hash() % uint64(len(x.buckets)))
}

func (x *pageIndex) lookup(k pageKey) (int, error) {
	for e := x.buckets[x.bucket(k)]; e != nil; e = e.next {
		if e.key == k {
			return e.frameNo, nil
		}
	}
	return -1, ErrIndexNotFound
}

func (x *pageIndex) insert(k pageKey, frameNo int) error {
	b := x.bucket(k)
	for e := x.buckets[b]; e != nil; e = e.next {
		if e.key == k {
			return ErrIndexExists
		}
	}
	if x.size >= x.limit {
		return ErrIndexFull
	}
	x.buckets[b] = &indexEntry{key: k, frameNo: frameNo, next: x.buckets[b]}
	x.size++
	return nil
}

func (x *pageIndex) remove(k pageKey) error {
	b := x.bucket(k)
	var prev *indexEntry
	for e := x.buckets[b]; e != nil; prev, e = e, e.next {
		if e.key != k {
			continue
		}
		if prev == nil {
			x.buckets[b] = e.next
		} else {
			prev.next = e.next
		}
		x.size--
		return nil
	}
	return ErrIndexNotFound
}

func (x *pageIndex) count() int { return x.size }
