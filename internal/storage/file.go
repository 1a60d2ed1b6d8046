package storage

import (
	"strconv"

	"github.com/google/uuid"
)

// PageNo is a logical page number inside one File.
type PageNo int32

const InvalidPageNo PageNo = -1

func (p PageNo) String() string {
	return strconv.FormatInt(int64(p), 10)
}

// FileID is the comparable identity of an open File.
// It is part of the buffer pool's page index key.
type FileID uuid.UUID

func NewFileID() FileID {
	return FileID(uuid.New())
}

func (id FileID) String() string {
	return uuid.UUID(id).String()
}

// File is the paged-file collaborator used by the buffer pool.
// Every call is synchronous; buffers are exactly PageSize bytes.
type File interface {
	ID() FileID
	ReadPage(pageNo PageNo, dst []byte) error
	WritePage(pageNo PageNo, src []byte) error
	AllocatePage() (PageNo, error)
	DisposePage(pageNo PageNo) error
}
