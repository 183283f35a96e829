package pagesource

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/tvondra/pg-check/check"
	"github.com/tvondra/pg-check/page"
	"github.com/tvondra/pg-check/tuple"
)

var ErrShortRead = fmt.Errorf("short page read")

type FileOptions struct {
	Path         string
	PageSizeByte uint32
}

// file is a read-only page source over one relation file. The page count
// is fixed at open time, the checker scans a snapshot-sized range even
// if the file grows underneath it.
type file struct {
	name      string
	fd        int
	pageSize  uint32
	pageCount uint32
	desc      tuple.RowDescriptor
}

func openFile(opts FileOptions, desc tuple.RowDescriptor) (*file, error) {
	if opts.PageSizeByte == 0 {
		opts.PageSizeByte = page.DefaultPageSize
	}

	f, err := os.Open(opts.Path)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	if info.Size()%int64(opts.PageSizeByte) != 0 {
		f.Close()
		return nil, fmt.Errorf("%s: size %d is not a multiple of the page size %d",
			opts.Path, info.Size(), opts.PageSizeByte)
	}

	fd, err := syscall.Dup(int(f.Fd()))
	f.Close()
	if err != nil {
		return nil, err
	}

	return &file{
		name:      opts.Path,
		fd:        fd,
		pageSize:  opts.PageSizeByte,
		pageCount: uint32(info.Size() / int64(opts.PageSizeByte)),
		desc:      desc,
	}, nil
}

func (f *file) Name() string {
	return f.name
}

func (f *file) PageCount() uint32 {
	return f.pageCount
}

func (f *file) RowDescriptor() tuple.RowDescriptor {
	return f.desc
}

func (f *file) ReadPage(_ context.Context, block uint32, buf []byte) error {
	if len(buf) != int(f.pageSize) {
		return fmt.Errorf("page buffer of %d bytes, page size is %d", len(buf), f.pageSize)
	}
	if block >= f.pageCount {
		return fmt.Errorf("block %d beyond the %d pages of %s", block, f.pageCount, f.name)
	}

	n, err := syscall.Pread(f.fd, buf, int64(block)*int64(f.pageSize))
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("%w: %d of %d bytes at block %d", ErrShortRead, n, len(buf), block)
	}
	return nil
}

func (f *file) Close() error {
	return syscall.Close(f.fd)
}

// Table is a file-backed heap relation.
type Table struct {
	file
	indexes []check.Index
}

func OpenTable(opts FileOptions, desc tuple.RowDescriptor, indexes []check.Index) (*Table, error) {
	f, err := openFile(opts, desc)
	if err != nil {
		return nil, err
	}
	return &Table{file: *f, indexes: indexes}, nil
}

func (t *Table) Indexes() []check.Index {
	return t.indexes
}

// Index is a file-backed index relation.
type Index struct {
	file
	accessMethod string
}

func OpenIndex(opts FileOptions, desc tuple.RowDescriptor, accessMethod string) (*Index, error) {
	f, err := openFile(opts, desc)
	if err != nil {
		return nil, err
	}
	return &Index{file: *f, accessMethod: accessMethod}, nil
}

func (i *Index) AccessMethod() string {
	return i.accessMethod
}
