package check

import (
	"context"

	"github.com/tvondra/pg-check/tuple"
)

// Relation hands out raw pages of one on-disk structure. The checker
// does not care where the bytes come from - a file, a buffer cache, a
// network copy - but it relies on each page being a self-consistent
// snapshot. When cross-checking, the implementation must also exclude
// concurrent structural changes for the whole check; structure-only
// validation tolerates a moving target.
type Relation interface {
	Name() string
	PageCount() uint32

	// ReadPage fills buf (one page size worth of bytes) with the
	// content of the given block.
	ReadPage(ctx context.Context, block uint32, buf []byte) error
}

// Table is a heap relation together with its schema and indexes.
type Table interface {
	Relation
	RowDescriptor() tuple.RowDescriptor
	Indexes() []Index
}

// Index is an index relation. The access method identifier selects the
// validator, anything unrecognized falls back to generic page checks.
type Index interface {
	Relation
	RowDescriptor() tuple.RowDescriptor
	AccessMethod() string
}

const AccessMethodBTree = "btree"
