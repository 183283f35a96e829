package check_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tvondra/pg-check/btree"
	"github.com/tvondra/pg-check/check"
	"github.com/tvondra/pg-check/fixture"
	"github.com/tvondra/pg-check/logging"
	"github.com/tvondra/pg-check/page"
	"github.com/tvondra/pg-check/report"
	"github.com/tvondra/pg-check/tuple"
)

type memRelation struct {
	name  string
	pages [][]byte
	desc  tuple.RowDescriptor
}

func (r *memRelation) Name() string { return r.name }

func (r *memRelation) PageCount() uint32 { return uint32(len(r.pages)) }

func (r *memRelation) RowDescriptor() tuple.RowDescriptor { return r.desc }

func (r *memRelation) ReadPage(_ context.Context, block uint32, buf []byte) error {
	if int(block) >= len(r.pages) {
		return fmt.Errorf("block %d beyond %d pages", block, len(r.pages))
	}
	copy(buf, r.pages[block])
	return nil
}

type memTable struct {
	memRelation
	indexes []check.Index
}

func (t *memTable) Indexes() []check.Index { return t.indexes }

type memIndex struct {
	memRelation
	am string
}

func (i *memIndex) AccessMethod() string { return i.am }

// newHeap builds a one page table with nrows plain tuples.
func newHeap(nrows int, indexes ...check.Index) *memTable {
	b := fixture.NewBuilder(8192)
	for i := 0; i < nrows; i++ {
		b.AddTuple(page.ItemNormal,
			fixture.HeapTuple(0, 2, nil,
				append(fixture.Int4(int32(i)), fixture.Int4(int32(i*10))...)))
	}
	return &memTable{
		memRelation: memRelation{name: "accounts", pages: [][]byte{b.Bytes()}, desc: fixture.Desc(2)},
		indexes:     indexes,
	}
}

// newBTree builds a two page index (metapage + one leaf) referencing the
// given heap slots of page 0.
func newBTree(slots ...uint16) *memIndex {
	meta := fixture.MetaPage(8192, btree.Meta{
		Magic: btree.Magic, Version: btree.Version, Root: 1, FastRoot: 1,
	})

	leaf := fixture.NewBuilder(8192).
		WithSpecial(fixture.Opaque(0, 0, 0, btree.FlagLeaf))
	for _, slot := range slots {
		leaf.AddTuple(page.ItemNormal,
			fixture.IndexTuple(0, slot, 1, nil, fixture.Int4(int32(slot))))
	}

	return &memIndex{
		memRelation: memRelation{
			name:  "accounts_pkey",
			pages: [][]byte{meta, leaf.Bytes()},
			desc:  fixture.Desc(1),
		},
		am: check.AccessMethodBTree,
	}
}

func newChecker(col *report.Collector) *check.Checker {
	return check.New(*logging.CreateDebugLogger(), col)
}

func TestCheckTable(t *testing.T) {

	ctx := context.Background()

	t.Run("Test clean table", func(t *testing.T) {
		col := &report.Collector{}
		nerrs, err := newChecker(col).CheckTable(ctx, newHeap(5), check.Options{PageSize: 8192})
		assert.Nil(t, err)
		assert.Equal(t, uint32(0), nerrs)
		assert.Empty(t, col.Findings)
	})

	t.Run("Test corrupted page is counted", func(t *testing.T) {
		tbl := newHeap(5)
		tbl.pages[0][12] = 0x40 // flag bit outside the valid mask

		col := &report.Collector{}
		nerrs, err := newChecker(col).CheckTable(ctx, tbl, check.Options{PageSize: 8192})
		assert.Nil(t, err)
		assert.Equal(t, uint32(1), nerrs)
		assert.Contains(t, col.Findings[0].Message, "invalid flag bits")
	})

	t.Run("Test index matching the heap", func(t *testing.T) {
		tbl := newHeap(5, newBTree(1, 2, 3, 4, 5))

		col := &report.Collector{}
		nerrs, err := newChecker(col).CheckTable(ctx, tbl, check.Options{
			PageSize: 8192, CheckIndexes: true, CrossCheck: true,
		})
		assert.Nil(t, err)
		assert.Equal(t, uint32(0), nerrs)
		assert.Empty(t, col.Findings)
	})

	t.Run("Test extra index reference", func(t *testing.T) {
		tbl := newHeap(5, newBTree(1, 2, 3, 4, 5, 6))

		col := &report.Collector{}
		nerrs, err := newChecker(col).CheckTable(ctx, tbl, check.Options{
			PageSize: 8192, CheckIndexes: true, CrossCheck: true,
		})
		assert.Nil(t, err)
		assert.Equal(t, uint32(1), nerrs)
		assert.Contains(t, col.Findings[0].Message, "1 differences between the table and index accounts_pkey")
	})

	t.Run("Test missing index reference", func(t *testing.T) {
		tbl := newHeap(5, newBTree(1, 2, 3))

		col := &report.Collector{}
		nerrs, err := newChecker(col).CheckTable(ctx, tbl, check.Options{
			PageSize: 8192, CheckIndexes: true, CrossCheck: true,
		})
		assert.Nil(t, err)
		assert.Equal(t, uint32(2), nerrs)
	})

	t.Run("Test two indexes share the scratch bitmap", func(t *testing.T) {
		tbl := newHeap(5, newBTree(1, 2, 3, 4, 5), newBTree(1, 2, 3, 4, 5))

		col := &report.Collector{}
		nerrs, err := newChecker(col).CheckTable(ctx, tbl, check.Options{
			PageSize: 8192, CheckIndexes: true, CrossCheck: true,
		})
		assert.Nil(t, err)
		assert.Equal(t, uint32(0), nerrs)
	})

	t.Run("Test unknown access method falls back", func(t *testing.T) {
		hash := &memIndex{
			memRelation: memRelation{
				name:  "accounts_hash",
				pages: [][]byte{fixture.NewBuilder(8192).Bytes()},
				desc:  fixture.Desc(1),
			},
			am: "hash",
		}
		tbl := newHeap(5, hash)

		col := &report.Collector{}
		nerrs, err := newChecker(col).CheckTable(ctx, tbl, check.Options{
			PageSize: 8192, CheckIndexes: true, CrossCheck: true,
		})
		assert.Nil(t, err)
		assert.Equal(t, uint32(0), nerrs)

		// no cross-check finding against an index that cannot be compared
		for _, f := range col.Findings {
			assert.False(t, strings.Contains(f.Message, "differences"))
		}
	})

	t.Run("Test block range with indexes rejected", func(t *testing.T) {
		nerrs, err := newChecker(&report.Collector{}).CheckTable(ctx, newHeap(5), check.Options{
			PageSize: 8192, CheckIndexes: true,
			BlockRangeSet: true, BlockFrom: 0, BlockTo: 1,
		})
		assert.ErrorIs(t, err, check.ErrBlockRangeWithIndexes)
		assert.Equal(t, uint32(0), nerrs)
	})

	t.Run("Test inverted block range rejected", func(t *testing.T) {
		_, err := newChecker(&report.Collector{}).CheckTable(ctx, newHeap(5), check.Options{
			PageSize: 8192, BlockRangeSet: true, BlockFrom: 5, BlockTo: 2,
		})
		assert.NotNil(t, err)
	})

	t.Run("Test block range clamped to the relation", func(t *testing.T) {
		nerrs, err := newChecker(&report.Collector{}).CheckTable(ctx, newHeap(5), check.Options{
			PageSize: 8192, BlockRangeSet: true, BlockFrom: 0, BlockTo: 100,
		})
		assert.Nil(t, err)
		assert.Equal(t, uint32(0), nerrs)
	})

	t.Run("Test cancelled context stops the scan", func(t *testing.T) {
		cctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := newChecker(&report.Collector{}).CheckTable(cctx, newHeap(5), check.Options{PageSize: 8192})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestCheckIndex(t *testing.T) {

	ctx := context.Background()

	t.Run("Test clean index", func(t *testing.T) {
		col := &report.Collector{}
		nerrs, err := newChecker(col).CheckIndex(ctx, newBTree(1, 2, 3), check.Options{PageSize: 8192})
		assert.Nil(t, err)
		assert.Equal(t, uint32(0), nerrs)
	})

	t.Run("Test corrupted metapage", func(t *testing.T) {
		idx := newBTree(1, 2, 3)
		idx.pages[0] = fixture.MetaPage(8192, btree.Meta{Magic: 0xBAD, Version: btree.Version, Root: 1, FastRoot: 1})

		col := &report.Collector{}
		nerrs, err := newChecker(col).CheckIndex(ctx, idx, check.Options{PageSize: 8192})
		assert.Nil(t, err)
		assert.Equal(t, uint32(1), nerrs)
		assert.Contains(t, col.Findings[0].Message, "invalid magic number")
	})
}
