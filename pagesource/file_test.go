package pagesource_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tvondra/pg-check/check"
	"github.com/tvondra/pg-check/fixture"
	"github.com/tvondra/pg-check/pagesource"
)

func writeRelation(t *testing.T, name string, pages ...[]byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	var buf []byte
	for _, p := range pages {
		buf = append(buf, p...)
	}
	assert.Nil(t, os.WriteFile(path, buf, 0o644))
	return path
}

func TestFileSource(t *testing.T) {

	page0 := fixture.NewBuilder(8192).WithID(1).Bytes()
	page1 := fixture.NewBuilder(8192).WithID(2).Bytes()

	t.Run("Test open and read pages", func(t *testing.T) {
		path := writeRelation(t, "accounts", page0, page1)

		tbl, err := pagesource.OpenTable(pagesource.FileOptions{Path: path}, fixture.Desc(2), nil)
		assert.Nil(t, err)
		defer tbl.Close()

		assert.Equal(t, path, tbl.Name())
		assert.Equal(t, uint32(2), tbl.PageCount())

		buf := make([]byte, 8192)
		assert.Nil(t, tbl.ReadPage(context.Background(), 0, buf))
		assert.Equal(t, page0, buf)

		assert.Nil(t, tbl.ReadPage(context.Background(), 1, buf))
		assert.Equal(t, page1, buf)
	})

	t.Run("Test block beyond the file", func(t *testing.T) {
		path := writeRelation(t, "accounts", page0)

		tbl, err := pagesource.OpenTable(pagesource.FileOptions{Path: path}, fixture.Desc(2), nil)
		assert.Nil(t, err)
		defer tbl.Close()

		assert.NotNil(t, tbl.ReadPage(context.Background(), 1, make([]byte, 8192)))
	})

	t.Run("Test wrong buffer size", func(t *testing.T) {
		path := writeRelation(t, "accounts", page0)

		tbl, err := pagesource.OpenTable(pagesource.FileOptions{Path: path}, fixture.Desc(2), nil)
		assert.Nil(t, err)
		defer tbl.Close()

		assert.NotNil(t, tbl.ReadPage(context.Background(), 0, make([]byte, 4096)))
	})

	t.Run("Test truncated file rejected", func(t *testing.T) {
		path := writeRelation(t, "accounts", page0[:5000])

		_, err := pagesource.OpenTable(pagesource.FileOptions{Path: path}, fixture.Desc(2), nil)
		assert.NotNil(t, err)
	})

	t.Run("Test missing file", func(t *testing.T) {
		_, err := pagesource.OpenTable(pagesource.FileOptions{Path: "/does/not/exist"}, fixture.Desc(2), nil)
		assert.NotNil(t, err)
	})

	t.Run("Test index access method", func(t *testing.T) {
		path := writeRelation(t, "accounts_pkey", page0)

		idx, err := pagesource.OpenIndex(pagesource.FileOptions{Path: path}, fixture.Desc(1), check.AccessMethodBTree)
		assert.Nil(t, err)
		defer idx.Close()

		assert.Equal(t, check.AccessMethodBTree, idx.AccessMethod())
		assert.Equal(t, uint32(1), idx.PageCount())
	})

	t.Run("Test custom page size", func(t *testing.T) {
		small := fixture.NewBuilder(4096).Bytes()
		path := writeRelation(t, "accounts", small, small, small)

		tbl, err := pagesource.OpenTable(pagesource.FileOptions{Path: path, PageSizeByte: 4096}, fixture.Desc(2), nil)
		assert.Nil(t, err)
		defer tbl.Close()

		assert.Equal(t, uint32(3), tbl.PageCount())
	})
}
