package page_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tvondra/pg-check/fixture"
	"github.com/tvondra/pg-check/page"
	"github.com/tvondra/pg-check/report"
)

func TestReadLineTable(t *testing.T) {

	t.Run("Test round trip through the page", func(t *testing.T) {
		lps := []page.LinePointer{
			{Offset: 8000, Status: page.ItemNormal, Length: 100},
			{Offset: 3, Status: page.ItemRedirect, Length: 0},
			{Offset: 7900, Status: page.ItemDead, Length: 50},
			{Offset: 0, Status: page.ItemUnused, Length: 0},
		}

		b := fixture.NewBuilder(8192)
		for _, lp := range lps {
			b.AddItem(lp)
		}

		v := page.NewView(b.Bytes())
		h, err := page.ReadHeader(v)
		assert.Nil(t, err)
		assert.Equal(t, lps, page.ReadLineTable(v, h))
	})

	t.Run("Test corrupted lower truncates the table", func(t *testing.T) {
		b := fixture.NewBuilder(64)
		b.AddItem(page.LinePointer{Offset: 40, Status: page.ItemNormal, Length: 8})

		// lower claims far more items than the buffer holds
		buf := b.Bytes()
		buf[14] = 0xFF
		buf[15] = 0xFF

		v := page.NewView(buf)
		h, err := page.ReadHeader(v)
		assert.Nil(t, err)

		lps := page.ReadLineTable(v, h)
		assert.Equal(t, (64-page.HeaderSize)/page.LinePointerSize, len(lps))
	})
}

func TestItemStatus(t *testing.T) {
	assert.Equal(t, "unused", page.ItemUnused.String())
	assert.Equal(t, "normal", page.ItemNormal.String())
	assert.Equal(t, "redirect", page.ItemRedirect.String())
	assert.Equal(t, "dead", page.ItemDead.String())
}

func checkItems(h *page.Header, lps ...page.LinePointer) (uint32, *report.Collector) {
	col := &report.Collector{}
	return page.CheckLinePointers(lps, h, 0, col), col
}

func TestCheckLinePointers(t *testing.T) {

	// geometry only, the buffer itself is not consulted
	h := &page.Header{Upper: 100, Special: 8192}

	t.Run("Test unused with length", func(t *testing.T) {
		nerrs, col := checkItems(h, page.LinePointer{Status: page.ItemUnused, Length: 10})
		assert.Equal(t, uint32(1), nerrs)
		assert.Contains(t, col.Findings[0].Message, "unused item with length")
	})

	t.Run("Test redirect with length", func(t *testing.T) {
		nerrs, col := checkItems(h, page.LinePointer{Offset: 2, Status: page.ItemRedirect, Length: 10})
		assert.Equal(t, uint32(1), nerrs)
		assert.Contains(t, col.Findings[0].Message, "redirect item with length")
	})

	t.Run("Test dead without storage is fine", func(t *testing.T) {
		nerrs, _ := checkItems(h, page.LinePointer{Status: page.ItemDead, Length: 0})
		assert.Equal(t, uint32(0), nerrs)
	})

	t.Run("Test dead with storage is range checked", func(t *testing.T) {
		nerrs, col := checkItems(h, page.LinePointer{Offset: 50, Status: page.ItemDead, Length: 20})
		assert.Equal(t, uint32(1), nerrs)
		assert.Contains(t, col.Findings[0].Message, "below upper")
	})

	t.Run("Test normal with zero length", func(t *testing.T) {
		nerrs, col := checkItems(h, page.LinePointer{Offset: 100, Status: page.ItemNormal, Length: 0})
		assert.Equal(t, uint32(1), nerrs)
		assert.Contains(t, col.Findings[0].Message, "length = 0")
	})

	t.Run("Test normal with zero offset", func(t *testing.T) {
		nerrs, col := checkItems(&page.Header{Upper: 0, Special: 8192},
			page.LinePointer{Offset: 0, Status: page.ItemNormal, Length: 50})
		assert.Equal(t, uint32(1), nerrs)
		assert.Contains(t, col.Findings[0].Message, "offset = 0")
	})

	t.Run("Test item end past special", func(t *testing.T) {
		nerrs, col := checkItems(&page.Header{Upper: 100, Special: 200},
			page.LinePointer{Offset: 150, Status: page.ItemNormal, Length: 100})
		assert.Equal(t, uint32(1), nerrs)
		assert.Contains(t, col.Findings[0].Message, "past special")
	})

	t.Run("Test overlapping items", func(t *testing.T) {
		nerrs, col := checkItems(h,
			page.LinePointer{Offset: 100, Status: page.ItemNormal, Length: 100},
			page.LinePointer{Offset: 150, Status: page.ItemNormal, Length: 100})
		assert.Equal(t, uint32(1), nerrs)
		assert.Contains(t, col.Findings[0].Message, "intersects")
		assert.Equal(t, 2, col.Findings[0].Item)
	})

	t.Run("Test touching items do not overlap", func(t *testing.T) {
		nerrs, _ := checkItems(h,
			page.LinePointer{Offset: 100, Status: page.ItemNormal, Length: 100},
			page.LinePointer{Offset: 200, Status: page.ItemNormal, Length: 100})
		assert.Equal(t, uint32(0), nerrs)
	})

	t.Run("Test contained item overlaps", func(t *testing.T) {
		nerrs, _ := checkItems(h,
			page.LinePointer{Offset: 100, Status: page.ItemNormal, Length: 200},
			page.LinePointer{Offset: 150, Status: page.ItemNormal, Length: 50})
		assert.Equal(t, uint32(1), nerrs)
	})

	t.Run("Test overlap with dead storage", func(t *testing.T) {
		nerrs, _ := checkItems(h,
			page.LinePointer{Offset: 100, Status: page.ItemDead, Length: 100},
			page.LinePointer{Offset: 150, Status: page.ItemNormal, Length: 100})
		assert.Equal(t, uint32(1), nerrs)
	})

	t.Run("Test redirects do not participate in overlaps", func(t *testing.T) {
		// a redirect's offset is an item index, not a byte position
		nerrs, _ := checkItems(h,
			page.LinePointer{Offset: 100, Status: page.ItemNormal, Length: 100},
			page.LinePointer{Offset: 150, Status: page.ItemRedirect, Length: 0})
		assert.Equal(t, uint32(0), nerrs)
	})
}
