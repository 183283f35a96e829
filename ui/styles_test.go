package ui_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tvondra/pg-check/report"
	"github.com/tvondra/pg-check/ui"
)

func TestRenderSummary(t *testing.T) {

	t.Run("Test clean relation", func(t *testing.T) {
		out := ui.RenderSummary("accounts", 0, nil)
		assert.Contains(t, out, "accounts")
		assert.Contains(t, out, "no problems found")
	})

	t.Run("Test findings listed", func(t *testing.T) {
		findings := []report.Finding{
			{Block: 3, Message: "invalid flag bits"},
			{Block: 3, Item: 2, Message: "item with length = 0"},
		}

		out := ui.RenderSummary("accounts", 2, findings)
		assert.Contains(t, out, "2 problems found")
		assert.Contains(t, out, "[3]")
		assert.Contains(t, out, "[3:2]")
		assert.Contains(t, out, "item with length = 0")
	})
}
