package bitmap

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// Format selects how Serialize renders the bit pattern. FormatNone keeps
// the summary line only.
type Format int

const (
	FormatBinary Format = iota
	FormatHex
	FormatBase64
	FormatNone
)

func ParseFormat(s string) (Format, error) {
	switch s {
	case "binary":
		return FormatBinary, nil
	case "hex":
		return FormatHex, nil
	case "base64":
		return FormatBase64, nil
	case "none":
		return FormatNone, nil
	}
	return FormatNone, fmt.Errorf("unknown bitmap format %q", s)
}

// Serialize renders the bitmap state for troubleshooting output. The
// rendering has no role in the checks themselves.
func (b *ItemBitmap) Serialize(f Format) string {
	pages := make([]string, len(b.counts))
	for i, c := range b.counts {
		pages[i] = fmt.Sprintf("%d", c)
	}

	head := fmt.Sprintf("bitmap nbytes=%d nbits=%d npages=%d pages=[%s]",
		len(b.data), b.CountSet(), b.npages, strings.Join(pages, ","))

	switch f {
	case FormatBinary:
		return head + " data=[" + binaryString(b.data) + "]"
	case FormatHex:
		return head + " data=[" + hex.EncodeToString(b.data) + "]"
	case FormatBase64:
		return head + " data=[" + base64.StdEncoding.EncodeToString(b.data) + "]"
	}
	return head
}

// binaryString prints each byte least significant bit first, matching
// the slot order within a page.
func binaryString(data []byte) string {
	var sb strings.Builder
	sb.Grow(len(data) * 8)
	for _, by := range data {
		for j := 0; j < 8; j++ {
			if by&(1<<uint(j)) != 0 {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		}
	}
	return sb.String()
}
