package tuple

// attribute length markers, everything positive is a fixed width
const (
	VarLena = int16(-1) // self describing length header
	CString = int16(-2) // null terminated
)

// Attr describes one attribute of a row: fixed width or one of the
// variable width encodings, pass-by-value flag and the alignment the
// on-disk format pads to. Supplied by the relation's schema, the checker
// treats it as read-only input.
type Attr struct {
	Len   int16
	ByVal bool
	Align uint8 // 1, 2, 4 or 8
}

// RowDescriptor is the ordered attribute list of a relation.
type RowDescriptor []Attr

func alignUp(off int, align uint8) int {
	if align <= 1 {
		return off
	}
	a := int(align)
	return (off + a - 1) &^ (a - 1)
}

// NullBitmap reads attribute null flags out of a tuple header bitmap,
// one bit per attribute, attribute 0 in the lowest bit of the first
// byte. A set bit means the attribute is present, a zero bit means null.
type NullBitmap []byte

func (b NullBitmap) IsNull(attnum int) bool {
	byteIdx := attnum / 8
	if byteIdx >= len(b) {
		return false
	}
	return b[byteIdx]&(1<<(attnum%8)) == 0
}

// BitmapLength is the bitmap size in bytes for the given attribute count.
func BitmapLength(natts int) int {
	return (natts + 7) / 8
}
