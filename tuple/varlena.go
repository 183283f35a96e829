package tuple

import (
	"fmt"

	"github.com/tvondra/pg-check/page"
)

/*
Varlena on-disk encoding, selected by the first byte

	0x80|len  short form, total length (len & 0x7F) including the tag
	0x01      long form, followed by an int32 total length
	0x02      long compressed form, int32 total length + int32 raw size
	0x00      alignment padding, never a value start

Long form lengths include the header bytes (5, respectively 9). The raw
size of a compressed value is its decompressed length.
*/
const (
	varTagShortFlag  = byte(0x80)
	varTagLong       = byte(0x01)
	varTagCompressed = byte(0x02)

	longHeaderSize       = 5
	compressedHeaderSize = 9

	// MaxVarSize is the 1 GiB cap any varlena length must stay under.
	MaxVarSize = int32(1 << 30)
)

var ErrVarlenaTag = fmt.Errorf("invalid varlena tag byte")

type Varlena struct {
	Length     int32 // total on-disk length, header included
	Compressed bool
	RawSize    int32 // decompressed size, only for compressed values
}

// ReadVarlena decodes the length header at off. It fails on reads past
// the page end and on unknown tag bytes, both meaning the cursor cannot
// move past this attribute.
func ReadVarlena(v *page.View, off int) (Varlena, error) {
	tag, err := v.Byte(off)
	if err != nil {
		return Varlena{}, err
	}

	if tag&varTagShortFlag != 0 {
		return Varlena{Length: int32(tag &^ varTagShortFlag)}, nil
	}

	switch tag {
	case varTagLong:
		n, err := v.Int32(off + 1)
		if err != nil {
			return Varlena{}, err
		}
		return Varlena{Length: n}, nil

	case varTagCompressed:
		n, err := v.Int32(off + 1)
		if err != nil {
			return Varlena{}, err
		}
		raw, err := v.Int32(off + 5)
		if err != nil {
			return Varlena{}, err
		}
		return Varlena{Length: n, Compressed: true, RawSize: raw}, nil
	}

	return Varlena{}, fmt.Errorf("%w %#02x", ErrVarlenaTag, tag)
}
