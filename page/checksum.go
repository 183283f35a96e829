package page

import (
	"hash/crc32"
)

// the id field (bytes 8..12) holds the checksum itself and is taken as
// zero while computing
const (
	checksumOffset = 8
	checksumSize   = 4
)

var zeroChecksum [checksumSize]byte

// ComputeChecksum returns the CRC32-IEEE over the page with the checksum
// bytes zeroed out.
func ComputeChecksum(v *View) uint32 {
	h := crc32.NewIEEE()
	h.Write(v.buf[:checksumOffset])
	h.Write(zeroChecksum[:])
	h.Write(v.buf[checksumOffset+checksumSize:])
	return h.Sum32()
}

// VerifyChecksum compares the stored checksum against the computed one.
// Pages written before checksums were enabled store zero, callers skip
// those.
func VerifyChecksum(v *View, h *Header) bool {
	return h.ID == ComputeChecksum(v)
}
