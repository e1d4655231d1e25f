package pagestore

import (
	"golang.org/x/crypto/blake2b"
)

// checksumSize is the number of leading bytes of an on-disk page slot
// reserved for the page's integrity checksum (a full, untruncated
// blake2b-256 digest). The page payload follows it in the slot.
const checksumSize = 32

// checksum computes the integrity digest for a page's content. It is kept
// separate from the page's data bytes on disk so a corrupted checksum and a
// corrupted payload are both detectable without guessing which half rotted.
func checksum(data []byte) [checksumSize]byte {
	return blake2b.Sum256(data)
}

// verifyChecksum reports whether want matches the digest of data.
func verifyChecksum(data []byte, want [checksumSize]byte) bool {
	got := checksum(data)
	return got == want
}
