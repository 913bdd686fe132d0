// Package hash implements the deterministic digests used as batch keys
// and deduplication fingerprints. None of them are cryptographic; they
// exist to produce stable, well-distributed identifiers for short
// strings, and their bit-level behavior must not change across releases.
package hash

import (
	"fmt"
	"math/bits"
	"strings"
)

const (
	fnvOffsetBasis uint32 = 0x811c9dc5
	fnvPrime       uint32 = 0x01000193

	murmurC1 uint32 = 0xcc9e2d51
	murmurC2 uint32 = 0x1b873593
)

// FNV1a computes the 32-bit FNV-1a digest of s over its code points and
// returns it as 8 lowercase hex digits.
func FNV1a(s string) string {
	h := fnvOffsetBasis
	for _, r := range s {
		h ^= uint32(r)
		h *= fnvPrime
	}
	return fmt.Sprintf("%08x", h)
}

// Murmur32 computes a MurmurHash3-style 32-bit digest of s, mixing one
// code point per block, and returns it as 8 lowercase hex digits.
func Murmur32(s string) string {
	var h, n uint32
	for _, r := range s {
		k := uint32(r)
		k *= murmurC1
		k = bits.RotateLeft32(k, 15)
		k *= murmurC2

		h ^= k
		h = bits.RotateLeft32(h, 13)
		h = h*5 + 0xe6546b64
		n++
	}

	h ^= n
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16

	return fmt.Sprintf("%08x", h)
}

// DJBXor computes a DJB2-XOR digest of s and returns it as 8 lowercase
// hex digits.
func DJBXor(s string) string {
	var h uint32 = 5381
	for _, r := range s {
		h = ((h << 5) + h) ^ uint32(r)
	}
	return fmt.Sprintf("%08x", h)
}

// CombinedHash concatenates FNV1a and Murmur32 into a 16-hex-digit
// digest, for callers that want more collision resistance than either
// digest alone.
func CombinedHash(s string) string {
	return FNV1a(s) + Murmur32(s)
}

// PostFingerprint derives the stable identifier for a post from its id
// and content.
func PostFingerprint(id, content string) string {
	return "post_" + CombinedHash(id+"|"+content)
}

// ContentFingerprint derives a deduplication fingerprint from content
// alone. Case and surrounding whitespace are normalized away, so
// cosmetically different copies of the same content collapse onto one
// fingerprint.
func ContentFingerprint(content string) string {
	return "hash_" + FNV1a(strings.ToLower(strings.TrimSpace(content)))
}
