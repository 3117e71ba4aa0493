package cache

import "github.com/cespare/xxhash/v2"

// hashKey computes a non-cryptographic 32-bit hash over key bytes (spec
// §3). xxhash.Sum64 is truncated rather than reimplementing Murmur3 — spec
// §1 treats the hashing primitive as an external collaborator and notes
// "any non-cryptographic 32-bit hash suffices".
func hashKey(b []byte) uint32 {
	return uint32(xxhash.Sum64(b))
}
