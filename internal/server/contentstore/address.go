// Package contentstore implements write-once, content-addressed blob
// storage over an S3-compatible backend, with in-process metadata and
// stream/user indexes.
package contentstore

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Address derives the deterministic content address for a blob: the
// lowercase hex encoding of its BLAKE2b-256 digest. Identical bytes always
// yield the identical address.
func Address(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
