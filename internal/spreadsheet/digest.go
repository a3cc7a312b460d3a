package spreadsheet

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest fingerprints the raw upload for file-level duplicate detection.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
