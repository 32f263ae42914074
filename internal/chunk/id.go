package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// NormalizePath canonicalizes a relative path for chunk-id derivation:
// forward slashes, no leading "./", no trailing slash. This is the single
// normalization rule chunk_id determinism depends on.
func NormalizePath(relPath string) string {
	p := filepath.ToSlash(relPath)
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimSuffix(p, "/")
	return p
}

// ID computes SHA256(normalize(relPath) || "::" || index), hex-encoded,
// the sole deterministic function chunk_id is defined by. Rechunking the
// same file on the same path always reproduces the same ids in order.
func ID(relPath string, index int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s::%d", NormalizePath(relPath), index)))
	return hex.EncodeToString(sum[:])
}
