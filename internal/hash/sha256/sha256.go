// Package sha256 derives stable content-addressed keys for archived pages.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Key returns the hex SHA-256 digest of s.
func Key(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ArchivePath returns "{prefix}/{sha256(url)}.html", or the bare file name
// when prefix is empty.
func ArchivePath(prefix, url string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return Key(url) + ".html"
	}
	return fmt.Sprintf("%s/%s.html", prefix, Key(url))
}
