package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strings"
)

// DestinationPrefix derives the unpack destination prefix from a source
// object path: the base filename without its extension.
func DestinationPrefix(objectID string) string {
	base := path.Base(objectID)
	if base == "." || base == "/" {
		return ""
	}
	stem := strings.TrimSuffix(base, path.Ext(base))
	if stem == "" {
		return base
	}
	return stem
}

// UniqueDestinationPrefix appends a token derived from the full source
// location, so equal filenames under different paths do not collide.
func UniqueDestinationPrefix(bucket, objectID string) string {
	sum := sha256.Sum256([]byte(bucket + "/" + objectID))
	token := hex.EncodeToString(sum[:])[:8]
	prefix := DestinationPrefix(objectID)
	if prefix == "" {
		return token
	}
	return prefix + "-" + token
}

func objectKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func listPrefix(p string) string {
	if p == "" || strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}
