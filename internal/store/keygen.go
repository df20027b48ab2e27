package store

import (
	"crypto/md5"
	"fmt"
	"strings"
)

// FileName converts a cache key to a file name. Keys are hashed so that
// distinct request URIs never collide after sanitizing, and so that very long
// query strings stay within filesystem limits.
func FileName(key string) string {
	hash := md5.Sum([]byte(key))
	return fmt.Sprintf("%s_%x.json", keyLabel(key), hash)
}

// keyLabel keeps a short human readable prefix of the key (the method and the
// first path segment) to make cache directories browsable.
func keyLabel(key string) string {
	method, uri, _ := strings.Cut(key, " ")
	uri = strings.TrimPrefix(uri, "/")
	if i := strings.IndexAny(uri, "/?#"); i >= 0 {
		uri = uri[:i]
	}
	if len(uri) > 32 {
		uri = uri[:32]
	}
	if uri == "" {
		uri = "root"
	}
	return sanitizeForFilename(strings.ToLower(method) + "_" + uri)
}

// sanitizeForFilename makes a string safe for use as a filename
func sanitizeForFilename(s string) string {
	replacements := map[string]string{
		"/":  "_",
		"\\": "_",
		":":  "_",
		"*":  "_",
		"?":  "_",
		"\"": "_",
		"<":  "_",
		">":  "_",
		"|":  "_",
		"#":  "_",
		"&":  "_",
		"=":  "_",
		" ":  "_",
		".":  "_",
	}

	result := s
	for old, new := range replacements {
		result = strings.ReplaceAll(result, old, new)
	}
	return result
}
