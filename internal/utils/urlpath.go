package utils

import (
	"strings"
)

// DeriveFilename returns the text after the last '/' of rawURL.
// The fallback is returned when that segment is empty, carries a query
// marker, or names a directory ("." or "..").
// Example: https://example.com/a/b/file.zip -> file.zip
func DeriveFilename(rawURL, fallback string) string {
	name := rawURL[strings.LastIndex(rawURL, "/")+1:]

	if name == "" || strings.Contains(name, "?") || name == "." || name == ".." {
		return fallback
	}
	return name
}
