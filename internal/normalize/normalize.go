// Package normalize turns free-text addresses and generated filenames into
// matchable keys: lowercase ASCII words joined by single underscores.
package normalize

import (
	"path"
	"regexp"
	"strings"
	"unicode"
)

// filenamePrefixes are tokens the extraction pipeline prepends to every
// generated filename.
var filenamePrefixes = []string{"data_"}

// timestampSuffix matches the _YYYYMMDD_HHMMSS tail of generated filenames.
var timestampSuffix = regexp.MustCompile(`_\d{8}_\d{6}$`)

// Normalize trims s, lowercases it, replaces every whitespace run with a
// single underscore and drops every character outside [a-z0-9_].
// It never fails and Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte('_')
				inSpace = true
			}
			continue
		}
		inSpace = false
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SlugFromFilename recovers the address slug embedded in a generated
// filename such as data_Meir_78_bus_3_20250125_123456.json.
func SlugFromFilename(name string) string {
	base := strings.TrimSpace(path.Base(strings.ReplaceAll(name, `\`, "/")))
	if base == "." || base == "/" {
		return ""
	}
	switch ext := strings.ToLower(path.Ext(base)); ext {
	case ".json", ".pdf", ".txt":
		base = base[:len(base)-len(ext)]
	}
	lower := strings.ToLower(base)
	for _, p := range filenamePrefixes {
		if strings.HasPrefix(lower, p) {
			base = base[len(p):]
			break
		}
	}
	base = timestampSuffix.ReplaceAllString(base, "")
	return Normalize(base)
}

// Tokens splits a key into its non-empty underscore-delimited segments.
func Tokens(key string) []string {
	parts := strings.Split(key, "_")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FirstToken returns the first non-empty segment of key, typically the
// street name.
func FirstToken(key string) string {
	for _, p := range strings.Split(key, "_") {
		if p != "" {
			return p
		}
	}
	return ""
}

// LeadingTokens joins the first n segments of key with underscores. It
// returns "" when key has fewer than n segments.
func LeadingTokens(key string, n int) string {
	toks := Tokens(key)
	if n <= 0 || len(toks) < n {
		return ""
	}
	return strings.Join(toks[:n], "_")
}
