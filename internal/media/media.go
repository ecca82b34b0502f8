// Package media implements content-addressed media renaming, reference
// extraction/rewriting, and directional push/pull sync against the card
// store (§4.8), hashing content the same way internal/fingerprint and the
// teacher's internal/idgen hash files do: sha256, truncated.
package media

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// HashLength is the number of hex characters appended to a hashed media
// file name.
const HashLength = 8

var (
	// markdownImageRE matches ![alt](path) and ![alt](<path>).
	markdownImageRE = regexp.MustCompile(`!\[[^\]]*\]\(<?([^()\s<>]+(?:\([^()]*\)[^()\s<>]*)*)>?\)`)
	// imgTagRE matches <img src="path">.
	imgTagRE = regexp.MustCompile(`<img[^>]+src="([^"]+)"[^>]*>`)
	// soundRE matches the store-specific [sound:path] syntax.
	soundRE = regexp.MustCompile(`\[sound:([^\]]+)\]`)

	needsAngleBrackets = regexp.MustCompile(`[()\s%]`)
)

// ExtractReferences returns the set of local media paths referenced in
// Markdown content, in first-occurrence order, skipping http(s):// URLs.
func ExtractReferences(content string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(path string) {
		if path == "" || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
			return
		}
		if !seen[path] {
			seen[path] = true
			out = append(out, path)
		}
	}

	for _, m := range markdownImageRE.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}
	for _, m := range imgTagRE.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}
	for _, m := range soundRE.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}
	return out
}

// ContentDigest returns the short content digest of data: SHA-256
// truncated to HashLength hex characters.
func ContentDigest(data []byte) string {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	return digest[:HashLength]
}

// HashedName returns the content-addressed name for a file whose current
// name is name and whose content digest is digest: "<stem>_<digest><ext>".
// It is idempotent: a name already ending in "_<digest><ext>" is returned
// unchanged.
func HashedName(name, digest string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	suffix := "_" + digest
	if strings.HasSuffix(stem, suffix) {
		return name
	}
	return stem + suffix + ext
}

// IsHashed reports whether name already carries its content digest suffix.
func IsHashed(name, digest string) bool {
	return HashedName(name, digest) == name
}

// RewriteReferences rewrites every reference whose path is a key of
// renames to the mapped new name, in a single pass across all three
// reference syntaxes. Markdown
// image targets that would become ambiguous to parse (containing
// parentheses, whitespace, or percent-escapes) are wrapped in angle
// brackets.
func RewriteReferences(content string, renames map[string]string) string {
	if len(renames) == 0 {
		return content
	}

	content = markdownImageRE.ReplaceAllStringFunc(content, func(match string) string {
		sub := markdownImageRE.FindStringSubmatch(match)
		oldPath := sub[1]
		newPath, ok := renames[oldPath]
		if !ok {
			return match
		}
		return replaceMarkdownTarget(match, oldPath, newPath)
	})

	content = imgTagRE.ReplaceAllStringFunc(content, func(match string) string {
		sub := imgTagRE.FindStringSubmatch(match)
		oldPath := sub[1]
		newPath, ok := renames[oldPath]
		if !ok {
			return match
		}
		return strings.Replace(match, fmt.Sprintf(`src="%s"`, oldPath), fmt.Sprintf(`src="%s"`, newPath), 1)
	})

	content = soundRE.ReplaceAllStringFunc(content, func(match string) string {
		sub := soundRE.FindStringSubmatch(match)
		oldPath := sub[1]
		newPath, ok := renames[oldPath]
		if !ok {
			return match
		}
		return fmt.Sprintf("[sound:%s]", newPath)
	})

	return content
}

func replaceMarkdownTarget(match, oldPath, newPath string) string {
	target := newPath
	if needsAngleBrackets.MatchString(newPath) {
		target = "<" + newPath + ">"
	}
	altEnd := strings.Index(match, "](")
	if altEnd < 0 {
		return match
	}
	return match[:altEnd+2] + target + ")"
}
