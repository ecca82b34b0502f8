package mdfile

import "strings"

// DeckToFileStem encodes a deck path (e.g. "Biology::Cells::Mitochondria")
// into a lossless file stem. Literal "__" and "%" are percent-escaped
// first so that the later "::" -> "__" substitution is reversible.
func DeckToFileStem(deck string) string {
	s := strings.ReplaceAll(deck, "%", "%25")
	s = strings.ReplaceAll(s, "__", "%5F%5F")
	s = strings.ReplaceAll(s, "::", "__")
	return s
}

// FileStemToDeck reverses DeckToFileStem.
func FileStemToDeck(stem string) string {
	s := strings.ReplaceAll(stem, "__", "::")
	s = strings.ReplaceAll(s, "%5F%5F", "__")
	s = strings.ReplaceAll(s, "%25", "%")
	return s
}
