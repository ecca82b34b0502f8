package mdfile

import "testing"

func TestDeckStemRoundTrip(t *testing.T) {
	cases := []string{
		"Biology::Cells::Mitochondria",
		"Simple",
		"A__B::C",
		"100%::Sub",
		"Weird__%::Deck",
	}
	for _, deck := range cases {
		stem := DeckToFileStem(deck)
		got := FileStemToDeck(stem)
		if got != deck {
			t.Errorf("round trip failed: deck=%q stem=%q got=%q", deck, stem, got)
		}
	}
}

func TestDeckToFileStemNoLiteralDoubleColon(t *testing.T) {
	stem := DeckToFileStem("Biology::Cells")
	// the only "__" substrings in the stem must represent "::" separators
	if stem != "Biology__Cells" {
		t.Errorf("DeckToFileStem() = %q, want Biology__Cells", stem)
	}
}
