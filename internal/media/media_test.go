package media

import "testing"

func TestExtractReferencesAllSyntaxes(t *testing.T) {
	content := "![cell](media/cell.png) and <img src=\"media/diagram.jpg\"> and [sound:clip.mp3]"
	refs := ExtractReferences(content)
	want := []string{"media/cell.png", "media/diagram.jpg", "clip.mp3"}
	if len(refs) != len(want) {
		t.Fatalf("ExtractReferences() = %v, want %v", refs, want)
	}
	for i, w := range want {
		if refs[i] != w {
			t.Errorf("ref[%d] = %q, want %q", i, refs[i], w)
		}
	}
}

func TestExtractReferencesIgnoresHTTP(t *testing.T) {
	content := "![remote](https://example.com/img.png)"
	refs := ExtractReferences(content)
	if len(refs) != 0 {
		t.Fatalf("ExtractReferences() = %v, want empty (http skipped)", refs)
	}
}

func TestHashedNameIdempotent(t *testing.T) {
	digest := "deadbeef"
	first := HashedName("cell.png", digest)
	if first != "cell_deadbeef.png" {
		t.Fatalf("HashedName() = %q, want cell_deadbeef.png", first)
	}
	second := HashedName(first, digest)
	if second != first {
		t.Fatalf("HashedName() not idempotent: %q != %q", second, first)
	}
}

func TestContentDigestDeterministic(t *testing.T) {
	data := []byte("hello world")
	if ContentDigest(data) != ContentDigest(data) {
		t.Fatal("ContentDigest not deterministic")
	}
	if len(ContentDigest(data)) != HashLength {
		t.Fatalf("ContentDigest() length = %d, want %d", len(ContentDigest(data)), HashLength)
	}
}

func TestRewriteReferencesMarkdownImage(t *testing.T) {
	content := "![cell](media/cell.png)"
	out := RewriteReferences(content, map[string]string{"media/cell.png": "media/cell_deadbeef.png"})
	want := "![cell](media/cell_deadbeef.png)"
	if out != want {
		t.Errorf("RewriteReferences() = %q, want %q", out, want)
	}
}

func TestRewriteReferencesSound(t *testing.T) {
	content := "[sound:clip.mp3]"
	out := RewriteReferences(content, map[string]string{"clip.mp3": "clip_cafebabe.mp3"})
	want := "[sound:clip_cafebabe.mp3]"
	if out != want {
		t.Errorf("RewriteReferences() = %q, want %q", out, want)
	}
}

func TestRewriteReferencesWrapsAmbiguousPathInAngleBrackets(t *testing.T) {
	content := "![cell](media/cell.png)"
	out := RewriteReferences(content, map[string]string{"media/cell.png": "media/cell (1)_deadbeef.png"})
	want := "![cell](<media/cell (1)_deadbeef.png>)"
	if out != want {
		t.Errorf("RewriteReferences() = %q, want %q", out, want)
	}
}
