package simhash

import (
	"testing"
)

func TestFingerprint_IdenticalTexts(t *testing.T) {
	text := "category 1 from 250 dollars per ticket"
	if Fingerprint(text) != Fingerprint(text) {
		t.Error("identical texts produced different fingerprints")
	}
}

func TestFingerprint_SimilarTexts(t *testing.T) {
	fp1 := Fingerprint("the quick brown fox jumps over the lazy dog")
	fp2 := Fingerprint("the quick brown fox leaps over the lazy dog")

	if dist := Distance(fp1, fp2); dist > 10 {
		t.Errorf("similar texts have too large distance: %d", dist)
	}
}

func TestFingerprint_Empty(t *testing.T) {
	for _, in := range []string{"", "   \t\n  "} {
		if fp := Fingerprint(in); fp != 0 {
			t.Errorf("Fingerprint(%q) = %064b, want 0", in, fp)
		}
	}
	if FingerprintTokens(nil) != 0 {
		t.Error("nil tokens should produce 0")
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
		want int
	}{
		{"identical", 0xFF, 0xFF, 0},
		{"all different", 0, ^uint64(0), 64},
		{"one bit", 0, 1, 1},
		{"two bits", 0, 3, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Distance(tt.a, tt.b); got != tt.want {
				t.Errorf("Distance(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestDrifted(t *testing.T) {
	tests := []struct {
		name      string
		prev, cur uint64
		threshold int
		want      bool
	}{
		{"unchanged", 0xF0, 0xF0, 3, false},
		{"within threshold", 0x0F, 0x07, 3, false},
		{"beyond threshold", 0x0F, 0xF0, 3, true},
		{"unknown previous", 0, 0xFF, 0, false},
		{"unknown current", 0xFF, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Drifted(tt.prev, tt.cur, tt.threshold); got != tt.want {
				t.Errorf("Drifted = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFingerprintDOM_IgnoresText(t *testing.T) {
	a := `<html><body><div class="tier row"><span>Category 1</span><b>$250</b></div></body></html>`
	b := `<html><body><div class="tier"><span>Category 3</span><b>$900</b></div></body></html>`

	if FingerprintDOM(a) != FingerprintDOM(b) {
		t.Error("same structure with different text should fingerprint identically")
	}
}

func TestFingerprintDOM_IgnoresScriptsAndSeatMaps(t *testing.T) {
	a := `<html><body><div class="map"><svg><g><path d="M0"/><path d="M1"/></g></svg></div><p>x</p><script>var a = 1;</script></body></html>`
	b := `<html><body><div class="map"><svg><g><path d="M0"/></g><g><circle r="2"/></g></svg></div><p>y</p><script>var b = 2; var c = 3;</script></body></html>`

	if FingerprintDOM(a) != FingerprintDOM(b) {
		t.Error("svg and script internals should not affect the fingerprint")
	}
}

func TestFingerprintDOM_VoidInsideSkipped(t *testing.T) {
	a := `<html><body><noscript><img src="pixel.gif"></noscript><div class="prices"><ul><li>a</li></ul></div></body></html>`
	b := `<html><body><noscript><img src="pixel.gif"></noscript></body></html>`

	if FingerprintDOM(a) == FingerprintDOM(b) {
		t.Error("elements after a void tag inside a skipped subtree must still count")
	}
}

func TestFingerprintDOM_DifferentStructures(t *testing.T) {
	a := `<html><body><div class="listing"><h1>Title</h1><p>Text</p><p>More</p></div></body></html>`
	b := `<html><body><table><tr><td>A</td><td>B</td></tr><tr><td>C</td><td>D</td></tr></table></body></html>`

	if dist := Distance(FingerprintDOM(a), FingerprintDOM(b)); dist < 3 {
		t.Errorf("different structures should be far apart, got %d", dist)
	}
}

func TestFingerprintDOM_Empty(t *testing.T) {
	if fp := FingerprintDOM(""); fp != 0 {
		t.Errorf("empty markup should produce 0, got %064b", fp)
	}
	if fp := FingerprintDOM("plain text, no tags"); fp != 0 {
		t.Errorf("tagless input should produce 0, got %064b", fp)
	}
}
