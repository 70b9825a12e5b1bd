package textutil

import "testing"

func TestSanitizeLabel(t *testing.T) {
	inputs := map[string]string{
		"  Maria   Silva ":             "Maria Silva",
		"<b>João</b>":                  "João",
		"<script>alert(1)</script>Ana": "Ana",
		"Jose\u0301":                   "Jos\u00e9",
		"D'Ávila & Filhos":             "D'Ávila & Filhos",
		"":                             "",
	}
	for input, want := range inputs {
		if got := SanitizeLabel(input); got != want {
			t.Fatalf("SanitizeLabel(%q): expected %q, got %q", input, want, got)
		}
	}
}

func TestNormalizeKey(t *testing.T) {
	if got := NormalizeKey("  Açaí "); got != "açaí" {
		t.Fatalf("expected açaí, got %q", got)
	}
	if NormalizeKey("Açaí") != NormalizeKey("AÇAÍ") {
		t.Fatalf("expected decomposed and composed forms to share a key")
	}
	if NormalizeKey("   ") != "" {
		t.Fatalf("expected blank key for whitespace input")
	}
}
