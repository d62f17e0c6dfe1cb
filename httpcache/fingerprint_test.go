package httpcache

import "testing"

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint([]byte(`{"students":[1,2,3]}`))
	b := Fingerprint([]byte(`{"students":[1,2,3]}`))

	if a != b {
		t.Errorf("identical payloads should share a fingerprint: %q vs %q", a, b)
	}
	if len(a) != 32 {
		t.Errorf("fingerprint should be 32 hex chars, got %d", len(a))
	}
}

func TestFingerprint_PayloadDifferenceChangesFingerprint(t *testing.T) {
	a := Fingerprint([]byte(`{"students":[1,2,3]}`))
	b := Fingerprint([]byte(`{"students":[1,2,4]}`))

	if a == b {
		t.Error("differing payloads should not share a fingerprint")
	}
}

func TestMatchesETag(t *testing.T) {
	fp := Fingerprint([]byte("payload"))

	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{"bare value", fp, true},
		{"quoted value", `"` + fp + `"`, true},
		{"weak validator", `W/"` + fp + `"`, true},
		{"list with match", `"other", "` + fp + `"`, true},
		{"wildcard", "*", true},
		{"no match", `"different"`, false},
		{"empty header", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesETag(tt.header, fp); got != tt.want {
				t.Errorf("matchesETag(%q) = %v, want %v", tt.header, got, tt.want)
			}
		})
	}

	if matchesETag("*", "") {
		t.Error("empty fingerprint should never match")
	}
}
