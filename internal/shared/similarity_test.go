package shared

import "testing"

func TestSimilarity(t *testing.T) {
	t.Run("reference pairs against the match threshold", func(t *testing.T) {
		key := "shape of you - ed sheeran"

		match := Similarity(key, "Ed Sheeran - Shape of You (Official Video)")
		if match <= DefaultMatchThreshold {
			t.Errorf("expected matching title to exceed %.2f, got %.3f", DefaultMatchThreshold, match)
		}

		miss := Similarity(key, "totally unrelated video title")
		if miss >= DefaultMatchThreshold {
			t.Errorf("expected unrelated title to fall below %.2f, got %.3f", DefaultMatchThreshold, miss)
		}
	})

	tc := []struct {
		name  string
		a, b  string
		above bool
	}{
		{name: "identical", a: "blinding lights - the weeknd", b: "blinding lights - the weeknd", above: true},
		{name: "reordered with lyrics tag", a: "levitating - dua lipa", b: "Dua Lipa - Levitating [Lyrics]", above: true},
		{name: "small typo", a: "bohemian rhapsody - queen", b: "Queen - Bohemian Rhapsodey", above: true},
		{name: "different song same artist", a: "yellow - coldplay", b: "Coldplay - Fix You", above: false},
		{name: "empty candidate", a: "yellow - coldplay", b: "", above: false},
		{name: "only noise", a: "yellow - coldplay", b: "(Official Music Video)", above: false},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if got < 0 || got > 1 {
				t.Fatalf("score out of range: %v", got)
			}
			if (got > DefaultMatchThreshold) != tt.above {
				t.Errorf("Similarity(%q, %q) = %.3f, want above threshold = %v", tt.a, tt.b, got, tt.above)
			}
		})
	}
}

func TestNormalizeTitle(t *testing.T) {
	tc := []struct {
		name  string
		input string
		want  string
	}{
		{name: "brackets and noise", input: "Ed Sheeran - Shape of You (Official Video)", want: "ed sheeran shape of you"},
		{name: "extra whitespace", input: "  Song   Title  ", want: "song title"},
		{name: "apostrophes", input: "Don't Stop Me Now", want: "dont stop me now"},
		{name: "nested brackets", input: "Track [Live (2019)] HD", want: "track"},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeTitle(tt.input); got != tt.want {
				t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTrackKey(t *testing.T) {
	if got := TrackKey(" Shape of You ", "Ed Sheeran"); got != "shape of you - ed sheeran" {
		t.Errorf("TrackKey() = %q", got)
	}
}
