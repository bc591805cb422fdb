package shared

import (
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// DefaultMatchThreshold is the similarity a video title must exceed to count as the same recording.
const DefaultMatchThreshold = 0.70

// noiseTokens never help identify a recording and are dropped before scoring.
var noiseTokens = map[string]struct{}{
	"4k":         {},
	"audio":      {},
	"clip":       {},
	"explicit":   {},
	"feat":       {},
	"featuring":  {},
	"ft":         {},
	"hd":         {},
	"hq":         {},
	"lyric":      {},
	"lyrics":     {},
	"music":      {},
	"mv":         {},
	"official":   {},
	"remaster":   {},
	"remastered": {},
	"video":      {},
	"visualizer": {},
}

// Similarity scores how closely two titles describe the same recording, in [0, 1].
//
// Both inputs are normalized (see [NormalizeTitle]) and compared twice with a
// Levenshtein ratio: once as-is and once with their tokens sorted, so
// "title - artist" and "artist - title" orderings score alike. The higher ratio wins.
func Similarity(a, b string) float64 {
	na, nb := NormalizeTitle(a), NormalizeTitle(b)
	if na == "" || nb == "" {
		return 0
	}

	return max(ratio(na, nb), ratio(sortTokens(na), sortTokens(nb)))
}

// NormalizeTitle lower-cases s, strips bracketed segments such as "(Official Video)",
// collapses punctuation into single spaces and removes noise tokens.
func NormalizeTitle(s string) string {
	if s == "" {
		return ""
	}

	lower := strings.ToLower(s)
	tokens := strings.Fields(cleanSeparators(stripBracketedSegments(lower)))

	kept := tokens[:0]
	for _, token := range tokens {
		if _, noise := noiseTokens[token]; noise {
			continue
		}
		kept = append(kept, token)
	}

	return strings.Join(kept, " ")
}

// TrackKey builds the "{title} - {artist}" composite compared against video titles.
func TrackKey(title, artist string) string {
	return strings.ToLower(strings.TrimSpace(title) + " - " + strings.TrimSpace(artist))
}

func ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func stripBracketedSegments(input string) string {
	var out strings.Builder
	depth := 0
	for _, r := range input {
		switch r {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 {
				out.WriteRune(r)
			}
		}
	}
	return out.String()
}

func cleanSeparators(input string) string {
	var out strings.Builder
	lastSpace := false
	for _, r := range input {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			out.WriteRune(r)
			lastSpace = false
			continue
		}
		if r == '\'' {
			continue
		}
		if !lastSpace {
			out.WriteRune(' ')
			lastSpace = true
		}
	}
	return out.String()
}
