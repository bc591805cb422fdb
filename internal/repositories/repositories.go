package repositories

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// encodeVector serializes an embedding for the SQLite text column.
func encodeVector(v []float32) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode embedding: %w", err)
	}
	return string(b), nil
}

func decodeVector(s string) ([]float32, error) {
	var v []float32
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("failed to decode embedding: %w", err)
	}
	return v, nil
}

func encodeGenres(genres []string) any {
	if len(genres) == 0 {
		return nil
	}
	b, _ := json.Marshal(genres)
	return string(b)
}

func decodeGenres(s string) []string {
	if s == "" {
		return nil
	}
	var genres []string
	if err := json.Unmarshal([]byte(s), &genres); err != nil {
		return nil
	}
	return genres
}

// CosineDistance returns 1 - cos(a, b), matching pgvector's <=> operator.
//
// Mismatched or zero-length vectors are maximally distant.
func CosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 2
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 2
	}

	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func nullString(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
