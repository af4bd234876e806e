// Package vector provides embedding serialization and brute-force similarity
// ranking. There is no approximate index: Rank scores every document, which
// bounds semantic search to small per-user working sets.
package vector

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Document is an embedded item identified by its row id.
type Document struct {
	// ID is the id of the row the embedding belongs to.
	ID int64

	// Embedding is the vector representation of the row content.
	Embedding []float32
}

// QueryResult represents a search result with similarity score.
type QueryResult struct {
	Document

	// Score represents the similarity score (higher = more similar).
	Score float64
}

// Cosine returns the cosine similarity of a and b. Empty vectors, vectors of
// different dimensions and zero vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Rank scores every document against query and returns the topK best,
// highest score first. topK <= 0 returns every document.
func Rank(query []float32, docs []Document, topK int) []QueryResult {
	results := make([]QueryResult, 0, len(docs))
	for _, d := range docs {
		results = append(results, QueryResult{
			Document: d,
			Score:    Cosine(query, d.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

// Encode serializes an embedding into its stored JSON text form.
func Encode(embedding []float32) (string, error) {
	b, err := json.Marshal(embedding)
	if err != nil {
		return "", fmt.Errorf("encoding embedding: %w", err)
	}
	return string(b), nil
}

// Decode parses the stored JSON text form of an embedding.
func Decode(s string) ([]float32, error) {
	var embedding []float32
	if err := json.Unmarshal([]byte(s), &embedding); err != nil {
		return nil, fmt.Errorf("decoding embedding: %w", err)
	}
	return embedding, nil
}
