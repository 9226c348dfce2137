package domain

import "time"

// DocumentEntry is a unit of retrievable failure documentation.
type DocumentEntry struct {
	ID              int64
	Category        string
	Title           string
	Content         string // embedded text
	Summary         string
	RootCauses      string
	ResolutionSteps string
	Tags            string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Candidate pairs a document with its embedding for one provider.
type Candidate struct {
	Document  DocumentEntry
	Embedding []float32
}

// SearchHit is a ranked document. Immutable once built.
type SearchHit struct {
	document DocumentEntry
	score    float64
}

// NewSearchHit creates a search hit.
func NewSearchHit(doc DocumentEntry, score float64) SearchHit {
	return SearchHit{document: doc, score: score}
}

// Document returns the document snapshot.
func (h SearchHit) Document() DocumentEntry { return h.document }

// Score returns the cosine similarity to the query.
func (h SearchHit) Score() float64 { return h.score }
