package models

// IndexingResult reports the outcome of one indexing call. It is ephemeral
// and never persisted.
type IndexingResult struct {
	Success    bool   `json:"success"`
	ChunkCount int    `json:"chunks"`
	Message    string `json:"message"`
}

// SourceRef is one retrieved source backing an answer.
type SourceRef struct {
	Title    string  `json:"title"`
	SourceID string  `json:"source_id"`
	Excerpt  string  `json:"excerpt"`
	Score    float64 `json:"score"`
}

// QueryResult is the answer to one question plus the sources that produced it.
type QueryResult struct {
	Answer  string      `json:"answer"`
	Sources []SourceRef `json:"sources"`
}
