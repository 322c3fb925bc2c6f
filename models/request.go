package models

// IndexFileRequest asks for a document on disk to be indexed.
type IndexFileRequest struct {
	Path  string `json:"path" binding:"required"`
	Async bool   `json:"async"`
}

// IndexTextRequest asks for raw text to be indexed with caller-supplied metadata.
type IndexTextRequest struct {
	Text     string `json:"text" binding:"required"`
	SourceID string `json:"source_id" binding:"required"`
	Title    string `json:"title"`
	Async    bool   `json:"async"`
}

// QueryRequest carries a natural-language question.
type QueryRequest struct {
	Question string `json:"question" binding:"required"`
}

// AddChunkRequest adds a single pre-chunked document fragment.
type AddChunkRequest struct {
	Text     string `json:"text" binding:"required"`
	SourceID string `json:"source_id" binding:"required"`
	Title    string `json:"title"`
}
