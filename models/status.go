package models

// SystemStatus is a point-in-time snapshot of dependency connectivity.
// It is recomputed on every status request, never cached.
type SystemStatus struct {
	Database         string `json:"database"`
	Ollama           string `json:"ollama"`
	EmbeddingModel   string `json:"embedding_model"`
	GenerationModel  string `json:"generation_model"`
	VectorDimensions int    `json:"vector_dimensions"`
}
