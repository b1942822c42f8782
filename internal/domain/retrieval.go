package domain

// Document is one unit of retrieved context fed into the analysis prompt.
type Document struct {
	ID       string
	Content  string
	Score    float64
	Metadata map[string]string
}

// VectorRecord is a document embedding on the index write path.
type VectorRecord struct {
	ID       string
	Values   []float32
	Metadata map[string]string
}
