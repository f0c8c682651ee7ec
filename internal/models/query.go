package models

// QueryResult is a single retrieved chunk with source attribution.
type QueryResult struct {
	DocumentID string  `json:"document_id"`
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
	ChunkText  string  `json:"chunk_text"`
	Score      float64 `json:"score"`
	Rank       int     `json:"rank"`
}

// QueryResponse is the response for a query. An empty corpus yields a valid
// response with IndexEmpty set, never an error.
type QueryResponse struct {
	Query      string         `json:"query"`
	Results    []*QueryResult `json:"results"`
	Total      int            `json:"total"`
	QueryTime  int64          `json:"query_time_ms"`
	IndexEmpty bool           `json:"index_empty,omitempty"`
}
