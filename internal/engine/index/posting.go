package index

// Posting records how often a term occurs in one document's text fields.
type Posting struct {
	DocID     string `json:"doc_id"`
	Frequency int    `json:"frequency"`
}
