package models

// Price sources reported by the extraction pipeline
const (
	SourceStructuredData = "structured_data"
	SourceSelector       = "selector"
	SourceMeta           = "meta"
	SourceTextScan       = "text_scan"
	SourceNone           = "none"
)

// ExtractedRecord is the normalized product data produced by one extraction.
// It is never persisted.
type ExtractedRecord struct {
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
	ImageURL    string  `json:"image_url,omitempty"`
	PriceFound  bool    `json:"price_found"`
	PriceSource string  `json:"price_source"`
}
