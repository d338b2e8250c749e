package interfaces

import "github.com/SharingMan/CNinfo2Notebookllm/internal/models"

// StockDirectory is the read-only stock dataset
type StockDirectory interface {
	// Records returns every record. Callers must not modify the slice.
	Records() []models.StockRecord

	// Lookup returns the record with the exact code
	Lookup(code string) (models.StockRecord, bool)

	// Len returns the number of records
	Len() int
}

// StockMatcher resolves user queries against the directory
type StockMatcher interface {
	// Search returns up to limit candidates, best first. Empty or unmatched
	// queries return an empty slice.
	Search(query string, limit int) []models.StockRecord

	// Resolve returns the single best candidate or an UnresolvedStockError
	Resolve(query string) (models.StockRecord, error)
}
