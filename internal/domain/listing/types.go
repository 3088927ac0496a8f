// Package listing provides shared list filtering and pagination types.
package listing

// Page contains common pagination parameters.
type Page struct {
	// OrderBy specifies sorting (e.g., "date", "-created_at")
	OrderBy string

	Limit  int
	Offset int
}

// DefaultPage returns sensible defaults.
func DefaultPage() Page {
	return Page{Limit: 50}
}

// Result contains paginated results.
type Result[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}
