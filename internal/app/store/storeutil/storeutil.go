// internal/app/store/storeutil/storeutil.go
package storeutil

import "go.mongodb.org/mongo-driver/mongo/options"

// DefaultPageSize is used when a caller passes a non-positive limit.
const DefaultPageSize = 20

// PageBounds clamps limit and a 1-based page and returns the limit and the
// number of rows to skip.
func PageBounds(limit, page int64) (int64, int64) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}

// Paginate returns *options.FindOptions with skip/limit given a 1-based page.
func Paginate(limit, page int64) *options.FindOptions {
	limit, skip := PageBounds(limit, page)
	return options.Find().SetLimit(limit).SetSkip(skip)
}
