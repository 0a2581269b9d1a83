// Package pagination aggregates character pages into one name-to-count
// mapping.
//
// Pages are fetched strictly in sequence: whether another page is needed
// depends on the size of the previous one. Each iteration requests
// min(BatchSize, limit-retrieved) entries at the current offset, merges
// them, and advances the offset by the requested size. The loop stops once
// limit entries were retrieved or a page comes back short.
//
// Example usage:
//
//	agg := pagination.NewAggregator(catalogService, pagination.DefaultConfig())
//	result, err := agg.Aggregate(ctx, 250, 0)
//
// Any page error aborts the aggregation and discards what was merged.
package pagination
