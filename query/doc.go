// Package query implements the query engine layered over the storage
// engine: filtering, sorting, grouping, pagination, field projection, a
// bounded TTL result cache, an index metadata catalog used for cost
// estimation, and query execution telemetry.
//
// Index specs are planning hints only; nothing here physically reorders
// stored buckets.
package query
