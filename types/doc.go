// Package types defines the shared data model for the usagevault storage
// and query engines: usage data points, bucket descriptors, bucket
// strategies, aggregation windows, and operation results.
package types
