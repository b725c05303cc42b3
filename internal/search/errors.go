package search

import "errors"

var (
	// ErrInvalidArgument is returned for malformed query parameters
	// (k <= 0, negative or NaN radius, wrong query dimension).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidInput is returned when a cloud or subset cannot be indexed
	// (empty cloud, empty subset, out-of-range ids, no finite points).
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotInitialized is returned for queries issued before a successful build.
	ErrNotInitialized = errors.New("search not initialized")

	// ErrStrategyUnavailable is returned when a strategy cannot operate on the
	// given cloud or metric.
	ErrStrategyUnavailable = errors.New("strategy unavailable")

	// ErrStaleIndex is returned when the cloud was mutated after the index was built.
	ErrStaleIndex = errors.New("index is stale: cloud changed since build")

	// ErrResultMismatch is returned when a strategy disagrees with the
	// brute-force ground truth.
	ErrResultMismatch = errors.New("results disagree with brute force")
)
