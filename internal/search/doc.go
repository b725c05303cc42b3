// Package search owns the nearest-neighbour layer of the toolkit.
//
// Responsibilities: the borrowed View a spatial index is built on, the flat
// Strategy interface, and its interchangeable implementations (BruteForce,
// KdTree, Octree, Grid). Every strategy answers the same two queries:
//
//   - NearestK: up to k nearest points, ordered by (distance, id).
//   - Radius: every point with distance <= r, same ordering, optionally capped.
//
// Key types: View, Token, Neighbor, Strategy, Searcher, Kind.
//
// Strategies are built once per (cloud, subset) pair and are read-only
// afterwards, so concurrent queries against a built strategy are safe.
// Building is not: callers serialise Build and cloud mutation. A strategy
// refuses to serve once the cloud it was built on has been mutated
// (ErrStaleIndex).
//
// Strategy selection lives in package search/autotune.
package search
