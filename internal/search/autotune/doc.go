// Package autotune picks the fastest search strategy for a cloud and a query
// type by benchmarking the candidates on a deterministic sample of queries.
//
// Evaluator runs the benchmark and produces a Report. Search is the façade
// that wraps a cloud, evaluates lazily on the first query of each type and
// serves every later query through the chosen strategy.
//
// Search is not safe for concurrent use: SetInputCloud and the first query of
// each type mutate internal state. Use Prepare to obtain a built strategy for
// concurrent read-only fan out.
package autotune
