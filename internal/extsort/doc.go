// Package extsort sorts newline-delimited files that may not fit in memory.
//
// Sorting happens in two phases. The split phase streams the input into
// chunks bounded by an approximate byte budget, sorting and persisting each
// chunk to its own temp file on a bounded pool of goroutines. The merge phase
// combines the sorted chunk files into the output with a round-based scan over
// one reader per chunk.
//
// The sorter never returns I/O errors to its caller. Failures are logged and
// the affected chunk is skipped, so callers always get a best-effort output.
package extsort
