// Package retrieval implements the per-thread retrieval-augmented context
// subsystem: chunking, embedding, persistent vector indexes, and the
// process-wide retriever cache.
//
// Invariants:
// - An index key is (owner, thread, doc type); index files never collide
//   across keys by path construction.
// - First document wins: once a key has a persisted index, later ingestions
//   for that key are no-ops and retrieval always serves the first source.
// - Cache lookups never create state; only the ingestion pipeline builds
//   indexes.
// - At most one index build or disk rehydration runs per key at a time.
package retrieval
