// Package queue holds the priority containers a query workspace is built from.
//
//   - CandidateQueue: unbounded min-heap of approximate (PQ) distances with
//     stable insertion-order ties; the iterator's frontier source.
//   - SearchList: the batch search list, bounded to the search-list width,
//     sorted by approximate distance with per-entry expanded flags.
//   - ApproxSet: bounded best-first set of approximate results; ties keep
//     insertion order.
//   - ExactSet: bounded best-first set of exact results; ties break by id.
//
// Bounded containers reject an entry that is not better than their worst
// member when full, and otherwise evict the worst. Distances are always
// smaller-is-better.
package queue
