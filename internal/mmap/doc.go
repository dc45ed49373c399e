// Package mmap maps index files read-only so sector reads become memory copies.
//
// Mappings are advised with madvise(2) access hints: disk-index blobs are
// mapped with AccessRandom since beam search touches sectors in graph order.
package mmap
