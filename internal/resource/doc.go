// Package resource governs the budgets shared by every index opened against
// the same controller.
//
//   - Memory: node-cache snapshots reserve their footprint before being
//     swapped in (non-blocking, fail-fast).
//   - Background: the sampled cache task holds one slot while it runs.
//   - IO: a token bucket, in bytes per second, applied by the block reader.
//
// All methods are safe on a nil *Controller and become no-ops, so callers can
// leave governance unconfigured without nil checks.
package resource
