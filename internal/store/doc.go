// Package store provides the hierarchical state tree shared by every process
// in a composite.
//
// A [Store] is a tree of named nodes. Interior nodes map keys to children;
// leaves hold a value together with the [Updater] that integrates incoming
// deltas:
//
//   - [Set]: replace the current value
//   - [Accumulate]: add the delta to the current value
//   - [NonNegativeAccumulate]: accumulate, clamped at zero
//   - [Null]: ignore deltas
//   - [Reducer]: caller supplied reduction
//
// Leaves are declared once with [Store.Declare] and mutated only through
// [Store.Apply]. Applying to a path nobody declared fails with a
// [SchemaError].
//
// # Thread Safety
//
// Store is NOT safe for concurrent mutation. The engine is its only writer.
package store
