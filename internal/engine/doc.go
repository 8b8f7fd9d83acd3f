// Package engine drives a composite forward in simulated time.
//
// Each process carries its own time step. The engine repeatedly picks the
// earliest due time among all processes (a synchronization point), invokes
// every process due at that time against the same pre-step view of the
// store, and only then applies all returned updates through each leaf's
// updater. Leaves marked emit are appended to the timeseries after every
// synchronization point.
//
// # Example
//
//	c, _ := composite.Build(procs, wiring)
//	eng, _ := engine.New(c, engine.WithLogger(logger))
//	ts, err := eng.Run(ctx, 10)
//
// # Failures
//
// A failing process aborts the run with a [process.ComputationError] unless
// [Config.SkipFailures] is set. The store and the timeseries keep everything
// up to the last successful synchronization point and are returned alongside
// the error.
//
// # Thread Safety
//
// Engine instances are NOT thread-safe. [Config.Parallel] only fans out the
// process invocations of a single synchronization point.
package engine
