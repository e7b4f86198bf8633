// Package health holds the liveness and readiness probes served on the ops
// listener.
//
// A [Probe] returns nil when healthy and an error naming the reason when not.
// [All] combines probes, [Fixed] is a constant probe and [CheckFunc] adapts a
// plain function. [ShutdownGate] fails readiness once draining starts so the
// load balancer stops routing to this instance before the listener closes.
package health
