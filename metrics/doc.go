// Package metrics instruments allocators with Prometheus collectors.
//
//	c := metrics.NewCollectors("objmodel")
//	prometheus.MustRegister(c)
//
//	a := metrics.Wrap(malloc.NewHeap(), c, "default")
//
// The wrapper is itself an allocator, so it can be installed in a registry
// scope or used as the registry's default in place of the allocator it
// wraps.
package metrics
