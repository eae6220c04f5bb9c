// Package sf provides a typed single-flight group.
//
// Concurrent callers of [Singleflight.Do] with the same key share one
// execution of fn and receive its result. The cluster resolver uses it so
// that a burst of first callers triggers a single probe of the cluster
// address:
//
//	group := sf.New[resolved]()
//	r, err := group.Do("resolve", func() (*resolved, error) {
//	    return probe(ctx)
//	})
//
// Results are not cached; a call that starts after the previous one
// returned executes fn again.
package sf
