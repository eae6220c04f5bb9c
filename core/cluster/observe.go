package cluster

// observe times an operation and records its outcome when the returned func
// is deferred with the operation's named error.
func observe(m ClusterMetrics, scope Scope, op string) func(*error) {
	t := m.OperationDuration(scope, op)
	return func(err *error) {
		t.ObserveDuration()
		m.OperationCompleted(scope, op, *err == nil)
	}
}
