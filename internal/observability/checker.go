package observability

import "context"

// Checker defines the contract for any component that needs to report its health status.
// Implementations must be thread-safe and non-blocking (respecting the context).
type Checker interface {
	// Name returns the unique identifier of the component (e.g., "snapshot", "postgres", "redis").
	Name() string
	// Check performs the health verification. Returns nil if healthy, or an error if it fails.
	// The provided context must be used to respect timeouts.
	Check(ctx context.Context) error
}

// CheckerFunc adapts a plain function into a named Checker.
type CheckerFunc struct {
	Component string
	Fn        func(ctx context.Context) error
}

// Name implements Checker.
func (c CheckerFunc) Name() string { return c.Component }

// Check implements Checker.
func (c CheckerFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

// checkAll runs every checker concurrently and reports per-component status.
func checkAll(ctx context.Context, checkers []Checker) (map[string]error, bool) {
	type outcome struct {
		name string
		err  error
	}

	results := make(chan outcome, len(checkers))
	for _, c := range checkers {
		go func(c Checker) {
			results <- outcome{name: c.Name(), err: c.Check(ctx)}
		}(c)
	}

	statuses := make(map[string]error, len(checkers))
	healthy := true
	for range checkers {
		o := <-results
		statuses[o.name] = o.err
		if o.err != nil {
			healthy = false
		}
	}
	return statuses, healthy
}
