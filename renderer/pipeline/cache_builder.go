package pipeline

// CacheBuilderOption is a functional option used to configure a Cache during construction.
type CacheBuilderOption func(*Cache)

// WithWarmWorkers sets the number of worker goroutines used by Warm.
// Defaults to max(NumCPU-1, 1).
//
// Parameters:
//   - workers: the worker count (values < 1 are ignored)
//
// Returns:
//   - CacheBuilderOption: a function that sets the warm worker count
func WithWarmWorkers(workers int) CacheBuilderOption {
	return func(c *Cache) {
		if workers >= 1 {
			c.warmWorkers = workers
		}
	}
}
