package binder

// BinderBuilderOption is a functional option used to configure a Binder during construction.
type BinderBuilderOption func(*binder)

// WithInstanceCapacity sets the minimum instance buffer capacity, in
// instances, allocated on first write each tick. Defaults to 64.
//
// Parameters:
//   - instances: the minimum capacity (values < 1 are ignored)
//
// Returns:
//   - BinderBuilderOption: a function that sets the minimum instance capacity
func WithInstanceCapacity(instances int) BinderBuilderOption {
	return func(b *binder) {
		if instances >= 1 {
			for i := range b.stores {
				b.stores[i].minCap = uint64(instances)
			}
		}
	}
}
