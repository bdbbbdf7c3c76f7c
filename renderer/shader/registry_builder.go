package shader

// RegistryBuilderOption is a functional option used to configure a Registry during construction.
type RegistryBuilderOption func(*registry)

// WithCompileValidation enables or disables the WGSL compile check performed
// at registration. Interface parsing and validation always run; only the
// compiler pass is skipped when disabled.
//
// Parameters:
//   - enabled: whether to run the compile check (enabled by default)
//
// Returns:
//   - RegistryBuilderOption: a function that sets the compile validation state
func WithCompileValidation(enabled bool) RegistryBuilderOption {
	return func(r *registry) {
		if !enabled {
			r.compile = nil
		}
	}
}

// WithCompiler replaces the WGSL compiler used for registration-time
// validation. Intended for tests that need deterministic diagnostics.
//
// Parameters:
//   - compile: the compiler function, taking WGSL source and returning compiled bytes or an error
//
// Returns:
//   - RegistryBuilderOption: a function that sets the compiler
func WithCompiler(compile func(source string) ([]byte, error)) RegistryBuilderOption {
	return func(r *registry) {
		r.compile = compile
	}
}
