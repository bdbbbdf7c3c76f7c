package renderer

import "github.com/cogentcore/webgpu/wgpu"

// backendConfig collects construction options applied before device bring-up.
type backendConfig struct {
	forceFallbackAdapter bool
	presentMode          *wgpu.PresentMode
}

// BackendBuilderOption configures backend construction.
type BackendBuilderOption func(*backendConfig)

// WithForceFallbackAdapter forces the software fallback adapter, useful on
// machines without a usable GPU.
//
// Parameters:
//   - force: true to require the fallback adapter
//
// Returns:
//   - BackendBuilderOption: the option to pass to NewBackend
func WithForceFallbackAdapter(force bool) BackendBuilderOption {
	return func(cfg *backendConfig) {
		cfg.forceFallbackAdapter = force
	}
}

// WithPresentMode selects the surface present mode. The default is Fifo
// (vsync), which every surface supports.
//
// Parameters:
//   - mode: the present mode to configure the surface with
//
// Returns:
//   - BackendBuilderOption: the option to pass to NewBackend
func WithPresentMode(mode wgpu.PresentMode) BackendBuilderOption {
	return func(cfg *backendConfig) {
		cfg.presentMode = &mode
	}
}
