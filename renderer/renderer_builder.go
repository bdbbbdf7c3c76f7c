package renderer

import (
	"github.com/gpukit/rendercore/renderer/binder"
	"github.com/gpukit/rendercore/renderer/pipeline"
	"github.com/gpukit/rendercore/renderer/shader"
)

// rendererConfig collects the options forwarded to the stack's components.
type rendererConfig struct {
	registryOptions []shader.RegistryBuilderOption
	cacheOptions    []pipeline.CacheBuilderOption
	binderOptions   []binder.BinderBuilderOption
}

// RendererBuilderOption configures renderer construction.
type RendererBuilderOption func(*rendererConfig)

// WithRegistryOptions forwards options to the program registry, e.g. to
// disable compile validation in environments without a compiler.
//
// Parameters:
//   - options: registry options
//
// Returns:
//   - RendererBuilderOption: the option to pass to NewRenderer
func WithRegistryOptions(options ...shader.RegistryBuilderOption) RendererBuilderOption {
	return func(cfg *rendererConfig) {
		cfg.registryOptions = append(cfg.registryOptions, options...)
	}
}

// WithPipelineOptions forwards options to the pipeline cache, e.g. the warm
// worker count.
//
// Parameters:
//   - options: pipeline cache options
//
// Returns:
//   - RendererBuilderOption: the option to pass to NewRenderer
func WithPipelineOptions(options ...pipeline.CacheBuilderOption) RendererBuilderOption {
	return func(cfg *rendererConfig) {
		cfg.cacheOptions = append(cfg.cacheOptions, options...)
	}
}

// WithBinderOptions forwards options to the resource binder, e.g. the initial
// instance buffer capacity.
//
// Parameters:
//   - options: binder options
//
// Returns:
//   - RendererBuilderOption: the option to pass to NewRenderer
func WithBinderOptions(options ...binder.BinderBuilderOption) RendererBuilderOption {
	return func(cfg *rendererConfig) {
		cfg.binderOptions = append(cfg.binderOptions, options...)
	}
}
