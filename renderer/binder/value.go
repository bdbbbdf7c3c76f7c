package binder

import (
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gpukit/rendercore/renderer/layout"
)

// BindingKey addresses one slot of a layout when supplying values.
type BindingKey struct {
	Group   int
	Binding int
}

// Value is one caller-supplied resource for a binding slot, tagged by kind.
// Construct values with UniformValue, TextureValue, or SamplerValue.
type Value struct {
	kind    layout.Kind
	uniform []byte
	texture *wgpu.TextureView
	sampler *wgpu.Sampler
}

// UniformValue wraps a raw byte payload for a uniform buffer slot. The
// payload must match the slot's declared struct layout, e.g. 64 bytes for a
// 4x4 transform matrix or 16 for a single padded unsigned integer id.
//
// Parameters:
//   - data: the uniform bytes
//
// Returns:
//   - Value: the tagged value
func UniformValue(data []byte) Value {
	return Value{kind: layout.KindUniformBuffer, uniform: data}
}

// TextureValue wraps a texture view for a sampled texture slot. The binder
// references the view for the resource set's lifetime; it never owns the
// texture contents.
//
// Parameters:
//   - view: the texture view to bind
//
// Returns:
//   - Value: the tagged value
func TextureValue(view *wgpu.TextureView) Value {
	return Value{kind: layout.KindTexture2D, texture: view}
}

// SamplerValue wraps a sampler for a sampler slot.
//
// Parameters:
//   - sampler: the sampler to bind
//
// Returns:
//   - Value: the tagged value
func SamplerValue(sampler *wgpu.Sampler) Value {
	return Value{kind: layout.KindSampler, sampler: sampler}
}
