// Package pipeline builds and caches immutable GPU render pipelines keyed by
// structural descriptor equality. Pipelines are built lazily through an
// injected Builder and shared read-only by every pass referencing the same
// descriptor; a per-program generation counter invalidates cached pipelines
// when their program is re-registered.
package pipeline

import (
	"fmt"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gpukit/rendercore/renderer/layout"
	"github.com/gpukit/rendercore/renderer/shader"
)

// VertexLayout describes one vertex buffer stream: its byte stride and the
// typed attributes it carries.
type VertexLayout struct {
	Stride     uint64
	Attributes []shader.Attribute
}

// Descriptor identifies one render pipeline structurally. Two descriptors with
// equal field values resolve to the same cached pipeline; equality is by
// program identifier, not source content, so re-registering a program under a
// new key yields a distinct cache entry even for byte-identical text.
type Descriptor struct {
	VertexProgram   string
	FragmentProgram string
	Vertex          VertexLayout
	Instance        *VertexLayout
	Layouts         []*layout.Layout
	ColorFormat     wgpu.TextureFormat
	DepthFormat     wgpu.TextureFormat
	Topology        wgpu.PrimitiveTopology
}

// Key returns the structural identity of this descriptor, usable as a cache
// map key. Every field participates: changing any one of them produces a
// different key.
//
// Returns:
//   - string: a stable encoding of the descriptor's fields
func (d Descriptor) Key() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "vp=%s|fp=%s|", d.VertexProgram, d.FragmentProgram)
	writeVertexLayout(&sb, d.Vertex)
	sb.WriteByte('|')
	if d.Instance != nil {
		writeVertexLayout(&sb, *d.Instance)
	}
	sb.WriteByte('|')
	for _, l := range d.Layouts {
		sb.WriteString(l.Key())
		sb.WriteByte('/')
	}
	fmt.Fprintf(&sb, "|c=%d|d=%d|t=%d", d.ColorFormat, d.DepthFormat, d.Topology)
	return sb.String()
}

func writeVertexLayout(sb *strings.Builder, v VertexLayout) {
	fmt.Fprintf(sb, "s%d:", v.Stride)
	for _, a := range v.Attributes {
		fmt.Fprintf(sb, "l%de%d,", a.Location, int(a.Elem))
	}
}

// Pipeline is an opaque compiled GPU pipeline object. It is owned by the Cache
// and shared read-only by all passes referencing the same descriptor; it is
// never mutated after creation.
type Pipeline struct {
	key    string
	handle *wgpu.RenderPipeline
	vsGen  uint64
	fsGen  uint64
}

// Key returns the descriptor key this pipeline was built from.
//
// Returns:
//   - string: the structural descriptor key
func (p *Pipeline) Key() string {
	return p.key
}

// Handle returns the underlying GPU pipeline object for pass encoding.
//
// Returns:
//   - *wgpu.RenderPipeline: the compiled pipeline
func (p *Pipeline) Handle() *wgpu.RenderPipeline {
	return p.handle
}
