// Package shader owns WGSL program sources and their parsed interfaces. A
// registered Program exposes the vertex attributes, binding slots, and
// inter-stage variables declared by its source, which the layout, pipeline,
// and binder packages consume without re-reading any WGSL.
package shader

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gpukit/rendercore/renderer/layout"
)

// Stage identifies one of the two render shader stages of a program.
type Stage int

const (
	// StageVertex is the vertex processing stage.
	StageVertex Stage = iota

	// StageFragment is the fragment processing stage.
	StageFragment
)

// ElemType is the element type of a vertex attribute.
type ElemType int

const (
	// ElemFloat2 is a two-component float attribute.
	ElemFloat2 ElemType = iota

	// ElemFloat3 is a three-component float attribute.
	ElemFloat3

	// ElemFloat4 is a four-component float attribute.
	ElemFloat4

	// ElemUint is a single unsigned integer attribute.
	ElemUint
)

// String returns the lower-case name of the element type for diagnostics.
func (e ElemType) String() string {
	switch e {
	case ElemFloat2:
		return "float2"
	case ElemFloat3:
		return "float3"
	case ElemFloat4:
		return "float4"
	case ElemUint:
		return "uint"
	default:
		return fmt.Sprintf("elem(%d)", int(e))
	}
}

// Attribute is a single typed vertex input: its shader location and element type.
type Attribute struct {
	Location int
	Elem     ElemType
}

// IOVar is one inter-stage variable: a vertex output or fragment input at a
// given location, with its canonical WGSL type name. Pipelines compare the
// vertex program's outputs against the fragment program's inputs before any
// GPU build.
type IOVar struct {
	Location int
	Type     string
}

// CompileError reports a malformed program source or an internally
// inconsistent declared interface. Registration of the offending program
// fails; previously registered programs are unaffected.
type CompileError struct {
	SourceName string
	Diagnostic string
	Line       int
	Col        int
}

func (e *CompileError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("shader %s:%d:%d: %s", e.SourceName, e.Line, e.Col, e.Diagnostic)
	}
	return fmt.Sprintf("shader %s: %s", e.SourceName, e.Diagnostic)
}

// program is the implementation of the Program interface. It holds everything
// parsed out of one WGSL source at registration time; nothing is re-derived
// per frame.
type program struct {
	key           string
	source        string
	vsEntry       string
	fsEntry       string
	attributes    []Attribute
	instanceAttrs []Attribute
	slots         []layout.Slot
	bindingLayout *layout.Layout
	vertexOut     []IOVar
	fragmentIn    []IOVar
	vertexBuffers []wgpu.VertexBufferLayout
	module        *wgpu.ShaderModuleDescriptor
}

// Program is a registered shader program pair (vertex + fragment stage in one
// WGSL source) with its parsed interface descriptor. Programs are immutable
// once registered and owned exclusively by the Registry.
type Program interface {
	// Key retrieves the unique identifier this program was registered under.
	//
	// Returns:
	//   - string: the program's registry key
	Key() string

	// Source retrieves the WGSL source text.
	//
	// Returns:
	//   - string: the WGSL source code of the program
	Source() string

	// EntryPoint returns the entry function name for the given stage.
	//
	// Parameters:
	//   - stage: StageVertex or StageFragment
	//
	// Returns:
	//   - string: the entry point name, or empty string for an unknown stage
	EntryPoint(stage Stage) string

	// Attributes returns the per-vertex input attributes declared by the
	// vertex stage, ordered by location.
	//
	// Returns:
	//   - []Attribute: the per-vertex attributes
	Attributes() []Attribute

	// InstanceAttributes returns the per-instance input attributes, ordered by
	// location. Empty for non-instanced programs.
	//
	// Returns:
	//   - []Attribute: the per-instance attributes
	InstanceAttributes() []Attribute

	// BindingSlots returns the binding slots declared by the source, sorted by
	// (group, binding). Instance streams appear under layout.InstanceGroup.
	//
	// Returns:
	//   - []layout.Slot: the declared slots
	BindingSlots() []layout.Slot

	// Layout returns the canonical binding layout derived from this program's
	// slots. Programs with structurally identical slot sets share the same
	// *layout.Layout instance.
	//
	// Returns:
	//   - *layout.Layout: the shared canonical layout
	Layout() *layout.Layout

	// VertexOutputs returns the inter-stage variables the vertex stage writes,
	// ordered by location.
	//
	// Returns:
	//   - []IOVar: vertex stage outputs
	VertexOutputs() []IOVar

	// FragmentInputs returns the inter-stage variables the fragment stage
	// reads, ordered by location.
	//
	// Returns:
	//   - []IOVar: fragment stage inputs
	FragmentInputs() []IOVar

	// VertexBufferLayouts returns the vertex buffer layouts for this program:
	// buffer 0 steps per vertex, buffer 1 (when present) steps per instance.
	//
	// Returns:
	//   - []wgpu.VertexBufferLayout: the derived vertex buffer layouts
	VertexBufferLayouts() []wgpu.VertexBufferLayout

	// Module returns the wgpu shader module descriptor built from the source.
	//
	// Returns:
	//   - *wgpu.ShaderModuleDescriptor: the module descriptor with the WGSL code and key label
	Module() *wgpu.ShaderModuleDescriptor
}

var _ Program = &program{}

func (p *program) Key() string {
	return p.key
}

func (p *program) Source() string {
	return p.source
}

func (p *program) EntryPoint(stage Stage) string {
	switch stage {
	case StageVertex:
		return p.vsEntry
	case StageFragment:
		return p.fsEntry
	default:
		return ""
	}
}

func (p *program) Attributes() []Attribute {
	return p.attributes
}

func (p *program) InstanceAttributes() []Attribute {
	return p.instanceAttrs
}

func (p *program) BindingSlots() []layout.Slot {
	return p.slots
}

func (p *program) Layout() *layout.Layout {
	return p.bindingLayout
}

func (p *program) VertexOutputs() []IOVar {
	return p.vertexOut
}

func (p *program) FragmentInputs() []IOVar {
	return p.fragmentIn
}

func (p *program) VertexBufferLayouts() []wgpu.VertexBufferLayout {
	return p.vertexBuffers
}

func (p *program) Module() *wgpu.ShaderModuleDescriptor {
	return p.module
}
