// Package renderer is the frame-composition core: it orders the fixed pass
// sequence of one frame, records draw invocations against cached pipelines
// and bound resource sets, and hands the recorded frame to the presentation
// boundary. The wgpu backend in this package implements the GPU-facing seams
// the caches and the binder are injected with.
package renderer

import (
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gpukit/rendercore/renderer/binder"
	"github.com/gpukit/rendercore/renderer/pipeline"
)

// ComposerState is the frame recording state.
type ComposerState int

const (
	// StateIdle means no frame is being recorded.
	StateIdle ComposerState = iota

	// StateBuilding means a frame is open for draw recording.
	StateBuilding

	// StateSubmitted means a recorded frame awaits (re)presentation after a
	// recoverable present failure.
	StateSubmitted
)

// String returns the state name for diagnostics.
func (s ComposerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuilding:
		return "building"
	case StateSubmitted:
		return "submitted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// PassKind identifies one pass of the fixed frame sequence, in execution
// order.
type PassKind int

const (
	// PassOpaque draws flat-shaded geometry and clears the scene color and
	// depth attachments.
	PassOpaque PassKind = iota

	// PassTextured draws textured geometry over the opaque pass's output.
	PassTextured

	// PassIDColor draws per-primitive id colors into the offscreen id target.
	// Optional; skipped when no draws are recorded for it.
	PassIDColor

	// PassOverlay draws instanced debug geometry over the scene color.
	PassOverlay

	// PassPresent composites the scene color into the presentable target with
	// the color reconstruction applied.
	PassPresent

	passCount
)

// String returns the pass name for diagnostics.
func (k PassKind) String() string {
	switch k {
	case PassOpaque:
		return "opaque"
	case PassTextured:
		return "textured"
	case PassIDColor:
		return "id-color"
	case PassOverlay:
		return "overlay"
	case PassPresent:
		return "present"
	default:
		return fmt.Sprintf("pass(%d)", int(k))
	}
}

// InvalidStateError reports a composer operation attempted in the wrong
// state. This is a programming error and should be treated as fatal.
type InvalidStateError struct {
	Op    string
	State ComposerState
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("renderer: %s called in %s state", e.Op, e.State)
}

// TargetLostError reports that the presentable target was lost or is out of
// date. The caller reconfigures the surface and retries the same frame.
type TargetLostError struct{}

func (e *TargetLostError) Error() string {
	return "renderer: presentable target lost"
}

// Target is the presentable surface view a frame renders into, handed to the
// core by the host collaborator.
type Target struct {
	View   *wgpu.TextureView
	Width  uint32
	Height uint32
	Format wgpu.TextureFormat
}

// Geometry references already-loaded vertex/index data by opaque handle. The
// core never loads or decodes asset bytes itself.
type Geometry struct {
	VertexBuffer *wgpu.Buffer
	IndexBuffer  *wgpu.Buffer
	IndexFormat  wgpu.IndexFormat
	IndexCount   uint32
	VertexCount  uint32
}

// DrawCommand is one recorded draw invocation: a pipeline, geometry, the
// resource sets its bind groups come from, and an optional instance range for
// instanced passes.
type DrawCommand struct {
	Pipeline  *pipeline.Pipeline
	Geometry  Geometry
	Sets      []*binder.ResourceSet
	Instances *binder.InstanceRange
}

// Pass is the ordered list of draw invocations recorded for one pass kind.
type Pass struct {
	kind     PassKind
	commands []DrawCommand
}

// Kind returns which pass of the fixed sequence this is.
//
// Returns:
//   - PassKind: the pass kind
func (p *Pass) Kind() PassKind {
	return p.kind
}

// Commands returns the recorded draw invocations in submission order.
//
// Returns:
//   - []DrawCommand: the recorded draws
func (p *Pass) Commands() []DrawCommand {
	return p.commands
}

// Empty reports whether the pass recorded no draws.
//
// Returns:
//   - bool: true if nothing was recorded
func (p *Pass) Empty() bool {
	return len(p.commands) == 0
}

// Frame is the ordered sequence of passes recorded against one presentable
// target. Frames are transient: created by BeginFrame, discarded after
// presentation.
type Frame struct {
	target Target
	passes [passCount]Pass
	// instanceBuffer is the binder's instance vertex buffer, resolved when
	// recording closes. Recorded InstanceRanges carry offsets into it.
	instanceBuffer *wgpu.Buffer
}

// Target returns the presentable target this frame renders into.
//
// Returns:
//   - Target: the frame's target
func (f *Frame) Target() Target {
	return f.target
}

// InstanceBuffer returns the instance vertex buffer the frame's instanced
// draws read from, resolved when recording closed. Nil if the frame recorded
// no instance data.
//
// Returns:
//   - *wgpu.Buffer: the instance buffer for this frame
func (f *Frame) InstanceBuffer() *wgpu.Buffer {
	return f.instanceBuffer
}

// Pass returns the recorded pass of the given kind.
//
// Parameters:
//   - kind: the pass kind
//
// Returns:
//   - *Pass: the pass, or nil for an unknown kind
func (f *Frame) Pass(kind PassKind) *Pass {
	if kind < 0 || kind >= passCount {
		return nil
	}
	return &f.passes[kind]
}

// Presenter is the presentation boundary: it owns the offscreen attachments
// the fixed pass sequence requires and turns a recorded frame into submitted
// GPU work. The wgpu backend implements it; tests substitute a stub.
type Presenter interface {
	// EnsureAttachments sizes the offscreen attachments (scene color, id
	// color, depth) to the target, reusing them until the size changes.
	//
	// Parameters:
	//   - target: the presentable target for the upcoming frame
	//
	// Returns:
	//   - error: an allocation failure
	EnsureAttachments(target Target) error

	// Present encodes the recorded frame's passes in order, submits them, and
	// presents the target.
	//
	// Parameters:
	//   - frame: the fully recorded frame
	//
	// Returns:
	//   - error: *TargetLostError if the target must be reconfigured and the frame retried
	Present(frame *Frame) error

	// ReleaseAttachments drops the offscreen attachments, e.g. when a frame
	// is abandoned or the surface is reconfigured.
	ReleaseAttachments()
}

// Composer records one frame at a time through a strict state machine:
// Idle -> Building (BeginFrame) -> Submitted (EndFrame) -> Idle. No two
// frames may be concurrently in the Building state.
type Composer struct {
	mu        sync.Mutex
	state     ComposerState
	presenter Presenter
	binder    binder.Binder
	frame     *Frame
}

// NewComposer creates a frame composer that presents through the given
// presenter and recycles per-frame resources through the given binder.
//
// Parameters:
//   - presenter: the presentation boundary (must not be nil)
//   - b: the resource binder (must not be nil)
//
// Returns:
//   - *Composer: the new composer
func NewComposer(presenter Presenter, b binder.Binder) *Composer {
	if presenter == nil {
		panic("renderer: NewComposer requires a non-nil Presenter")
	}
	if b == nil {
		panic("renderer: NewComposer requires a non-nil Binder")
	}
	return &Composer{presenter: presenter, binder: b}
}

// State reports the current recording state.
//
// Returns:
//   - ComposerState: the state
func (c *Composer) State() ComposerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// BeginFrame opens a frame against the target: flips the binder's per-frame
// storage to the slot not in flight, sizes the offscreen attachments, and
// starts recording.
//
// Parameters:
//   - target: the presentable target for this frame
//
// Returns:
//   - error: *InvalidStateError if a frame is already open
func (c *Composer) BeginFrame(target Target) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return &InvalidStateError{Op: "BeginFrame", State: c.state}
	}
	if err := c.presenter.EnsureAttachments(target); err != nil {
		return err
	}
	c.binder.BeginTick()

	f := &Frame{target: target}
	for kind := PassKind(0); kind < passCount; kind++ {
		f.passes[kind].kind = kind
	}
	c.frame = f
	c.state = StateBuilding
	return nil
}

// Draw records one draw invocation into the named pass. A validation failure
// aborts only this invocation; the rest of the frame is unaffected.
//
// Parameters:
//   - kind: the pass to record into
//   - cmd: the draw invocation
//
// Returns:
//   - error: *InvalidStateError outside Building, or a validation failure for this invocation
func (c *Composer) Draw(kind PassKind, cmd DrawCommand) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateBuilding {
		return &InvalidStateError{Op: "Draw", State: c.state}
	}
	if kind < 0 || kind >= passCount {
		return fmt.Errorf("renderer: unknown pass %d", kind)
	}
	if cmd.Pipeline == nil {
		return fmt.Errorf("renderer: draw into %s pass has no pipeline", kind)
	}
	if cmd.Geometry.VertexBuffer == nil {
		return fmt.Errorf("renderer: draw into %s pass has no vertex buffer", kind)
	}
	if cmd.Instances != nil && cmd.Instances.Count == 0 {
		return fmt.Errorf("renderer: instanced draw into %s pass has zero instances", kind)
	}
	c.frame.passes[kind].commands = append(c.frame.passes[kind].commands, cmd)
	return nil
}

// EndFrame closes recording and hands the frame to the presenter. On a lost
// target the frame is retained and EndFrame may be called again after the
// caller reconfigures the surface, re-presenting the same content. Any other
// present failure drops the frame.
//
// Returns:
//   - error: *InvalidStateError outside Building/Submitted, *TargetLostError (retryable), or a wrapped present failure
func (c *Composer) EndFrame() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateBuilding && c.state != StateSubmitted {
		return &InvalidStateError{Op: "EndFrame", State: c.state}
	}
	c.state = StateSubmitted

	// Resolve the instance buffer only now: mid-frame growth may have
	// replaced it after draws were recorded.
	c.frame.instanceBuffer = c.binder.InstanceBuffer()

	err := c.presenter.Present(c.frame)
	if err == nil {
		c.frame = nil
		c.state = StateIdle
		return nil
	}
	if _, lost := err.(*TargetLostError); lost {
		// Keep the frame for a retry once the surface is reconfigured.
		return err
	}
	c.frame = nil
	c.state = StateIdle
	return fmt.Errorf("renderer: present: %w", err)
}

// Abandon drops the frame being recorded or retried, releases the offscreen
// attachments and this tick's transient resource sets, and forces the
// composer back to Idle. Safe to call in any state.
func (c *Composer) Abandon() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frame != nil {
		c.binder.AbandonTick()
	}
	c.frame = nil
	c.presenter.ReleaseAttachments()
	c.state = StateIdle
}
