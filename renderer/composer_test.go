package renderer

import (
	"errors"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gpukit/rendercore/renderer/binder"
	"github.com/gpukit/rendercore/renderer/layout"
	"github.com/gpukit/rendercore/renderer/pipeline"
)

// stubPresenter records presentation calls and returns scripted errors.
type stubPresenter struct {
	ensureCalls  int
	ensureErr    error
	presentCalls int
	presentErrs  []error
	releaseCalls int
	lastFrame    *Frame
}

func (p *stubPresenter) EnsureAttachments(Target) error {
	p.ensureCalls++
	return p.ensureErr
}

func (p *stubPresenter) Present(frame *Frame) error {
	p.lastFrame = frame
	p.presentCalls++
	if len(p.presentErrs) == 0 {
		return nil
	}
	err := p.presentErrs[0]
	p.presentErrs = p.presentErrs[1:]
	return err
}

func (p *stubPresenter) ReleaseAttachments() {
	p.releaseCalls++
}

// stubBinder tracks tick flips without any device behind it.
type stubBinder struct {
	beginTicks   int
	abandonTicks int
	slot         int
	instanceBuf  *wgpu.Buffer
}

func (b *stubBinder) Allocate(*layout.Layout, map[binder.BindingKey]binder.Value) (*binder.ResourceSet, error) {
	return nil, errors.New("not supported")
}

func (b *stubBinder) AllocateStatic(*layout.Layout, map[binder.BindingKey]binder.Value) (*binder.ResourceSet, error) {
	return nil, errors.New("not supported")
}

func (b *stubBinder) WriteInstances([]binder.InstanceData) (*binder.InstanceRange, error) {
	return nil, errors.New("not supported")
}

func (b *stubBinder) InstanceBuffer() *wgpu.Buffer {
	return b.instanceBuf
}

func (b *stubBinder) InstanceCapacity() int {
	return 0
}

func (b *stubBinder) BeginTick() {
	b.beginTicks++
	b.slot = 1 - b.slot
}

func (b *stubBinder) AbandonTick() {
	b.abandonTicks++
}

func (b *stubBinder) TickSlot() int {
	return b.slot
}

func (b *stubBinder) Close() {}

func newTestComposer() (*Composer, *stubPresenter, *stubBinder) {
	p := &stubPresenter{}
	b := &stubBinder{}
	return NewComposer(p, b), p, b
}

func testTarget() Target {
	return Target{Width: 640, Height: 480, Format: wgpu.TextureFormatBGRA8Unorm}
}

func testDraw() DrawCommand {
	return DrawCommand{
		Pipeline: &pipeline.Pipeline{},
		Geometry: Geometry{VertexBuffer: &wgpu.Buffer{}, VertexCount: 3},
	}
}

func TestBeginFrameOpensExactlyOneFrame(t *testing.T) {
	c, p, b := newTestComposer()

	if err := c.BeginFrame(testTarget()); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	if c.State() != StateBuilding {
		t.Fatalf("state = %v, want building", c.State())
	}
	if p.ensureCalls != 1 {
		t.Errorf("EnsureAttachments calls = %d, want 1", p.ensureCalls)
	}
	if b.beginTicks != 1 {
		t.Errorf("BeginTick calls = %d, want 1", b.beginTicks)
	}

	err := c.BeginFrame(testTarget())
	var stateErr *InvalidStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("second BeginFrame error = %v, want InvalidStateError", err)
	}
	if b.beginTicks != 1 {
		t.Errorf("rejected BeginFrame flipped the tick (calls = %d)", b.beginTicks)
	}
}

func TestBeginFrameAttachmentFailure(t *testing.T) {
	c, p, b := newTestComposer()
	p.ensureErr = errors.New("out of memory")

	if err := c.BeginFrame(testTarget()); err == nil {
		t.Fatal("BeginFrame succeeded with failing attachments")
	}
	if c.State() != StateIdle {
		t.Fatalf("state = %v, want idle", c.State())
	}
	if b.beginTicks != 0 {
		t.Errorf("failed BeginFrame flipped the tick (calls = %d)", b.beginTicks)
	}
}

func TestEndFrameRequiresOpenFrame(t *testing.T) {
	c, _, _ := newTestComposer()

	err := c.EndFrame()
	var stateErr *InvalidStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("EndFrame error = %v, want InvalidStateError", err)
	}
}

func TestDrawValidation(t *testing.T) {
	c, _, _ := newTestComposer()

	if err := c.Draw(PassOpaque, testDraw()); err == nil {
		t.Fatal("Draw before BeginFrame succeeded")
	}

	if err := c.BeginFrame(testTarget()); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}

	tests := []struct {
		name string
		kind PassKind
		cmd  DrawCommand
	}{
		{
			name: "unknown pass",
			kind: passCount,
			cmd:  testDraw(),
		},
		{
			name: "missing pipeline",
			kind: PassOpaque,
			cmd:  DrawCommand{Geometry: Geometry{VertexBuffer: &wgpu.Buffer{}}},
		},
		{
			name: "missing vertex buffer",
			kind: PassOpaque,
			cmd:  DrawCommand{Pipeline: &pipeline.Pipeline{}},
		},
		{
			name: "zero instance count",
			kind: PassOverlay,
			cmd: DrawCommand{
				Pipeline:  &pipeline.Pipeline{},
				Geometry:  Geometry{VertexBuffer: &wgpu.Buffer{}},
				Instances: &binder.InstanceRange{First: 0, Count: 0},
			},
		},
	}
	for _, tt := range tests {
		if err := c.Draw(tt.kind, tt.cmd); err == nil {
			t.Errorf("%s: Draw succeeded, want error", tt.name)
		}
	}

	// A failed draw must not poison the frame.
	if err := c.Draw(PassOpaque, testDraw()); err != nil {
		t.Fatalf("valid draw after failures: %v", err)
	}
	if err := c.EndFrame(); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}
}

func TestDrawsLandInTheirPasses(t *testing.T) {
	c, p, _ := newTestComposer()

	if err := c.BeginFrame(testTarget()); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := c.Draw(PassOpaque, testDraw()); err != nil {
			t.Fatalf("opaque draw %d: %v", i, err)
		}
	}
	if err := c.Draw(PassOverlay, DrawCommand{
		Pipeline:  &pipeline.Pipeline{},
		Geometry:  Geometry{VertexBuffer: &wgpu.Buffer{}},
		Instances: &binder.InstanceRange{First: 0, Count: 4},
	}); err != nil {
		t.Fatalf("overlay draw: %v", err)
	}
	if err := c.EndFrame(); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}

	frame := p.lastFrame
	if got := len(frame.Pass(PassOpaque).Commands()); got != 3 {
		t.Errorf("opaque commands = %d, want 3", got)
	}
	if got := len(frame.Pass(PassOverlay).Commands()); got != 1 {
		t.Errorf("overlay commands = %d, want 1", got)
	}
	if !frame.Pass(PassIDColor).Empty() {
		t.Error("id-color pass not empty")
	}
}

func TestEndFrameRetriesLostTarget(t *testing.T) {
	c, p, _ := newTestComposer()
	p.presentErrs = []error{&TargetLostError{}}

	if err := c.BeginFrame(testTarget()); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	if err := c.Draw(PassOpaque, testDraw()); err != nil {
		t.Fatalf("Draw: %v", err)
	}

	err := c.EndFrame()
	var lost *TargetLostError
	if !errors.As(err, &lost) {
		t.Fatalf("EndFrame error = %v, want TargetLostError", err)
	}
	if c.State() != StateSubmitted {
		t.Fatalf("state after lost target = %v, want submitted", c.State())
	}

	// The retry re-presents the same recorded frame.
	first := p.lastFrame
	if err := c.EndFrame(); err != nil {
		t.Fatalf("retry EndFrame: %v", err)
	}
	if p.presentCalls != 2 {
		t.Errorf("present calls = %d, want 2", p.presentCalls)
	}
	if p.lastFrame != first {
		t.Error("retry presented a different frame")
	}
	if c.State() != StateIdle {
		t.Errorf("state after retry = %v, want idle", c.State())
	}
}

func TestEndFrameDropsFrameOnHardFailure(t *testing.T) {
	c, p, _ := newTestComposer()
	p.presentErrs = []error{errors.New("device lost")}

	if err := c.BeginFrame(testTarget()); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	err := c.EndFrame()
	if err == nil {
		t.Fatal("EndFrame succeeded, want failure")
	}
	var lost *TargetLostError
	if errors.As(err, &lost) {
		t.Fatal("hard failure classified as lost target")
	}
	if c.State() != StateIdle {
		t.Fatalf("state = %v, want idle", c.State())
	}
	// The frame is gone; a second EndFrame has nothing to retry.
	if err := c.EndFrame(); err == nil {
		t.Fatal("EndFrame after drop succeeded")
	}
}

func TestEndFrameStampsInstanceBuffer(t *testing.T) {
	c, p, b := newTestComposer()
	b.instanceBuf = &wgpu.Buffer{}

	if err := c.BeginFrame(testTarget()); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	if err := c.EndFrame(); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}
	if p.lastFrame.InstanceBuffer() != b.instanceBuf {
		t.Error("frame does not carry the binder's instance buffer")
	}
}

func TestAbandonReleasesEverything(t *testing.T) {
	c, p, b := newTestComposer()

	if err := c.BeginFrame(testTarget()); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	if err := c.Draw(PassOpaque, testDraw()); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	c.Abandon()

	if c.State() != StateIdle {
		t.Fatalf("state = %v, want idle", c.State())
	}
	if b.abandonTicks != 1 {
		t.Errorf("AbandonTick calls = %d, want 1", b.abandonTicks)
	}
	if p.releaseCalls != 1 {
		t.Errorf("ReleaseAttachments calls = %d, want 1", p.releaseCalls)
	}

	// Abandon with no frame open releases attachments but has no tick to
	// give back.
	c.Abandon()
	if b.abandonTicks != 1 {
		t.Errorf("idle Abandon flipped a tick (calls = %d)", b.abandonTicks)
	}
}
