package pipeline

import (
	"errors"
	"sync"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gpukit/rendercore/renderer/layout"
	"github.com/gpukit/rendercore/renderer/shader"
)

const vertexVec3Source = `
struct TransformUniform {
    mvp: mat4x4<f32>,
};

@group(0) @binding(0) var<uniform> transform: TransformUniform;

struct VertexInput {
    @location(0) position: vec3<f32>,
};

struct VertexOutput {
    @builtin(position) clip_position: vec4<f32>,
    @location(0) color: vec3<f32>,
};

@vertex
fn vs_main(in: VertexInput) -> VertexOutput {
    var out: VertexOutput;
    out.clip_position = transform.mvp * vec4<f32>(in.position, 1.0);
    out.color = in.position;
    return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    return vec4<f32>(in.color, 1.0);
}
`

const fragmentVec2Source = `
struct VertexOutput {
    @builtin(position) clip_position: vec4<f32>,
    @location(0) uv: vec2<f32>,
};

@vertex
fn vs_main() -> VertexOutput {
    var out: VertexOutput;
    out.clip_position = vec4<f32>(0.0);
    out.uv = vec2<f32>(0.0);
    return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    return vec4<f32>(in.uv, 0.0, 1.0);
}
`

const fragmentLoc1Source = `
@vertex
fn vs_main() -> @builtin(position) vec4<f32> {
    return vec4<f32>(0.0);
}

@fragment
fn fs_main(@location(1) x: vec3<f32>) -> @location(0) vec4<f32> {
    return vec4<f32>(x, 1.0);
}
`

// stubBuilder compiles nothing; it hands back placeholder pipeline objects and
// counts build and release calls so tests can assert cache behavior.
type stubBuilder struct {
	mu          sync.Mutex
	builds      int
	releases    int
	unsupported map[wgpu.TextureFormat]bool
}

func (b *stubBuilder) FormatSupported(format wgpu.TextureFormat) bool {
	return !b.unsupported[format]
}

func (b *stubBuilder) BuildPipeline(Descriptor, shader.Program, shader.Program) (*wgpu.RenderPipeline, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.builds++
	return &wgpu.RenderPipeline{}, nil
}

func (b *stubBuilder) ReleasePipeline(*wgpu.RenderPipeline) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releases++
}

func (b *stubBuilder) buildCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.builds
}

func (b *stubBuilder) releaseCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.releases
}

func newTestCache(t *testing.T) (*Cache, shader.Registry, *stubBuilder) {
	t.Helper()
	reg := shader.NewRegistry(layout.NewCache(), shader.WithCompileValidation(false))
	if _, err := reg.Register("flat", vertexVec3Source, "vs_main", "fs_main"); err != nil {
		t.Fatalf("register flat: %v", err)
	}
	b := &stubBuilder{}
	return NewCache(reg, b, WithWarmWorkers(2)), reg, b
}

func flatDescriptor(p shader.Program) Descriptor {
	return Descriptor{
		VertexProgram:   "flat",
		FragmentProgram: "flat",
		Vertex:          VertexLayout{Stride: 12, Attributes: p.Attributes()},
		Layouts:         []*layout.Layout{p.Layout()},
		ColorFormat:     wgpu.TextureFormatBGRA8Unorm,
		DepthFormat:     wgpu.TextureFormatDepth24Plus,
		Topology:        wgpu.PrimitiveTopologyTriangleList,
	}
}

func TestGetOrBuildIdempotent(t *testing.T) {
	cache, reg, b := newTestCache(t)
	p, _ := reg.Program("flat")
	desc := flatDescriptor(p)

	first, err := cache.GetOrBuild(desc)
	if err != nil {
		t.Fatalf("GetOrBuild: %v", err)
	}
	second, err := cache.GetOrBuild(desc)
	if err != nil {
		t.Fatalf("GetOrBuild again: %v", err)
	}
	if first != second {
		t.Error("structurally equal descriptors should return the same handle")
	}
	if b.buildCount() != 1 {
		t.Errorf("build count = %d, want 1", b.buildCount())
	}

	changed := desc
	changed.Topology = wgpu.PrimitiveTopologyLineList
	third, err := cache.GetOrBuild(changed)
	if err != nil {
		t.Fatalf("GetOrBuild changed: %v", err)
	}
	if third == first {
		t.Error("changing a descriptor field should yield a distinct handle")
	}
	if cache.Len() != 2 {
		t.Errorf("Len = %d, want 2", cache.Len())
	}
}

func TestGenerationEviction(t *testing.T) {
	cache, reg, b := newTestCache(t)
	p, _ := reg.Program("flat")
	desc := flatDescriptor(p)

	first, err := cache.GetOrBuild(desc)
	if err != nil {
		t.Fatalf("GetOrBuild: %v", err)
	}

	// Re-registering bumps the generation; the cached pipeline is stale.
	if _, err := reg.Register("flat", vertexVec3Source, "vs_main", "fs_main"); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	second, err := cache.GetOrBuild(desc)
	if err != nil {
		t.Fatalf("GetOrBuild after bump: %v", err)
	}
	if second == first {
		t.Error("stale pipeline should be evicted after a generation bump")
	}
	if b.buildCount() != 2 {
		t.Errorf("build count = %d, want 2", b.buildCount())
	}
	if b.releaseCount() != 1 {
		t.Errorf("release count = %d, want 1 (evicted stale pipeline)", b.releaseCount())
	}
}

func TestIncompatibleInterface(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		key      string
		wantLoc  int
		wantType bool
	}{
		{name: "type mismatch at shared location", source: fragmentVec2Source, key: "frag-vec2", wantLoc: 0, wantType: true},
		{name: "fragment reads unwritten location", source: fragmentLoc1Source, key: "frag-loc1", wantLoc: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache, reg, _ := newTestCache(t)
			if _, err := reg.Register(tt.key, tt.source, "vs_main", "fs_main"); err != nil {
				t.Fatalf("register %s: %v", tt.key, err)
			}
			p, _ := reg.Program("flat")
			desc := flatDescriptor(p)
			desc.FragmentProgram = tt.key

			_, err := cache.GetOrBuild(desc)
			var iie *IncompatibleInterfaceError
			if !errors.As(err, &iie) {
				t.Fatalf("error = %v, want *IncompatibleInterfaceError", err)
			}
			if iie.Location != tt.wantLoc {
				t.Errorf("Location = %d, want %d", iie.Location, tt.wantLoc)
			}
			if tt.wantType && (iie.VertexType == "" || iie.FragmentType == "") {
				t.Errorf("types = %q/%q, want both populated", iie.VertexType, iie.FragmentType)
			}
		})
	}
}

func TestUnsupportedFormat(t *testing.T) {
	cache, reg, b := newTestCache(t)
	b.unsupported = map[wgpu.TextureFormat]bool{wgpu.TextureFormatDepth24Plus: true}
	p, _ := reg.Program("flat")
	desc := flatDescriptor(p)

	_, err := cache.GetOrBuild(desc)
	var ufe *UnsupportedFormatError
	if !errors.As(err, &ufe) {
		t.Fatalf("error = %v, want *UnsupportedFormatError", err)
	}
	if ufe.Format != wgpu.TextureFormatDepth24Plus {
		t.Errorf("Format = %d, want depth format", ufe.Format)
	}

	// No depth attachment: the unsupported depth format is never consulted.
	desc.DepthFormat = wgpu.TextureFormatUndefined
	if _, err := cache.GetOrBuild(desc); err != nil {
		t.Fatalf("GetOrBuild without depth: %v", err)
	}
}

func TestUnknownProgram(t *testing.T) {
	cache, reg, _ := newTestCache(t)
	p, _ := reg.Program("flat")
	desc := flatDescriptor(p)
	desc.VertexProgram = "missing"

	if _, err := cache.GetOrBuild(desc); err == nil {
		t.Fatal("GetOrBuild with unregistered program succeeded, want error")
	}
}

func TestReset(t *testing.T) {
	cache, reg, b := newTestCache(t)
	p, _ := reg.Program("flat")
	desc := flatDescriptor(p)

	if _, err := cache.GetOrBuild(desc); err != nil {
		t.Fatalf("GetOrBuild: %v", err)
	}
	cache.Reset()
	if cache.Len() != 0 {
		t.Errorf("Len after Reset = %d, want 0", cache.Len())
	}
	if b.releaseCount() != 1 {
		t.Errorf("release count after Reset = %d, want 1", b.releaseCount())
	}
	if _, err := cache.GetOrBuild(desc); err != nil {
		t.Fatalf("GetOrBuild after Reset: %v", err)
	}
	if b.buildCount() != 2 {
		t.Errorf("build count = %d, want 2 (rebuild after Reset)", b.buildCount())
	}
}

func TestWarm(t *testing.T) {
	cache, reg, b := newTestCache(t)
	p, _ := reg.Program("flat")

	descs := make([]Descriptor, 0, 3)
	for _, topology := range []wgpu.PrimitiveTopology{
		wgpu.PrimitiveTopologyTriangleList,
		wgpu.PrimitiveTopologyLineList,
		wgpu.PrimitiveTopologyPointList,
	} {
		d := flatDescriptor(p)
		d.Topology = topology
		descs = append(descs, d)
	}

	if err := cache.Warm(descs); err != nil {
		t.Fatalf("Warm: %v", err)
	}
	if cache.Len() != 3 {
		t.Errorf("Len = %d, want 3", cache.Len())
	}
	if b.buildCount() != 3 {
		t.Errorf("build count = %d, want 3", b.buildCount())
	}

	// Warming again hits the cache for every descriptor.
	if err := cache.Warm(descs); err != nil {
		t.Fatalf("Warm again: %v", err)
	}
	if b.buildCount() != 3 {
		t.Errorf("build count after second Warm = %d, want 3", b.buildCount())
	}
}
