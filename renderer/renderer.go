package renderer

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gpukit/rendercore/renderer/binder"
	"github.com/gpukit/rendercore/renderer/layout"
	"github.com/gpukit/rendercore/renderer/pipeline"
	"github.com/gpukit/rendercore/renderer/shader"
)

// Renderer owns the full frame-composition stack: the program registry and
// its shared layout cache, the pipeline cache, the resource binder, and the
// frame composer, all wired to one GPU backend. Hosts record draws between
// BeginFrame and EndFrame; the final composition pass is appended
// automatically.
type Renderer struct {
	backend   Backend
	layouts   *layout.Cache
	registry  shader.Registry
	pipelines *pipeline.Cache
	binder    binder.Binder
	composer  *Composer
}

// NewRenderer builds the composition stack on the given backend and registers
// the builtin pass programs.
//
// Parameters:
//   - backend: the GPU backend (must not be nil)
//   - options: functional options to further configure the renderer
//
// Returns:
//   - *Renderer: the wired renderer
//   - error: a builtin program registration failure
func NewRenderer(backend Backend, options ...RendererBuilderOption) (*Renderer, error) {
	if backend == nil {
		panic("renderer: NewRenderer requires a non-nil Backend")
	}
	cfg := &rendererConfig{}
	for _, opt := range options {
		opt(cfg)
	}

	layouts := layout.NewCache()
	registry := shader.NewRegistry(layouts, cfg.registryOptions...)
	pipelines := pipeline.NewCache(registry, backend, cfg.cacheOptions...)
	b := binder.NewBinder(backend, cfg.binderOptions...)

	r := &Renderer{
		backend:   backend,
		layouts:   layouts,
		registry:  registry,
		pipelines: pipelines,
		binder:    b,
		composer:  NewComposer(backend, b),
	}
	if err := RegisterBuiltinPrograms(registry); err != nil {
		return nil, err
	}
	return r, nil
}

// Registry returns the program registry, for hosts registering their own
// programs.
//
// Returns:
//   - shader.Registry: the registry
func (r *Renderer) Registry() shader.Registry {
	return r.registry
}

// Pipelines returns the pipeline cache, for hosts building custom
// descriptors.
//
// Returns:
//   - *pipeline.Cache: the cache
func (r *Renderer) Pipelines() *pipeline.Cache {
	return r.pipelines
}

// Binder returns the resource binder, for allocating resource sets and
// writing instance data.
//
// Returns:
//   - binder.Binder: the binder
func (r *Renderer) Binder() binder.Binder {
	return r.binder
}

// Backend returns the GPU backend, for hosts uploading their own geometry or
// texture data.
//
// Returns:
//   - Backend: the backend
func (r *Renderer) Backend() Backend {
	return r.backend
}

// PassPipeline resolves the cached pipeline for one pass of the fixed
// sequence using its builtin program and that pass's attachment formats.
//
// Parameters:
//   - kind: the pass kind
//
// Returns:
//   - *pipeline.Pipeline: the compiled pipeline
//   - error: a descriptor or build failure
func (r *Renderer) PassPipeline(kind PassKind) (*pipeline.Pipeline, error) {
	desc, err := r.passDescriptor(kind)
	if err != nil {
		return nil, err
	}
	return r.pipelines.GetOrBuild(desc)
}

// Warm pre-builds the pipelines for all five passes of the fixed sequence,
// typically during startup after the surface is configured.
//
// Returns:
//   - error: the first build failure
func (r *Renderer) Warm() error {
	descs := make([]pipeline.Descriptor, 0, int(passCount))
	for kind := PassKind(0); kind < passCount; kind++ {
		desc, err := r.passDescriptor(kind)
		if err != nil {
			return err
		}
		descs = append(descs, desc)
	}
	return r.pipelines.Warm(descs)
}

func (r *Renderer) passDescriptor(kind PassKind) (pipeline.Descriptor, error) {
	key := PassProgram(kind)
	prog, ok := r.registry.Program(key)
	if !ok {
		return pipeline.Descriptor{}, fmt.Errorf("renderer: program %q not registered", key)
	}
	streams := prog.VertexBufferLayouts()
	if len(streams) == 0 {
		return pipeline.Descriptor{}, fmt.Errorf("renderer: program %q has no vertex input", key)
	}

	desc := pipeline.Descriptor{
		VertexProgram:   key,
		FragmentProgram: key,
		Vertex: pipeline.VertexLayout{
			Stride:     streams[0].ArrayStride,
			Attributes: prog.Attributes(),
		},
		Layouts:  []*layout.Layout{prog.Layout()},
		Topology: wgpu.PrimitiveTopologyTriangleList,
	}
	if insts := prog.InstanceAttributes(); len(insts) > 0 {
		desc.Instance = &pipeline.VertexLayout{
			Stride:     binder.InstanceStride,
			Attributes: insts,
		}
	}

	switch kind {
	case PassPresent:
		desc.ColorFormat = r.backend.SurfaceFormat()
	case PassIDColor:
		desc.ColorFormat = idColorFormat
		desc.DepthFormat = depthFormat
	default:
		desc.ColorFormat = sceneColorFormat
		desc.DepthFormat = depthFormat
	}
	return desc, nil
}

// BeginFrame opens a frame sized to the configured surface.
//
// Returns:
//   - error: *InvalidStateError if a frame is already open, or an attachment failure
func (r *Renderer) BeginFrame() error {
	width, height := r.backend.SurfaceSize()
	return r.composer.BeginFrame(Target{
		Width:  width,
		Height: height,
		Format: r.backend.SurfaceFormat(),
	})
}

// Draw records one draw invocation into the named pass of the open frame.
//
// Parameters:
//   - kind: the pass to record into
//   - cmd: the draw invocation
//
// Returns:
//   - error: *InvalidStateError outside an open frame, or a validation failure
func (r *Renderer) Draw(kind PassKind, cmd DrawCommand) error {
	return r.composer.Draw(kind, cmd)
}

// EndFrame appends the final composition draw, submits the frame, and
// presents it. On a lost target the surface is reconfigured once and the same
// frame retried before the error is surfaced.
//
// Returns:
//   - error: *InvalidStateError, *TargetLostError after a failed retry, or a present failure
func (r *Renderer) EndFrame() error {
	if r.composer.State() == StateBuilding {
		if err := r.appendPresentDraw(); err != nil {
			r.composer.Abandon()
			return err
		}
	}
	err := r.composer.EndFrame()
	if _, lost := err.(*TargetLostError); lost {
		width, height := r.backend.SurfaceSize()
		r.backend.ConfigureSurface(int(width), int(height))
		err = r.composer.EndFrame()
	}
	return err
}

// appendPresentDraw records the fullscreen composition draw that samples the
// scene color into the presentable target.
func (r *Renderer) appendPresentDraw() error {
	p, err := r.PassPipeline(PassPresent)
	if err != nil {
		return err
	}
	prog, ok := r.registry.Program(ProgramPresent)
	if !ok {
		return fmt.Errorf("renderer: program %q not registered", ProgramPresent)
	}
	sampler, err := r.backend.SceneSampler()
	if err != nil {
		return err
	}
	sceneView := r.backend.SceneColorView()
	if sceneView == nil {
		return fmt.Errorf("renderer: scene color attachment not allocated")
	}
	set, err := r.binder.Allocate(prog.Layout(), map[binder.BindingKey]binder.Value{
		{Group: 2, Binding: 0}: binder.TextureValue(sceneView),
		{Group: 2, Binding: 1}: binder.SamplerValue(sampler),
	})
	if err != nil {
		return err
	}
	geometry, err := r.backend.FullscreenGeometry()
	if err != nil {
		return err
	}
	return r.composer.Draw(PassPresent, DrawCommand{
		Pipeline: p,
		Geometry: geometry,
		Sets:     []*binder.ResourceSet{set},
	})
}

// Abandon drops the open or retrying frame and resets to idle.
func (r *Renderer) Abandon() {
	r.composer.Abandon()
}

// Resize reconfigures the surface to the new size. Offscreen attachments are
// resized lazily at the next BeginFrame; cached pipelines are dropped if the
// surface format changed.
//
// Parameters:
//   - width: new surface width in pixels
//   - height: new surface height in pixels
func (r *Renderer) Resize(width, height int) {
	before := r.backend.SurfaceFormat()
	r.backend.ConfigureSurface(width, height)
	if r.backend.SurfaceFormat() != before {
		r.pipelines.Reset()
	}
}

// Close abandons any open frame and releases the whole stack.
func (r *Renderer) Close() {
	r.composer.Abandon()
	r.binder.Close()
	r.registry.Close()
	r.pipelines.Reset()
	r.backend.Close()
}
