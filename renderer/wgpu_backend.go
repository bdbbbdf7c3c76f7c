package renderer

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gpukit/rendercore/common"
	"github.com/gpukit/rendercore/renderer/binder"
	"github.com/gpukit/rendercore/renderer/layout"
	"github.com/gpukit/rendercore/renderer/pipeline"
	"github.com/gpukit/rendercore/renderer/shader"
)

// sceneColorFormat is the offscreen scene color format. Values are stored in
// the encoded color space, so the format is linear, not sRGB.
const sceneColorFormat = wgpu.TextureFormatRGBA8Unorm

// idColorFormat is the offscreen primitive-id color format. CopySrc so a host
// can read picked ids back.
const idColorFormat = wgpu.TextureFormatRGBA8Unorm

// depthFormat is the shared depth attachment format for the scene passes.
const depthFormat = wgpu.TextureFormatDepth24Plus

type wgpuBackend struct {
	mu            *sync.Mutex
	instance      *wgpu.Instance
	adapter       *wgpu.Adapter
	device        *wgpu.Device
	queue         *wgpu.Queue
	surface       *wgpu.Surface
	surfaceFormat *wgpu.TextureFormat
	presentMode   wgpu.PresentMode
	surfaceWidth  uint32
	surfaceHeight uint32

	sceneColorTexture *wgpu.Texture
	sceneColorView    *wgpu.TextureView
	idColorTexture    *wgpu.Texture
	idColorView       *wgpu.TextureView
	idDepthTexture    *wgpu.Texture
	idDepthView       *wgpu.TextureView
	depthTexture      *wgpu.Texture
	depthView         *wgpu.TextureView
	attachWidth       uint32
	attachHeight      uint32

	sceneSampler     *wgpu.Sampler
	fullscreenBuffer *wgpu.Buffer
	emptyLayout      *wgpu.BindGroupLayout
	emptyGroup       *wgpu.BindGroup
}

// Backend is the GPU-facing boundary of the renderer: it owns the device,
// queue and surface, builds pipelines for the pipeline cache, allocates
// binding resources for the binder, and encodes recorded frames for the
// composer.
type Backend interface {
	pipeline.Builder
	binder.Device
	Presenter

	// ConfigureSurface (re)configures the presentable surface to the given
	// size. Call once after window creation and again whenever the window
	// resizes or the target is reported lost.
	//
	// Parameters:
	//   - width: surface width in pixels
	//   - height: surface height in pixels
	ConfigureSurface(width, height int)

	// SurfaceFormat returns the configured surface texture format.
	//
	// Returns:
	//   - wgpu.TextureFormat: the surface format, Undefined before ConfigureSurface
	SurfaceFormat() wgpu.TextureFormat

	// SurfaceSize returns the configured surface dimensions in pixels.
	//
	// Returns:
	//   - uint32: the width
	//   - uint32: the height
	SurfaceSize() (uint32, uint32)

	// SceneColorView returns the offscreen scene color view the final
	// composition pass samples. Valid between EnsureAttachments and
	// ReleaseAttachments.
	//
	// Returns:
	//   - *wgpu.TextureView: the scene color view, nil when attachments are not allocated
	SceneColorView() *wgpu.TextureView

	// SceneSampler returns the sampler used to sample the scene color in the
	// final composition pass. Created on first use.
	//
	// Returns:
	//   - *wgpu.Sampler: the sampler
	//   - error: a creation failure
	SceneSampler() (*wgpu.Sampler, error)

	// FullscreenGeometry returns the single-triangle geometry the final
	// composition pass draws. Created on first use.
	//
	// Returns:
	//   - Geometry: a three-vertex non-indexed triangle covering the target
	//   - error: a buffer creation failure
	FullscreenGeometry() (Geometry, error)

	// UploadTexture creates a texture from staged RGBA pixels and a sampler
	// from the staging configuration, ready for binding into texture and
	// sampler slots.
	//
	// Parameters:
	//   - label: a debug label for the created objects
	//   - texture: the staged pixel data and dimensions
	//   - sampler: the sampler configuration; zero fields fall back to linear filtering with repeat addressing
	//
	// Returns:
	//   - *wgpu.TextureView: the uploaded texture's view
	//   - *wgpu.Sampler: the configured sampler
	//   - error: a creation or upload failure
	UploadTexture(label string, texture common.TextureStagingData, sampler common.SamplerStagingData) (*wgpu.TextureView, *wgpu.Sampler, error)

	// Device returns the underlying GPU device, for hosts that upload their
	// own mesh or texture data.
	//
	// Returns:
	//   - *wgpu.Device: the device
	Device() *wgpu.Device

	// Queue returns the underlying GPU queue.
	//
	// Returns:
	//   - *wgpu.Queue: the queue
	Queue() *wgpu.Queue

	// Close releases every GPU object the backend owns.
	Close()
}

var _ Backend = &wgpuBackend{}

// NewBackend brings up a GPU backend against the given surface: instance,
// adapter, device and queue. Panics if no suitable adapter or device is
// available, since nothing can render without one.
//
// Parameters:
//   - surfaceDescriptor: the OS surface to present to
//   - options: optional backend configuration
//
// Returns:
//   - Backend: the initialized backend
func NewBackend(surfaceDescriptor *wgpu.SurfaceDescriptor, options ...BackendBuilderOption) Backend {
	runtime.LockOSThread()
	b := &wgpuBackend{
		mu:          &sync.Mutex{},
		instance:    wgpu.CreateInstance(nil),
		presentMode: wgpu.PresentModeFifo,
	}
	cfg := &backendConfig{}
	for _, opt := range options {
		opt(cfg)
	}
	if cfg.presentMode != nil {
		b.presentMode = *cfg.presentMode
	}

	b.surface = b.instance.CreateSurface(surfaceDescriptor)

	a, err := b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: cfg.forceFallbackAdapter,
		CompatibleSurface:    b.surface,
	})
	if err != nil {
		panic(err)
	}
	b.adapter = a

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Render Device",
	})
	if err != nil {
		panic(err)
	}
	b.device = d
	b.queue = d.GetQueue()

	return b
}

func (b *wgpuBackend) ConfigureSurface(width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capabilities := b.surface.GetCapabilities(b.adapter)
	b.surfaceFormat = &capabilities.Formats[0]
	b.surfaceWidth = uint32(width)
	b.surfaceHeight = uint32(height)

	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      *b.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: b.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})
}

func (b *wgpuBackend) SurfaceFormat() wgpu.TextureFormat {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.surfaceFormat == nil {
		return wgpu.TextureFormatUndefined
	}
	return *b.surfaceFormat
}

func (b *wgpuBackend) SurfaceSize() (uint32, uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.surfaceWidth, b.surfaceHeight
}

func (b *wgpuBackend) UploadTexture(label string, texture common.TextureStagingData, sampler common.SamplerStagingData) (*wgpu.TextureView, *wgpu.Sampler, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:     label,
		Usage:     wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Dimension: wgpu.TextureDimension2D,
		Size: wgpu.Extent3D{
			Width:              texture.Width,
			Height:             texture.Height,
			DepthOrArrayLayers: 1,
		},
		Format:        wgpu.TextureFormatRGBA8UnormSrgb,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return nil, nil, err
	}

	b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture: tex,
			Aspect:  wgpu.TextureAspectAll,
		},
		texture.Pixels,
		&wgpu.TextureDataLayout{
			BytesPerRow:  texture.Width * 4,
			RowsPerImage: texture.Height,
		},
		&wgpu.Extent3D{
			Width:              texture.Width,
			Height:             texture.Height,
			DepthOrArrayLayers: 1,
		},
	)

	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, nil, err
	}

	samp, err := b.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         label + " Sampler",
		AddressModeU:  common.Coalesce(sampler.AddressModeU, wgpu.AddressModeRepeat),
		AddressModeV:  common.Coalesce(sampler.AddressModeV, wgpu.AddressModeRepeat),
		AddressModeW:  common.Coalesce(sampler.AddressModeW, wgpu.AddressModeRepeat),
		MagFilter:     common.Coalesce(sampler.MagFilter, wgpu.FilterModeLinear),
		MinFilter:     common.Coalesce(sampler.MinFilter, wgpu.FilterModeLinear),
		MipmapFilter:  common.Coalesce(sampler.MipmapFilter, wgpu.MipmapFilterModeLinear),
		LodMinClamp:   common.Coalesce(sampler.LodMinClamp, 0.0),
		LodMaxClamp:   common.Coalesce(sampler.LodMaxClamp, 32.0),
		MaxAnisotropy: common.Coalesce(sampler.MaxAnisotropy, 1),
	})
	if err != nil {
		view.Release()
		tex.Release()
		return nil, nil, err
	}

	return view, samp, nil
}

func (b *wgpuBackend) Device() *wgpu.Device {
	return b.device
}

func (b *wgpuBackend) Queue() *wgpu.Queue {
	return b.queue
}

// ---- pipeline.Builder ----

func (b *wgpuBackend) FormatSupported(format wgpu.TextureFormat) bool {
	if b.surfaceFormat != nil && format == *b.surfaceFormat {
		return true
	}
	switch format {
	case wgpu.TextureFormatRGBA8Unorm, wgpu.TextureFormatRGBA8UnormSrgb,
		wgpu.TextureFormatBGRA8Unorm, wgpu.TextureFormatBGRA8UnormSrgb,
		wgpu.TextureFormatDepth24Plus, wgpu.TextureFormatDepth32Float:
		return true
	default:
		return false
	}
}

func (b *wgpuBackend) ReleasePipeline(handle *wgpu.RenderPipeline) {
	if handle != nil {
		handle.Release()
	}
}

func (b *wgpuBackend) BuildPipeline(desc pipeline.Descriptor, vs, fs shader.Program) (*wgpu.RenderPipeline, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	vsModule, err := b.device.CreateShaderModule(vs.Module())
	if err != nil {
		return nil, err
	}
	fsModule, err := b.device.CreateShaderModule(fs.Module())
	if err != nil {
		return nil, err
	}

	// Bind group layouts must be contiguous from group 0. Groups no layout
	// declares get an empty layout so higher groups keep their indices.
	maxGroup := -1
	for _, l := range desc.Layouts {
		if l.MaxGroup() > maxGroup {
			maxGroup = l.MaxGroup()
		}
	}
	bindGroupLayouts := make([]*wgpu.BindGroupLayout, maxGroup+1)
	for g := 0; g <= maxGroup; g++ {
		groupDesc := wgpu.BindGroupLayoutDescriptor{Label: fmt.Sprintf("empty group %d", g)}
		for _, l := range desc.Layouts {
			if d := l.BindGroupLayoutDescriptor(g); len(d.Entries) > 0 {
				groupDesc = d
				break
			}
		}
		bgl, bglErr := b.device.CreateBindGroupLayout(&groupDesc)
		if bglErr != nil {
			return nil, fmt.Errorf("failed to create bind group layout for group %d: %w", g, bglErr)
		}
		bindGroupLayouts[g] = bgl
	}

	pipelineLayout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.VertexProgram + "/" + desc.FragmentProgram,
		BindGroupLayouts: bindGroupLayouts,
	})
	if err != nil {
		return nil, err
	}

	buffers := []wgpu.VertexBufferLayout{
		vertexBufferLayout(desc.Vertex, wgpu.VertexStepModeVertex),
	}
	if desc.Instance != nil {
		buffers = append(buffers, vertexBufferLayout(*desc.Instance, wgpu.VertexStepModeInstance))
	}

	created, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  desc.VertexProgram + " Render Pipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     vsModule,
			EntryPoint: vs.EntryPoint(shader.StageVertex),
			Buffers:    buffers,
		},
		Fragment: &wgpu.FragmentState{
			Module:     fsModule,
			EntryPoint: fs.EntryPoint(shader.StageFragment),
			Targets: []wgpu.ColorTargetState{
				{
					Format:    desc.ColorFormat,
					WriteMask: wgpu.ColorWriteMaskAll,
				},
			},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  desc.Topology,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: func() *wgpu.DepthStencilState {
			if desc.DepthFormat == wgpu.TextureFormatUndefined {
				return nil
			}
			return &wgpu.DepthStencilState{
				Format:            desc.DepthFormat,
				DepthWriteEnabled: true,
				DepthCompare:      wgpu.CompareFunctionLess,
				StencilFront: wgpu.StencilFaceState{
					Compare: wgpu.CompareFunctionAlways,
				},
				StencilBack: wgpu.StencilFaceState{
					Compare: wgpu.CompareFunctionAlways,
				},
			}
		}(),
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// vertexBufferLayout expands a descriptor vertex stream into a wgpu layout,
// packing attribute offsets in declaration order.
func vertexBufferLayout(v pipeline.VertexLayout, step wgpu.VertexStepMode) wgpu.VertexBufferLayout {
	attrs := make([]wgpu.VertexAttribute, 0, len(v.Attributes))
	var offset uint64
	for _, a := range v.Attributes {
		format, size := elemVertexFormat(a.Elem)
		attrs = append(attrs, wgpu.VertexAttribute{
			Format:         format,
			Offset:         offset,
			ShaderLocation: uint32(a.Location),
		})
		offset += size
	}
	return wgpu.VertexBufferLayout{
		ArrayStride: v.Stride,
		StepMode:    step,
		Attributes:  attrs,
	}
}

func elemVertexFormat(e shader.ElemType) (wgpu.VertexFormat, uint64) {
	switch e {
	case shader.ElemFloat2:
		return wgpu.VertexFormatFloat32x2, 8
	case shader.ElemFloat3:
		return wgpu.VertexFormatFloat32x3, 12
	case shader.ElemFloat4:
		return wgpu.VertexFormatFloat32x4, 16
	case shader.ElemUint:
		return wgpu.VertexFormatUint32, 4
	default:
		return wgpu.VertexFormatFloat32, 4
	}
}

// ---- binder.Device ----

func (b *wgpuBackend) CreateUniformBuffer(label string, size uint64) (*wgpu.Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
}

func (b *wgpuBackend) CreateInstanceBuffer(label string, size uint64) (*wgpu.Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
	})
}

func (b *wgpuBackend) WriteBuffer(buf *wgpu.Buffer, offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if buf == nil {
		return errors.New("renderer: write to nil buffer")
	}
	b.queue.WriteBuffer(buf, offset, data)
	return nil
}

func (b *wgpuBackend) CreateBindGroup(l *layout.Layout, group int, entries []wgpu.BindGroupEntry) (*wgpu.BindGroup, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	groupDesc := l.BindGroupLayoutDescriptor(group)
	bgl, err := b.device.CreateBindGroupLayout(&groupDesc)
	if err != nil {
		return nil, err
	}
	bg, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   groupDesc.Label,
		Layout:  bgl,
		Entries: entries,
	})
	// Bind group layout compatibility is structural, so the layout object is
	// not needed once the group exists.
	bgl.Release()
	if err != nil {
		return nil, err
	}
	return bg, nil
}

func (b *wgpuBackend) ReleaseBuffer(buf *wgpu.Buffer) {
	if buf != nil {
		buf.Release()
	}
}

func (b *wgpuBackend) ReleaseBindGroup(bg *wgpu.BindGroup) {
	if bg != nil {
		bg.Release()
	}
}

// ---- Presenter ----

func (b *wgpuBackend) EnsureAttachments(target Target) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sceneColorView != nil && b.attachWidth == target.Width && b.attachHeight == target.Height {
		return nil
	}
	b.releaseAttachmentsLocked()

	var err error
	b.sceneColorTexture, b.sceneColorView, err = b.createAttachment(
		"Scene Color", target.Width, target.Height, sceneColorFormat,
		wgpu.TextureUsageRenderAttachment|wgpu.TextureUsageTextureBinding)
	if err != nil {
		return err
	}
	b.idColorTexture, b.idColorView, err = b.createAttachment(
		"ID Color", target.Width, target.Height, idColorFormat,
		wgpu.TextureUsageRenderAttachment|wgpu.TextureUsageCopySrc)
	if err != nil {
		b.releaseAttachmentsLocked()
		return err
	}
	// The id pass gets its own depth attachment: it redraws scene geometry
	// at depths already stored in the scene buffer, which a strictly-less
	// test against that buffer would reject wholesale.
	b.idDepthTexture, b.idDepthView, err = b.createAttachment(
		"ID Depth", target.Width, target.Height, depthFormat,
		wgpu.TextureUsageRenderAttachment)
	if err != nil {
		b.releaseAttachmentsLocked()
		return err
	}
	b.depthTexture, b.depthView, err = b.createAttachment(
		"Scene Depth", target.Width, target.Height, depthFormat,
		wgpu.TextureUsageRenderAttachment)
	if err != nil {
		b.releaseAttachmentsLocked()
		return err
	}

	b.attachWidth = target.Width
	b.attachHeight = target.Height
	return nil
}

func (b *wgpuBackend) createAttachment(label string, width, height uint32, format wgpu.TextureFormat, usage wgpu.TextureUsage) (*wgpu.Texture, *wgpu.TextureView, error) {
	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: label,
		Size: wgpu.Extent3D{
			Width:              width,
			Height:             height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return nil, nil, err
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, nil, err
	}
	return tex, view, nil
}

func (b *wgpuBackend) Present(frame *Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sceneColorView == nil {
		return errors.New("renderer: present without attachments")
	}

	// The final composition pass renders into the target view from the
	// frame when one was supplied, otherwise into the freshly acquired
	// surface texture. Acquiring here, not at frame start, is what makes a
	// lost-target retry possible: the retried frame reacquires.
	presentView := frame.Target().View
	var surfaceTexture *wgpu.Texture
	if presentView == nil {
		st, err := b.surface.GetCurrentTexture()
		if err != nil {
			if isTargetLost(err) {
				return &TargetLostError{}
			}
			return err
		}
		view, err := st.CreateView(nil)
		if err != nil {
			st.Release()
			return err
		}
		surfaceTexture = st
		presentView = view
	}
	release := func() {
		if surfaceTexture != nil {
			presentView.Release()
			surfaceTexture.Release()
		}
	}

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		release()
		return err
	}

	for kind := PassKind(0); kind < passCount; kind++ {
		pass := frame.Pass(kind)
		if kind == PassIDColor && pass.Empty() {
			continue
		}
		desc := b.passDescriptor(kind, presentView)
		if desc == nil {
			continue
		}
		b.encodePass(encoder, desc, pass, frame.InstanceBuffer())
	}

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		encoder.Release()
		release()
		return err
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	encoder.Release()

	if surfaceTexture != nil {
		b.surface.Present()
	}
	release()
	return nil
}

// passDescriptor builds the render pass descriptor for one pass of the fixed
// sequence. The opaque pass clears the scene attachments; later scene passes
// load them so earlier results show through.
func (b *wgpuBackend) passDescriptor(kind PassKind, presentView *wgpu.TextureView) *wgpu.RenderPassDescriptor {
	sceneDepth := &wgpu.RenderPassDepthStencilAttachment{
		View:            b.depthView,
		DepthLoadOp:     wgpu.LoadOpLoad,
		DepthStoreOp:    wgpu.StoreOpStore,
		DepthClearValue: 1.0,
	}

	switch kind {
	case PassOpaque:
		sceneDepth.DepthLoadOp = wgpu.LoadOpClear
		return &wgpu.RenderPassDescriptor{
			Label: kind.String(),
			ColorAttachments: []wgpu.RenderPassColorAttachment{{
				View:       b.sceneColorView,
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 1},
			}},
			DepthStencilAttachment: sceneDepth,
		}
	case PassTextured, PassOverlay:
		return &wgpu.RenderPassDescriptor{
			Label: kind.String(),
			ColorAttachments: []wgpu.RenderPassColorAttachment{{
				View:    b.sceneColorView,
				LoadOp:  wgpu.LoadOpLoad,
				StoreOp: wgpu.StoreOpStore,
			}},
			DepthStencilAttachment: sceneDepth,
		}
	case PassIDColor:
		return &wgpu.RenderPassDescriptor{
			Label: kind.String(),
			ColorAttachments: []wgpu.RenderPassColorAttachment{{
				View:       b.idColorView,
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 0},
			}},
			DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
				View:            b.idDepthView,
				DepthLoadOp:     wgpu.LoadOpClear,
				DepthStoreOp:    wgpu.StoreOpDiscard,
				DepthClearValue: 1.0,
			},
		}
	case PassPresent:
		return &wgpu.RenderPassDescriptor{
			Label: kind.String(),
			ColorAttachments: []wgpu.RenderPassColorAttachment{{
				View:       presentView,
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 1},
			}},
		}
	default:
		return nil
	}
}

func (b *wgpuBackend) encodePass(encoder *wgpu.CommandEncoder, desc *wgpu.RenderPassDescriptor, pass *Pass, instanceBuffer *wgpu.Buffer) {
	rp := encoder.BeginRenderPass(desc)
	defer rp.End()

	for _, cmd := range pass.Commands() {
		rp.SetPipeline(cmd.Pipeline.Handle())

		maxGroup := -1
		bound := make(map[int]bool)
		for _, set := range cmd.Sets {
			for _, g := range set.Layout().Groups() {
				rp.SetBindGroup(uint32(g), set.BindGroup(g), nil)
				bound[g] = true
			}
			if mg := set.Layout().MaxGroup(); mg > maxGroup {
				maxGroup = mg
			}
		}
		// Group holes below the highest bound index need a placeholder so
		// the pipeline layout's group indices line up.
		for g := 0; g <= maxGroup; g++ {
			if !bound[g] {
				rp.SetBindGroup(uint32(g), b.ensureEmptyGroup(), nil)
			}
		}

		rp.SetVertexBuffer(0, cmd.Geometry.VertexBuffer, 0, wgpu.WholeSize)

		instanceCount := uint32(1)
		if cmd.Instances != nil {
			rp.SetVertexBuffer(1, instanceBuffer, cmd.Instances.ByteOffset(), wgpu.WholeSize)
			instanceCount = cmd.Instances.Count
		}

		if cmd.Geometry.IndexBuffer != nil {
			rp.SetIndexBuffer(cmd.Geometry.IndexBuffer, cmd.Geometry.IndexFormat, 0, wgpu.WholeSize)
			rp.DrawIndexed(cmd.Geometry.IndexCount, instanceCount, 0, 0, 0)
		} else {
			rp.Draw(cmd.Geometry.VertexCount, instanceCount, 0, 0)
		}
	}
}

func (b *wgpuBackend) ensureEmptyGroup() *wgpu.BindGroup {
	if b.emptyGroup != nil {
		return b.emptyGroup
	}
	bgl, err := b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{Label: "empty group"})
	if err != nil {
		panic(err)
	}
	bg, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "empty group",
		Layout: bgl,
	})
	if err != nil {
		panic(err)
	}
	b.emptyLayout = bgl
	b.emptyGroup = bg
	return bg
}

func (b *wgpuBackend) ReleaseAttachments() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releaseAttachmentsLocked()
}

func (b *wgpuBackend) releaseAttachmentsLocked() {
	if b.sceneColorView != nil {
		b.sceneColorView.Release()
		b.sceneColorTexture.Release()
		b.sceneColorView = nil
		b.sceneColorTexture = nil
	}
	if b.idColorView != nil {
		b.idColorView.Release()
		b.idColorTexture.Release()
		b.idColorView = nil
		b.idColorTexture = nil
	}
	if b.idDepthView != nil {
		b.idDepthView.Release()
		b.idDepthTexture.Release()
		b.idDepthView = nil
		b.idDepthTexture = nil
	}
	if b.depthView != nil {
		b.depthView.Release()
		b.depthTexture.Release()
		b.depthView = nil
		b.depthTexture = nil
	}
	b.attachWidth = 0
	b.attachHeight = 0
}

// ---- composition resources ----

func (b *wgpuBackend) SceneColorView() *wgpu.TextureView {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sceneColorView
}

func (b *wgpuBackend) SceneSampler() (*wgpu.Sampler, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sceneSampler != nil {
		return b.sceneSampler, nil
	}
	samp, err := b.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "Scene Sampler",
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeNearest,
		LodMaxClamp:   32.0,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return nil, err
	}
	b.sceneSampler = samp
	return samp, nil
}

func (b *wgpuBackend) FullscreenGeometry() (Geometry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.fullscreenBuffer == nil {
		// One triangle large enough to cover clip space; the shader derives
		// texture coordinates from the positions.
		verts := []float32{
			-1, -1,
			3, -1,
			-1, 3,
		}
		buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: "Fullscreen Triangle",
			Size:  uint64(len(verts)) * 4,
			Usage: wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return Geometry{}, err
		}
		b.queue.WriteBuffer(buf, 0, common.SliceToBytes(verts))
		b.fullscreenBuffer = buf
	}
	return Geometry{
		VertexBuffer: b.fullscreenBuffer,
		VertexCount:  3,
	}, nil
}

func (b *wgpuBackend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.releaseAttachmentsLocked()
	if b.sceneSampler != nil {
		b.sceneSampler.Release()
		b.sceneSampler = nil
	}
	if b.fullscreenBuffer != nil {
		b.fullscreenBuffer.Release()
		b.fullscreenBuffer = nil
	}
	if b.emptyGroup != nil {
		b.emptyGroup.Release()
		b.emptyLayout.Release()
		b.emptyGroup = nil
		b.emptyLayout = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.surface != nil {
		b.surface.Release()
		b.surface = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

// isTargetLost classifies surface acquisition failures that a surface
// reconfigure can recover from.
func isTargetLost(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "outdated") ||
		strings.Contains(msg, "lost") ||
		strings.Contains(msg, "suboptimal") ||
		strings.Contains(msg, "timeout")
}
