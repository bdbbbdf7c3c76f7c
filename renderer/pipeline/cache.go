package pipeline

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gpukit/rendercore/renderer/shader"
)

// IncompatibleInterfaceError reports a vertex/fragment program pair whose
// inter-stage variables disagree in location or type. Detected before any GPU
// build is attempted.
type IncompatibleInterfaceError struct {
	VertexProgram   string
	FragmentProgram string
	Location        int
	VertexType      string
	FragmentType    string
}

func (e *IncompatibleInterfaceError) Error() string {
	if e.VertexType == "" {
		return fmt.Sprintf("pipeline: fragment program %q reads location %d which vertex program %q does not write",
			e.FragmentProgram, e.Location, e.VertexProgram)
	}
	return fmt.Sprintf("pipeline: location %d type mismatch between vertex program %q (%s) and fragment program %q (%s)",
		e.Location, e.VertexProgram, e.VertexType, e.FragmentProgram, e.FragmentType)
}

// UnsupportedFormatError reports a color or depth target format the backend
// cannot render to.
type UnsupportedFormatError struct {
	Format wgpu.TextureFormat
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("pipeline: target format %d not supported by the backend", e.Format)
}

// Builder constructs GPU pipeline objects from validated descriptors. The
// renderer backend implements it against a live device; tests substitute a
// stub.
type Builder interface {
	// FormatSupported reports whether the backend can render to the given
	// texture format.
	//
	// Parameters:
	//   - format: the color or depth format to check
	//
	// Returns:
	//   - bool: true if the format is renderable
	FormatSupported(format wgpu.TextureFormat) bool

	// BuildPipeline compiles a GPU pipeline from the descriptor and its two
	// resolved programs.
	//
	// Parameters:
	//   - desc: the validated pipeline descriptor
	//   - vs: the vertex program
	//   - fs: the fragment program
	//
	// Returns:
	//   - *wgpu.RenderPipeline: the compiled pipeline object
	//   - error: a backend build failure
	BuildPipeline(desc Descriptor, vs, fs shader.Program) (*wgpu.RenderPipeline, error)

	// ReleasePipeline frees a pipeline object the cache no longer holds.
	//
	// Parameters:
	//   - handle: the pipeline object to release
	ReleasePipeline(handle *wgpu.RenderPipeline)
}

// cacheEntry pairs a built pipeline with the program generations it was built
// against, for lazy staleness checks on lookup.
type cacheEntry struct {
	pipeline *Pipeline
	vsGen    uint64
	fsGen    uint64
}

// Cache builds pipelines on first request and returns the cached handle for
// structurally identical descriptors afterwards. Lookups are safe from any
// goroutine; insertions are serialized under the write lock. A pipeline whose
// program generation has been bumped is evicted lazily on its next lookup,
// not eagerly swept.
type Cache struct {
	mu       sync.RWMutex
	registry shader.Registry
	builder  Builder
	entries  map[string]*cacheEntry

	// warmPool manages a bounded set of reusable goroutines for Warm. Workers
	// persist across Warm calls, avoiding spawn/teardown overhead when an
	// asset-streaming collaborator warms pipelines in batches.
	warmPool    worker.DynamicWorkerPool
	warmWorkers int
}

// NewCache creates a pipeline cache that resolves programs through the given
// registry and compiles through the given builder.
//
// Parameters:
//   - registry: the program registry (must not be nil)
//   - builder: the GPU pipeline builder (must not be nil)
//   - options: functional options to further configure the cache
//
// Returns:
//   - *Cache: the new cache
func NewCache(registry shader.Registry, builder Builder, options ...CacheBuilderOption) *Cache {
	if registry == nil {
		panic("pipeline: NewCache requires a non-nil registry")
	}
	if builder == nil {
		panic("pipeline: NewCache requires a non-nil builder")
	}
	c := &Cache{
		registry:    registry,
		builder:     builder,
		entries:     make(map[string]*cacheEntry),
		warmWorkers: max(runtime.NumCPU()-1, 1),
	}
	for _, option := range options {
		option(c)
	}
	// Queue size of 256 accommodates typical warm batches with headroom.
	c.warmPool = worker.NewDynamicWorkerPool(c.warmWorkers, 256, 1*time.Second)
	return c
}

// GetOrBuild returns the cached pipeline for the descriptor, building it on
// first request. A cached pipeline whose vertex or fragment program has been
// re-registered since it was built is discarded and rebuilt.
//
// Parameters:
//   - desc: the pipeline descriptor
//
// Returns:
//   - *Pipeline: the shared pipeline handle for this descriptor
//   - error: *IncompatibleInterfaceError, *UnsupportedFormatError, or a wrapped build failure
func (c *Cache) GetOrBuild(desc Descriptor) (*Pipeline, error) {
	key := desc.Key()
	vsGen := c.registry.Generation(desc.VertexProgram)
	fsGen := c.registry.Generation(desc.FragmentProgram)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && entry.vsGen == vsGen && entry.fsGen == fsGen {
		return entry.pipeline, nil
	}

	vs, found := c.registry.Program(desc.VertexProgram)
	if !found {
		return nil, fmt.Errorf("pipeline: vertex program %q not registered", desc.VertexProgram)
	}
	fs, found := c.registry.Program(desc.FragmentProgram)
	if !found {
		return nil, fmt.Errorf("pipeline: fragment program %q not registered", desc.FragmentProgram)
	}

	if err := checkStageInterface(vs, fs); err != nil {
		return nil, err
	}
	if !c.builder.FormatSupported(desc.ColorFormat) {
		return nil, &UnsupportedFormatError{Format: desc.ColorFormat}
	}
	if desc.DepthFormat != wgpu.TextureFormatUndefined && !c.builder.FormatSupported(desc.DepthFormat) {
		return nil, &UnsupportedFormatError{Format: desc.DepthFormat}
	}

	handle, err := c.builder.BuildPipeline(desc, vs, fs)
	if err != nil {
		return nil, fmt.Errorf("pipeline: build %q/%q: %w", desc.VertexProgram, desc.FragmentProgram, err)
	}
	built := &Pipeline{key: key, handle: handle, vsGen: vsGen, fsGen: fsGen}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another goroutine may have built the same descriptor concurrently; keep
	// the first fresh insertion so callers observe one shared handle.
	if existing, ok := c.entries[key]; ok {
		if existing.vsGen == vsGen && existing.fsGen == fsGen {
			c.builder.ReleasePipeline(handle)
			return existing.pipeline, nil
		}
		// The stale entry is unreachable once overwritten; free its handle.
		c.builder.ReleasePipeline(existing.pipeline.handle)
	}
	c.entries[key] = &cacheEntry{pipeline: built, vsGen: vsGen, fsGen: fsGen}
	return built, nil
}

// Warm builds the given descriptors concurrently on the cache's worker pool,
// ahead of first use. Descriptors already cached are skipped by the normal
// lookup path; insertions are serialized under the cache lock.
//
// Parameters:
//   - descs: the descriptors to pre-build
//
// Returns:
//   - error: the first build failure encountered, or nil
func (c *Cache) Warm(descs []Descriptor) error {
	var wg sync.WaitGroup
	errs := make([]error, len(descs))

	for i, desc := range descs {
		wg.Add(1)
		d := desc
		slot := i
		c.warmPool.SubmitTask(worker.Task{
			ID: slot,
			Do: func() (any, error) {
				defer wg.Done()
				_, err := c.GetOrBuild(d)
				errs[slot] = err
				return nil, err
			},
		})
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Reset discards every cached pipeline, e.g. after an output-format change on
// resize. Subsequent lookups rebuild on demand.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.entries {
		c.builder.ReleasePipeline(entry.pipeline.handle)
	}
	c.entries = make(map[string]*cacheEntry)
}

// Len reports the number of pipelines currently cached.
//
// Returns:
//   - int: the cache size
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// checkStageInterface verifies that every inter-stage variable the fragment
// program reads is written by the vertex program at the same location with the
// same type.
func checkStageInterface(vs, fs shader.Program) error {
	outs := make(map[int]string, len(vs.VertexOutputs()))
	for _, v := range vs.VertexOutputs() {
		outs[v.Location] = v.Type
	}
	for _, in := range fs.FragmentInputs() {
		outType, ok := outs[in.Location]
		if !ok {
			return &IncompatibleInterfaceError{
				VertexProgram:   vs.Key(),
				FragmentProgram: fs.Key(),
				Location:        in.Location,
			}
		}
		if outType != in.Type {
			return &IncompatibleInterfaceError{
				VertexProgram:   vs.Key(),
				FragmentProgram: fs.Key(),
				Location:        in.Location,
				VertexType:      outType,
				FragmentType:    in.Type,
			}
		}
	}
	return nil
}
