package shader

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/naga"
	"github.com/gpukit/rendercore/renderer/layout"
)

// registry is the implementation of the Registry interface.
type registry struct {
	mu          sync.RWMutex
	layouts     *layout.Cache
	programs    map[string]*program
	generations map[string]uint64
	compile     func(source string) ([]byte, error)
}

// Registry owns shader program sources and their parsed interfaces. Programs
// are registered under a unique key; re-registering the same key replaces the
// previous program and bumps its generation counter, which the pipeline cache
// consumes to lazily evict stale pipelines.
//
// The registry is read-mostly after startup and safe for concurrent use.
type Registry interface {
	// Register parses, validates, and stores a program under the given key.
	// Validation covers compile diagnostics, entry point presence, duplicate
	// attribute locations, and duplicate (group, binding) declarations. On
	// failure nothing is registered and any previous program under the key
	// remains in place.
	//
	// Parameters:
	//   - key: the unique program identifier
	//   - source: the WGSL source text containing both stages
	//   - vsEntry: the vertex entry point function name
	//   - fsEntry: the fragment entry point function name
	//
	// Returns:
	//   - Program: the registered program
	//   - error: a *CompileError or *layout.DuplicateBindingError describing the rejection
	Register(key, source, vsEntry, fsEntry string) (Program, error)

	// Program looks up a registered program by key.
	//
	// Parameters:
	//   - key: the program identifier
	//
	// Returns:
	//   - Program: the program, or nil if not registered
	//   - bool: true if the key is registered
	Program(key string) (Program, bool)

	// Generation returns the current generation counter for a program key.
	// The counter starts at 1 on first registration and increments each time
	// the key is re-registered. Unregistered keys report 0.
	//
	// Parameters:
	//   - key: the program identifier
	//
	// Returns:
	//   - uint64: the generation counter
	Generation(key string) uint64

	// Keys returns all registered program keys, sorted.
	//
	// Returns:
	//   - []string: the registered keys
	Keys() []string

	// Close releases all registered programs. The registry is empty afterwards
	// and may be reused.
	Close()
}

var _ Registry = &registry{}

// NewRegistry creates a program registry backed by the given layout cache.
// Binding layouts derived from registered programs are deduplicated through
// the cache, so programs with identical slot shapes share one layout instance.
//
// Parameters:
//   - layouts: the binding layout cache (must not be nil)
//   - options: functional options to further configure the registry
//
// Returns:
//   - Registry: the new registry
func NewRegistry(layouts *layout.Cache, options ...RegistryBuilderOption) Registry {
	if layouts == nil {
		panic("shader: NewRegistry requires a non-nil layout cache")
	}
	r := &registry{
		layouts:     layouts,
		programs:    make(map[string]*program),
		generations: make(map[string]uint64),
		compile:     naga.Compile,
	}
	for _, option := range options {
		option(r)
	}
	return r
}

func (r *registry) Register(key, source, vsEntry, fsEntry string) (Program, error) {
	if err := r.validateCompile(key, source); err != nil {
		return nil, err
	}

	pi, err := parseInterface(key, source, vsEntry, fsEntry)
	if err != nil {
		return nil, err
	}

	bindingLayout, err := r.layouts.Derive(pi.slots)
	if err != nil {
		return nil, err
	}

	p := &program{
		key:           key,
		source:        source,
		vsEntry:       vsEntry,
		fsEntry:       fsEntry,
		attributes:    pi.attributes,
		instanceAttrs: pi.instanceAttrs,
		slots:         bindingLayout.Slots(),
		bindingLayout: bindingLayout,
		vertexOut:     pi.vertexOut,
		fragmentIn:    pi.fragmentIn,
		vertexBuffers: pi.vertexBuffers,
		module: &wgpu.ShaderModuleDescriptor{
			Label: key,
			WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
				Code: source,
			},
		},
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[key] = p
	r.generations[key]++
	return p, nil
}

func (r *registry) Program(key string) (Program, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.programs[key]
	if !ok {
		return nil, false
	}
	return p, true
}

func (r *registry) Generation(key string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generations[key]
}

func (r *registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.programs))
	for k := range r.programs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs = make(map[string]*program)
	// Generations survive Close so a reload after teardown still invalidates
	// pipelines built before it.
}

// validateCompile runs the source through the WGSL compiler and maps failures
// to CompileError. Constructs the compiler does not implement yet are not
// treated as program errors; the parsed interface is still fully validated.
func (r *registry) validateCompile(key, source string) error {
	if r.compile == nil {
		return nil
	}
	if _, err := r.compile(source); err != nil {
		if isCompilerLimitation(err) {
			return nil
		}
		line, col := parseDiagnosticLocation(err.Error())
		return &CompileError{
			SourceName: key,
			Diagnostic: err.Error(),
			Line:       line,
			Col:        col,
		}
	}
	return nil
}

// isCompilerLimitation reports whether a compile failure is a missing compiler
// feature rather than a problem with the program text.
func isCompilerLimitation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "not yet implemented") ||
		strings.Contains(msg, "not supported") ||
		strings.Contains(msg, "unimplemented")
}

// diagnosticLocRegex captures "line:col" style positions embedded in compiler
// diagnostics, e.g. "error at 12:5: unknown identifier".
var diagnosticLocRegex = regexp.MustCompile(`(\d+):(\d+)`)

// parseDiagnosticLocation extracts a line/column position from a compiler
// diagnostic string, returning (0, 0) when none is present.
func parseDiagnosticLocation(msg string) (line, col int) {
	m := diagnosticLocRegex.FindStringSubmatch(msg)
	if m == nil {
		return 0, 0
	}
	line, _ = strconv.Atoi(m[1])
	col, _ = strconv.Atoi(m[2])
	return line, col
}
