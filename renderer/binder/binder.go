// Package binder allocates and updates per-frame resource sets: uniform
// buffer contents, texture/sampler bindings, and instance attribute buffers.
// All GPU calls go through the injected Device so the validation and
// double-buffering logic is testable without hardware.
package binder

import (
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gpukit/rendercore/renderer/layout"
)

// MissingSlotError reports a layout slot the caller supplied no value for.
type MissingSlotError struct {
	Group   int
	Binding int
}

func (e *MissingSlotError) Error() string {
	return fmt.Sprintf("binder: no value supplied for binding %d in group %d", e.Binding, e.Group)
}

// KindMismatchError reports a supplied value whose resource kind does not
// match the declared slot kind.
type KindMismatchError struct {
	Group   int
	Binding int
	Want    layout.Kind
	Got     layout.Kind
}

func (e *KindMismatchError) Error() string {
	return fmt.Sprintf("binder: binding %d in group %d wants %s, got %s", e.Binding, e.Group, e.Want, e.Got)
}

// PayloadSizeError reports a uniform payload smaller than the slot's declared
// struct layout.
type PayloadSizeError struct {
	Group   int
	Binding int
	Want    uint64
	Got     uint64
}

func (e *PayloadSizeError) Error() string {
	return fmt.Sprintf("binder: uniform payload for group %d binding %d is %d bytes, layout requires %d",
		e.Group, e.Binding, e.Got, e.Want)
}

// Device abstracts the GPU resource operations the binder needs. The renderer
// backend implements it against a live device; tests substitute a stub.
type Device interface {
	// CreateUniformBuffer allocates a uniform buffer of the given size.
	//
	// Parameters:
	//   - label: a debug label for the buffer
	//   - size: the buffer size in bytes
	//
	// Returns:
	//   - *wgpu.Buffer: the new buffer
	//   - error: an allocation failure
	CreateUniformBuffer(label string, size uint64) (*wgpu.Buffer, error)

	// CreateInstanceBuffer allocates an instance-stepped vertex buffer of the
	// given size.
	//
	// Parameters:
	//   - label: a debug label for the buffer
	//   - size: the buffer size in bytes
	//
	// Returns:
	//   - *wgpu.Buffer: the new buffer
	//   - error: an allocation failure
	CreateInstanceBuffer(label string, size uint64) (*wgpu.Buffer, error)

	// WriteBuffer uploads data into a buffer at the given byte offset.
	//
	// Parameters:
	//   - buf: the destination buffer
	//   - offset: the destination byte offset
	//   - data: the bytes to upload
	//
	// Returns:
	//   - error: an upload failure
	WriteBuffer(buf *wgpu.Buffer, offset uint64, data []byte) error

	// CreateBindGroup creates a bind group for one group of a layout from
	// fully populated entries.
	//
	// Parameters:
	//   - l: the binding layout
	//   - group: the group index within the layout
	//   - entries: the populated bind group entries
	//
	// Returns:
	//   - *wgpu.BindGroup: the new bind group
	//   - error: a creation failure
	CreateBindGroup(l *layout.Layout, group int, entries []wgpu.BindGroupEntry) (*wgpu.BindGroup, error)

	// ReleaseBuffer releases a buffer created by this device.
	//
	// Parameters:
	//   - buf: the buffer to release
	ReleaseBuffer(buf *wgpu.Buffer)

	// ReleaseBindGroup releases a bind group created by this device.
	//
	// Parameters:
	//   - bg: the bind group to release
	ReleaseBindGroup(bg *wgpu.BindGroup)
}

// ResourceSet is a concrete binding-group instance: one bind group per group
// index of its layout, plus the uniform buffers backing them. Per-draw sets
// live at most one tick; static sets persist until the binder closes.
type ResourceSet struct {
	layout *layout.Layout
	groups map[int]*wgpu.BindGroup
	// buffers are the uniform buffers this set owns; texture contents are
	// referenced, never owned.
	buffers []*wgpu.Buffer
}

// Layout returns the binding layout this set satisfies.
//
// Returns:
//   - *layout.Layout: the layout
func (s *ResourceSet) Layout() *layout.Layout {
	return s.layout
}

// BindGroup returns the bind group for one group index of the layout.
//
// Parameters:
//   - group: the group index
//
// Returns:
//   - *wgpu.BindGroup: the bind group, or nil if the group is absent
func (s *ResourceSet) BindGroup(group int) *wgpu.BindGroup {
	return s.groups[group]
}

func (s *ResourceSet) release(d Device) {
	for _, bg := range s.groups {
		d.ReleaseBindGroup(bg)
	}
	for _, buf := range s.buffers {
		d.ReleaseBuffer(buf)
	}
	s.groups = nil
	s.buffers = nil
}

// binder is the implementation of the Binder interface.
type binder struct {
	mu      sync.Mutex
	device  Device
	stores  [2]frameStore
	current int
	static  []*ResourceSet
}

// Binder populates resource sets against binding layouts and manages the
// per-frame storage behind them. Per-tick-written storage is double-buffered:
// BeginTick flips to the buffer not currently in flight on the GPU, so CPU
// writes for frame N never race GPU reads of frame N-1.
type Binder interface {
	// Allocate builds a transient resource set for the layout from the
	// supplied values, validating completeness and kinds. Transient sets are
	// released automatically when their tick's storage slot is recycled.
	//
	// Parameters:
	//   - l: the binding layout to satisfy
	//   - values: supplied values keyed by (group, binding)
	//
	// Returns:
	//   - *ResourceSet: the populated set
	//   - error: *MissingSlotError, *KindMismatchError, *PayloadSizeError, or a device failure
	Allocate(l *layout.Layout, values map[BindingKey]Value) (*ResourceSet, error)

	// AllocateStatic builds a resource set that persists across ticks, e.g.
	// for a loaded texture. Released when the binder closes.
	//
	// Parameters:
	//   - l: the binding layout to satisfy
	//   - values: supplied values keyed by (group, binding)
	//
	// Returns:
	//   - *ResourceSet: the populated set
	//   - error: *MissingSlotError, *KindMismatchError, *PayloadSizeError, or a device failure
	AllocateStatic(l *layout.Layout, values map[BindingKey]Value) (*ResourceSet, error)

	// WriteInstances appends per-instance transforms to the current tick's
	// instance buffer, growing it when capacity is insufficient. Entries
	// already written this tick are preserved across growth.
	//
	// Parameters:
	//   - instances: the per-instance records to append
	//
	// Returns:
	//   - *InstanceRange: the buffer region holding the appended instances
	//   - error: a device failure
	WriteInstances(instances []InstanceData) (*InstanceRange, error)

	// InstanceBuffer returns the current tick's instance buffer for pass
	// encoding, or nil if nothing has been written this tick.
	//
	// Returns:
	//   - *wgpu.Buffer: the instance buffer
	InstanceBuffer() *wgpu.Buffer

	// InstanceCapacity reports the current tick's instance buffer capacity in
	// instances.
	//
	// Returns:
	//   - int: the capacity
	InstanceCapacity() int

	// BeginTick flips per-frame storage to the slot not in flight and releases
	// the transient sets that slot carried from its previous tick.
	BeginTick()

	// AbandonTick releases the current tick's transient sets immediately, for
	// frames cancelled before submission. GPU work for the abandoned frame
	// must not have been enqueued.
	AbandonTick()

	// TickSlot reports which of the two per-frame storage slots is active.
	//
	// Returns:
	//   - int: 0 or 1
	TickSlot() int

	// Close releases all storage: transient sets in both slots, instance
	// buffers, and static sets.
	Close()
}

var _ Binder = &binder{}

// NewBinder creates a binder that allocates GPU resources through the given
// device.
//
// Parameters:
//   - device: the GPU resource device (must not be nil)
//   - options: functional options to further configure the binder
//
// Returns:
//   - Binder: the new binder
func NewBinder(device Device, options ...BinderBuilderOption) Binder {
	if device == nil {
		panic("binder: NewBinder requires a non-nil Device")
	}
	b := &binder{device: device}
	for i := range b.stores {
		b.stores[i].minCap = defaultInstanceCapacity
	}
	for _, option := range options {
		option(b)
	}
	return b
}

func (b *binder) Allocate(l *layout.Layout, values map[BindingKey]Value) (*ResourceSet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, err := b.allocate(l, values)
	if err != nil {
		return nil, err
	}
	b.stores[b.current].transients = append(b.stores[b.current].transients, set)
	return set, nil
}

func (b *binder) AllocateStatic(l *layout.Layout, values map[BindingKey]Value) (*ResourceSet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, err := b.allocate(l, values)
	if err != nil {
		return nil, err
	}
	b.static = append(b.static, set)
	return set, nil
}

// allocate validates the supplied values against the layout and creates the
// backing GPU objects. On any failure everything created so far is released
// and nothing is retained.
func (b *binder) allocate(l *layout.Layout, values map[BindingKey]Value) (*ResourceSet, error) {
	set := &ResourceSet{layout: l, groups: make(map[int]*wgpu.BindGroup)}
	entries := make(map[int][]wgpu.BindGroupEntry)

	fail := func(err error) (*ResourceSet, error) {
		set.release(b.device)
		return nil, err
	}

	for _, s := range l.Slots() {
		if s.Kind == layout.KindInstanceAttributes {
			// Instance streams are fed through WriteInstances, not bind groups.
			continue
		}
		v, ok := values[BindingKey{Group: s.Group, Binding: s.Binding}]
		if !ok {
			return fail(&MissingSlotError{Group: s.Group, Binding: s.Binding})
		}
		if v.kind != s.Kind {
			return fail(&KindMismatchError{Group: s.Group, Binding: s.Binding, Want: s.Kind, Got: v.kind})
		}

		entry := wgpu.BindGroupEntry{Binding: uint32(s.Binding)}
		switch s.Kind {
		case layout.KindUniformBuffer:
			if uint64(len(v.uniform)) < s.MinSize {
				return fail(&PayloadSizeError{Group: s.Group, Binding: s.Binding, Want: s.MinSize, Got: uint64(len(v.uniform))})
			}
			buf, err := b.device.CreateUniformBuffer(fmt.Sprintf("uniform g%d.b%d", s.Group, s.Binding), uint64(len(v.uniform)))
			if err != nil {
				return fail(err)
			}
			set.buffers = append(set.buffers, buf)
			if err := b.device.WriteBuffer(buf, 0, v.uniform); err != nil {
				return fail(err)
			}
			entry.Buffer = buf
			entry.Offset = 0
			entry.Size = wgpu.WholeSize
		case layout.KindTexture2D:
			entry.TextureView = v.texture
		case layout.KindSampler:
			entry.Sampler = v.sampler
		}
		entries[s.Group] = append(entries[s.Group], entry)
	}

	for group, groupEntries := range entries {
		bg, err := b.device.CreateBindGroup(l, group, groupEntries)
		if err != nil {
			return fail(err)
		}
		set.groups[group] = bg
	}
	return set, nil
}

func (b *binder) BeginTick() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = 1 - b.current
	st := &b.stores[b.current]
	// The incoming slot last served two ticks ago; with double buffering the
	// GPU has consumed it, so its transients are safe to release now.
	for _, set := range st.transients {
		set.release(b.device)
	}
	st.transients = nil
	st.shadow = st.shadow[:0]
}

func (b *binder) AbandonTick() {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := &b.stores[b.current]
	for _, set := range st.transients {
		set.release(b.device)
	}
	st.transients = nil
	st.shadow = st.shadow[:0]
}

func (b *binder) TickSlot() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

func (b *binder) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.stores {
		st := &b.stores[i]
		for _, set := range st.transients {
			set.release(b.device)
		}
		st.transients = nil
		if st.buffer != nil {
			b.device.ReleaseBuffer(st.buffer)
			st.buffer = nil
		}
		st.capacity = 0
		st.shadow = nil
	}
	for _, set := range b.static {
		set.release(b.device)
	}
	b.static = nil
}
