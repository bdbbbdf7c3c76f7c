// Package layout models resource-binding layouts derived from shader programs.
// A Layout is the ordered set of (group, binding, kind) slots a program declares;
// structurally identical slot sets share one cached Layout instance so that
// pipelines and resource sets built from different programs can compare layouts
// by pointer.
//
// Group index conventions used across the render core:
//   - group 0: per-draw transform/camera state
//   - group 1: per-pass auxiliary uniforms (primitive id, overlay id)
//   - group 2+: texture and sampler pairs
package layout

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

// InstanceGroup is the reserved pseudo-group index for instance-attribute
// slots. Instance streams are fed to the pipeline as instance-stepped vertex
// buffers, not GPU bind groups, so they are tracked under a group index that
// can never collide with a real bind group (real groups are >= 0). For an
// instance slot, Binding carries the vertex buffer slot index instead.
const InstanceGroup = -1

// Kind identifies the resource category a binding slot expects.
type Kind int

const (
	// KindUniformBuffer is a uniform buffer slot with a fixed struct layout.
	KindUniformBuffer Kind = iota

	// KindTexture2D is a sampled 2D texture slot.
	KindTexture2D

	// KindSampler is a filtering sampler slot.
	KindSampler

	// KindInstanceAttributes is a per-instance attribute buffer. It is consumed
	// as an instance-stepped vertex stream rather than a bind group entry, but
	// is tracked as a slot so layouts fully describe a program's inputs; the
	// Binding field carries the vertex buffer slot and MinSize the stride.
	KindInstanceAttributes
)

// String returns the lower-case name of the kind for diagnostics.
func (k Kind) String() string {
	switch k {
	case KindUniformBuffer:
		return "uniform-buffer"
	case KindTexture2D:
		return "texture-2d"
	case KindSampler:
		return "sampler"
	case KindInstanceAttributes:
		return "instance-attributes"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Slot is a single declared binding: its group, binding index within the group,
// resource kind, and, for uniform buffers, the minimum byte size of the bound
// struct.
type Slot struct {
	Group   int
	Binding int
	Kind    Kind
	MinSize uint64
}

// DuplicateBindingError reports two slots declaring the same (group, binding)
// pair. It is surfaced at derivation time, before any GPU object is created.
type DuplicateBindingError struct {
	Group   int
	Binding int
}

func (e *DuplicateBindingError) Error() string {
	return fmt.Sprintf("layout: duplicate binding %d in group %d", e.Binding, e.Group)
}

// Layout is an immutable, ordered set of binding slots. Layouts are only
// created by Cache.Derive, which deduplicates them structurally: two programs
// declaring the same slot shape observe the identical *Layout pointer.
type Layout struct {
	slots []Slot
	key   string
}

// Key returns the structural identity of this layout, usable as a map key.
//
// Returns:
//   - string: a stable encoding of the ordered slot tuples
func (l *Layout) Key() string {
	return l.key
}

// Slots returns the ordered slot list. The returned slice is shared and must
// not be modified.
//
// Returns:
//   - []Slot: slots sorted by (group, binding)
func (l *Layout) Slots() []Slot {
	return l.slots
}

// Slot looks up the slot declared at (group, binding), if any.
//
// Parameters:
//   - group: the bind group index
//   - binding: the binding index within the group
//
// Returns:
//   - Slot: the declared slot
//   - bool: true if the slot exists
func (l *Layout) Slot(group, binding int) (Slot, bool) {
	for _, s := range l.slots {
		if s.Group == group && s.Binding == binding {
			return s, true
		}
	}
	return Slot{}, false
}

// Groups returns the distinct bind group indices declared by this layout,
// ascending. The instance pseudo-group is not a bind group and is excluded;
// callers iterate the result to bind real groups on a render pass.
//
// Returns:
//   - []int: sorted group indices
func (l *Layout) Groups() []int {
	var groups []int
	last := -1
	for _, s := range l.slots {
		if s.Group == InstanceGroup {
			continue
		}
		if s.Group != last {
			groups = append(groups, s.Group)
			last = s.Group
		}
	}
	return groups
}

// MaxGroup returns the highest group index declared, or -1 for an empty layout.
//
// Returns:
//   - int: the maximum group index
func (l *Layout) MaxGroup() int {
	if len(l.slots) == 0 {
		return -1
	}
	return l.slots[len(l.slots)-1].Group
}

// BindGroupLayoutDescriptor builds the wgpu bind group layout descriptor for
// one group of this layout. Instance-attribute slots are excluded — they are
// fed to the pipeline as an instance-stepped vertex buffer, not a bind group
// entry. Entries are visible to both render stages.
//
// Parameters:
//   - group: the bind group index to describe
//
// Returns:
//   - wgpu.BindGroupLayoutDescriptor: the descriptor, empty if the group has no bindable slots
func (l *Layout) BindGroupLayoutDescriptor(group int) wgpu.BindGroupLayoutDescriptor {
	var entries []wgpu.BindGroupLayoutEntry
	for _, s := range l.slots {
		if s.Group != group {
			continue
		}
		entry := wgpu.BindGroupLayoutEntry{
			Binding:    uint32(s.Binding),
			Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
		}
		switch s.Kind {
		case KindUniformBuffer:
			entry.Buffer.Type = wgpu.BufferBindingTypeUniform
			entry.Buffer.MinBindingSize = s.MinSize
		case KindTexture2D:
			entry.Texture.SampleType = wgpu.TextureSampleTypeFloat
			entry.Texture.ViewDimension = wgpu.TextureViewDimension2D
		case KindSampler:
			entry.Sampler.Type = wgpu.SamplerBindingTypeFiltering
		case KindInstanceAttributes:
			continue
		}
		entries = append(entries, entry)
	}
	return wgpu.BindGroupLayoutDescriptor{
		Label:   fmt.Sprintf("layout group %d", group),
		Entries: entries,
	}
}

// normalize sorts a copy of the slots by (group, binding) and rejects duplicate
// (group, binding) pairs.
func normalize(slots []Slot) ([]Slot, error) {
	sorted := make([]Slot, len(slots))
	copy(sorted, slots)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Group != sorted[j].Group {
			return sorted[i].Group < sorted[j].Group
		}
		return sorted[i].Binding < sorted[j].Binding
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Group == sorted[i-1].Group && sorted[i].Binding == sorted[i-1].Binding {
			return nil, &DuplicateBindingError{Group: sorted[i].Group, Binding: sorted[i].Binding}
		}
	}
	return sorted, nil
}

// slotKey encodes the ordered slot tuples into a stable string.
func slotKey(slots []Slot) string {
	var sb strings.Builder
	for _, s := range slots {
		fmt.Fprintf(&sb, "g%d.b%d.k%d.s%d;", s.Group, s.Binding, int(s.Kind), s.MinSize)
	}
	return sb.String()
}
