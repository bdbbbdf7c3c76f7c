package layout

import (
	"errors"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
)

func TestDeriveDeduplicates(t *testing.T) {
	c := NewCache()

	slotsA := []Slot{
		{Group: 0, Binding: 0, Kind: KindUniformBuffer, MinSize: 64},
		{Group: 2, Binding: 0, Kind: KindTexture2D},
		{Group: 2, Binding: 1, Kind: KindSampler},
	}
	// Same shape, different declaration order.
	slotsB := []Slot{
		{Group: 2, Binding: 1, Kind: KindSampler},
		{Group: 0, Binding: 0, Kind: KindUniformBuffer, MinSize: 64},
		{Group: 2, Binding: 0, Kind: KindTexture2D},
	}

	la, err := c.Derive(slotsA)
	if err != nil {
		t.Fatalf("Derive(slotsA) failed: %v", err)
	}
	lb, err := c.Derive(slotsB)
	if err != nil {
		t.Fatalf("Derive(slotsB) failed: %v", err)
	}

	if la != lb {
		t.Errorf("structurally identical slot sets produced distinct layouts: %p vs %p", la, lb)
	}
	if c.Len() != 1 {
		t.Errorf("cache size = %d, want 1", c.Len())
	}
}

func TestDeriveDistinctShapes(t *testing.T) {
	c := NewCache()

	la, err := c.Derive([]Slot{{Group: 0, Binding: 0, Kind: KindUniformBuffer, MinSize: 64}})
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}
	lb, err := c.Derive([]Slot{{Group: 0, Binding: 0, Kind: KindUniformBuffer, MinSize: 16}})
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}
	if la == lb {
		t.Error("layouts with different uniform sizes share an instance")
	}
}

func TestDeriveDuplicateBinding(t *testing.T) {
	c := NewCache()

	_, err := c.Derive([]Slot{
		{Group: 1, Binding: 3, Kind: KindUniformBuffer, MinSize: 4},
		{Group: 1, Binding: 3, Kind: KindTexture2D},
	})
	var dup *DuplicateBindingError
	if !errors.As(err, &dup) {
		t.Fatalf("Derive returned %v, want *DuplicateBindingError", err)
	}
	if dup.Group != 1 || dup.Binding != 3 {
		t.Errorf("error names (group=%d, binding=%d), want (1, 3)", dup.Group, dup.Binding)
	}
}

func TestLayoutAccessors(t *testing.T) {
	c := NewCache()
	l, err := c.Derive([]Slot{
		{Group: 2, Binding: 0, Kind: KindTexture2D},
		{Group: 0, Binding: 0, Kind: KindUniformBuffer, MinSize: 64},
		{Group: 2, Binding: 1, Kind: KindSampler},
	})
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}

	if got := l.MaxGroup(); got != 2 {
		t.Errorf("MaxGroup() = %d, want 2", got)
	}
	groups := l.Groups()
	if len(groups) != 2 || groups[0] != 0 || groups[1] != 2 {
		t.Errorf("Groups() = %v, want [0 2]", groups)
	}
	if s, ok := l.Slot(2, 1); !ok || s.Kind != KindSampler {
		t.Errorf("Slot(2, 1) = %+v, %v; want sampler slot", s, ok)
	}
	if _, ok := l.Slot(1, 0); ok {
		t.Error("Slot(1, 0) reported a slot that was never declared")
	}
}

func TestGroupsExcludeInstancePseudoGroup(t *testing.T) {
	c := NewCache()
	l, err := c.Derive([]Slot{
		{Group: InstanceGroup, Binding: 1, Kind: KindInstanceAttributes, MinSize: 64},
		{Group: 0, Binding: 0, Kind: KindUniformBuffer, MinSize: 64},
	})
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}

	// The instance stream is bound as a vertex buffer, never as a bind
	// group; a pass iterating Groups() must see only real group indices.
	groups := l.Groups()
	if len(groups) != 1 || groups[0] != 0 {
		t.Errorf("Groups() = %v, want [0]", groups)
	}
	if got := l.MaxGroup(); got != 0 {
		t.Errorf("MaxGroup() = %d, want 0", got)
	}
}

func TestBindGroupLayoutDescriptor(t *testing.T) {
	c := NewCache()
	l, err := c.Derive([]Slot{
		{Group: 0, Binding: 0, Kind: KindUniformBuffer, MinSize: 64},
		{Group: 0, Binding: 1, Kind: KindInstanceAttributes},
		{Group: 2, Binding: 0, Kind: KindTexture2D},
		{Group: 2, Binding: 1, Kind: KindSampler},
	})
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}

	desc := l.BindGroupLayoutDescriptor(0)
	if len(desc.Entries) != 1 {
		t.Fatalf("group 0 entries = %d, want 1 (instance attributes must be excluded)", len(desc.Entries))
	}
	if desc.Entries[0].Buffer.Type != wgpu.BufferBindingTypeUniform {
		t.Errorf("group 0 binding 0 type = %v, want uniform", desc.Entries[0].Buffer.Type)
	}
	if desc.Entries[0].Buffer.MinBindingSize != 64 {
		t.Errorf("MinBindingSize = %d, want 64", desc.Entries[0].Buffer.MinBindingSize)
	}

	desc = l.BindGroupLayoutDescriptor(2)
	if len(desc.Entries) != 2 {
		t.Fatalf("group 2 entries = %d, want 2", len(desc.Entries))
	}
	if desc.Entries[0].Texture.SampleType != wgpu.TextureSampleTypeFloat {
		t.Errorf("texture entry sample type = %v, want float", desc.Entries[0].Texture.SampleType)
	}
	if desc.Entries[1].Sampler.Type != wgpu.SamplerBindingTypeFiltering {
		t.Errorf("sampler entry type = %v, want filtering", desc.Entries[1].Sampler.Type)
	}
}
