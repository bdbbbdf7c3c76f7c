package renderer

import (
	"testing"

	"github.com/gpukit/rendercore/renderer/layout"
	"github.com/gpukit/rendercore/renderer/shader"
)

func newBuiltinRegistry(t *testing.T) shader.Registry {
	t.Helper()
	reg := shader.NewRegistry(layout.NewCache(), shader.WithCompileValidation(false))
	if err := RegisterBuiltinPrograms(reg); err != nil {
		t.Fatalf("RegisterBuiltinPrograms: %v", err)
	}
	return reg
}

func TestBuiltinProgramsRegister(t *testing.T) {
	reg := newBuiltinRegistry(t)

	for key := range builtinPrograms {
		if _, ok := reg.Program(key); !ok {
			t.Errorf("program %q not registered", key)
		}
	}
}

func TestFlatProgramInterface(t *testing.T) {
	reg := newBuiltinRegistry(t)
	prog, ok := reg.Program(ProgramFlat)
	if !ok {
		t.Fatal("flat program missing")
	}

	attrs := prog.Attributes()
	if len(attrs) != 1 || attrs[0].Location != 0 || attrs[0].Elem != shader.ElemFloat3 {
		t.Errorf("attributes = %+v, want one float3 at location 0", attrs)
	}
	slot, ok := prog.Layout().Slot(0, 0)
	if !ok {
		t.Fatal("slot (0,0) missing")
	}
	if slot.Kind != layout.KindUniformBuffer || slot.MinSize != 64 {
		t.Errorf("slot (0,0) = %+v, want 64-byte uniform", slot)
	}
}

func TestTexturedProgramInterface(t *testing.T) {
	reg := newBuiltinRegistry(t)
	prog, ok := reg.Program(ProgramTextured)
	if !ok {
		t.Fatal("textured program missing")
	}

	slots := prog.BindingSlots()
	if len(slots) != 3 {
		t.Fatalf("binding slots = %d, want 3", len(slots))
	}
	if s, _ := prog.Layout().Slot(2, 0); s.Kind != layout.KindTexture2D {
		t.Errorf("slot (2,0) kind = %v, want texture", s.Kind)
	}
	if s, _ := prog.Layout().Slot(2, 1); s.Kind != layout.KindSampler {
		t.Errorf("slot (2,1) kind = %v, want sampler", s.Kind)
	}
}

func TestIDColorProgramInterface(t *testing.T) {
	reg := newBuiltinRegistry(t)
	prog, ok := reg.Program(ProgramIDColor)
	if !ok {
		t.Fatal("id-color program missing")
	}

	if s, ok := prog.Layout().Slot(0, 0); !ok || s.Kind != layout.KindUniformBuffer || s.MinSize != 64 {
		t.Errorf("slot (0,0) = %+v, want 64-byte uniform", s)
	}
	if s, ok := prog.Layout().Slot(1, 0); !ok || s.Kind != layout.KindUniformBuffer || s.MinSize != 4 {
		t.Errorf("slot (1,0) = %+v, want 4-byte uniform", s)
	}
}

func TestOverlayProgramInterface(t *testing.T) {
	reg := newBuiltinRegistry(t)
	prog, ok := reg.Program(ProgramOverlay)
	if !ok {
		t.Fatal("overlay program missing")
	}

	insts := prog.InstanceAttributes()
	if len(insts) != 4 {
		t.Fatalf("instance attributes = %d, want 4", len(insts))
	}
	for i, a := range insts {
		if a.Location != i+1 || a.Elem != shader.ElemFloat4 {
			t.Errorf("instance attribute %d = %+v, want float4 at location %d", i, a, i+1)
		}
	}
	if s, ok := prog.Layout().Slot(layout.InstanceGroup, 1); !ok || s.Kind != layout.KindInstanceAttributes {
		t.Errorf("instance slot = %+v, want instance attributes at buffer 1", s)
	}
}

func TestPresentProgramInterface(t *testing.T) {
	reg := newBuiltinRegistry(t)
	prog, ok := reg.Program(ProgramPresent)
	if !ok {
		t.Fatal("present program missing")
	}

	attrs := prog.Attributes()
	if len(attrs) != 1 || attrs[0].Elem != shader.ElemFloat2 {
		t.Errorf("attributes = %+v, want one float2", attrs)
	}
	groups := prog.Layout().Groups()
	if len(groups) != 1 || groups[0] != 2 {
		t.Errorf("groups = %v, want [2]", groups)
	}
}

func TestPassProgramMapping(t *testing.T) {
	want := map[PassKind]string{
		PassOpaque:   ProgramFlat,
		PassTextured: ProgramTextured,
		PassIDColor:  ProgramIDColor,
		PassOverlay:  ProgramOverlay,
		PassPresent:  ProgramPresent,
	}
	for kind, key := range want {
		if got := PassProgram(kind); got != key {
			t.Errorf("PassProgram(%v) = %q, want %q", kind, got, key)
		}
	}
	if got := PassProgram(passCount); got != "" {
		t.Errorf("PassProgram(unknown) = %q, want empty", got)
	}
}
