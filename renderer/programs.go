package renderer

import (
	"embed"
	"fmt"

	"github.com/gpukit/rendercore/renderer/shader"
)

// Builtin program keys, one per pass kind of the fixed frame sequence.
const (
	ProgramFlat     = "builtin/flat"
	ProgramTextured = "builtin/textured"
	ProgramIDColor  = "builtin/id_color"
	ProgramOverlay  = "builtin/overlay"
	ProgramPresent  = "builtin/present"
)

//go:embed shaders/*.wgsl
var builtinShaders embed.FS

// builtinPrograms maps each builtin key to its embedded source file. All
// builtin programs use vs_main/fs_main entry points.
var builtinPrograms = map[string]string{
	ProgramFlat:     "shaders/flat.wgsl",
	ProgramTextured: "shaders/textured.wgsl",
	ProgramIDColor:  "shaders/id_color.wgsl",
	ProgramOverlay:  "shaders/overlay.wgsl",
	ProgramPresent:  "shaders/present.wgsl",
}

// RegisterBuiltinPrograms registers the five builtin pass programs with the
// given registry.
//
// Parameters:
//   - reg: the program registry to register into
//
// Returns:
//   - error: the first registration failure
func RegisterBuiltinPrograms(reg shader.Registry) error {
	for key, path := range builtinPrograms {
		source, err := builtinShaders.ReadFile(path)
		if err != nil {
			return fmt.Errorf("renderer: read builtin shader %s: %w", path, err)
		}
		if _, err := reg.Register(key, string(source), "vs_main", "fs_main"); err != nil {
			return fmt.Errorf("renderer: register %s: %w", key, err)
		}
	}
	return nil
}

// PassProgram returns the builtin program key for a pass kind.
//
// Parameters:
//   - kind: the pass kind
//
// Returns:
//   - string: the program key, or empty string for an unknown kind
func PassProgram(kind PassKind) string {
	switch kind {
	case PassOpaque:
		return ProgramFlat
	case PassTextured:
		return ProgramTextured
	case PassIDColor:
		return ProgramIDColor
	case PassOverlay:
		return ProgramOverlay
	case PassPresent:
		return ProgramPresent
	default:
		return ""
	}
}
