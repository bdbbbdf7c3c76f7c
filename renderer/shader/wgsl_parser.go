package shader

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gpukit/rendercore/renderer/layout"
)

// attrElemInfo holds the attribute element type, wgpu vertex format, and byte
// size for a WGSL vertex input type.
type attrElemInfo struct {
	elem   ElemType
	format wgpu.VertexFormat
	size   uint64
}

// wgslAttrElemMap maps WGSL vertex input type names to their attribute element
// type and vertex format. Attribute inputs are restricted to the element types
// the render core consumes: float2, float3, float4, and uint.
var wgslAttrElemMap = map[string]attrElemInfo{
	"vec2<f32>": {ElemFloat2, wgpu.VertexFormatFloat32x2, 8},
	"vec2f":     {ElemFloat2, wgpu.VertexFormatFloat32x2, 8},
	"vec3<f32>": {ElemFloat3, wgpu.VertexFormatFloat32x3, 12},
	"vec3f":     {ElemFloat3, wgpu.VertexFormatFloat32x3, 12},
	"vec4<f32>": {ElemFloat4, wgpu.VertexFormatFloat32x4, 16},
	"vec4f":     {ElemFloat4, wgpu.VertexFormatFloat32x4, 16},
	"u32":       {ElemUint, wgpu.VertexFormatUint32, 4},
}

// wgslTypeAliasMap maps WGSL shorthand type names to their canonical spelling
// so inter-stage variables parse to comparable type strings regardless of
// which form the source used.
var wgslTypeAliasMap = map[string]string{
	"vec2f": "vec2<f32>",
	"vec3f": "vec3<f32>",
	"vec4f": "vec4<f32>",
	"vec2i": "vec2<i32>",
	"vec3i": "vec3<i32>",
	"vec4i": "vec4<i32>",
	"vec2u": "vec2<u32>",
	"vec3u": "vec3<u32>",
	"vec4u": "vec4<u32>",
}

var (
	// structBlockRegex matches struct declarations and captures the name and body
	structBlockRegex = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)

	// locationRegex matches @location(N) attributes
	locationRegex = regexp.MustCompile(`@location\((\d+)\)`)

	// builtinRegex matches @builtin(...) attributes
	builtinRegex = regexp.MustCompile(`@builtin\(\w+\)`)

	// fieldRegex matches a struct field line: optional attributes, name, colon, type.
	// The type capture (.+) is greedy to handle parameterized types like array<T, N>.
	fieldRegex = regexp.MustCompile(`(?:(?:@\w+\([^)]*\)\s*)*)*\s*(\w+)\s*:\s*(.+)`)

	// vertexEntryRegex matches @vertex functions and captures the entry point name
	vertexEntryRegex = regexp.MustCompile(`(?s)@vertex\b.*?\bfn\s+(\w+)`)

	// fragmentEntryRegex matches @fragment functions and captures the entry point name
	fragmentEntryRegex = regexp.MustCompile(`(?s)@fragment\b.*?\bfn\s+(\w+)`)

	// returnTypeRegex matches the -> ReturnType clause that follows a
	// function's parameter list
	returnTypeRegex = regexp.MustCompile(`\A\s*->\s*([^{]+)`)

	// bindGroupDeclRegex captures group, binding, optional address space, variable name, and type
	// from declarations like: @group(0) @binding(0) var<uniform> transform: TransformUniform;
	// or handle types: @group(2) @binding(0) var sceneTexture: texture_2d<f32>;
	bindGroupDeclRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)
)

// parsedInterface is everything extracted from one WGSL source at
// registration time.
type parsedInterface struct {
	attributes    []Attribute
	instanceAttrs []Attribute
	slots         []layout.Slot
	vertexOut     []IOVar
	fragmentIn    []IOVar
	vertexBuffers []wgpu.VertexBufferLayout
}

// parsedField represents a single field extracted from a WGSL struct during parsing
type parsedField struct {
	name      string
	typeName  string
	location  int
	isBuiltin bool
}

// parsedStruct represents a WGSL struct block extracted during parsing
type parsedStruct struct {
	name   string
	fields []parsedField
}

// parseInterface extracts the full declared interface of a WGSL program pair:
// vertex and instance attributes, binding slots, vertex buffer layouts, and
// the inter-stage variables between the named entry points. Returns a
// *CompileError when the source is malformed or its interface is internally
// inconsistent.
//
// Parameters:
//   - sourceName: the registry key, used in diagnostics
//   - source: the raw WGSL source text
//   - vsEntry: the vertex entry point function name
//   - fsEntry: the fragment entry point function name
//
// Returns:
//   - *parsedInterface: the extracted interface
//   - error: a *CompileError describing the first problem found
func parseInterface(sourceName, source, vsEntry, fsEntry string) (*parsedInterface, error) {
	cleaned := stripComments(source)
	structs := parseStructBlocks(cleaned)
	structSizes := computeStructSizes(structs)

	if err := checkEntryPoint(sourceName, cleaned, vertexEntryRegex, vsEntry, "vertex"); err != nil {
		return nil, err
	}
	if err := checkEntryPoint(sourceName, cleaned, fragmentEntryRegex, fsEntry, "fragment"); err != nil {
		return nil, err
	}

	pi := &parsedInterface{}
	if err := pi.parseAttributes(sourceName, cleaned, structs); err != nil {
		return nil, err
	}
	if err := pi.parseBindingSlots(sourceName, cleaned, structSizes); err != nil {
		return nil, err
	}
	if err := pi.parseStageIO(sourceName, cleaned, structs, vsEntry, fsEntry); err != nil {
		return nil, err
	}
	return pi, nil
}

// checkEntryPoint verifies that the named entry point is declared with the
// expected stage attribute somewhere in the source.
func checkEntryPoint(sourceName, cleaned string, re *regexp.Regexp, entry, stage string) error {
	for _, m := range re.FindAllStringSubmatch(cleaned, -1) {
		if m[1] == entry {
			return nil
		}
	}
	return &CompileError{
		SourceName: sourceName,
		Diagnostic: fmt.Sprintf("%s entry point %q not declared", stage, entry),
	}
}

// parseAttributes extracts per-vertex and per-instance input attributes from
// the source's pure vertex input structs. A struct whose name contains
// "Instance" feeds the instance-stepped buffer; any other input struct feeds
// the per-vertex buffer. Duplicate locations across the two streams are an
// interface error.
func (pi *parsedInterface) parseAttributes(sourceName, cleaned string, structs []parsedStruct) error {
	seen := make(map[int]bool)
	for _, ps := range structs {
		if !isVertexInputStruct(ps) {
			continue
		}
		isInstance := strings.Contains(ps.name, "Instance")

		attrs := make([]Attribute, 0, len(ps.fields))
		wgpuAttrs := make([]wgpu.VertexAttribute, 0, len(ps.fields))
		var stride uint64
		for _, f := range ps.fields {
			info, ok := wgslAttrElemMap[f.typeName]
			if !ok {
				line, col := sourceLocation(cleaned, f.name)
				return &CompileError{
					SourceName: sourceName,
					Diagnostic: fmt.Sprintf("attribute %s: unsupported input type %q", f.name, f.typeName),
					Line:       line,
					Col:        col,
				}
			}
			if seen[f.location] {
				line, col := sourceLocation(cleaned, f.name)
				return &CompileError{
					SourceName: sourceName,
					Diagnostic: fmt.Sprintf("duplicate attribute location %d", f.location),
					Line:       line,
					Col:        col,
				}
			}
			seen[f.location] = true

			attrs = append(attrs, Attribute{Location: f.location, Elem: info.elem})
			wgpuAttrs = append(wgpuAttrs, wgpu.VertexAttribute{
				Format:         info.format,
				Offset:         stride,
				ShaderLocation: uint32(f.location),
			})
			stride += info.size
		}

		vbl := wgpu.VertexBufferLayout{
			ArrayStride: stride,
			StepMode:    wgpu.VertexStepModeVertex,
			Attributes:  wgpuAttrs,
		}
		if isInstance {
			vbl.StepMode = wgpu.VertexStepModeInstance
			pi.instanceAttrs = append(pi.instanceAttrs, attrs...)
			pi.vertexBuffers = append(pi.vertexBuffers, vbl)
		} else {
			pi.attributes = append(pi.attributes, attrs...)
			// Per-vertex stream always occupies buffer slot 0.
			pi.vertexBuffers = append([]wgpu.VertexBufferLayout{vbl}, pi.vertexBuffers...)
		}
	}

	sortAttributes(pi.attributes)
	sortAttributes(pi.instanceAttrs)
	return nil
}

// parseBindingSlots extracts all @group(N) @binding(M) resource declarations
// and classifies them into binding slots. Uniform buffers resolve their
// declared struct to a minimum binding size. When the program declares an
// instance input struct, an instance-attributes slot is appended under
// layout.InstanceGroup with the instance buffer's slot index and stride.
func (pi *parsedInterface) parseBindingSlots(sourceName, cleaned string, structSizes map[string]wgslTypeLayout) error {
	for _, match := range bindGroupDeclRegex.FindAllStringSubmatch(cleaned, -1) {
		group, _ := strconv.Atoi(match[1])
		binding, _ := strconv.Atoi(match[2])
		addressSpace := strings.TrimSpace(match[3])
		typeName := strings.TrimSpace(match[5])

		slot := layout.Slot{Group: group, Binding: binding}
		switch {
		case addressSpace == "uniform":
			slot.Kind = layout.KindUniformBuffer
			if tl, ok := resolveTypeLayout(typeName, structSizes); ok {
				slot.MinSize = tl.size
			}
		case addressSpace != "":
			line, col := sourceLocation(cleaned, match[0])
			return &CompileError{
				SourceName: sourceName,
				Diagnostic: fmt.Sprintf("unsupported address space %q at group %d binding %d", addressSpace, group, binding),
				Line:       line,
				Col:        col,
			}
		case typeName == "sampler":
			slot.Kind = layout.KindSampler
		case strings.HasPrefix(typeName, "texture_2d"):
			slot.Kind = layout.KindTexture2D
		default:
			line, col := sourceLocation(cleaned, match[0])
			return &CompileError{
				SourceName: sourceName,
				Diagnostic: fmt.Sprintf("unsupported resource type %q at group %d binding %d", typeName, group, binding),
				Line:       line,
				Col:        col,
			}
		}
		pi.slots = append(pi.slots, slot)
	}

	if len(pi.instanceAttrs) > 0 {
		var stride uint64
		for _, vbl := range pi.vertexBuffers {
			if vbl.StepMode == wgpu.VertexStepModeInstance {
				stride = vbl.ArrayStride
			}
		}
		pi.slots = append(pi.slots, layout.Slot{
			Group:   layout.InstanceGroup,
			Binding: len(pi.vertexBuffers) - 1,
			Kind:    layout.KindInstanceAttributes,
			MinSize: stride,
		})
	}
	return nil
}

// parseStageIO extracts the inter-stage variables between the two entry
// points: the @location fields of the vertex entry's return struct, and the
// @location inputs of the fragment entry's parameter list. Struct-typed
// fragment parameters expand to their fields.
func (pi *parsedInterface) parseStageIO(sourceName, cleaned string, structs []parsedStruct, vsEntry, fsEntry string) error {
	byName := make(map[string]parsedStruct, len(structs))
	for _, ps := range structs {
		byName[ps.name] = ps
	}

	if _, after, ok := entrySignature(cleaned, vsEntry); ok {
		if m := returnTypeRegex.FindStringSubmatch(after); m != nil {
			ret := strings.TrimSpace(m[1])
			if ps, found := byName[ret]; found {
				for _, f := range ps.fields {
					if f.isBuiltin || f.location < 0 {
						continue
					}
					pi.vertexOut = append(pi.vertexOut, IOVar{Location: f.location, Type: canonicalType(f.typeName)})
				}
			}
		}
	}

	if params, _, ok := entrySignature(cleaned, fsEntry); ok {
		for _, param := range splitAtTopLevelCommas(params) {
			param = strings.TrimSpace(param)
			if param == "" || builtinRegex.MatchString(param) {
				continue
			}
			if locMatch := locationRegex.FindStringSubmatch(param); locMatch != nil {
				loc, _ := strconv.Atoi(locMatch[1])
				_, typeName, ok := strings.Cut(param, ":")
				if !ok {
					continue
				}
				pi.fragmentIn = append(pi.fragmentIn, IOVar{Location: loc, Type: canonicalType(strings.TrimSpace(typeName))})
				continue
			}
			_, typeName, ok := strings.Cut(param, ":")
			if !ok {
				continue
			}
			if ps, found := byName[strings.TrimSpace(typeName)]; found {
				for _, f := range ps.fields {
					if f.isBuiltin || f.location < 0 {
						continue
					}
					pi.fragmentIn = append(pi.fragmentIn, IOVar{Location: f.location, Type: canonicalType(f.typeName)})
				}
			}
		}
	}

	sortIOVars(pi.vertexOut)
	sortIOVars(pi.fragmentIn)
	return nil
}

// canonicalType resolves WGSL shorthand type names to their canonical spelling.
func canonicalType(typeName string) string {
	if canon, ok := wgslTypeAliasMap[typeName]; ok {
		return canon
	}
	return typeName
}

// sortAttributes orders attributes by location in place.
func sortAttributes(attrs []Attribute) {
	sort.Slice(attrs, func(i, j int) bool {
		return attrs[i].Location < attrs[j].Location
	})
}

// sortIOVars orders inter-stage variables by location in place.
func sortIOVars(vars []IOVar) {
	sort.Slice(vars, func(i, j int) bool {
		return vars[i].Location < vars[j].Location
	})
}

// sourceLocation returns the 1-based line and column of the first occurrence
// of needle in source, or (0, 0) when absent.
func sourceLocation(source, needle string) (line, col int) {
	idx := strings.Index(source, needle)
	if idx < 0 {
		return 0, 0
	}
	line = 1 + strings.Count(source[:idx], "\n")
	lastNL := strings.LastIndexByte(source[:idx], '\n')
	col = idx - lastNL
	return line, col
}

// isVertexInputStruct returns true if the struct is a pure vertex input, meaning
// it has at least one @location field and zero @builtin fields. This distinguishes
// vertex input structs from vertex output structs which mix @location with @builtin(position).
func isVertexInputStruct(ps parsedStruct) bool {
	hasLocation := false
	for _, f := range ps.fields {
		if f.isBuiltin {
			return false
		}
		if f.location >= 0 {
			hasLocation = true
		}
	}
	return hasLocation
}

// parseStructBlocks finds all struct { ... } blocks in the cleaned WGSL source
// and parses their fields including @location and @builtin attributes
//
// Parameters:
//   - source: WGSL source with comments already stripped
//
// Returns:
//   - []parsedStruct: all struct blocks found in the source
func parseStructBlocks(source string) []parsedStruct {
	matches := structBlockRegex.FindAllStringSubmatch(source, -1)
	structs := make([]parsedStruct, 0, len(matches))

	for _, match := range matches {
		structs = append(structs, parsedStruct{
			name:   match[1],
			fields: parseStructFields(match[2]),
		})
	}

	return structs
}

// parseStructFields parses the body of a struct block into individual fields,
// extracting @location and @builtin attributes along with the field name and type
//
// Parameters:
//   - body: the content between { and } of a struct declaration
//
// Returns:
//   - []parsedField: all fields found in the struct body
func parseStructFields(body string) []parsedField {
	lines := splitAtTopLevelCommas(body)
	fields := make([]parsedField, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var field parsedField

		if builtinRegex.MatchString(line) {
			field.isBuiltin = true
		}

		if locMatch := locationRegex.FindStringSubmatch(line); locMatch != nil {
			loc, err := strconv.Atoi(locMatch[1])
			if err == nil {
				field.location = loc
			}
		} else {
			field.location = -1
		}

		if fm := fieldRegex.FindStringSubmatch(line); fm != nil {
			field.name = fm[1]
			field.typeName = strings.TrimSpace(fm[2])
		} else {
			continue
		}

		fields = append(fields, field)
	}

	return fields
}

// entrySignature locates the named function in the cleaned source and returns
// its parameter list along with the text after the closing parenthesis. The
// scan balances parentheses, so attributes like @location(1) inside the
// parameter list do not end it early.
func entrySignature(cleaned, entry string) (params, after string, ok bool) {
	open := regexp.MustCompile(`\bfn\s+` + regexp.QuoteMeta(entry) + `\s*\(`)
	loc := open.FindStringIndex(cleaned)
	if loc == nil {
		return "", "", false
	}
	depth := 1
	for i := loc[1]; i < len(cleaned); i++ {
		switch cleaned[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return cleaned[loc[1]:i], cleaned[i+1:], true
			}
		}
	}
	return "", "", false
}

// splitAtTopLevelCommas splits a string at commas that are not nested inside angle brackets.
// This correctly handles WGSL types like array<vec4<f32>, 6> where the comma is part of
// the type syntax rather than a field separator.
func splitAtTopLevelCommas(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// stripComments removes both single-line (//) and block (/* */) comments from WGSL source.
// Block comments may be nested per the WGSL specification.
func stripComments(source string) string {
	return stripLineComments(stripBlockComments(source))
}

// stripLineComments removes single-line // comments from WGSL source so they
// do not interfere with struct and field parsing
func stripLineComments(source string) string {
	var sb strings.Builder
	lines := strings.SplitSeq(source, "\n")
	for line := range lines {
		if idx := strings.Index(line, "//"); idx >= 0 {
			line = line[:idx]
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// stripBlockComments removes block comments (/* ... */) from WGSL source,
// handling nested block comments per the WGSL specification
func stripBlockComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	depth := 0
	i := 0
	for i < len(source) {
		if i+1 < len(source) {
			if source[i] == '/' && source[i+1] == '*' {
				depth++
				i += 2
				continue
			}
			if source[i] == '*' && source[i+1] == '/' {
				if depth > 0 {
					depth--
				}
				i += 2
				continue
			}
		}
		if depth == 0 {
			sb.WriteByte(source[i])
		}
		i++
	}
	return sb.String()
}
