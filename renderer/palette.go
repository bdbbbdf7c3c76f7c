package renderer

// PaletteSize is the number of entries in the fixed id-color palette. Ids
// wrap: id and id+PaletteSize map to the same color.
const PaletteSize = 20

// idPalette is the fixed per-primitive id palette, RGB in the 0-255 range.
var idPalette = [PaletteSize][3]uint8{
	{215, 62, 103},
	{95, 190, 80},
	{133, 95, 213},
	{180, 184, 53},
	{213, 87, 180},
	{72, 138, 55},
	{145, 79, 158},
	{91, 196, 153},
	{206, 78, 55},
	{74, 174, 209},
	{225, 133, 58},
	{92, 122, 198},
	{207, 162, 81},
	{188, 144, 216},
	{152, 173, 92},
	{161, 71, 103},
	{53, 133, 98},
	{225, 131, 152},
	{111, 111, 40},
	{162, 99, 55},
}

// PaletteColor returns the normalized RGBA color the id-color pass emits for
// a primitive id. This is the CPU mirror of the palette indexing the id-color
// fragment stage performs.
//
// Parameters:
//   - id: the per-primitive id; indexed modulo PaletteSize
//
// Returns:
//   - [4]float32: the normalized color, alpha 1
func PaletteColor(id uint32) [4]float32 {
	entry := idPalette[id%PaletteSize]
	return [4]float32{
		float32(entry[0]) / 255,
		float32(entry[1]) / 255,
		float32(entry[2]) / 255,
		1,
	}
}
