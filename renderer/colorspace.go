package renderer

// Chroma reconstruction constants for the present pass. The sampled offscreen
// color is treated as an encoded tri-component signal: one luma channel and
// two chroma-difference channels against a fixed bias.
const (
	// ChromaBias is subtracted from both chroma channels before scaling.
	ChromaBias = 0.482353002

	// CoefGreenCb scales the blue-difference term in the green channel.
	CoefGreenCb = 0.344139993

	// CoefGreenCr scales the red-difference term in the green channel.
	CoefGreenCr = 0.714139998

	// CoefRedCr scales the red-difference term in the red channel.
	CoefRedCr = 1.40199995

	// CoefBlueCb scales the blue-difference term in the blue channel.
	CoefBlueCb = 1.77199996
)

// ReconstructColor recovers the three presentable channels from one encoded
// texel. It is a pure per-texel function with no cross-texel dependency and
// mirrors exactly what the present pass's fragment stage computes, so its
// output is testable on the CPU.
//
// Parameters:
//   - y: the luma channel
//   - cb: the blue-difference chroma channel
//   - cr: the red-difference chroma channel
//
// Returns:
//   - r: the reconstructed red channel
//   - g: the reconstructed green channel
//   - b: the reconstructed blue channel
func ReconstructColor(y, cb, cr float32) (r, g, b float32) {
	r = y + CoefRedCr*(cr-ChromaBias)
	g = y - CoefGreenCb*(cb-ChromaBias) - CoefGreenCr*(cr-ChromaBias)
	b = y + CoefBlueCb*(cb-ChromaBias)
	return r, g, b
}

// EncodeColor is the inverse of ReconstructColor: it derives the encoded
// (y, cb, cr) triple that reconstructs to a given RGB color. Used by tests
// and synthetic inputs; the GPU path only ever decodes.
//
// Parameters:
//   - r: the target red channel
//   - g: the target green channel
//   - b: the target blue channel
//
// Returns:
//   - y: the luma channel
//   - cb: the blue-difference chroma channel
//   - cr: the red-difference chroma channel
func EncodeColor(r, g, b float32) (y, cb, cr float32) {
	// Solve the reconstruction system for y, cb, cr. The luma weights fall
	// out of the three channel equations summing to the identity.
	kr := float32(CoefGreenCr / CoefRedCr)
	kb := float32(CoefGreenCb / CoefBlueCb)
	y = (g + kr*r + kb*b) / (1 + kr + kb)
	cr = (r-y)/CoefRedCr + ChromaBias
	cb = (b-y)/CoefBlueCb + ChromaBias
	return y, cb, cr
}
