package common

import (
	"math"
	"unsafe"
)

// Identity resets a 4x4 matrix (flat slice) to the identity matrix.
// The matrix is stored in column-major order.
//
// Parameters:
//   - m: destination slice (must be at least 16 elements)
func Identity(m []float32) {
	for i := range m {
		m[i] = 0
	}
	m[0], m[5], m[10], m[15] = 1, 1, 1, 1
}

// SliceToBytes converts any slice to a byte slice for GPU buffer uploads.
// Uses unsafe pointer operations to create a view into the original data.
// WARNING: The returned slice shares memory with the input - do not modify.
//
// Parameters:
//   - data: source slice of any type
//
// Returns:
//   - []byte: byte slice view of the input data, or nil if input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	totalBytes := int(size) * len(data)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), totalBytes)
}

// StructToBytes reinterprets a pointer to a struct as a raw byte slice using unsafe.
// The returned slice has length equal to the struct's size in memory.
//
// Parameters:
//   - v: pointer to the struct to reinterpret
//
// Returns:
//   - []byte: byte slice view of the struct's memory
func StructToBytes[T any](v *T) []byte {
	size := unsafe.Sizeof(*v)
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), int(size))
}

// Mul4 multiplies two 4x4 matrices and stores the result in out.
// All matrices are stored in column-major order (WebGPU convention).
// Result: out = a * b
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - a: left-hand matrix (16 elements)
//   - b: right-hand matrix (16 elements)
func Mul4(out, a, b []float32) {
	var buf [16]float32
	for i := 0; i < 4; i++ { // column of B
		for j := 0; j < 4; j++ { // row of A
			sum := float32(0)
			for k := 0; k < 4; k++ {
				sum += a[k*4+j] * b[i*4+k]
			}
			buf[i*4+j] = sum
		}
	}
	copy(out, buf[:])
}

// Perspective creates a perspective projection matrix targeting WebGPU clip
// space (z in [0, 1]).
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - fovY: vertical field of view in radians
//   - aspect: viewport aspect ratio (width/height)
//   - near: near clip plane distance
//   - far: far clip plane distance
func Perspective(out []float32, fovY, aspect, near, far float32) {
	f := float32(1.0 / math.Tan(float64(fovY)/2))
	for i := range out[:16] {
		out[i] = 0
	}
	out[0] = f / aspect
	out[5] = f
	out[10] = far / (near - far)
	out[11] = -1
	out[14] = far * near / (near - far)
}

// LookAt creates a right-handed view matrix from an eye position, a target
// point, and an up vector.
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - eyeX, eyeY, eyeZ: camera position
//   - centerX, centerY, centerZ: point the camera looks at
//   - upX, upY, upZ: world up direction
func LookAt(out []float32, eyeX, eyeY, eyeZ, centerX, centerY, centerZ, upX, upY, upZ float32) {
	fx, fy, fz := centerX-eyeX, centerY-eyeY, centerZ-eyeZ
	fl := float32(math.Sqrt(float64(fx*fx + fy*fy + fz*fz)))
	fx, fy, fz = fx/fl, fy/fl, fz/fl

	// side = forward x up
	sx := fy*upZ - fz*upY
	sy := fz*upX - fx*upZ
	sz := fx*upY - fy*upX
	sl := float32(math.Sqrt(float64(sx*sx + sy*sy + sz*sz)))
	sx, sy, sz = sx/sl, sy/sl, sz/sl

	// recomputed up = side x forward
	ux := sy*fz - sz*fy
	uy := sz*fx - sx*fz
	uz := sx*fy - sy*fx

	out[0], out[4], out[8] = sx, sy, sz
	out[1], out[5], out[9] = ux, uy, uz
	out[2], out[6], out[10] = -fx, -fy, -fz
	out[3], out[7], out[11] = 0, 0, 0
	out[12] = -(sx*eyeX + sy*eyeY + sz*eyeZ)
	out[13] = -(ux*eyeX + uy*eyeY + uz*eyeZ)
	out[14] = fx*eyeX + fy*eyeY + fz*eyeZ
	out[15] = 1
}

// RotationXY builds a model matrix that rotates around the X axis and then the
// Y axis by the given angles in radians. Used by the example viewer for the
// spinning-model transform.
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - angleX: rotation around the X axis in radians
//   - angleY: rotation around the Y axis in radians
func RotationXY(out []float32, angleX, angleY float32) {
	sx, cx := float32(math.Sin(float64(angleX))), float32(math.Cos(float64(angleX)))
	sy, cy := float32(math.Sin(float64(angleY))), float32(math.Cos(float64(angleY)))

	var rx, ry [16]float32
	Identity(rx[:])
	rx[5], rx[6], rx[9], rx[10] = cx, sx, -sx, cx
	Identity(ry[:])
	ry[0], ry[2], ry[8], ry[10] = cy, -sy, sy, cy

	Mul4(out, rx[:], ry[:])
}

// ScaleTranslation builds a model matrix that scales and then translates.
// Matches the transform the debug overlay uses for each marker cube.
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - scaleX, scaleY, scaleZ: per-axis scale factors
//   - posX, posY, posZ: translation
func ScaleTranslation(out []float32, scaleX, scaleY, scaleZ, posX, posY, posZ float32) {
	Identity(out)
	out[0], out[5], out[10] = scaleX, scaleY, scaleZ
	out[12], out[13], out[14] = posX, posY, posZ
}
