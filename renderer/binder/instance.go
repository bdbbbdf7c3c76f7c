package binder

import (
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gpukit/rendercore/common"
)

// InstanceStride is the byte size of one InstanceData record: four vec4 rows.
const InstanceStride = 64

// defaultInstanceCapacity is the instance buffer capacity allocated on first
// write, in instances.
const defaultInstanceCapacity = 64

// InstanceData is one per-instance transform supplied to the overlay pass:
// four vec4 rows assembled into a 4x4 matrix by the vertex stage. It is a
// plain fixed-size record so the binding layer stays decoupled from any
// particular math type.
type InstanceData struct {
	Row0 [4]float32
	Row1 [4]float32
	Row2 [4]float32
	Row3 [4]float32
}

// InstanceRange identifies a contiguous run of instances written into the
// current tick's instance buffer. Ranges carry no buffer pointer: the buffer
// may be replaced by growth later in the same tick, so passes resolve ranges
// against InstanceBuffer at encode time.
type InstanceRange struct {
	First uint32
	Count uint32
}

// ByteOffset returns the byte offset of the range's first instance within the
// buffer.
//
// Returns:
//   - uint64: the byte offset
func (r *InstanceRange) ByteOffset() uint64 {
	return uint64(r.First) * InstanceStride
}

// frameStore is one of the binder's two per-tick storage slots. shadow keeps
// a CPU copy of everything written this tick so growth can re-upload without
// losing prior writes.
type frameStore struct {
	transients []*ResourceSet
	buffer     *wgpu.Buffer
	capacity   uint64 // in instances
	shadow     []InstanceData
	minCap     uint64
}

func (b *binder) WriteInstances(instances []InstanceData) (*InstanceRange, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := &b.stores[b.current]
	first := uint32(len(st.shadow))
	st.shadow = append(st.shadow, instances...)
	needed := uint64(len(st.shadow))

	if needed > st.capacity {
		newCap := max(needed, st.capacity*2, st.minCap)
		buf, err := b.device.CreateInstanceBuffer("instance buffer", newCap*InstanceStride)
		if err != nil {
			st.shadow = st.shadow[:first]
			return nil, err
		}
		if st.buffer != nil {
			b.device.ReleaseBuffer(st.buffer)
		}
		st.buffer = buf
		st.capacity = newCap
		// Growth never shrinks within a frame; re-upload everything written
		// this tick so earlier ranges stay valid against the new buffer.
		if err := b.device.WriteBuffer(st.buffer, 0, common.SliceToBytes(st.shadow)); err != nil {
			st.shadow = st.shadow[:first]
			return nil, err
		}
	} else if len(instances) > 0 {
		offset := uint64(first) * InstanceStride
		if err := b.device.WriteBuffer(st.buffer, offset, common.SliceToBytes(instances)); err != nil {
			st.shadow = st.shadow[:first]
			return nil, err
		}
	}

	return &InstanceRange{First: first, Count: uint32(len(instances))}, nil
}

func (b *binder) InstanceBuffer() *wgpu.Buffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stores[b.current].buffer
}

func (b *binder) InstanceCapacity() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int(b.stores[b.current].capacity)
}
