package renderer

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
)

// newAttachmentBackend builds a backend with distinct placeholder attachment
// views so pass descriptor wiring can be checked by identity.
func newAttachmentBackend() (*wgpuBackend, *wgpu.TextureView) {
	b := &wgpuBackend{
		sceneColorView: &wgpu.TextureView{},
		idColorView:    &wgpu.TextureView{},
		idDepthView:    &wgpu.TextureView{},
		depthView:      &wgpu.TextureView{},
	}
	return b, &wgpu.TextureView{}
}

func TestPassDescriptorAttachments(t *testing.T) {
	b, presentView := newAttachmentBackend()

	tests := []struct {
		kind        PassKind
		color       *wgpu.TextureView
		colorLoad   wgpu.LoadOp
		depth       *wgpu.TextureView
		depthLoad   wgpu.LoadOp
		wantNoDepth bool
	}{
		{kind: PassOpaque, color: b.sceneColorView, colorLoad: wgpu.LoadOpClear, depth: b.depthView, depthLoad: wgpu.LoadOpClear},
		{kind: PassTextured, color: b.sceneColorView, colorLoad: wgpu.LoadOpLoad, depth: b.depthView, depthLoad: wgpu.LoadOpLoad},
		{kind: PassIDColor, color: b.idColorView, colorLoad: wgpu.LoadOpClear, depth: b.idDepthView, depthLoad: wgpu.LoadOpClear},
		{kind: PassOverlay, color: b.sceneColorView, colorLoad: wgpu.LoadOpLoad, depth: b.depthView, depthLoad: wgpu.LoadOpLoad},
		{kind: PassPresent, color: presentView, colorLoad: wgpu.LoadOpClear, wantNoDepth: true},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			desc := b.passDescriptor(tt.kind, presentView)
			if desc == nil {
				t.Fatal("passDescriptor returned nil")
			}
			if len(desc.ColorAttachments) != 1 {
				t.Fatalf("color attachments = %d, want 1", len(desc.ColorAttachments))
			}
			ca := desc.ColorAttachments[0]
			if ca.View != tt.color {
				t.Error("color attachment bound to the wrong view")
			}
			if ca.LoadOp != tt.colorLoad {
				t.Errorf("color LoadOp = %v, want %v", ca.LoadOp, tt.colorLoad)
			}

			da := desc.DepthStencilAttachment
			if tt.wantNoDepth {
				if da != nil {
					t.Error("pass should not carry a depth attachment")
				}
				return
			}
			if da == nil {
				t.Fatal("pass is missing its depth attachment")
			}
			if da.View != tt.depth {
				t.Error("depth attachment bound to the wrong view")
			}
			if da.DepthLoadOp != tt.depthLoad {
				t.Errorf("depth LoadOp = %v, want %v", da.DepthLoadOp, tt.depthLoad)
			}
		})
	}
}

// The id pass redraws scene geometry at the exact depths the scene pass
// stored, so testing against the scene depth buffer would reject every
// fragment under a strictly-less compare. It must render against its own
// cleared depth and must not write back into the buffer the overlay pass
// loads.
func TestIDPassDepthIsIsolated(t *testing.T) {
	b, presentView := newAttachmentBackend()

	id := b.passDescriptor(PassIDColor, presentView)
	if id.DepthStencilAttachment.View == b.depthView {
		t.Fatal("id pass shares the scene depth attachment")
	}
	if id.DepthStencilAttachment.DepthLoadOp != wgpu.LoadOpClear {
		t.Errorf("id depth LoadOp = %v, want clear", id.DepthStencilAttachment.DepthLoadOp)
	}

	overlay := b.passDescriptor(PassOverlay, presentView)
	if overlay.DepthStencilAttachment.View != b.depthView {
		t.Error("overlay pass should test against the scene depth attachment")
	}
	if overlay.DepthStencilAttachment.DepthLoadOp != wgpu.LoadOpLoad {
		t.Errorf("overlay depth LoadOp = %v, want load", overlay.DepthStencilAttachment.DepthLoadOp)
	}
}
