// Package gpu names the GPU API abstraction layer as an interface boundary
// only: device, command list, swapchain, texture, and descriptor buffer
// primitives are explicitly out of scope per the engine's purpose and
// scope section, so this package never gets a concrete implementation in
// this module — a real build links one in (DirectX 12, Vulkan, Metal).
package gpu

import "time"

// ResourceState names a GPU resource's current usage, used to select
// barriers during render traversal.
type ResourceState int

const (
	StatePresent ResourceState = iota
	StateRenderTarget
	StateShaderResource
)

// TextureFormat enumerates pixel formats the texture pool and node
// implementations need to name explicitly (e.g. NV12 for zero-copy decoded
// video frames).
type TextureFormat int

const (
	FormatRGBA8 TextureFormat = iota
	FormatNV12
	FormatUYVY
)

// TextureUsage is a bitset of intended uses for a created texture.
type TextureUsage int

const (
	UsageRenderTarget TextureUsage = 1 << iota
	UsageShaderResource
)

// TextureDesc fully describes a texture to be created by a Device.
type TextureDesc struct {
	Format TextureFormat
	Width  int
	Height int
	Usage  TextureUsage
}

// ResourceView is an opaque handle to a render-target, shader-resource, or
// sampler view, as returned by the concrete backend.
type ResourceView interface{}

// Texture is a GPU-resident 2D image plus its views.
type Texture interface {
	RenderTargetView() ResourceView
	ShaderResourceView() ResourceView
	Release()
}

// DescriptorTable is a contiguous run of descriptors suballocated for one
// draw, as described in spec 4.H.
type DescriptorTable interface {
	WriteTexture(slot int, srv ResourceView)
	WriteSampler(slot int, sampler ResourceView)
	BindOffset(cmd CommandList, rootIndex int)
	BindComputeOffset(cmd CommandList, rootIndex int)
}

// CommandList records GPU work for one submission.
type CommandList interface {
	ResourceBarrier(tex Texture, before, after ResourceState)
	SetViewport(width, height int)
	BeginRenderPass(rtv ResourceView)
	EndRenderPass()
	BindPipeline(name string)
	Draw()
	Close() error
}

// Fence is a GPU/CPU synchronization primitive with a monotonically
// increasing signal value.
type Fence interface {
	Signal(value uint64)
	Wait(value uint64, timeout time.Duration) error
}

// Swapchain presents rendered frames to a window.
type Swapchain interface {
	CurrentImage() Texture
	Present() error
}

// Device is the root GPU handle: it creates textures and command lists and
// owns the hardware decode context construction (spec 4.J).
type Device interface {
	CreateTexture(desc TextureDesc) (Texture, error)
	CreateCommandList() (CommandList, error)
	CreateFence() (Fence, error)
	CreateDescriptorTable(n int) (DescriptorTable, error)
}
