// Copyright © 2024 Vortex Studio.

package main

import (
	"fmt"

	"github.com/vortexstudio/vortex/codec"
	"github.com/vortexstudio/vortex/gpu"
	"github.com/vortexstudio/vortex/window"
)

// backend.go registers the concrete GPU, codec, and windowing backends a
// platform-specific build links into this binary. gpu.Device, codec.Device,
// codec.Opener, and window.Opener are interface boundaries only in this
// module (no DirectX 12/Vulkan/Metal, FFmpeg, or platform window binding
// lives here), so vortexd cannot construct one directly. A platform build
// calls the Register* functions below from its own init, the way
// database/sql drivers register themselves against a name rather than the
// sql package importing every driver it might ever need.

// GPUBackend constructs the process-wide GPU device. Set by a platform
// build's RegisterGPUBackend call before Execute runs.
var GPUBackend func() (gpu.Device, error)

// CodecBackend constructs the process-wide codec device and container
// opener. Set by a platform build's RegisterCodecBackend call.
var CodecBackend func() (codec.Device, codec.Opener, error)

// WindowBackend constructs the platform windowing opener used by
// window_output nodes. Set by a platform build's RegisterWindowBackend
// call.
var WindowBackend func() (window.Opener, error)

// RegisterGPUBackend installs the GPU backend constructor. Call from a
// platform build's init, before Execute.
func RegisterGPUBackend(ctor func() (gpu.Device, error)) { GPUBackend = ctor }

// RegisterCodecBackend installs the codec backend constructor.
func RegisterCodecBackend(ctor func() (codec.Device, codec.Opener, error)) { CodecBackend = ctor }

// RegisterWindowBackend installs the windowing backend constructor.
func RegisterWindowBackend(ctor func() (window.Opener, error)) { WindowBackend = ctor }

var (
	errNoGPUBackend    = fmt.Errorf("no GPU backend registered: link a platform build that calls vortexd.RegisterGPUBackend")
	errNoCodecBackend  = fmt.Errorf("no codec backend registered: link a platform build that calls vortexd.RegisterCodecBackend")
	errNoWindowBackend = fmt.Errorf("no window backend registered: link a platform build that calls vortexd.RegisterWindowBackend")
)
