// Package window names the native window/event library as an interface
// boundary only (window creation, event loop, platform detection), per the
// engine's explicit out-of-scope list. WindowOutput depends only on this
// interface; a real build links in a concrete windowing backend.
package window

import "github.com/vortexstudio/vortex/gpu"

// Window is a single on-screen surface with an attached swapchain.
type Window interface {
	Size() (width, height int)
	Swapchain() gpu.Swapchain
	// Alive reports whether the window is still open; the driver loop
	// exits when it returns false.
	Alive() bool
	Close()
}

// Opener creates a platform window of the given size and title.
type Opener interface {
	Open(title string, width, height int) (Window, error)
}
