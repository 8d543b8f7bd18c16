// Copyright © 2024 Vortex Studio.

package nodes

import (
	"os"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/vortexstudio/vortex"
	"github.com/vortexstudio/vortex/gpu"
	"github.com/vortexstudio/vortex/internal/errcode"
	"github.com/vortexstudio/vortex/internal/imaging"
)

const imageInputTypeName = "image_input"

// ImageInput decodes a PNG file on path change, creates a GPU texture of the
// decoded size, and draws a fullscreen triangle sampling it (spec 4.K). The
// decoded pixels are not written into the texture. An fsnotify watcher on the
// bound path additionally picks up out-of-band overwrites between property
// sets (SPEC_FULL.md 4.K.1 supplement).
type ImageInput struct {
	portBase
	vortex.PropertyBase

	imagePath string

	gfx        gpu.Device
	texture    gpu.Texture
	srv        gpu.ResourceView
	loadedPath string

	watcher       *fsnotify.Watcher
	watchedPath   string
	reloadPending atomic.Bool
}

func registerImageInput(factory *vortex.NodeFactory) {
	factory.Register(imageInputTypeName, vortex.NodeTypeInfo{
		Kind:    vortex.NodeInput,
		Sinks:   0,
		Sources: 1,
	}, newImageInput)
}

func newImageInput(gfx gpu.Device, notifier *vortex.Notifier, props string) (vortex.Node, error) {
	n := &ImageInput{
		portBase: newPortBase(imageInputTypeName, vortex.EvalDynamic, nil,
			[]vortex.Source{vortex.Source{Kind: vortex.SinkRenderTexture, Targets: map[vortex.SourceTarget]struct{}{}}}),
		gfx: gfx,
	}
	n.BindNotifier(notifier)
	n.RegisterField(vortex.PropertyDescriptor{
		Name:  "image_path",
		Index: 0,
		Kind:  vortex.PropPath,
		Get:   func() vortex.PropertyValue { return vortex.NewPathValue(n.imagePath) },
		Set: func(v vortex.PropertyValue) {
			n.imagePath = v.Str()
			n.reloadPending.Store(true)
		},
	})
	if props != "" {
		if err := n.Deserialize(props, false); err != nil {
			return nil, errcode.NewConfigError("imageinput.new", err)
		}
	}
	return n, nil
}

func (n *ImageInput) Update(gfx gpu.Device) {
	if n.imagePath != n.loadedPath {
		n.reloadPending.Store(true)
	}
	if n.watchedPath != n.imagePath {
		n.rewatch()
	}
	if !n.reloadPending.CompareAndSwap(true, false) {
		return
	}
	n.reload(gfx)
}

func (n *ImageInput) rewatch() {
	if n.watcher != nil {
		n.watcher.Close()
		n.watcher = nil
	}
	n.watchedPath = n.imagePath
	if n.imagePath == "" {
		return
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Error().Err(err).Str("path", n.imagePath).Msg("image_input: watcher init failed")
		return
	}
	if err := w.Add(n.imagePath); err != nil {
		log.Error().Err(err).Str("path", n.imagePath).Msg("image_input: watch add failed")
		w.Close()
		return
	}
	n.watcher = w
	go n.watchLoop(w)
}

func (n *ImageInput) watchLoop(w *fsnotify.Watcher) {
	for event := range w.Events {
		if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
			n.reloadPending.Store(true)
		}
	}
}

func (n *ImageInput) reload(gfx gpu.Device) {
	f, err := os.Open(n.imagePath)
	if err != nil {
		log.Error().Err(err).Str("path", n.imagePath).Msg("image_input: open failed")
		n.imagePath = ""
		return
	}
	defer f.Close()

	frame, err := imaging.DecodePNG(f)
	if err != nil {
		log.Error().Err(err).Str("path", n.imagePath).Msg("image_input: decode failed")
		n.imagePath = ""
		return
	}

	if n.texture != nil {
		n.texture.Release()
	}
	tex, err := gfx.CreateTexture(gpu.TextureDesc{
		Format: gpu.FormatRGBA8,
		Width:  frame.Width,
		Height: frame.Height,
		Usage:  gpu.UsageShaderResource,
	})
	if err != nil {
		log.Error().Err(err).Str("path", n.imagePath).Msg("image_input: texture create failed")
		return
	}
	n.texture = tex
	n.srv = tex.ShaderResourceView()
	n.loadedPath = n.imagePath
}

func (n *ImageInput) Evaluate(probe *vortex.RenderProbe, forward *vortex.ForwardDescriptor) (bool, error) {
	if n.texture == nil {
		return false, nil
	}
	table, err := probe.Descriptors.SuballocateTable(1)
	if err != nil {
		return false, err
	}
	table.WriteTexture(0, n.srv)

	probe.CmdList.BeginRenderPass(forward.Target)
	probe.CmdList.SetViewport(forward.Width, forward.Height)
	probe.CmdList.BindPipeline("fullscreen_sample")
	table.BindOffset(probe.CmdList, 0)
	probe.CmdList.Draw()
	probe.CmdList.EndRenderPass()
	return true, nil
}

func (n *ImageInput) EvaluateAudio(probe *vortex.RenderProbe) {}

func (n *ImageInput) SetProperty(index int, value vortex.PropertyValue, notify bool) error {
	return n.SetPropertyStub(index, value, notify)
}

func (n *ImageInput) GetProperties() string { return n.Serialize() }
