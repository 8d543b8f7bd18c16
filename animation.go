// Copyright © 2024 Vortex Studio.

package vortex

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/vortexstudio/vortex/internal/errcode"
	"github.com/vortexstudio/vortex/math/lin"
)

// animation.go implements the keyframe store, property track, clip, and
// animation manager of spec 4.D, plus the type-dispatch bridge's
// interpolation match arms (Design Notes: a sum type and pattern matching
// rather than a template-instantiating switch).

// EasingKind names a keyframe's interpolation curve.
type EasingKind int

const (
	EaseLinear EasingKind = iota
	EaseInQuad
	EaseOutQuad
	EaseInOutQuad
)

// apply maps t in [0,1] through the easing curve.
func (e EasingKind) apply(t float64) float64 {
	switch e {
	case EaseInQuad:
		return t * t
	case EaseOutQuad:
		return t * (2 - t)
	case EaseInOutQuad:
		if t < 0.5 {
			return 2 * t * t
		}
		return -1 + (4-2*t)*t
	default:
		return t
	}
}

// PreKeyframeBehavior governs evaluation before the first keyframe.
type PreKeyframeBehavior int

const (
	PreHold PreKeyframeBehavior = iota
	PreUseFirstValue
	PreUseDefault
)

// PostKeyframeBehavior governs evaluation after the last keyframe. Loop is
// handled at the Clip level (GetLocalTime's loop transform); by the time a
// track evaluates, Loop already reduces to Hold (spec 4.D).
type PostKeyframeBehavior int

const (
	PostHold PostKeyframeBehavior = iota
	PostUseDefault
	PostLoop
)

// noIndex is the Go rendition of the source's SIZE_MAX sentinel: "before
// the first keyframe" or "after the last keyframe".
const noIndex = -1

// keyframeStore holds one property's keyframes as three parallel slices
// plus a cached last-hit index that seeds the next lookup, accelerating
// the common case of near-monotonic playback.
type keyframeStore struct {
	times    []PTSTick
	values   []PropertyValue
	easings  []EasingKind
	cached   int
}

// AddKeyframe inserts maintaining time order via a lower-bound search.
// Returns the inserted index.
func (s *keyframeStore) AddKeyframe(t PTSTick, v PropertyValue, e EasingKind) int {
	i := sort.Search(len(s.times), func(i int) bool { return s.times[i] >= t })
	s.times = append(s.times, 0)
	copy(s.times[i+1:], s.times[i:])
	s.times[i] = t
	s.values = append(s.values, PropertyValue{})
	copy(s.values[i+1:], s.values[i:])
	s.values[i] = v
	s.easings = append(s.easings, EasingKind(0))
	copy(s.easings[i+1:], s.easings[i:])
	s.easings[i] = e
	return i
}

// RemoveKeyframe erases the keyframe at index i.
func (s *keyframeStore) RemoveKeyframe(i int) error {
	if i < 0 || i >= len(s.times) {
		return fmt.Errorf("vortex: keyframe index %d out of range", i)
	}
	s.times = append(s.times[:i], s.times[i+1:]...)
	s.values = append(s.values[:i], s.values[i+1:]...)
	s.easings = append(s.easings[:i], s.easings[i+1:]...)
	if s.cached >= len(s.times) {
		s.cached = len(s.times) - 1
	}
	return nil
}

// FindKeyframeIndices returns (prev, next) adjacent indices bracketing t:
// prev == noIndex if t is before the first keyframe, next == noIndex if t
// is at or after the last keyframe.
func (s *keyframeStore) FindKeyframeIndices(t PTSTick) (prev, next int) {
	n := len(s.times)
	if n == 0 {
		return noIndex, noIndex
	}
	// Seed the search from the cached index if it still brackets or
	// precedes t, to keep near-monotonic playback cheap.
	lo := 0
	if s.cached >= 0 && s.cached < n && s.times[s.cached] <= t {
		lo = s.cached
	}
	idx := lo + sort.Search(n-lo, func(i int) bool { return s.times[lo+i] > t })
	s.cached = idx
	if idx == 0 {
		return noIndex, 0
	}
	if idx == n {
		return n - 1, noIndex
	}
	return idx - 1, idx
}

// PropertyTrack holds one node property's keyframes plus pre/post policies
// and a default value for when no keyframe applies.
type PropertyTrack struct {
	Name         string
	PropertyIdx  int
	PropertyType PropertyType
	Pre          PreKeyframeBehavior
	Post         PostKeyframeBehavior
	Default      PropertyValue
	store        keyframeStore
}

// EvaluateAtTime implements spec 4.D PropertyTrack.EvaluateAtTime. A
// PropUnset return means "no-change" (open question 5): the caller must
// not write it to the property.
func (t *PropertyTrack) EvaluateAtTime(local PTSTick) PropertyValue {
	if len(t.store.times) == 0 {
		return t.Default
	}
	prev, next := t.store.FindKeyframeIndices(local)
	if prev == noIndex {
		switch t.Pre {
		case PreUseFirstValue:
			return t.store.values[0]
		case PreUseDefault:
			return t.Default
		default: // PreHold
			return PropertyValue{}
		}
	}
	if next == noIndex {
		switch t.Post {
		case PostUseDefault:
			return t.Default
		default: // PostHold, PostLoop (Loop already reduced to Hold here)
			return t.store.values[prev]
		}
	}
	t0, t1 := t.store.times[prev], t.store.times[next]
	v0, v1 := t.store.values[prev], t.store.values[next]
	norm := 0.0
	if t1 != t0 {
		norm = float64(local-t0) / float64(t1-t0)
	}
	eased := t.store.easings[next].apply(norm)
	return interpolate(v0, v1, eased)
}

// AddKeyframe inserts a keyframe into the track.
func (t *PropertyTrack) AddKeyframe(at PTSTick, v PropertyValue, e EasingKind) int {
	return t.store.AddKeyframe(at, v, e)
}

// RemoveKeyframe removes a keyframe from the track.
func (t *PropertyTrack) RemoveKeyframe(i int) error {
	return t.store.RemoveKeyframe(i)
}

// EffectiveEnd returns the PTS of this track's last keyframe, or
// InvalidPTS if the track has none.
func (t *PropertyTrack) EffectiveEnd() PTSTick {
	if len(t.store.times) == 0 {
		return InvalidPTS
	}
	return t.store.times[len(t.store.times)-1]
}

// interpolate is the type-dispatch bridge's interpolation match arm set
// (spec 4.D "Interpolation executors"): arithmetic scalars lerp; float
// vectors lerp component-wise; quaternion-typed 4-vectors slerp; 4x4
// matrices decompose/interpolate/recompose; everything else steps to the
// nearer keyframe.
func interpolate(a, b PropertyValue, t float64) PropertyValue {
	if a.Kind() != b.Kind() {
		return stepNearer(a, b, t)
	}
	switch a.Kind() {
	case PropFloat32:
		return NewFloat32Value(lerp32(a.Float32(), b.Float32(), t))
	case PropFloat64:
		return NewFloat64Value(lerp(a.Float64(), b.Float64(), t))
	case PropInt8, PropInt16, PropInt32, PropInt64:
		v := PropertyValue{kind: a.kind, i: int64(lerp(float64(a.i), float64(b.i), t))}
		return v
	case PropUint8, PropUint16, PropUint32, PropUint64:
		v := PropertyValue{kind: a.kind, u: uint64(lerp(float64(a.u), float64(b.u), t))}
		return v
	case PropVec2F, PropVec3F, PropVec4F:
		v := PropertyValue{kind: a.kind}
		for i := range v.vf {
			v.vf[i] = lerp(a.vf[i], b.vf[i], t)
		}
		return v
	case PropQuatF:
		qa, qb := a.Quat(), b.Quat()
		q := (&lin.Q{}).Slerp(&qa, &qb, t)
		return NewQuatValue(*q)
	case PropMat4:
		return interpolateMat4(a, b, t)
	default:
		return stepNearer(a, b, t)
	}
}

// stepNearer implements the "non-interpolatable types step to the nearer
// keyframe" fallback.
func stepNearer(a, b PropertyValue, t float64) PropertyValue {
	if t < 0.5 {
		return a
	}
	return b
}

func lerp(a, b, t float64) float64     { return a + (b-a)*t }
func lerp32(a, b float32, t float64) float32 { return a + float32((float64(b-a))*t) }

// interpolateMat4 decomposes both matrices into scale/rotation/translation,
// interpolates each component (lerp/slerp/lerp), and recomposes.
func interpolateMat4(a, b PropertyValue, t float64) PropertyValue {
	sa, ra, ta := decomposeM4(a.Mat4())
	sb, rb, tb := decomposeM4(b.Mat4())

	scale := lin.V3{
		X: lerp(sa.X, sb.X, t),
		Y: lerp(sa.Y, sb.Y, t),
		Z: lerp(sa.Z, sb.Z, t),
	}
	trans := lin.V3{
		X: lerp(ta.X, tb.X, t),
		Y: lerp(ta.Y, tb.Y, t),
		Z: lerp(ta.Z, tb.Z, t),
	}
	rot := (&lin.Q{}).Slerp(&ra, &rb, t)

	return NewMat4Value(recomposeM4(scale, *rot, trans))
}

// decomposeM4 extracts scale (from the row lengths of the upper 3x3,
// since lin.M4 is row-vector: v' = v*M), rotation (from the
// scale-normalized upper 3x3), and translation (the bottom row, matching
// lin.M4's TranslateMT convention) from m.
func decomposeM4(m lin.M4) (scale lin.V3, rot lin.Q, trans lin.V3) {
	colX := lin.V3{X: m.Xx, Y: m.Xy, Z: m.Xz}
	colY := lin.V3{X: m.Yx, Y: m.Yy, Z: m.Yz}
	colZ := lin.V3{X: m.Zx, Y: m.Zy, Z: m.Zz}
	scale = lin.V3{X: colX.Len(), Y: colY.Len(), Z: colZ.Len()}
	trans = lin.V3{X: m.Wx, Y: m.Wy, Z: m.Wz}

	rm := lin.M3{}
	if scale.X != 0 {
		rm.Xx, rm.Xy, rm.Xz = m.Xx/scale.X, m.Xy/scale.X, m.Xz/scale.X
	}
	if scale.Y != 0 {
		rm.Yx, rm.Yy, rm.Yz = m.Yx/scale.Y, m.Yy/scale.Y, m.Yz/scale.Y
	}
	if scale.Z != 0 {
		rm.Zx, rm.Zy, rm.Zz = m.Zx/scale.Z, m.Zy/scale.Z, m.Zz/scale.Z
	}
	rot = *(&lin.Q{}).SetM(&rm)
	return scale, rot, trans
}

// recomposeM4 rebuilds a matrix as (scale * rotation) with translation
// appended last, mirroring decomposeM4's row-scaled assumption: ScaleSM
// pre-multiplies by a scale matrix (scales each rotation row by its own
// scalar), not ScaleMS, which would scale by column instead.
func recomposeM4(scale lin.V3, rot lin.Q, trans lin.V3) lin.M4 {
	m := lin.NewM4I()
	m.SetQ(&rot)
	m.ScaleSM(scale.X, scale.Y, scale.Z)
	m.TranslateMT(trans.X, trans.Y, trans.Z)
	return *m
}

// LoopMode is a clip's time-wrapping policy (spec 4.D).
type LoopMode int

const (
	LoopNone LoopMode = iota
	LoopRepeat
	LoopPingPong
	LoopHold
)

// ClipState is a clip's run state.
type ClipState int

const (
	ClipStopped ClipState = iota
	ClipPlaying
	ClipPaused
)

// Clip binds a set of property tracks to one target node (spec 4.D).
type Clip struct {
	Target   Handle
	Tracks   []*PropertyTrack
	Loop     LoopMode
	Duration PTSTick // explicit duration; 0 means derive from tracks.

	state           ClipState
	startPTS        PTSTick
	pausePTS        PTSTick
	pauseLocalTime  PTSTick
	pauseAccum      PTSTick
}

func newClip(target Handle) *Clip {
	return &Clip{Target: target, startPTS: InvalidPTS, pausePTS: InvalidPTS, pauseLocalTime: InvalidPTS}
}

// Play starts or restarts the clip. A start of InvalidPTS resumes from the
// clip's current start time unchanged.
func (c *Clip) Play(start PTSTick) {
	if start != InvalidPTS {
		c.startPTS = start
	}
	c.state = ClipPlaying
	c.pauseAccum = 0
}

// Pause freezes the clip's evaluated value at pts.
func (c *Clip) Pause(pts PTSTick) {
	if c.state != ClipPlaying {
		return
	}
	c.state = ClipPaused
	c.pausePTS = pts
	c.pauseLocalTime = c.localTimeIgnoringPause(pts)
}

// Resume continues playback from the paused point.
func (c *Clip) Resume(pts PTSTick) {
	if c.state != ClipPaused {
		return
	}
	c.pauseAccum += pts - c.pausePTS
	c.state = ClipPlaying
}

// Stop halts the clip and clears its pause accumulator.
func (c *Clip) Stop() {
	c.state = ClipStopped
	c.pauseAccum = 0
}

// CalculateEffectiveDuration returns the explicit duration if set,
// otherwise the maximum keyframe end time across tracks.
func (c *Clip) CalculateEffectiveDuration() PTSTick {
	if c.Duration > 0 {
		return c.Duration
	}
	var max PTSTick
	for _, t := range c.Tracks {
		if end := t.EffectiveEnd(); end != InvalidPTS && end > max {
			max = end
		}
	}
	return max
}

func (c *Clip) localTimeIgnoringPause(globalPTS PTSTick) PTSTick {
	if c.startPTS == InvalidPTS {
		return InvalidPTS
	}
	return globalPTS - c.startPTS - c.pauseAccum
}

// GetLocalTime implements spec 4.D GetLocalTime, including the loop
// transform.
func (c *Clip) GetLocalTime(globalPTS PTSTick) PTSTick {
	switch c.state {
	case ClipStopped:
		return InvalidPTS
	case ClipPaused:
		return c.pauseLocalTime
	}
	local := c.localTimeIgnoringPause(globalPTS)
	if local == InvalidPTS {
		return InvalidPTS
	}
	duration := c.CalculateEffectiveDuration()
	if duration <= 0 {
		return local
	}
	switch c.Loop {
	case LoopRepeat:
		local = local % duration
		if local < 0 {
			local += duration
		}
		return local
	case LoopPingPong:
		cycle := 2 * duration
		m := local % cycle
		if m < 0 {
			m += cycle
		}
		if m > duration {
			m = cycle - m
		}
		return m
	default: // LoopNone, LoopHold
		if local < 0 {
			return 0
		}
		if local > duration {
			return duration
		}
		return local
	}
}

// EvaluateAtTime evaluates every track at the clip's local time for
// globalPTS and applies non-empty results to target via setProperty.
func (c *Clip) EvaluateAtTime(globalPTS PTSTick, setProperty func(index int, v PropertyValue)) {
	local := c.GetLocalTime(globalPTS)
	if local == InvalidPTS {
		return
	}
	for _, track := range c.Tracks {
		v := track.EvaluateAtTime(local)
		if !v.IsEmpty() {
			setProperty(track.PropertyIdx, v)
		}
	}
}

// AnimationManager owns clips and tracks keyed by their own generational
// handles, independent of the graph's node handle arena (spec 3:
// "Animation clips are owned by the animation manager keyed by handle").
type AnimationManager struct {
	clipHandles  handleArena
	trackHandles handleArena
	clips        map[hID]*Clip
	tracks       map[hID]*PropertyTrack
	trackClip    map[hID]hID // which clip owns each track, for AddKeyframe lookups
}

// NewAnimationManager returns an empty manager.
func NewAnimationManager() *AnimationManager {
	return &AnimationManager{
		clips:     make(map[hID]*Clip),
		tracks:    make(map[hID]*PropertyTrack),
		trackClip: make(map[hID]hID),
	}
}

// CreateClip binds a new, stopped clip to target and returns its handle.
func (m *AnimationManager) CreateClip(target Handle) Handle {
	idx := m.clipHandles.create()
	m.clips[idx] = newClip(target)
	return Handle{idx: idx}
}

func (m *AnimationManager) clip(h Handle) (*Clip, bool) {
	if !m.clipHandles.valid(h.idx) {
		return nil, false
	}
	c, ok := m.clips[h.idx]
	return c, ok
}

// AddPropertyTrack creates (or, if one already exists for this property
// index, reuses) a track on clip for the named property, optionally
// loading initial keyframes from their JSON form (spec section 6).
func (m *AnimationManager) AddPropertyTrack(clipH Handle, node Handle, propIdx int, propType PropertyType, name, keyframesJSON string) error {
	c, ok := m.clip(clipH)
	if !ok {
		return errcode.NewConfigError("animation.addpropertytrack", fmt.Errorf("unknown clip"))
	}
	var track *PropertyTrack
	for _, t := range c.Tracks {
		if t.PropertyIdx == propIdx {
			track = t
			break
		}
	}
	if track == nil {
		track = &PropertyTrack{Name: name, PropertyIdx: propIdx, PropertyType: propType}
		c.Tracks = append(c.Tracks, track)
	}
	idx := m.trackHandles.create()
	m.tracks[idx] = track
	m.trackClip[idx] = clipH.idx

	if keyframesJSON == "" {
		return nil
	}
	var entries []persistedKeyframe
	if err := json.Unmarshal([]byte(keyframesJSON), &entries); err != nil {
		return errcode.NewConfigError("animation.addpropertytrack", fmt.Errorf("parse keyframes: %w", err))
	}
	for _, e := range entries {
		v, err := DeserializeValue(propType, e.Value)
		if err != nil {
			return errcode.NewConfigError("animation.addpropertytrack", err)
		}
		track.AddKeyframe(e.TimeFromStart, v, EasingKind(e.EaseType))
	}
	return nil
}

// persistedKeyframe is the wire/JSON shape of spec section 6's persisted
// keyframe state.
type persistedKeyframe struct {
	TimeFromStart PTSTick `json:"time_from_start"`
	Value         string  `json:"value"`
	EaseType      int     `json:"ease_type"`
}

// AddKeyframe parses one keyframe's JSON form and appends it to the track
// named by handle trackH.
func (m *AnimationManager) AddKeyframe(trackH Handle, keyframeJSON string) error {
	if !m.trackHandles.valid(trackH.idx) {
		return errcode.NewConfigError("animation.addkeyframe", fmt.Errorf("unknown track"))
	}
	track := m.tracks[trackH.idx]
	var e persistedKeyframe
	if err := json.Unmarshal([]byte(keyframeJSON), &e); err != nil {
		return errcode.NewConfigError("animation.addkeyframe", err)
	}
	v, err := DeserializeValue(track.PropertyType, e.Value)
	if err != nil {
		return errcode.NewConfigError("animation.addkeyframe", err)
	}
	track.AddKeyframe(e.TimeFromStart, v, EasingKind(e.EaseType))
	return nil
}

// RemoveKeyframe removes the keyframe at index from the named track.
func (m *AnimationManager) RemoveKeyframe(trackH Handle, index int) error {
	if !m.trackHandles.valid(trackH.idx) {
		return errcode.NewConfigError("animation.removekeyframe", fmt.Errorf("unknown track"))
	}
	return m.tracks[trackH.idx].RemoveKeyframe(index)
}

// Play, Pause, Resume, and Stop broadcast to every clip (spec 4.D
// "Animation manager... broadcasts Play/Pause/Resume/Stop/EvaluateAtPTS to
// all clips").
func (m *AnimationManager) Play(pts PTSTick) {
	for _, c := range m.clips {
		c.Play(pts)
	}
}

func (m *AnimationManager) Pause(pts PTSTick) {
	for _, c := range m.clips {
		c.Pause(pts)
	}
}

func (m *AnimationManager) Resume(pts PTSTick) {
	for _, c := range m.clips {
		c.Resume(pts)
	}
}

func (m *AnimationManager) Stop() {
	for _, c := range m.clips {
		c.Stop()
	}
}

// EvaluateAtPTS evaluates every clip at masterPTS and applies results
// through the graph (spec 4.F "Traverse for one tick" step 3).
func (m *AnimationManager) EvaluateAtPTS(g *Graph, masterPTS PTSTick) {
	for _, c := range m.clips {
		target := c.Target
		c.EvaluateAtTime(masterPTS, func(index int, v PropertyValue) {
			_ = g.SetNodeProperty(target, index, v, false)
		})
	}
}
