// audio_registry.go - Guest audio port registry with pacing and host sink fan-out

/*
(c) 2025 - 2026 WeaR Team
https://github.com/wearteam/wear-emu
License: GPLv3 or later
*/

package main

import (
	"sync"
	"time"
)

// =============================================================================
// PORT TYPES
// =============================================================================

const (
	AUDIO_PORT_MAIN     = 0
	AUDIO_PORT_BGM      = 1
	AUDIO_PORT_VOICE    = 2
	AUDIO_PORT_PERSONAL = 3
	AUDIO_PORT_PADSPK   = 4
)

const (
	AUDIO_SAMPLE_RATE   = 48000
	AUDIO_DEFAULT_GRAIN = 256
)

func audioPortTypeName(t uint32) string {
	switch t {
	case AUDIO_PORT_MAIN:
		return "MAIN"
	case AUDIO_PORT_BGM:
		return "BGM"
	case AUDIO_PORT_VOICE:
		return "VOICE"
	case AUDIO_PORT_PERSONAL:
		return "PERSONAL"
	case AUDIO_PORT_PADSPK:
		return "PAD_SPEAKER"
	default:
		return "UNKNOWN"
	}
}

// =============================================================================
// SINK INTERFACE
// =============================================================================

// AudioSink is one host-side output stream. The oto backend implements it
// with a ring-buffered player; the headless backend counts bytes.
type AudioSink interface {
	Start()
	Write(pcm []byte) int
	SetVolume(vol float64)
	Close()
}

// AudioSinkContext creates sinks against a shared host audio device.
type AudioSinkContext interface {
	NewSink() (AudioSink, error)
	Close()
}

// =============================================================================
// PORTS
// =============================================================================

// AudioPort is one guest-opened output stream. Pacing happens here, not
// in the sink: Output sleeps most of the grain duration so a guest loop
// spinning on the port advances roughly in real time even without a host
// device.
type AudioPort struct {
	Handle      int32
	PortType    uint32
	SampleCount uint32
	Grain       uint32

	sink         AudioSink
	muted        bool
	volume       float64
	framesOutput uint64
}

// =============================================================================
// AUDIO MANAGER
// =============================================================================

// AudioManager owns every open port plus the shared sink context. A
// failed host device is not fatal: ports then pace without producing
// sound, which keeps guest timing loops honest.
type AudioManager struct {
	mu         sync.Mutex
	ports      map[int32]*AudioPort
	nextHandle int32
	sinkCtx    AudioSinkContext

	masterVolume float64
	masterMute   bool

	totalFrames uint64
	log         *Logger
}

func NewAudioManager(log *Logger) *AudioManager {
	return &AudioManager{
		ports:        make(map[int32]*AudioPort),
		nextHandle:   1,
		masterVolume: 1.0,
		log:          log,
	}
}

// Init opens the host audio device. Call once from the core; safe to
// skip entirely (tests, -mute headless runs), ports then run sinkless.
func (am *AudioManager) Init() {
	ctx, err := newHostSinkContext(am.log)
	if err != nil {
		am.log.Warnf("Audio", "host audio unavailable (%v), ports run silent", err)
		return
	}
	am.mu.Lock()
	am.sinkCtx = ctx
	am.mu.Unlock()
	am.log.Infof("Audio", "host audio context ready (%d Hz stereo s16)", AUDIO_SAMPLE_RATE)
}

// Shutdown closes every port and the host device.
func (am *AudioManager) Shutdown() {
	am.mu.Lock()
	ports := am.ports
	am.ports = make(map[int32]*AudioPort)
	ctx := am.sinkCtx
	am.sinkCtx = nil
	am.mu.Unlock()

	for _, p := range ports {
		if p.sink != nil {
			p.sink.Close()
		}
	}
	if ctx != nil {
		ctx.Close()
	}
}

// OpenPort registers a guest output port and returns its handle. Handles
// are monotonic from 1 and never reused. sampleCount 0 falls back to the
// default grain.
func (am *AudioManager) OpenPort(portType, index, sampleCount, rate, param uint32) int32 {
	grain := sampleCount
	if grain == 0 {
		grain = AUDIO_DEFAULT_GRAIN
	}

	am.mu.Lock()
	handle := am.nextHandle
	am.nextHandle++
	port := &AudioPort{
		Handle:      handle,
		PortType:    portType,
		SampleCount: sampleCount,
		Grain:       grain,
		volume:      1.0,
	}
	am.ports[handle] = port
	ctx := am.sinkCtx
	muted := am.masterMute
	master := am.masterVolume
	am.mu.Unlock()

	if ctx != nil {
		sink, err := ctx.NewSink()
		if err != nil {
			am.log.Warnf("Audio", "sink creation for port %d failed: %v", handle, err)
		} else {
			if muted {
				sink.SetVolume(0)
			} else {
				sink.SetVolume(master)
			}
			sink.Start()
			port.sink = sink
		}
	}

	am.log.Infof("Audio", "opened %s port: handle=%d grain=%d rate=%d",
		audioPortTypeName(portType), handle, grain, rate)
	return handle
}

// ClosePort releases a handle. Unknown handles are ignored.
func (am *AudioManager) ClosePort(handle int32) {
	am.mu.Lock()
	port, ok := am.ports[handle]
	if ok {
		delete(am.ports, handle)
	}
	am.mu.Unlock()
	if !ok {
		return
	}
	if port.sink != nil {
		port.sink.Close()
	}
	am.log.Infof("Audio", "closed port %d after %d frames", handle, port.framesOutput)
}

// Output submits one grain of interleaved stereo s16 PCM and blocks for
// roughly 80% of the grain's real-time duration. The remaining 20% is
// headroom for the guest to prepare the next grain. Returns false for an
// unknown handle.
func (am *AudioManager) Output(handle int32, pcm []byte) bool {
	am.mu.Lock()
	port, ok := am.ports[handle]
	if !ok {
		am.mu.Unlock()
		return false
	}
	sink := port.sink
	muted := am.masterMute || port.muted
	port.framesOutput++
	am.totalFrames++
	grain := port.Grain
	am.mu.Unlock()

	if sink != nil && !muted && len(pcm) > 0 {
		sink.Write(pcm)
	}

	// grain samples at 48 kHz, slept at 80%.
	sleep := time.Duration(grain) * 800 * time.Microsecond / 48
	if sleep > 0 {
		time.Sleep(sleep)
	}
	return true
}

// SetVolume sets a port's volume (0..1, clamped), scaled by the master
// volume onto the sink.
func (am *AudioManager) SetVolume(handle int32, vol float64) bool {
	if vol < 0 {
		vol = 0
	}
	if vol > 1 {
		vol = 1
	}
	am.mu.Lock()
	port, ok := am.ports[handle]
	if !ok {
		am.mu.Unlock()
		return false
	}
	port.volume = vol
	sink := port.sink
	effective := vol * am.masterVolume
	if am.masterMute || port.muted {
		effective = 0
	}
	am.mu.Unlock()

	if sink != nil {
		sink.SetVolume(effective)
	}
	return true
}

// GetPort returns a copy of the port record, for syscalls and stats.
func (am *AudioManager) GetPort(handle int32) (AudioPort, bool) {
	am.mu.Lock()
	defer am.mu.Unlock()
	p, ok := am.ports[handle]
	if !ok {
		return AudioPort{}, false
	}
	return *p, true
}

// reapplyVolumes pushes the effective per-port volume to every sink.
func (am *AudioManager) reapplyVolumes() {
	type pair struct {
		sink AudioSink
		vol  float64
	}
	am.mu.Lock()
	var sinks []pair
	for _, p := range am.ports {
		if p.sink == nil {
			continue
		}
		v := p.volume * am.masterVolume
		if am.masterMute || p.muted {
			v = 0
		}
		sinks = append(sinks, pair{p.sink, v})
	}
	am.mu.Unlock()

	for _, s := range sinks {
		s.sink.SetVolume(s.vol)
	}
}

// SetMasterMute silences or restores every open port.
func (am *AudioManager) SetMasterMute(mute bool) {
	am.mu.Lock()
	am.masterMute = mute
	am.mu.Unlock()
	am.reapplyVolumes()
}

func (am *AudioManager) SetMasterVolume(vol float64) {
	if vol < 0 {
		vol = 0
	}
	if vol > 1 {
		vol = 1
	}
	am.mu.Lock()
	am.masterVolume = vol
	am.mu.Unlock()
	am.reapplyVolumes()
}

func (am *AudioManager) OpenPortCount() int {
	am.mu.Lock()
	defer am.mu.Unlock()
	return len(am.ports)
}

func (am *AudioManager) TotalFramesOutput() uint64 {
	am.mu.Lock()
	defer am.mu.Unlock()
	return am.totalFrames
}
