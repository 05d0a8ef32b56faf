//go:build !headless

// audio_sink_oto.go - Host audio output through oto

/*
(c) 2025 - 2026 WeaR Team
https://github.com/wearteam/wear-emu
License: GPLv3 or later
*/

package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// otoSinkContext wraps the single process-wide oto context. Every port
// sink is a player over its own ring buffer.
type otoSinkContext struct {
	ctx *oto.Context
	log *Logger
}

func newHostSinkContext(log *Logger) (AudioSinkContext, error) {
	op := &oto.NewContextOptions{
		SampleRate:   AUDIO_SAMPLE_RATE,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("oto context: %w", err)
	}
	select {
	case <-ready:
	case <-time.After(3 * time.Second):
		return nil, fmt.Errorf("oto context: device not ready")
	}
	return &otoSinkContext{ctx: ctx, log: log}, nil
}

func (c *otoSinkContext) NewSink() (AudioSink, error) {
	ring := newPCMRing(AUDIO_SAMPLE_RATE / 2 * 4) // half a second of stereo s16
	player := c.ctx.NewPlayer(ring)
	return &otoSink{ring: ring, player: player}, nil
}

func (c *otoSinkContext) Close() {
	// oto contexts cannot be torn down; players are closed per sink.
}

// =============================================================================
// SINK
// =============================================================================

type otoSink struct {
	ring   *pcmRing
	player *oto.Player
}

func (s *otoSink) Start() {
	s.player.Play()
}

func (s *otoSink) Write(pcm []byte) int {
	return s.ring.Write(pcm)
}

func (s *otoSink) SetVolume(vol float64) {
	s.player.SetVolume(vol)
}

func (s *otoSink) Close() {
	_ = s.player.Close()
	s.ring.Close()
}

// =============================================================================
// PCM RING
// =============================================================================

// pcmRing is the io.Reader handed to the oto player. Underruns read as
// silence instead of blocking the device thread; overruns drop the oldest
// audio so guest stalls cannot wedge the port.
type pcmRing struct {
	mu     sync.Mutex
	buf    []byte
	r, w   int
	size   int
	closed bool
}

func newPCMRing(capacity int) *pcmRing {
	return &pcmRing{buf: make([]byte, capacity)}
}

func (r *pcmRing) Write(p []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0
	}
	for _, b := range p {
		r.buf[r.w] = b
		r.w = (r.w + 1) % len(r.buf)
		if r.size == len(r.buf) {
			r.r = (r.r + 1) % len(r.buf) // drop oldest
		} else {
			r.size++
		}
	}
	return len(p)
}

func (r *pcmRing) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, io.EOF
	}
	n := 0
	for ; n < len(p) && r.size > 0; n++ {
		p[n] = r.buf[r.r]
		r.r = (r.r + 1) % len(r.buf)
		r.size--
	}
	// Pad with silence so the player never starves.
	for ; n < len(p); n++ {
		p[n] = 0
	}
	return len(p), nil
}

func (r *pcmRing) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}
