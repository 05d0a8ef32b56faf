//go:build headless

// audio_sink_headless.go - Counting null sinks for headless builds

/*
(c) 2025 - 2026 WeaR Team
https://github.com/wearteam/wear-emu
License: GPLv3 or later
*/

package main

import "sync/atomic"

type nullSinkContext struct{}

func newHostSinkContext(log *Logger) (AudioSinkContext, error) {
	return &nullSinkContext{}, nil
}

func (c *nullSinkContext) NewSink() (AudioSink, error) { return &nullSink{}, nil }
func (c *nullSinkContext) Close()                      {}

// nullSink swallows PCM but keeps the byte count so tests and the stats
// command can observe output happening.
type nullSink struct {
	bytes atomic.Uint64
}

func (s *nullSink) Start()               {}
func (s *nullSink) Write(pcm []byte) int { s.bytes.Add(uint64(len(pcm))); return len(pcm) }
func (s *nullSink) SetVolume(float64)    {}
func (s *nullSink) Close()               {}
