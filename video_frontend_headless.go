//go:build headless

// video_frontend_headless.go - Queue-draining frontend for windowless runs

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

// VideoFrontend in the headless build drains the render queue on a
// ticker so the submit path never backs up, and closes Done when the
// core leaves the running states.
type VideoFrontend struct {
	core *EmulatorCore

	mu      sync.Mutex
	running bool
	done    chan struct{}
	stop    chan struct{}
}

func NewVideoFrontend(core *EmulatorCore, fullscreen bool) *VideoFrontend {
	return &VideoFrontend{
		core: core,
		done: make(chan struct{}),
		stop: make(chan struct{}),
	}
}

func (vf *VideoFrontend) Start() error {
	vf.mu.Lock()
	if vf.running {
		vf.mu.Unlock()
		return nil
	}
	vf.running = true
	vf.mu.Unlock()

	vf.core.Logger().Infof("Video", "headless frontend: draining queue at 60 Hz")
	go func() {
		ticker := time.NewTicker(time.Second / 60)
		defer ticker.Stop()
		defer close(vf.done)
		for {
			select {
			case <-vf.stop:
				return
			case <-ticker.C:
				vf.core.Queue().PopAll()
			}
		}
	}()
	return nil
}

func (vf *VideoFrontend) Done() <-chan struct{} { return vf.done }

// copyTextToClipboard has no clipboard to talk to without a display.
func copyTextToClipboard(data []byte) bool { return false }

// Shutdown stops the drain loop. Safe to call once.
func (vf *VideoFrontend) Shutdown() {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	if !vf.running {
		return
	}
	vf.running = false
	close(vf.stop)
}
