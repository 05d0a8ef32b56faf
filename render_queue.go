// render_queue.go - Thread-safe command queue between the HLE side and the host renderer

/*
(c) 2025 - 2026 WeaR Team
https://github.com/wearteam/wear-emu
License: GPLv3 or later
*/

package main

import (
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// PIPELINE STATE
// =============================================================================

type PipelineState struct {
	VSShaderAddr uint64
	PSShaderAddr uint64
	CSShaderAddr uint64

	PrimitiveType uint32 // 4 = triangle list
	CullMode      uint32
	FrontFace     uint32

	DepthTestEnable  bool
	DepthWriteEnable bool
	BlendEnable      bool
}

// =============================================================================
// RENDER COMMANDS
// =============================================================================

type RenderCmdKind uint8

const (
	CmdNone RenderCmdKind = iota
	CmdClear
	CmdSetPipeline
	CmdBindVertexBuffer
	CmdBindIndexBuffer
	CmdDraw
	CmdDrawIndexed
	CmdComputeDispatch
	CmdEndFrame
)

func (k RenderCmdKind) String() string {
	switch k {
	case CmdClear:
		return "Clear"
	case CmdSetPipeline:
		return "SetPipeline"
	case CmdBindVertexBuffer:
		return "BindVertexBuffer"
	case CmdBindIndexBuffer:
		return "BindIndexBuffer"
	case CmdDraw:
		return "Draw"
	case CmdDrawIndexed:
		return "DrawIndexed"
	case CmdComputeDispatch:
		return "ComputeDispatch"
	case CmdEndFrame:
		return "EndFrame"
	default:
		return "None"
	}
}

// RenderCommand is the single record moved across the queue. One struct
// carries every variant; Kind selects which fields are meaningful. The
// consumer never touches guest memory — addresses here are for its own
// copies via the submit path.
type RenderCommand struct {
	Kind RenderCmdKind

	// Draw / DrawIndexed
	VertexCount   uint32
	IndexCount    uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstIndex    uint32
	FirstInstance uint32
	VertexOffset  int32

	// Buffer bindings
	VertexBufferAddr uint64
	IndexBufferAddr  uint64
	VertexStride     uint32
	IndexType        uint32 // 0 = 16-bit, 1 = 32-bit

	// ComputeDispatch
	GroupCountX uint32
	GroupCountY uint32
	GroupCountZ uint32

	// Clear
	ClearColor   [4]float32
	ClearDepth   float32
	ClearStencil uint32

	// SetPipeline
	Pipeline PipelineState
}

// =============================================================================
// QUEUE
// =============================================================================

// RenderQueue carries commands from the CPU thread to the host render
// thread. FIFO order is preserved across PopAll; pushes wake one waiter.
type RenderQueue struct {
	mu   sync.Mutex
	cmds []RenderCommand
	wake chan struct{}

	totalPushed   atomic.Uint64
	totalPopped   atomic.Uint64
	frameCount    atomic.Uint64
	drawCalls     atomic.Uint64
	dispatchCalls atomic.Uint64
}

func NewRenderQueue() *RenderQueue {
	return &RenderQueue{wake: make(chan struct{}, 1)}
}

func (q *RenderQueue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *RenderQueue) track(cmd *RenderCommand) {
	switch cmd.Kind {
	case CmdDraw, CmdDrawIndexed:
		q.drawCalls.Add(1)
	case CmdComputeDispatch:
		q.dispatchCalls.Add(1)
	}
}

// Push appends one command and wakes a waiting consumer.
func (q *RenderQueue) Push(cmd RenderCommand) {
	q.mu.Lock()
	q.cmds = append(q.cmds, cmd)
	q.mu.Unlock()
	q.totalPushed.Add(1)
	q.track(&cmd)
	q.notify()
}

// PushMany appends a batch in order with a single lock acquisition.
func (q *RenderQueue) PushMany(cmds []RenderCommand) {
	if len(cmds) == 0 {
		return
	}
	q.mu.Lock()
	q.cmds = append(q.cmds, cmds...)
	q.mu.Unlock()
	q.totalPushed.Add(uint64(len(cmds)))
	for i := range cmds {
		q.track(&cmds[i])
	}
	q.notify()
}

// EndFrame pushes the frame terminator and bumps the frame counter.
func (q *RenderQueue) EndFrame() {
	q.Push(RenderCommand{Kind: CmdEndFrame})
	q.frameCount.Add(1)
}

// PopAll drains the queue atomically. Non-blocking; returns nil when empty.
func (q *RenderQueue) PopAll() []RenderCommand {
	q.mu.Lock()
	cmds := q.cmds
	q.cmds = nil
	q.mu.Unlock()
	if len(cmds) > 0 {
		q.totalPopped.Add(uint64(len(cmds)))
	}
	return cmds
}

// WaitForCommands blocks until the queue is non-empty or the timeout
// expires, reporting whether commands are available.
func (q *RenderQueue) WaitForCommands(timeoutMs uint32) bool {
	timer := time.NewTimer(time.Duration(timeoutMs) * time.Millisecond)
	defer timer.Stop()
	for {
		q.mu.Lock()
		pending := len(q.cmds) > 0
		q.mu.Unlock()
		if pending {
			return true
		}
		select {
		case <-q.wake:
		case <-timer.C:
			q.mu.Lock()
			pending = len(q.cmds) > 0
			q.mu.Unlock()
			return pending
		}
	}
}

func (q *RenderQueue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.cmds) == 0
}

func (q *RenderQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.cmds)
}

// Clear drops pending commands without touching the counters.
func (q *RenderQueue) Clear() {
	q.mu.Lock()
	q.cmds = nil
	q.mu.Unlock()
}

// =============================================================================
// STATISTICS
// =============================================================================

type QueueStats struct {
	TotalPushed   uint64
	TotalPopped   uint64
	FrameCount    uint64
	DrawCalls     uint64
	DispatchCalls uint64
}

func (q *RenderQueue) Stats() QueueStats {
	return QueueStats{
		TotalPushed:   q.totalPushed.Load(),
		TotalPopped:   q.totalPopped.Load(),
		FrameCount:    q.frameCount.Load(),
		DrawCalls:     q.drawCalls.Load(),
		DispatchCalls: q.dispatchCalls.Load(),
	}
}
