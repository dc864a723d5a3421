// Copyright (C) 2024 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package vklayer tracks per-command-buffer and per-debug-marker GPU
// execution time on a Vulkan submission hot path, and hands completed
// timing data off to a Producer for shipping out of process.
//
// The tracker is parameterised over the four collaborators it calls down
// into — Dispatch, DeviceManager, QueryPool and Producer — so that tests
// (and alternative hosts) can substitute their own implementations without
// the tracker ever depending on a concrete Vulkan driver.
package vklayer

// Device, CommandPool, CommandBuffer, Queue and PhysicalDevice stand in for
// the opaque Vulkan handles (VkDevice, VkCommandPool, ...). They are
// comparable so they can be used as map keys, exactly like the pointer-sized
// handles they represent.
type (
	Device          uintptr
	CommandPool     uintptr
	CommandBuffer   uintptr
	Queue           uintptr
	PhysicalDevice  uintptr
	QueryPoolHandle uintptr
)

// PipelineStage identifies where in the GPU pipeline a timestamp is
// written: at the very start of a command's execution, or after it has
// fully retired.
type PipelineStage int

const (
	TopOfPipe PipelineStage = iota
	BottomOfPipe
)

// Color is a debug marker color, channels in [0, 1]. The zero value means
// "no color specified" (see GpuDebugMarker.Color).
type Color struct {
	Red, Green, Blue, Alpha float32
}

func (c Color) isZero() bool {
	return c.Red == 0 && c.Green == 0 && c.Blue == 0 && c.Alpha == 0
}

type markerKind int

const (
	markerBegin markerKind = iota
	markerEnd
)

// marker is one entry in a command buffer's marker sequence, recorded at
// mark_marker_{begin,end} time. Only a Begin marker carries text/color;
// slot is nil until (and unless) a timestamp was actually issued for it.
type marker struct {
	kind  markerKind
	slot  *uint32
	text  string
	color Color
}

// commandBufferRec is the per-command-buffer recording state tracked
// between mark_begin and the terminating event (submission, free, reset,
// pool-reset). It exists unconditionally once mark_begin has been observed,
// even while not capturing, so marker structure is never lost.
type commandBufferRec struct {
	beginSlot        *uint32
	endSlot          *uint32
	markers          []marker
	localMarkerDepth uint32
}

// submissionMeta is the CPU-side metadata captured once per submission.
type submissionMeta struct {
	threadID  int32
	preCPUNs  uint64
	postCPUNs uint64
}

// submittedCommandBuffer is the per-command-buffer slice of a submission:
// immutable once the submission is appended to a queue's ledger.
type submittedCommandBuffer struct {
	beginSlot *uint32
	endSlot   uint32
}

// submitInfoRec mirrors one VkSubmitInfo's command buffers.
type submitInfoRec struct {
	commandBuffers []submittedCommandBuffer
}

// submittedMarker pins down the submission a marker half (begin or end) was
// recorded in, so the consumer can reconstruct cross-submission timing.
type submittedMarker struct {
	meta submissionMeta
	slot uint32
}

// markerState is a debug marker that has been closed out (an End recorded
// with a slot; beginInfo is nil if its Begin got no slot) or is still open
// on a QueueMarkerStack.
type markerState struct {
	beginInfo *submittedMarker
	endInfo   *submittedMarker
	text      string
	color     Color
	depth     uint32
}

// queueSubmission is one VkQueueSubmit call's worth of tracked state,
// appended to a queue's ledger and removed once harvested.
type queueSubmission struct {
	meta             submissionMeta
	submits          []submitInfoRec
	completedMarkers []markerState
	numBeginMarkers  uint32
}

// queueMarkerStack is a genuine LIFO stack whose lifetime is the queue, not
// any one submission: it holds Begin markers whose matching End has not yet
// arrived, possibly from a later submission entirely. It is never reset at
// submission boundaries.
type queueMarkerStack struct {
	stack []markerState
}

func (q *queueMarkerStack) push(m markerState) {
	q.stack = append(q.stack, m)
}

// pop removes and returns the top of the stack. The caller must check
// len() > 0 first — an End can arrive with no Begin on this stack (its
// Begin was never pushed here), and PostSubmission handles that case
// without popping.
func (q *queueMarkerStack) pop() markerState {
	n := len(q.stack) - 1
	m := q.stack[n]
	q.stack = q.stack[:n]
	return m
}

func (q *queueMarkerStack) len() int {
	return len(q.stack)
}

// SubmitInfo is the caller-supplied description of one VkSubmitInfo's
// command buffers, passed to PostSubmission.
type SubmitInfo struct {
	CommandBuffers []CommandBuffer
}
