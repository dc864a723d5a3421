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

package vklayer

// GpuQueueSubmissionMetaInfo is the CPU-side metadata of a submission: the
// thread that issued it and the CPU timestamps bracketing the driver call.
type GpuQueueSubmissionMetaInfo struct {
	ThreadID                   int32
	PreSubmissionCPUTimestamp  uint64
	PostSubmissionCPUTimestamp uint64
}

// GpuCommandBuffer is the timing of one submitted command buffer.
// BeginGPUTimestampNs is nil when capture started after mark_begin (or
// never captured a begin timestamp for this command buffer at all).
type GpuCommandBuffer struct {
	BeginGPUTimestampNs *uint64
	EndGPUTimestampNs   uint64
}

// GpuSubmitInfo mirrors one VkSubmitInfo's command buffers.
type GpuSubmitInfo struct {
	CommandBuffers []GpuCommandBuffer
}

// GpuDebugMarkerBeginInfo is attached to a completed marker only if its
// Begin half was itself captured (carried a slot).
type GpuDebugMarkerBeginInfo struct {
	Meta           GpuQueueSubmissionMetaInfo
	GPUTimestampNs uint64
}

// GpuDebugMarker is one fully closed-out debug marker: an End with a slot,
// optionally paired with a captured Begin.
type GpuDebugMarker struct {
	TextKey           uint64
	Color             *Color
	Depth             uint32
	EndGPUTimestampNs uint64
	BeginMarker       *GpuDebugMarkerBeginInfo
}

// GpuQueueSubmission is the event emitted per harvested submission (§6).
type GpuQueueSubmission struct {
	Meta             GpuQueueSubmissionMetaInfo
	SubmitInfos      []GpuSubmitInfo
	NumBeginMarkers  uint32
	CompletedMarkers []GpuDebugMarker
}
