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

// Dispatch resolves the two Vulkan entry points the tracker calls down
// into. Everything else about dispatch-table resolution is out of scope
// (§1); the tracker only needs these two calls routed to the next layer.
type Dispatch interface {
	// CmdWriteTimestamp records a GPU timestamp for cb at the given pipeline
	// stage, into slot of pool. It has no return value to inspect: per §7,
	// failure to record a timestamp cannot be detected synchronously and is
	// indistinguishable from a correctly recorded one that later reads as
	// not-ready.
	CmdWriteTimestamp(cb CommandBuffer, stage PipelineStage, pool QueryPoolHandle, slot uint32)

	// GetQueryPoolResults64 probes a single 64-bit timestamp query slot.
	// ready is false if the query has not landed yet (VK_NOT_READY); value
	// is only meaningful when ready is true.
	GetQueryPoolResults64(device Device, pool QueryPoolHandle, slot uint32) (value uint64, ready bool)
}

// DeviceManager exposes the per-device facts the tracker needs: which
// physical device backs a logical device, and that device's timestamp
// period (nanoseconds per GPU tick).
type DeviceManager interface {
	PhysicalDeviceOf(device Device) PhysicalDevice
	TimestampPeriod(pd PhysicalDevice) float32
}

// QueryPool is the Slot Arbiter contract (§4.1): a per-device pool of
// timestamp query slots. NextReady allocates; Reset reclaims a slot after a
// GPU-side query reset (the GPU was actually told to forget the value);
// Rollback reclaims a slot that was allocated but never written to on the
// GPU (pure bookkeeping).
type QueryPool interface {
	// Handle returns the VkQueryPool backing device's timestamp slots.
	Handle(device Device) QueryPoolHandle

	// NextReady allocates a free slot. false means the pool is exhausted,
	// which the tracker treats as a fatal precondition violation — the
	// caller is expected to size the pool so this never happens in
	// practice.
	NextReady(device Device) (slot uint32, ok bool)

	// Reset reclaims slots after they were (or will be) GPU-reset.
	Reset(device Device, slots []uint32)

	// Rollback reclaims slots that were allocated but never submitted to
	// the GPU for a write.
	Rollback(device Device, slots []uint32)
}

// Producer owns the IPC channel to the out-of-process profiler. The
// tracker only needs to know whether it is currently capturing, intern
// marker text to a stable key, and hand off finished events — the channel
// itself, buffering, and transport framing are out of scope (§1).
type Producer interface {
	IsCapturing() bool
	InternString(s string) uint64
	EnqueueCaptureEvent(event GpuQueueSubmission)
}
