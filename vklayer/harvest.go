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

import "context"

// CompleteSubmits is meant to be called periodically from the Present
// hook. It probes the GPU for submissions whose last timestamp has landed,
// reads the full timestamp set for each, emits one event per submission via
// the Producer, and reclaims every slot it read.
func (t *SubmissionTracker[D, DM, QP, P]) CompleteSubmits(ctx context.Context, device Device) {
	poolHandle := t.queryPool.Handle(device)
	completed := t.pullCompletedSubmissions(device, poolHandle)
	if len(completed) == 0 {
		return
	}

	physicalDevice := t.deviceManager.PhysicalDeviceOf(device)
	period := float64(t.deviceManager.TimestampPeriod(physicalDevice))

	var resetSlots []uint32
	for _, qs := range completed {
		event := GpuQueueSubmission{
			Meta: GpuQueueSubmissionMetaInfo{
				ThreadID:                   qs.meta.threadID,
				PreSubmissionCPUTimestamp:  qs.meta.preCPUNs,
				PostSubmissionCPUTimestamp: qs.meta.postCPUNs,
			},
			NumBeginMarkers: qs.numBeginMarkers,
		}

		for _, submitInfo := range qs.submits {
			si := GpuSubmitInfo{}
			for _, cb := range submitInfo.commandBuffers {
				gcb := GpuCommandBuffer{}
				if cb.beginSlot != nil {
					ts := t.readTimestampNs(ctx, device, poolHandle, *cb.beginSlot, period)
					gcb.BeginGPUTimestampNs = &ts
					resetSlots = append(resetSlots, *cb.beginSlot)
				}
				gcb.EndGPUTimestampNs = t.readTimestampNs(ctx, device, poolHandle, cb.endSlot, period)
				resetSlots = append(resetSlots, cb.endSlot)

				si.CommandBuffers = append(si.CommandBuffers, gcb)
			}
			event.SubmitInfos = append(event.SubmitInfos, si)
		}

		for _, ms := range qs.completedMarkers {
			marker := GpuDebugMarker{
				TextKey:           t.producer.InternString(ms.text),
				Depth:             ms.depth,
				EndGPUTimestampNs: t.readTimestampNs(ctx, device, poolHandle, ms.endInfo.slot, period),
			}
			resetSlots = append(resetSlots, ms.endInfo.slot)

			if !ms.color.isZero() {
				c := ms.color
				marker.Color = &c
			}

			if ms.beginInfo != nil {
				marker.BeginMarker = &GpuDebugMarkerBeginInfo{
					Meta: GpuQueueSubmissionMetaInfo{
						ThreadID:                   ms.beginInfo.meta.threadID,
						PreSubmissionCPUTimestamp:  ms.beginInfo.meta.preCPUNs,
						PostSubmissionCPUTimestamp: ms.beginInfo.meta.postCPUNs,
					},
					GPUTimestampNs: t.readTimestampNs(ctx, device, poolHandle, ms.beginInfo.slot, period),
				}
				resetSlots = append(resetSlots, ms.beginInfo.slot)
			}

			event.CompletedMarkers = append(event.CompletedMarkers, marker)
		}

		t.producer.EnqueueCaptureEvent(event)
	}

	t.queryPool.Reset(device, resetSlots)
}

// readTimestampNs reads a landed timestamp query and converts GPU ticks to
// nanoseconds: gpu_ns = (uint64)((float64)ticks * (float64)period),
// multiplying in 64-bit float and truncating toward zero, matching what
// clock calibration elsewhere in the consumer expects.
func (t *SubmissionTracker[D, DM, QP, P]) readTimestampNs(ctx context.Context, device Device, pool QueryPoolHandle, slot uint32, period float64) uint64 {
	value, ready := t.dispatch.GetQueryPoolResults64(device, pool, slot)
	if !ready {
		t.fatal(ctx, "query slot %d expected to be ready during harvest", slot)
	}
	return uint64(float64(value) * period)
}

// pullCompletedSubmissions scans every queue's ledger oldest-first and
// removes the prefix of submissions whose last command buffer's end slot
// has landed, stopping at the first one that hasn't (out-of-order
// completion is permitted by the driver, but this design waits for each
// submission's last timestamp in ledger order to keep the emitted stream
// monotonic per queue). Submissions with no command buffers at all are
// dropped unconditionally without being harvested — there is nothing to
// wait for, and nothing to emit.
//
// The GPU probe itself happens without holding the tracker's lock (§5):
// this takes a read-locked snapshot of each queue's submission slice,
// probes it lock-free, then re-acquires the lock only to drop the
// harvested prefix. Because harvest only ever removes from the front and
// PostSubmission only ever appends to the back, the first N submissions of
// the live slice are still exactly the first N of the snapshot, even if
// more were appended in between.
func (t *SubmissionTracker[D, DM, QP, P]) pullCompletedSubmissions(device Device, pool QueryPoolHandle) []*queueSubmission {
	t.mu.RLock()
	snapshot := make(map[Queue][]*queueSubmission, len(t.queueToSubmissions))
	for q, subs := range t.queueToSubmissions {
		snapshot[q] = subs
	}
	t.mu.RUnlock()

	var completed []*queueSubmission
	consumed := make(map[Queue]int, len(snapshot))

	for queue, subs := range snapshot {
		n := 0
		for _, qs := range subs {
			lastCB, hasCB := lastCommandBuffer(qs)
			if !hasCB {
				n++
				continue
			}
			_, ready := t.dispatch.GetQueryPoolResults64(device, pool, lastCB.endSlot)
			if !ready {
				break
			}
			completed = append(completed, qs)
			n++
		}
		if n > 0 {
			consumed[queue] = n
		}
	}

	if len(consumed) > 0 {
		t.mu.Lock()
		for queue, n := range consumed {
			current := t.queueToSubmissions[queue]
			if n >= len(current) {
				delete(t.queueToSubmissions, queue)
			} else {
				t.queueToSubmissions[queue] = current[n:]
			}
		}
		t.mu.Unlock()
	}

	return completed
}

// lastCommandBuffer finds the last command buffer of the last non-empty
// SubmitInfoRec in qs.
func lastCommandBuffer(qs *queueSubmission) (submittedCommandBuffer, bool) {
	for i := len(qs.submits) - 1; i >= 0; i-- {
		cbs := qs.submits[i].commandBuffers
		if len(cbs) > 0 {
			return cbs[len(cbs)-1], true
		}
	}
	return submittedCommandBuffer{}, false
}
