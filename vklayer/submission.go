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

// PreSubmission returns the CPU pre-timestamp iff capturing right now,
// otherwise nil. The nil-ness is a capture-state witness read back by
// PostSubmission: if capture started between the two calls, PostSubmission
// must still take the clean-up-only path (§4.3).
func (t *SubmissionTracker[D, DM, QP, P]) PreSubmission() *uint64 {
	if !t.producer.IsCapturing() {
		return nil
	}
	ts := monotonicNowNs()
	return &ts
}

// PostSubmission records a queue submission. queue and submits identify
// what was submitted; preTS is whatever PreSubmission returned just before
// the driver call. Command buffers referenced here lose their recording
// state unconditionally — once submitted, Vulkan allows the identifiers to
// be reused.
func (t *SubmissionTracker[D, DM, QP, P]) PostSubmission(ctx context.Context, queue Queue, submits []SubmitInfo, preTS *uint64) {
	if !t.producer.IsCapturing() || preTS == nil {
		t.postSubmissionCleanup(queue, submits)
		return
	}

	t.mu.Lock()

	stack, ok := t.queueToMarkerStack[queue]
	if !ok {
		stack = &queueMarkerStack{}
		t.queueToMarkerStack[queue] = stack
	}

	qs := &queueSubmission{
		meta: submissionMeta{
			threadID:  currentThreadID(),
			preCPUNs:  *preTS,
			postCPUNs: monotonicNowNs(),
		},
	}

	// An End with no matching Begin anywhere on this queue's lineage is
	// valid input (its Begin may have been on an earlier command buffer
	// mark_marker_end already floored depth at 0 for). If that End still
	// carries a slot, the GPU was already told to write into it, so it
	// must be reclaimed here rather than left to leak with the record
	// that held it.
	var (
		orphanSlots      []uint32
		orphanDevice     Device
		haveOrphanDevice bool
	)

	for _, submitInfo := range submits {
		var submitRec submitInfoRec
		for _, cb := range submitInfo.CommandBuffers {
			rec, ok := t.commandBufferToState[cb]
			if !ok {
				t.fatal(ctx, "command buffer %v has no recording state at submission", cb)
				continue
			}

			for _, m := range rec.markers {
				var submitted *submittedMarker
				if m.slot != nil {
					submitted = &submittedMarker{meta: qs.meta, slot: *m.slot}
				}

				switch m.kind {
				case markerBegin:
					if m.slot != nil {
						qs.numBeginMarkers++
					}
					stack.push(markerState{
						text:      m.text,
						color:     m.color,
						beginInfo: submitted,
						depth:     uint32(stack.len()),
					})

				case markerEnd:
					if stack.len() == 0 {
						if submitted != nil {
							orphanSlots = append(orphanSlots, submitted.slot)
							if !haveOrphanDevice {
								if d, ok := t.commandBufferToDevice[cb]; ok {
									orphanDevice = d
									haveOrphanDevice = true
								}
							}
						}
						continue
					}
					ms := stack.pop()
					if submitted != nil {
						ms.endInfo = submitted
						qs.completedMarkers = append(qs.completedMarkers, ms)
					}
				}
			}

			if rec.endSlot == nil {
				t.fatal(ctx, "command buffer %v submitted before mark_end", cb)
				continue
			}
			submitRec.commandBuffers = append(submitRec.commandBuffers, submittedCommandBuffer{
				beginSlot: rec.beginSlot,
				endSlot:   *rec.endSlot,
			})

			delete(t.commandBufferToState, cb)
		}
		qs.submits = append(qs.submits, submitRec)
	}

	t.queueToSubmissions[queue] = append(t.queueToSubmissions[queue], qs)
	t.mu.Unlock()

	if len(orphanSlots) > 0 {
		t.queryPool.Reset(orphanDevice, orphanSlots)
	}
}

// postSubmissionCleanup is taken when capture is off (or just turned off
// between pre- and post-submission): nothing is recorded, but every slot
// already allocated for the referenced command buffers must still be
// reclaimed. Slots are reclaimed via Reset, not Rollback — the pre-path may
// already have issued a GPU write before capture turned off, so it's safer
// to ask the GPU to reset it than to assume it was never written.
func (t *SubmissionTracker[D, DM, QP, P]) postSubmissionCleanup(queue Queue, submits []SubmitInfo) {
	t.mu.RLock()
	empty := len(t.commandBufferToState) == 0
	t.mu.RUnlock()
	if empty {
		return
	}

	var (
		resetSlots []uint32
		device     Device
		haveDevice bool
	)

	t.mu.Lock()
	for _, submitInfo := range submits {
		for _, cb := range submitInfo.CommandBuffers {
			if !haveDevice {
				if d, ok := t.commandBufferToDevice[cb]; ok {
					device = d
					haveDevice = true
				}
			}
			rec, ok := t.commandBufferToState[cb]
			if !ok {
				continue
			}
			resetSlots = append(resetSlots, collectSlots(rec)...)
			delete(t.commandBufferToState, cb)
		}
	}
	t.mu.Unlock()

	// Only the device of the first referenced command buffer is used here,
	// matching the original implementation this is ported from — see the
	// multi-device Open Question in DESIGN.md.
	if len(resetSlots) > 0 {
		t.queryPool.Reset(device, resetSlots)
	}
}
