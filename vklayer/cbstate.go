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

// MarkCommandBufferBegin opens a recording state for cb. It always creates
// a record, even when not capturing, so that a capture starting later still
// sees a consistent marker structure (§5, capture-toggle races).
func (t *SubmissionTracker[D, DM, QP, P]) MarkCommandBufferBegin(ctx context.Context, cb CommandBuffer) {
	t.mu.Lock()
	if _, exists := t.commandBufferToState[cb]; exists {
		t.mu.Unlock()
		t.fatal(ctx, "command buffer %v already has a recording state", cb)
		return
	}
	t.commandBufferToState[cb] = &commandBufferRec{}
	t.mu.Unlock()

	if !t.producer.IsCapturing() {
		return
	}

	slot := t.recordTimestamp(ctx, cb, TopOfPipe)

	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok := t.commandBufferToState[cb]; ok {
		s := slot
		rec.beginSlot = &s
	}
}

// MarkCommandBufferEnd closes the command buffer's timed span if capturing.
// If capture started after MarkCommandBufferBegin, beginSlot is absent and
// this call is the only timestamp the command buffer gets.
func (t *SubmissionTracker[D, DM, QP, P]) MarkCommandBufferEnd(ctx context.Context, cb CommandBuffer) {
	if !t.producer.IsCapturing() {
		return
	}

	slot := t.recordTimestamp(ctx, cb, BottomOfPipe)

	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.commandBufferToState[cb]
	if !ok {
		t.fatal(ctx, "command buffer %v has no recording state", cb)
		return
	}
	s := slot
	rec.endSlot = &s
}

// MarkDebugMarkerBegin appends a Begin marker. If a depth cap is configured
// and exceeded, the marker is still recorded structurally but never gets a
// GPU timestamp.
func (t *SubmissionTracker[D, DM, QP, P]) MarkDebugMarkerBegin(ctx context.Context, cb CommandBuffer, text string, color Color) {
	t.mu.Lock()
	rec, ok := t.commandBufferToState[cb]
	if !ok {
		t.mu.Unlock()
		t.fatal(ctx, "command buffer %v has no recording state", cb)
		return
	}
	rec.markers = append(rec.markers, marker{kind: markerBegin, text: text, color: color})
	rec.localMarkerDepth++
	tooDeep := t.maxLocalMarkerDepth > 0 && rec.localMarkerDepth > t.maxLocalMarkerDepth
	t.mu.Unlock()

	if !t.producer.IsCapturing() || tooDeep {
		return
	}

	slot := t.recordTimestamp(ctx, cb, TopOfPipe)

	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok := t.commandBufferToState[cb]; ok && len(rec.markers) > 0 {
		s := slot
		rec.markers[len(rec.markers)-1].slot = &s
	}
}

// MarkDebugMarkerEnd appends an End marker and decrements the local marker
// depth, floored at 0 — the matching Begin may be on an earlier command
// buffer, whose depth bookkeeping this one knows nothing about.
func (t *SubmissionTracker[D, DM, QP, P]) MarkDebugMarkerEnd(ctx context.Context, cb CommandBuffer) {
	t.mu.Lock()
	rec, ok := t.commandBufferToState[cb]
	if !ok {
		t.mu.Unlock()
		t.fatal(ctx, "command buffer %v has no recording state", cb)
		return
	}
	rec.markers = append(rec.markers, marker{kind: markerEnd})
	// Depth-cap check happens against the depth as left by the matching
	// Begin, before this End's decrement — the only asymmetry in the
	// marker accounting (see DESIGN.md).
	tooDeep := t.maxLocalMarkerDepth > 0 && rec.localMarkerDepth > t.maxLocalMarkerDepth
	if rec.localMarkerDepth != 0 {
		rec.localMarkerDepth--
	}
	t.mu.Unlock()

	if !t.producer.IsCapturing() || tooDeep {
		return
	}

	slot := t.recordTimestamp(ctx, cb, BottomOfPipe)

	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok := t.commandBufferToState[cb]; ok && len(rec.markers) > 0 {
		s := slot
		rec.markers[len(rec.markers)-1].slot = &s
	}
}

// ResetCommandBuffer drops cb's recording state, if any, rolling back
// (never resetting — the GPU was never told about these slots) every slot
// it had allocated.
func (t *SubmissionTracker[D, DM, QP, P]) ResetCommandBuffer(ctx context.Context, cb CommandBuffer) {
	t.mu.Lock()
	rec, ok := t.commandBufferToState[cb]
	if !ok {
		t.mu.Unlock()
		return
	}
	device, hasDevice := t.commandBufferToDevice[cb]
	slots := collectSlots(rec)
	delete(t.commandBufferToState, cb)
	t.mu.Unlock()

	if !hasDevice {
		t.fatal(ctx, "command buffer %v has no tracked device", cb)
		return
	}
	if len(slots) > 0 {
		t.queryPool.Rollback(device, slots)
	}
}

// ResetCommandPool applies ResetCommandBuffer to every command buffer
// currently tracked under pool.
func (t *SubmissionTracker[D, DM, QP, P]) ResetCommandPool(ctx context.Context, pool CommandPool) {
	t.mu.RLock()
	set, ok := t.poolToCommandBuffers[pool]
	var cbs []CommandBuffer
	if ok {
		cbs = make([]CommandBuffer, 0, len(set))
		for cb := range set {
			cbs = append(cbs, cb)
		}
	}
	t.mu.RUnlock()
	if !ok {
		return
	}
	for _, cb := range cbs {
		t.ResetCommandBuffer(ctx, cb)
	}
}

// collectSlots gathers every slot index ever allocated for rec: begin, end,
// and every marker that got one.
func collectSlots(rec *commandBufferRec) []uint32 {
	var slots []uint32
	if rec.beginSlot != nil {
		slots = append(slots, *rec.beginSlot)
	}
	if rec.endSlot != nil {
		slots = append(slots, *rec.endSlot)
	}
	for _, m := range rec.markers {
		if m.slot != nil {
			slots = append(slots, *m.slot)
		}
	}
	return slots
}
