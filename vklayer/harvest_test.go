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

import (
	"context"
	"testing"
)

// TestScenario1SingleCommandBufferThroughout mirrors spec.md scenario 1:
// one command buffer, capturing the whole time, slots 32 and 33, GPU ticks
// 11 and 12 at a 1.0 timestamp period — the event carries begin=11, end=12,
// and the reclaim batch is exactly {32, 33}.
func TestScenario1SingleCommandBufferThroughout(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(0)
	h.producer.capturing = true
	h.queryPool.preset = []uint32{32, 33}
	h.deviceManager.timestampPeriod = 1.0

	h.tracker.TrackCommandBuffers(ctx, testDevice, testPool, []CommandBuffer{testCB})
	h.tracker.MarkCommandBufferBegin(ctx, testCB)
	h.tracker.MarkCommandBufferEnd(ctx, testCB)

	h.dispatch.setReady(32, 11)
	h.dispatch.setReady(33, 12)

	pre := h.tracker.PreSubmission()
	h.tracker.PostSubmission(ctx, testQueue, []SubmitInfo{{CommandBuffers: []CommandBuffer{testCB}}}, pre)
	h.tracker.CompleteSubmits(ctx, testDevice)

	if len(h.producer.events) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(h.producer.events))
	}
	cb := h.producer.events[0].SubmitInfos[0].CommandBuffers[0]
	if cb.BeginGPUTimestampNs == nil || *cb.BeginGPUTimestampNs != 11 {
		t.Fatalf("expected begin timestamp 11, got %v", cb.BeginGPUTimestampNs)
	}
	if cb.EndGPUTimestampNs != 12 {
		t.Fatalf("expected end timestamp 12, got %d", cb.EndGPUTimestampNs)
	}

	if len(h.queryPool.reset) != 1 {
		t.Fatalf("expected a single reset batch, got %v", h.queryPool.reset)
	}
	got := map[uint32]bool{}
	for _, s := range h.queryPool.reset[0] {
		got[s] = true
	}
	if len(got) != 2 || !got[32] || !got[33] {
		t.Fatalf("expected reclaim batch {32, 33}, got %v", h.queryPool.reset[0])
	}
}

// TestScenario6HarvestDeferred mirrors spec.md scenario 6: a submission
// whose last timestamp is not yet ready is left untouched by one
// CompleteSubmits call and stays in the ledger; once it lands, the next
// call emits it exactly once and reclaims both of its slots together.
func TestScenario6HarvestDeferred(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(0)
	h.producer.capturing = true

	h.tracker.TrackCommandBuffers(ctx, testDevice, testPool, []CommandBuffer{testCB})
	h.tracker.MarkCommandBufferBegin(ctx, testCB)
	h.tracker.MarkCommandBufferEnd(ctx, testCB)

	pre := h.tracker.PreSubmission()
	h.tracker.PostSubmission(ctx, testQueue, []SubmitInfo{{CommandBuffers: []CommandBuffer{testCB}}}, pre)

	// First harvest attempt: nothing is ready yet.
	h.tracker.CompleteSubmits(ctx, testDevice)
	if len(h.producer.events) != 0 {
		t.Fatalf("expected no event on the first, not-ready harvest attempt")
	}
	if len(h.tracker.queueToSubmissions[testQueue]) != 1 {
		t.Fatalf("expected the submission to remain in the ledger")
	}

	// Now the end timestamp lands.
	for _, s := range h.queryPool.allocated {
		h.dispatch.setReady(s, uint64(200+s))
	}
	h.tracker.CompleteSubmits(ctx, testDevice)

	if len(h.producer.events) != 1 {
		t.Fatalf("expected exactly one event after the timestamp lands, got %d", len(h.producer.events))
	}
	if len(h.tracker.queueToSubmissions[testQueue]) != 0 {
		t.Fatalf("expected the ledger entry to be gone after harvest")
	}
	if len(h.queryPool.reset) != 1 || len(h.queryPool.reset[0]) != 2 {
		t.Fatalf("expected a single reclaim batch of both slots, got %v", h.queryPool.reset)
	}

	// A third call finds nothing left to do.
	h.tracker.CompleteSubmits(ctx, testDevice)
	if len(h.producer.events) != 1 {
		t.Fatalf("expected no additional event from a harvest with nothing pending")
	}
}

// TestEventOrderingMatchesSubmissionOrder is property P3: for a single
// queue, events are emitted to the Producer in the same order their
// submissions were posted.
func TestEventOrderingMatchesSubmissionOrder(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(0)
	h.producer.capturing = true

	const (
		cb1 CommandBuffer = 1
		cb2 CommandBuffer = 2
		cb3 CommandBuffer = 3
	)
	h.tracker.TrackCommandBuffers(ctx, testDevice, testPool, []CommandBuffer{cb1, cb2, cb3})

	for _, cb := range []CommandBuffer{cb1, cb2, cb3} {
		h.tracker.MarkCommandBufferBegin(ctx, cb)
		h.tracker.MarkCommandBufferEnd(ctx, cb)
		pre := h.tracker.PreSubmission()
		h.tracker.PostSubmission(ctx, testQueue, []SubmitInfo{{CommandBuffers: []CommandBuffer{cb}}}, pre)
	}

	for _, s := range h.queryPool.allocated {
		h.dispatch.setReady(s, uint64(s))
	}
	h.tracker.CompleteSubmits(ctx, testDevice)

	if len(h.producer.events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(h.producer.events))
	}
	var lastEnd uint64
	for i, ev := range h.producer.events {
		end := ev.SubmitInfos[0].CommandBuffers[0].EndGPUTimestampNs
		if i > 0 && end <= lastEnd {
			t.Fatalf("event %d out of order: end %d did not increase past %d", i, end, lastEnd)
		}
		lastEnd = end
	}
}

// TestNestedMarkerDepthIsMonotonic is property P4: a completed marker's
// recorded depth reflects its nesting level at Begin time, strictly
// increasing from outer to inner.
func TestNestedMarkerDepthIsMonotonic(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(0)
	h.producer.capturing = true
	h.tracker.TrackCommandBuffers(ctx, testDevice, testPool, []CommandBuffer{testCB})

	h.tracker.MarkCommandBufferBegin(ctx, testCB)
	h.tracker.MarkDebugMarkerBegin(ctx, testCB, "outer", Color{})
	h.tracker.MarkDebugMarkerBegin(ctx, testCB, "middle", Color{})
	h.tracker.MarkDebugMarkerBegin(ctx, testCB, "inner", Color{})
	h.tracker.MarkDebugMarkerEnd(ctx, testCB)
	h.tracker.MarkDebugMarkerEnd(ctx, testCB)
	h.tracker.MarkDebugMarkerEnd(ctx, testCB)
	h.tracker.MarkCommandBufferEnd(ctx, testCB)

	for _, s := range h.queryPool.allocated {
		h.dispatch.setReady(s, uint64(s))
	}
	pre := h.tracker.PreSubmission()
	h.tracker.PostSubmission(ctx, testQueue, []SubmitInfo{{CommandBuffers: []CommandBuffer{testCB}}}, pre)
	h.tracker.CompleteSubmits(ctx, testDevice)

	if len(h.producer.events) != 1 {
		t.Fatalf("expected one event, got %d", len(h.producer.events))
	}
	markers := h.producer.events[0].CompletedMarkers
	if len(markers) != 3 {
		t.Fatalf("expected 3 completed markers, got %d", len(markers))
	}

	byText := make(map[string]uint32)
	for _, m := range markers {
		key := h.producer.textFor(m.TextKey)
		byText[key] = m.Depth
	}
	if byText["outer"] >= byText["middle"] || byText["middle"] >= byText["inner"] {
		t.Fatalf("expected strictly increasing depth outer < middle < inner, got %v", byText)
	}
}
