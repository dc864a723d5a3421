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
	"sync"

	"github.com/google/agi-vklayer/core/log"
)

// SubmissionTracker is internally synchronized (a single reader/writer
// lock guards the indexes and the ledger) and can be called concurrently
// from any thread the host uses for Vulkan. It is generic over its four
// collaborators so tests can substitute mocks.
type SubmissionTracker[D Dispatch, DM DeviceManager, QP QueryPool, P Producer] struct {
	maxLocalMarkerDepth uint32

	dispatch      D
	deviceManager DM
	queryPool     QP
	producer      P

	mu sync.RWMutex

	poolToCommandBuffers  map[CommandPool]map[CommandBuffer]struct{}
	commandBufferToDevice map[CommandBuffer]Device
	commandBufferToState  map[CommandBuffer]*commandBufferRec
	queueToSubmissions    map[Queue][]*queueSubmission
	queueToMarkerStack    map[Queue]*queueMarkerStack
}

// New constructs a SubmissionTracker. maxLocalMarkerDepth caps how deep
// nested debug markers are still timestamped per command buffer; 0 means
// unlimited (see §4.2's depth cap rationale).
func New[D Dispatch, DM DeviceManager, QP QueryPool, P Producer](
	maxLocalMarkerDepth uint32, dispatch D, deviceManager DM, queryPool QP, producer P,
) *SubmissionTracker[D, DM, QP, P] {
	return &SubmissionTracker[D, DM, QP, P]{
		maxLocalMarkerDepth:   maxLocalMarkerDepth,
		dispatch:              dispatch,
		deviceManager:         deviceManager,
		queryPool:             queryPool,
		producer:              producer,
		poolToCommandBuffers:  make(map[CommandPool]map[CommandBuffer]struct{}),
		commandBufferToDevice: make(map[CommandBuffer]Device),
		commandBufferToState:  make(map[CommandBuffer]*commandBufferRec),
		queueToSubmissions:    make(map[Queue][]*queueSubmission),
		queueToMarkerStack:    make(map[Queue]*queueMarkerStack),
	}
}

// fatal logs a precondition violation and hands control to the fatal
// handler (panic by default). It never returns.
func (t *SubmissionTracker[D, DM, QP, P]) fatal(ctx context.Context, format string, args ...interface{}) {
	log.F(ctx, format, args...)
}

// TrackCommandBuffers registers cbs as belonging to pool on device, so that
// later operations can be looked up without the caller supplying a device
// handle, and so ResetCommandPool can find every command buffer in a pool.
func (t *SubmissionTracker[D, DM, QP, P]) TrackCommandBuffers(ctx context.Context, device Device, pool CommandPool, cbs []CommandBuffer) {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.poolToCommandBuffers[pool]
	if !ok {
		set = make(map[CommandBuffer]struct{})
		t.poolToCommandBuffers[pool] = set
	}
	for _, cb := range cbs {
		if _, exists := t.commandBufferToDevice[cb]; exists {
			t.fatal(ctx, "command buffer %v is already tracked", cb)
			continue
		}
		set[cb] = struct{}{}
		t.commandBufferToDevice[cb] = device
	}
}

// UntrackCommandBuffers is the inverse of TrackCommandBuffers.
func (t *SubmissionTracker[D, DM, QP, P]) UntrackCommandBuffers(ctx context.Context, device Device, pool CommandPool, cbs []CommandBuffer) {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.poolToCommandBuffers[pool]
	if !ok {
		t.fatal(ctx, "command pool %v is not tracked", pool)
		return
	}
	for _, cb := range cbs {
		if _, present := set[cb]; !present {
			t.fatal(ctx, "command buffer %v is not tracked in pool %v", cb, pool)
			continue
		}
		delete(set, cb)

		d, present := t.commandBufferToDevice[cb]
		if !present || d != device {
			t.fatal(ctx, "command buffer %v untracked with mismatched device", cb)
			continue
		}
		delete(t.commandBufferToDevice, cb)
	}
	if len(set) == 0 {
		delete(t.poolToCommandBuffers, pool)
	}
}

// recordTimestamp allocates a query slot for cb's device and writes a GPU
// timestamp into it at the given pipeline stage, without holding the
// tracker's lock across the call into Dispatch (§5).
func (t *SubmissionTracker[D, DM, QP, P]) recordTimestamp(ctx context.Context, cb CommandBuffer, stage PipelineStage) uint32 {
	t.mu.RLock()
	device, ok := t.commandBufferToDevice[cb]
	t.mu.RUnlock()
	if !ok {
		t.fatal(ctx, "command buffer %v has no tracked device", cb)
	}

	poolHandle := t.queryPool.Handle(device)
	slot, ok := t.queryPool.NextReady(device)
	if !ok {
		t.fatal(ctx, "query slot pool exhausted for device %v", device)
	}
	t.dispatch.CmdWriteTimestamp(cb, stage, poolHandle, slot)
	return slot
}
