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

// The mocks in this file stand in for Dispatch, DeviceManager, QueryPool
// and Producer, giving tests precise control over slot numbers and GPU
// timestamps so assertions can match spec.md's own worked examples.

type writeTimestampCall struct {
	cb    CommandBuffer
	stage PipelineStage
	pool  QueryPoolHandle
	slot  uint32
}

type mockDispatch struct {
	writes  []writeTimestampCall
	results map[uint32]uint64 // slot -> GPU ticks, if ready
}

func newMockDispatch() *mockDispatch {
	return &mockDispatch{results: make(map[uint32]uint64)}
}

func (d *mockDispatch) CmdWriteTimestamp(cb CommandBuffer, stage PipelineStage, pool QueryPoolHandle, slot uint32) {
	d.writes = append(d.writes, writeTimestampCall{cb, stage, pool, slot})
}

func (d *mockDispatch) GetQueryPoolResults64(device Device, pool QueryPoolHandle, slot uint32) (uint64, bool) {
	v, ok := d.results[slot]
	return v, ok
}

func (d *mockDispatch) setReady(slot uint32, ticks uint64) {
	d.results[slot] = ticks
}

// mockQueryPool hands out slots from a preset sequence (defaulting to a
// simple counter), and records every Reset/Rollback call so tests can
// assert slot conservation (P1/P2/P6).
type mockQueryPool struct {
	handle   QueryPoolHandle
	nextSlot uint32
	preset   []uint32 // if non-empty, consumed before falling back to nextSlot

	allocated []uint32
	reset     [][]uint32
	rollback  [][]uint32
	exhausted bool
}

func newMockQueryPool() *mockQueryPool {
	return &mockQueryPool{handle: 1}
}

func (p *mockQueryPool) Handle(device Device) QueryPoolHandle { return p.handle }

func (p *mockQueryPool) NextReady(device Device) (uint32, bool) {
	if p.exhausted {
		return 0, false
	}
	var slot uint32
	if len(p.preset) > 0 {
		slot = p.preset[0]
		p.preset = p.preset[1:]
	} else {
		slot = p.nextSlot
		p.nextSlot++
	}
	p.allocated = append(p.allocated, slot)
	return slot, true
}

func (p *mockQueryPool) Reset(device Device, slots []uint32) {
	cp := append([]uint32(nil), slots...)
	p.reset = append(p.reset, cp)
}

func (p *mockQueryPool) Rollback(device Device, slots []uint32) {
	cp := append([]uint32(nil), slots...)
	p.rollback = append(p.rollback, cp)
}

// reclaimed flattens every slot ever passed to Reset or Rollback.
func (p *mockQueryPool) reclaimed() []uint32 {
	var out []uint32
	for _, s := range p.reset {
		out = append(out, s...)
	}
	for _, s := range p.rollback {
		out = append(out, s...)
	}
	return out
}

type mockDeviceManager struct {
	physicalDevice  PhysicalDevice
	timestampPeriod float32
}

func newMockDeviceManager(period float32) *mockDeviceManager {
	return &mockDeviceManager{physicalDevice: 1, timestampPeriod: period}
}

func (m *mockDeviceManager) PhysicalDeviceOf(device Device) PhysicalDevice { return m.physicalDevice }
func (m *mockDeviceManager) TimestampPeriod(pd PhysicalDevice) float32     { return m.timestampPeriod }

type mockProducer struct {
	capturing bool
	interned  map[string]uint64
	nextKey   uint64
	events    []GpuQueueSubmission
}

func newMockProducer() *mockProducer {
	return &mockProducer{interned: make(map[string]uint64)}
}

func (p *mockProducer) IsCapturing() bool { return p.capturing }

func (p *mockProducer) InternString(s string) uint64 {
	if key, ok := p.interned[s]; ok {
		return key
	}
	p.nextKey++
	p.interned[s] = p.nextKey
	return p.nextKey
}

func (p *mockProducer) EnqueueCaptureEvent(event GpuQueueSubmission) {
	p.events = append(p.events, event)
}

// textFor reverses InternString's mapping, for tests that want to assert on
// the original marker text rather than its interned key.
func (p *mockProducer) textFor(key uint64) string {
	for text, k := range p.interned {
		if k == key {
			return text
		}
	}
	return ""
}

type testHarness struct {
	dispatch      *mockDispatch
	queryPool     *mockQueryPool
	deviceManager *mockDeviceManager
	producer      *mockProducer
	tracker       *SubmissionTracker[*mockDispatch, *mockDeviceManager, *mockQueryPool, *mockProducer]
}

func newTestHarness(maxLocalMarkerDepth uint32) *testHarness {
	h := &testHarness{
		dispatch:      newMockDispatch(),
		queryPool:     newMockQueryPool(),
		deviceManager: newMockDeviceManager(1.0),
		producer:      newMockProducer(),
	}
	h.tracker = New[*mockDispatch, *mockDeviceManager, *mockQueryPool, *mockProducer](
		maxLocalMarkerDepth, h.dispatch, h.deviceManager, h.queryPool, h.producer)
	return h
}

func ptr[T any](v T) *T { return &v }
