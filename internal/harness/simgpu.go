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

// Package harness provides in-process stand-ins for the Vulkan driver
// collaborators vklayer.SubmissionTracker is parameterised over, so a host
// can exercise the tracker end to end without a real GPU.
package harness

import (
	"sync"

	"github.com/google/agi-vklayer/vklayer"
)

// SimQueryPool is a fixed-size free-list query pool: NextReady hands out
// slots from the free list, Reset and Rollback return them to it.
type SimQueryPool struct {
	mu     sync.Mutex
	handle vklayer.QueryPoolHandle
	free   []uint32
}

// NewSimQueryPool creates a pool of size slots, all initially free.
func NewSimQueryPool(handle vklayer.QueryPoolHandle, size uint32) *SimQueryPool {
	p := &SimQueryPool{handle: handle}
	for i := uint32(0); i < size; i++ {
		p.free = append(p.free, i)
	}
	return p
}

func (p *SimQueryPool) Handle(device vklayer.Device) vklayer.QueryPoolHandle {
	return p.handle
}

func (p *SimQueryPool) NextReady(device vklayer.Device) (uint32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		return 0, false
	}
	n := len(p.free) - 1
	slot := p.free[n]
	p.free = p.free[:n]
	return slot, true
}

func (p *SimQueryPool) Reset(device vklayer.Device, slots []uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, slots...)
}

func (p *SimQueryPool) Rollback(device vklayer.Device, slots []uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, slots...)
}

// SimDispatch is a fake Vulkan dispatch table: CmdWriteTimestamp stamps a
// monotonically increasing GPU tick into the slot it's given, simulating a
// GPU timeline that always advances in submission order; GetQueryPoolResults64
// reports a query as landed once it's been written.
type SimDispatch struct {
	mu      sync.Mutex
	nextTck uint64
	written map[uint32]uint64
}

// NewSimDispatch returns a dispatch table with an empty result set.
func NewSimDispatch() *SimDispatch {
	return &SimDispatch{written: make(map[uint32]uint64)}
}

func (d *SimDispatch) CmdWriteTimestamp(cb vklayer.CommandBuffer, stage vklayer.PipelineStage, pool vklayer.QueryPoolHandle, slot uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextTck++
	d.written[slot] = d.nextTck
}

func (d *SimDispatch) GetQueryPoolResults64(device vklayer.Device, pool vklayer.QueryPoolHandle, slot uint32) (uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.written[slot]
	return v, ok
}
