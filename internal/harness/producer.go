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

package harness

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/blake2b"

	"github.com/google/agi-vklayer/vklayer"
)

// MemoryProducer is a Producer that keeps every captured event in memory
// and interns marker text by hashing it, rather than handing out a growing
// sequence number — two hosts that captured the same marker text get the
// same key without ever having to agree on interning order.
type MemoryProducer struct {
	capturing int32 // accessed atomically; toggled from outside the tracker's lock

	mu     sync.Mutex
	keys   map[string]uint64
	events []vklayer.GpuQueueSubmission
}

// NewMemoryProducer returns a producer with capture initially off.
func NewMemoryProducer() *MemoryProducer {
	return &MemoryProducer{keys: make(map[string]uint64)}
}

// SetCapturing flips the capture flag, simulating a capture session
// starting or stopping from outside the submission hot path.
func (p *MemoryProducer) SetCapturing(on bool) {
	var v int32
	if on {
		v = 1
	}
	atomic.StoreInt32(&p.capturing, v)
}

func (p *MemoryProducer) IsCapturing() bool {
	return atomic.LoadInt32(&p.capturing) != 0
}

// InternString hashes s with blake2b-256 and folds the digest into a
// uint64 key. Collisions are astronomically unlikely for the marker-text
// cardinality this layer ever sees, and unlike a counter, two producers
// hashing the same string independently converge on the same key.
func (p *MemoryProducer) InternString(s string) uint64 {
	sum := blake2b.Sum256([]byte(s))
	key := binary.LittleEndian.Uint64(sum[:8])

	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys[s] = key
	return key
}

func (p *MemoryProducer) EnqueueCaptureEvent(event vklayer.GpuQueueSubmission) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

// Events returns every event captured so far, in harvest order.
func (p *MemoryProducer) Events() []vklayer.GpuQueueSubmission {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]vklayer.GpuQueueSubmission, len(p.events))
	copy(out, p.events)
	return out
}
