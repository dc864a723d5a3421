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

// Command vklayerdemo drives a synthetic Vulkan frame through
// vklayer.SubmissionTracker against an in-process simulated driver, and
// dumps the harvested capture events as JSON. It exists to exercise the
// tracker the way a real layer host would, without a GPU.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"github.com/google/agi-vklayer/core/log"
	"github.com/google/agi-vklayer/internal/harness"
	"github.com/google/agi-vklayer/vklayer"
)

var (
	numFrames   = flag.Int("frames", 3, "number of synthetic frames to submit")
	markerDepth = flag.Uint("max-marker-depth", 8, "local debug marker depth cap, 0 for unlimited")
)

const (
	device     vklayer.Device          = 1
	physDevice vklayer.PhysicalDevice  = 1
	pool       vklayer.CommandPool     = 1
	queue      vklayer.Queue           = 1
	poolHandle vklayer.QueryPoolHandle = 1
	querySlots uint32                  = 64
	periodNs   float32                 = 1.0 // one GPU tick per nanosecond, for a readable demo
)

func main() {
	flag.Parse()
	log.SetFatalHandler(func(msg string) { os.Exit(1) })

	ctx := context.Background()
	dispatch := harness.NewSimDispatch()
	queryPool := harness.NewSimQueryPool(poolHandle, querySlots)
	deviceMgr := harness.NewFixedDeviceManager(physDevice, periodNs)
	producer := harness.NewMemoryProducer()
	producer.SetCapturing(true)

	tracker := vklayer.New[*harness.SimDispatch, *harness.FixedDeviceManager, *harness.SimQueryPool, *harness.MemoryProducer](
		uint32(*markerDepth), dispatch, deviceMgr, queryPool, producer)

	tracker.TrackCommandBuffers(ctx, device, pool, []vklayer.CommandBuffer{1})

	for frame := 0; frame < *numFrames; frame++ {
		cb := vklayer.CommandBuffer(1)

		tracker.MarkCommandBufferBegin(ctx, cb)
		tracker.MarkDebugMarkerBegin(ctx, cb, "frame", vklayer.Color{Green: 1, Alpha: 1})
		tracker.MarkDebugMarkerBegin(ctx, cb, "geometry pass", vklayer.Color{Red: 1, Alpha: 1})
		tracker.MarkDebugMarkerEnd(ctx, cb)
		tracker.MarkDebugMarkerBegin(ctx, cb, "lighting pass", vklayer.Color{Blue: 1, Alpha: 1})
		tracker.MarkDebugMarkerEnd(ctx, cb)
		tracker.MarkDebugMarkerEnd(ctx, cb)
		tracker.MarkCommandBufferEnd(ctx, cb)

		pre := tracker.PreSubmission()
		tracker.PostSubmission(ctx, queue, []vklayer.SubmitInfo{{CommandBuffers: []vklayer.CommandBuffer{cb}}}, pre)

		// A real host calls CompleteSubmits from its present hook; here the
		// simulated GPU has already "executed" everything by the time
		// PostSubmission returns, so one call per frame is enough to drain it.
		tracker.CompleteSubmits(ctx, device)

		log.I(ctx, "submitted and harvested frame %d", frame)
		time.Sleep(time.Millisecond)
	}

	enc := sonnet.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(producer.Events()); err != nil {
		log.F(ctx, "encoding captured events: %v", err)
	}
}
