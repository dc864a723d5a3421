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

import "github.com/google/agi-vklayer/vklayer"

// FixedDeviceManager reports a single physical device with a fixed
// timestamp period, standing in for vkGetPhysicalDeviceProperties in a host
// with no real driver to query.
type FixedDeviceManager struct {
	PhysicalDevice    vklayer.PhysicalDevice
	TimestampPeriodNs float32
}

// NewFixedDeviceManager returns a manager reporting physicalDevice for every
// logical device, at the given nanoseconds-per-tick period.
func NewFixedDeviceManager(physicalDevice vklayer.PhysicalDevice, periodNs float32) *FixedDeviceManager {
	return &FixedDeviceManager{PhysicalDevice: physicalDevice, TimestampPeriodNs: periodNs}
}

func (m *FixedDeviceManager) PhysicalDeviceOf(device vklayer.Device) vklayer.PhysicalDevice {
	return m.PhysicalDevice
}

func (m *FixedDeviceManager) TimestampPeriod(pd vklayer.PhysicalDevice) float32 {
	return m.TimestampPeriodNs
}
