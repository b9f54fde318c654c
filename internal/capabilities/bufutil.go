//
// Copyright 2024-2026 Nestybox, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package capabilities

// RegionsOverlap reports whether two firmware regions claim any byte in
// common. Grounded on the original source's buffer_are_overlapping macro
// (core/common/buffer_util.h): two ranges overlap iff either start falls
// inside the other range, at or after its start and before its end.
func RegionsOverlap(a, b FirmwareRegion) bool {
	aEnd := a.Offset + a.Length
	bEnd := b.Offset + b.Length
	return (a.Offset >= b.Offset && a.Offset < bEnd) ||
		(b.Offset >= a.Offset && b.Offset < aEnd)
}

// Zeroize overwrites buf with zero bytes. It is used to scrub transient key
// material and rolled-back scratch state rather than merely letting it be
// garbage collected.
func Zeroize(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
