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

package simflash

import (
	"github.com/nestybox/rotcore/internal/capabilities"
	"github.com/nestybox/rotcore/internal/roterr"
)

// Manifest is a fixture implementation of capabilities.Manifest: its own
// "signature" is just an expected-good/bad flag set by tests, and its
// regions are a fixed, caller-supplied list. Production manifests are
// parsed by the external PFM parser capability (spec.md section 1); this
// type exists purely to drive hostproc's region-walk logic in tests.
type Manifest struct {
	valid       bool
	regions     []capabilities.FirmwareRegion
	annotations map[string]string
}

// NewManifest builds a fixture manifest. valid controls what Verify
// returns; regions is returned verbatim, in order, by Regions().
func NewManifest(valid bool, regions []capabilities.FirmwareRegion, annotations map[string]string) *Manifest {
	return &Manifest{valid: valid, regions: regions, annotations: annotations}
}

func (m *Manifest) Verify(capabilities.HashEngine, capabilities.SignatureVerifier, []byte) (capabilities.ManifestResult, error) {
	if m.valid {
		return capabilities.ManifestGood, nil
	}
	return capabilities.ManifestBad, nil
}

func (m *Manifest) Regions() capabilities.RegionIterator {
	return &regionIterator{regions: m.regions}
}

func (m *Manifest) Annotations() map[string]string {
	return m.annotations
}

type regionIterator struct {
	regions []capabilities.FirmwareRegion
	idx     int
}

func (it *regionIterator) Next() (capabilities.FirmwareRegion, bool, error) {
	if it.idx >= len(it.regions) {
		return capabilities.FirmwareRegion{}, false, nil
	}
	r := it.regions[it.idx]
	it.idx++
	return r, true, nil
}

// ErrIterationFailed is a manifest-module IoError value for a region walk
// that fails partway. Manifest's own iterator never returns it, or any
// other error.
var ErrIterationFailed = roterr.New(roterr.ModuleManifest, roterr.KindIoError)
