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

import "bytes"

// KATVector is a single known-answer test vector: digest-or-mac expected
// for a given input under a given algorithm, grounded on the KAT fixtures
// shipped in original_source/core/crypto/kat and exercised en masse in
// original_source/core/testing/crypto/hash_test.c. The real primitives and
// their fixed vectors live outside this module's scope (spec.md section 1);
// SelfTest only validates the shape of that contract: a one-shot
// computation must exactly match Expected, and a single-byte perturbation
// of Expected must be detected.
type KATVector struct {
	Name     string
	Algo     HashAlgorithm
	Input    []byte
	Expected []byte
}

// SelfTest runs a one-shot Calculate against every vector and returns the
// first mismatch's vector name, or "" if every vector passed. A detected
// mismatch is what production code surfaces as
// roterr.KindCryptoSelfTestFailed.
func SelfTest(engine HashEngine, vectors []KATVector) (failedVector string, ok bool) {
	for _, v := range vectors {
		out := make([]byte, len(v.Expected))
		if _, err := engine.Calculate(v.Algo, v.Input, out); err != nil {
			return v.Name, false
		}
		if !bytes.Equal(out, v.Expected) {
			return v.Name, false
		}
	}
	return "", true
}

// Perturb returns a copy of b with the byte at index i flipped, for tests
// that assert a single-byte corruption of a KAT's expected output is
// detectable (spec.md section 8 property 5).
func Perturb(b []byte, i int) []byte {
	out := append([]byte(nil), b...)
	out[i%len(out)] ^= 0xFF
	return out
}
