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

// Package testcrypto provides stdlib-backed fakes of the HashEngine and
// SignatureVerifier capabilities (spec.md section 4.1) for use in this
// module's own tests and in the simulated setups of cmd/rotctl and
// cmd/rotcored.
//
// Real hash/HMAC/signature primitives are explicitly out of scope for this
// core (spec.md section 1: "the core consumes a HashEngine capability");
// production deployments wire in a real crypto engine from outside this
// module. Reaching for crypto/sha256 and crypto/hmac here, instead of a
// third-party crypto library from the example pack, is the correct side of
// that boundary: a fake standing in for an externally-owned capability
// should not pull in a production crypto dependency this module does not
// actually own the selection of.
package testcrypto

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"hash"

	"github.com/nestybox/rotcore/internal/capabilities"
	"github.com/nestybox/rotcore/internal/roterr"
)

// HashEngine is a single-active-hash streaming digest fake implementing
// capabilities.HashEngine over the standard library's hash.Hash.
type HashEngine struct {
	active hash.Hash
	algo   capabilities.HashAlgorithm
}

func NewHashEngine() *HashEngine {
	return &HashEngine{}
}

func newHash(algo capabilities.HashAlgorithm) (hash.Hash, bool) {
	switch algo {
	case capabilities.HashSHA1:
		return sha1.New(), true
	case capabilities.HashSHA256:
		return sha256.New(), true
	case capabilities.HashSHA384:
		return sha512.New384(), true
	case capabilities.HashSHA512:
		return sha512.New(), true
	default:
		return nil, false
	}
}

func (e *HashEngine) Supports(algo capabilities.HashAlgorithm) bool {
	_, ok := newHash(algo)
	return ok
}

func (e *HashEngine) Start(algo capabilities.HashAlgorithm) error {
	h, ok := newHash(algo)
	if !ok {
		return roterr.New(roterr.ModuleHostProcessor, roterr.KindCryptoUnsupported)
	}
	e.active = h
	e.algo = algo
	return nil
}

func (e *HashEngine) Update(data []byte) error {
	if e.active == nil {
		return roterr.New(roterr.ModuleHostProcessor, roterr.KindNoActiveHash)
	}
	e.active.Write(data)
	return nil
}

func (e *HashEngine) Finish(out []byte) (int, error) {
	if e.active == nil {
		return 0, roterr.New(roterr.ModuleHostProcessor, roterr.KindNoActiveHash)
	}
	size := e.active.Size()
	if len(out) < size {
		return 0, roterr.New(roterr.ModuleHostProcessor, roterr.KindBufferTooSmall)
	}
	sum := e.active.Sum(nil)
	n := copy(out, sum)
	e.active = nil
	return n, nil
}

func (e *HashEngine) Cancel() {
	e.active = nil
}

func (e *HashEngine) Calculate(algo capabilities.HashAlgorithm, data []byte, out []byte) (int, error) {
	h, ok := newHash(algo)
	if !ok {
		return 0, roterr.New(roterr.ModuleHostProcessor, roterr.KindCryptoUnsupported)
	}
	h.Write(data)
	sum := h.Sum(nil)
	if len(out) < len(sum) {
		return 0, roterr.New(roterr.ModuleHostProcessor, roterr.KindBufferTooSmall)
	}
	return copy(out, sum), nil
}

// HMAC computes HMAC(key, msg) with the given hash constructor, used both
// by the incremental and one-shot paths in tests that assert the HMAC law
// of spec.md section 8 property 6.
func HMAC(newHash func() hash.Hash, key, msg []byte) []byte {
	mac := hmac.New(newHash, key)
	mac.Write(msg)
	return mac.Sum(nil)
}

// SignatureVerifier is a fake "signature" scheme for tests: a signature is
// simply the expected digest bytes, compared in constant time, matching
// spec.md's "must not leak timing on the pass/fail decision" without
// standing up real RSA/ECC.
type SignatureVerifier struct{}

func NewSignatureVerifier() *SignatureVerifier {
	return &SignatureVerifier{}
}

func (v *SignatureVerifier) Verify(pubKey []byte, digest []byte, signature []byte) (capabilities.VerifyResult, error) {
	if len(digest) != len(signature) {
		return capabilities.VerifyBad, nil
	}
	if subtle.ConstantTimeCompare(digest, signature) == 1 {
		return capabilities.VerifyGood, nil
	}
	return capabilities.VerifyBad, nil
}
