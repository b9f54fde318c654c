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

// Package capabilities declares the narrow contracts the engine consumes
// from the outside world: hashing, signature verification, flash access,
// manifest parsing, IRQ control, and event observation. None of these are
// implemented here -- concrete implementations (real crypto, real SPI
// drivers, the PFM parser) live outside this module's core and are injected
// at construction time. This mirrors the teacher's own
// function-pointer-in-struct split between engine and context, replaced
// here with plain Go interfaces per spec.md section 9.
package capabilities

import "context"

// HashAlgorithm identifies a supported digest algorithm. The specific
// primitives are out of scope for this module; only the capability surface
// is defined here.
type HashAlgorithm uint8

const (
	HashSHA1 HashAlgorithm = iota
	HashSHA256
	HashSHA384
	HashSHA512
)

func (a HashAlgorithm) String() string {
	switch a {
	case HashSHA1:
		return "sha1"
	case HashSHA256:
		return "sha256"
	case HashSHA384:
		return "sha384"
	case HashSHA512:
		return "sha512"
	default:
		return "unknown"
	}
}

// HashEngine is a one-hash-at-a-time streaming digest capability. Only one
// hash may be active between Start and Finish/Cancel; Update without an
// active hash fails with roterr.KindNoActiveHash; Finish into an
// undersized buffer fails with roterr.KindBufferTooSmall.
type HashEngine interface {
	Supports(algo HashAlgorithm) bool
	Start(algo HashAlgorithm) error
	Update(data []byte) error
	Finish(out []byte) (n int, err error)
	Cancel()
	// Calculate is the one-shot convenience path; it must be equivalent to
	// Start+Update+Finish for the same inputs.
	Calculate(algo HashAlgorithm, data []byte, out []byte) (n int, err error)
}

// VerifyResult is the tri-state outcome of a signature check: a bad
// signature is an expected adversarial outcome, not an internal error (see
// spec.md section 7), so it is returned as a value rather than an error.
type VerifyResult uint8

const (
	VerifyGood VerifyResult = iota
	VerifyBad
)

// SignatureVerifier checks a digest against a signature under a public key.
// Implementations must not leak timing information about the pass/fail
// decision on the final tag comparison.
type SignatureVerifier interface {
	Verify(pubKey []byte, digest []byte, signature []byte) (VerifyResult, error)
}

// SectorInfo describes one erase sector of a Flash device.
type SectorInfo struct {
	Offset uint32
	Length uint32
}

// Flash is the raw byte-addressable storage capability backing one SPI
// flash device (active or recovery). Implementations are expected to be
// safe to call only while the caller holds RoT access via
// flashmgr.HostFlashMgr.WithRotAccess.
type Flash interface {
	Read(ctx context.Context, offset uint32, buf []byte) (int, error)
	Erase(ctx context.Context, offset uint32, length uint32) error
	Write(ctx context.Context, offset uint32, data []byte) (int, error)
	Sectors() []SectorInfo
}

// FirmwareRegion is one signed, contiguous region of firmware as produced
// by the Manifest capability. Regions within a single manifest must be
// non-overlapping, sorted by Offset, and jointly cover every byte of
// claimed firmware exactly once. The manifest walk in hostproc reports
// overlapping regions as BadManifest; it does not check sort order or
// coverage, and this type itself checks nothing.
type FirmwareRegion struct {
	Offset       uint32
	Length       uint32
	Signature    []byte
	HashType     HashAlgorithm
	SigAlgorithm string
}

// ManifestResult mirrors VerifyResult for manifest-level verification.
type ManifestResult uint8

const (
	ManifestGood ManifestResult = iota
	ManifestBad
)

// RegionIterator yields FirmwareRegions lazily, in ascending offset order,
// and is restartable (a fresh call to Manifest.Regions starts over).
type RegionIterator interface {
	// Next returns the next region, or ok=false once exhausted.
	Next() (region FirmwareRegion, ok bool, err error)
}

// Manifest is the PFM capability: it verifies its own signed envelope and,
// once verified, yields the region descriptors covering the firmware it
// describes. Annotations carries free-form provisioning metadata (for
// example PIT-related tags) the manifest author attached out of band.
type Manifest interface {
	Verify(hash HashEngine, verifier SignatureVerifier, pubKey []byte) (ManifestResult, error)
	Regions() RegionIterator
	Annotations() map[string]string
}

// ChipSelect identifies which SPI flash device is currently routed to the
// host.
type ChipSelect uint8

const (
	CS0 ChipSelect = iota
	CS1
)

func (c ChipSelect) String() string {
	if c == CS0 {
		return "cs0"
	}
	return "cs1"
}

// HostIrqControl is the narrow hardware-glue capability for toggling the
// signals the IRQ handler reacts to: releasing the host from reset and
// enabling/forcing chip-select lines.
type HostIrqControl interface {
	EnableExitReset(on bool) error
	EnableChipSelect(cs ChipSelect, on bool) error
	ForceIrq(cs ChipSelect) error
}

// Observer consumes one event of type E at a time. A sink's own failure
// must never propagate back to the producer; implementations that can fail
// (for example a log sink whose backend is down) must swallow and record
// the failure internally.
type Observer[E any] interface {
	Notify(event E)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc[E any] func(event E)

func (f ObserverFunc[E]) Notify(event E) { f(event) }
