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

// Package hostproc implements HostProcessor (spec.md section 4.4): it
// authenticates host firmware against a signed manifest, decides whether to
// release the host from reset, and drives recovery from the backup flash
// when authentication cannot succeed.
package hostproc

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nestybox/rotcore/internal/capabilities"
	"github.com/nestybox/rotcore/internal/flashmgr"
	"github.com/nestybox/rotcore/internal/hoststate"
	"github.com/nestybox/rotcore/internal/observers"
	"github.com/nestybox/rotcore/internal/roterr"
	"github.com/sirupsen/logrus"
)

// Config carries the tunables of spec.md section 6.
type Config struct {
	RecoveryAttemptsCap  uint32
	AllowUnsecureDefault bool
}

// Deps bundles the capabilities HostProcessor is constructed with.
type Deps struct {
	State       *hoststate.HostState
	Flash       *flashmgr.HostFlashMgr
	Hash        capabilities.HashEngine // bound at construction; always used for manifest verification
	Verifier    capabilities.SignatureVerifier
	Manifest    capabilities.Manifest // active manifest
	RecoveryMan capabilities.Manifest // recovery (backup) manifest
	PubKey      []byte
	Control     capabilities.HostIrqControl
	Observers   *observers.Registry
	Config      Config
	Log         *logrus.Entry
}

// HostProcessor is the C4 engine. All public methods are safe to call from
// multiple goroutines; the in-flight flag ensures at most one
// authentication or recovery operation runs at a time: a call made while
// another is in flight fails immediately with Cancelled and does not wait.
// Callers are expected to serialise through irqhandler's per-host mutex
// and never reach here concurrently.
type HostProcessor struct {
	deps Deps
	log  *logrus.Entry

	mu         sync.Mutex
	inFlight   bool
	cancelFunc context.CancelFunc

	recoveryRunning atomic.Bool
}

func New(d Deps) *HostProcessor {
	log := d.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &HostProcessor{deps: d, log: log.WithField("component", "hostproc")}
}

// NeedsRecovery reports whether the last recorded authentication failed and
// the recovery-attempts cap has not yet been hit.
func (p *HostProcessor) NeedsRecovery() bool {
	snap := p.deps.State.Snapshot()
	return !snap.Authenticated && snap.RecoveryAttempts < p.deps.Config.RecoveryAttemptsCap
}

// Cancel aborts any in-flight PowerOn/SoftReset/RunRecovery/ForceRecovery
// call. The aborted call's context is cancelled; the region walk checks it
// before each region, so it stops at the next region boundary and releases
// its flash lock (the WithRotAccess finalizer) without touching HostState
// -- authentication is all-or-nothing. A Calculate already running on a
// region is not interrupted, and HashEngine.Cancel is not called.
func (p *HostProcessor) Cancel() {
	p.mu.Lock()
	cancel := p.cancelFunc
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (p *HostProcessor) beginOp(ctx context.Context) (context.Context, func(), error) {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		return nil, nil, roterr.New(roterr.ModuleHostProcessor, roterr.KindCancelled)
	}
	opCtx, cancel := context.WithCancel(ctx)
	p.inFlight = true
	p.cancelFunc = cancel
	p.mu.Unlock()

	done := func() {
		p.mu.Lock()
		p.inFlight = false
		p.cancelFunc = nil
		p.mu.Unlock()
		cancel()
	}
	return opCtx, done, nil
}

// PowerOn runs the authentication algorithm of spec.md section 4.4 in
// response to HOST_PWR_GOOD. overrideHash, if non-nil, is used only for the
// region walk (step 3); the manifest itself (step 2) is always verified
// with the HashEngine bound at construction, per spec.md's anti-substitution
// rule.
func (p *HostProcessor) PowerOn(ctx context.Context, allowUnsecure bool, overrideHash capabilities.HashEngine) (capabilities.AuthOutcome, error) {
	return p.authenticate(ctx, allowUnsecure, true, overrideHash)
}

// SoftReset runs the same authentication algorithm without bypass
// eligibility (spec.md step 5 restricts bypass to power_on).
func (p *HostProcessor) SoftReset(ctx context.Context) (capabilities.AuthOutcome, error) {
	return p.authenticate(ctx, false, false, nil)
}

func (p *HostProcessor) authenticate(ctx context.Context, allowUnsecure bool, isPowerOn bool, overrideHash capabilities.HashEngine) (capabilities.AuthOutcome, error) {
	opCtx, done, err := p.beginOp(ctx)
	if err != nil {
		return capabilities.AuthOutcome{}, err
	}
	defer done()

	if p.deps.State.UnsupportedFlash() {
		return capabilities.AuthOutcome{Kind: capabilities.AuthUnsupportedFlash}, nil
	}

	regionHash := p.deps.Hash
	if overrideHash != nil {
		regionHash = overrideHash
	}

	outcome, authErr := flashmgr.WithRotAccess(opCtx, p.deps.Flash, func(ctx context.Context) (capabilities.AuthOutcome, error) {
		return p.runAuthWalk(ctx, p.deps.Flash.ActiveFlash(), p.deps.Manifest, regionHash)
	})
	if authErr != nil {
		if opCtx.Err() != nil {
			return capabilities.AuthOutcome{}, roterr.New(roterr.ModuleHostProcessor, roterr.KindCancelled)
		}
		return capabilities.AuthOutcome{}, authErr
	}

	if outcome.Kind == capabilities.AuthBadManifest {
		if err := p.deps.State.ClearPfmDirty(); err != nil {
			return capabilities.AuthOutcome{}, err
		}
	}

	if outcome.Good() {
		if err := p.deps.State.RecordAuthSuccess(); err != nil {
			return capabilities.AuthOutcome{}, err
		}
		if err := p.releaseHost(); err != nil {
			return capabilities.AuthOutcome{}, err
		}
		p.notify("auth.good", observers.LevelInfo, nil)
		return outcome, nil
	}

	if err := p.deps.State.RecordAuthFailure(); err != nil {
		return capabilities.AuthOutcome{}, err
	}

	if allowUnsecure && isPowerOn && p.deps.State.Bypass() {
		if err := p.releaseHost(); err != nil {
			return capabilities.AuthOutcome{}, err
		}
		p.notify("auth.bypass", observers.LevelWarn, map[string]any{"kind": outcome.Kind})
		return capabilities.AuthOutcome{Kind: capabilities.AuthGood, Bypass: true}, nil
	}

	p.notify("auth.failed", observers.LevelWarn, map[string]any{
		"kind":         outcome.Kind,
		"region_index": outcome.RegionIndex,
	})
	return outcome, nil
}

func (p *HostProcessor) releaseHost() error {
	if err := p.deps.Control.EnableExitReset(true); err != nil {
		return err
	}
	return nil
}

func (p *HostProcessor) notify(category string, level observers.Level, fields map[string]any) {
	if p.deps.Observers == nil {
		return
	}
	p.deps.Observers.Notify(observers.Event{Category: category, Level: level, Fields: fields})
}

// runAuthWalk is the shared manifest-verify + region-walk body used by both
// authentication (spec.md 4.4 steps 2-3) and recovery validation (4.4
// recovery steps 2 and 5). It must be called while the caller already holds RoT flash
// access.
func (p *HostProcessor) runAuthWalk(ctx context.Context, flash capabilities.Flash, man capabilities.Manifest, hash capabilities.HashEngine) (capabilities.AuthOutcome, error) {
	result, err := man.Verify(p.deps.Hash, p.deps.Verifier, p.deps.PubKey)
	if err != nil {
		return capabilities.AuthOutcome{Kind: capabilities.AuthIoError, Cause: err}, nil
	}
	if result == capabilities.ManifestBad {
		return capabilities.AuthOutcome{Kind: capabilities.AuthBadManifest}, nil
	}

	regions, err := collectRegions(man)
	if err != nil {
		return capabilities.AuthOutcome{Kind: capabilities.AuthBadManifest, Cause: err}, nil
	}
	if err := validateNonOverlapping(regions); err != nil {
		return capabilities.AuthOutcome{Kind: capabilities.AuthBadManifest, Cause: err}, nil
	}

	buf := make([]byte, maxRegionLen(regions))
	for idx, region := range regions {
		select {
		case <-ctx.Done():
			return capabilities.AuthOutcome{}, roterr.New(roterr.ModuleHostProcessor, roterr.KindCancelled)
		default:
		}

		n, err := flashmgr.ReadRegion(ctx, flash, region, buf)
		if err != nil {
			return capabilities.AuthOutcome{Kind: capabilities.AuthIoError, Cause: err}, nil
		}

		digest := make([]byte, digestSize(region.HashType))
		if _, err := hash.Calculate(region.HashType, buf[:n], digest); err != nil {
			return capabilities.AuthOutcome{Kind: capabilities.AuthIoError, Cause: err}, nil
		}

		vr, err := p.deps.Verifier.Verify(p.deps.PubKey, digest, region.Signature)
		if err != nil {
			return capabilities.AuthOutcome{Kind: capabilities.AuthIoError, Cause: err}, nil
		}
		if vr == capabilities.VerifyBad {
			return capabilities.AuthOutcome{Kind: capabilities.AuthBadSignature, RegionIndex: idx}, nil
		}
	}

	return capabilities.AuthOutcome{Kind: capabilities.AuthGood}, nil
}

func collectRegions(man capabilities.Manifest) ([]capabilities.FirmwareRegion, error) {
	var regions []capabilities.FirmwareRegion
	it := man.Regions()
	for {
		region, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		regions = append(regions, region)
	}
	return regions, nil
}

// validateNonOverlapping rejects a manifest whose regions overlap, per
// spec.md section 4.4's "Overlapping regions in a manifest are rejected at
// verify time (BadManifest)."
func validateNonOverlapping(regions []capabilities.FirmwareRegion) error {
	for i := range regions {
		for j := i + 1; j < len(regions); j++ {
			if capabilities.RegionsOverlap(regions[i], regions[j]) {
				return roterr.New(roterr.ModuleManifest, roterr.KindBadManifest)
			}
		}
	}
	return nil
}

func maxRegionLen(regions []capabilities.FirmwareRegion) uint32 {
	var max uint32
	for _, r := range regions {
		if r.Length > max {
			max = r.Length
		}
	}
	if max == 0 {
		max = 1
	}
	return max
}

func digestSize(algo capabilities.HashAlgorithm) int {
	switch algo {
	case capabilities.HashSHA1:
		return 20
	case capabilities.HashSHA256:
		return 32
	case capabilities.HashSHA384:
		return 48
	case capabilities.HashSHA512:
		return 64
	default:
		return 64
	}
}
