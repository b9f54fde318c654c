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

package hostproc

import (
	"context"

	"github.com/nestybox/rotcore/internal/capabilities"
	"github.com/nestybox/rotcore/internal/flashmgr"
	"github.com/nestybox/rotcore/internal/observers"
	"github.com/nestybox/rotcore/internal/roterr"
)

// RunRecovery implements spec.md section 4.4's recovery algorithm, called
// from the CS1 path (assert_cs1 -> run_recovery). ForceRecovery is its
// operator-triggered twin and shares the same body.
func (p *HostProcessor) RunRecovery(ctx context.Context) error {
	return p.recover(ctx)
}

// ForceRecovery mirrors RunRecovery but must succeed from any bmcrecovery
// state (spec.md section 4.5's "any, force_recovery -> Rollback, bypass
// guards"); the guard bypass is the caller's (bmcrecovery's) concern, not
// this method's -- from HostProcessor's perspective the two calls are
// identical.
func (p *HostProcessor) ForceRecovery(ctx context.Context) error {
	return p.recover(ctx)
}

func (p *HostProcessor) recover(ctx context.Context) error {
	if !p.recoveryRunning.CompareAndSwap(false, true) {
		p.notify("event.dropped", observers.LevelWarn, map[string]any{"trigger": "recovery_busy", "source": "hostproc"})
		return roterr.New(roterr.ModuleHostProcessor, roterr.KindBusBusy)
	}
	defer p.recoveryRunning.Store(false)

	if p.deps.State.RecoveryAttempts() >= p.deps.Config.RecoveryAttemptsCap {
		return roterr.New(roterr.ModuleHostProcessor, roterr.KindRecoveryExhausted)
	}

	p.notify("recovery.started", observers.LevelWarn, nil)

	opCtx, done, err := p.beginOp(ctx)
	if err != nil {
		return err
	}
	defer done()

	_, recErr := flashmgr.WithRotAccess(opCtx, p.deps.Flash, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.runRecoverySteps(ctx)
	})
	if recErr != nil {
		if err := p.deps.State.RecordAuthFailure(); err != nil {
			return err
		}
		p.notify("recovery.failed", observers.LevelError, map[string]any{"cause": recErr.Error()})
		return recErr
	}

	p.deps.Flash.SwapActiveFlash()
	if err := p.deps.State.RecordAuthSuccess(); err != nil {
		return err
	}
	if err := p.releaseHost(); err != nil {
		return err
	}
	p.notify("recovery.succeeded", observers.LevelInfo, nil)
	return nil
}

// runRecoverySteps performs spec.md section 4.4 recovery steps 2-5: it must
// run while RoT flash access is already held.
func (p *HostProcessor) runRecoverySteps(ctx context.Context) error {
	recoveryFlash := p.deps.Flash.RecoveryFlash()
	activeFlash := p.deps.Flash.ActiveFlash()

	backupOutcome, err := p.runAuthWalk(ctx, recoveryFlash, p.deps.RecoveryMan, p.deps.Hash)
	if err != nil {
		return err
	}
	if !backupOutcome.Good() {
		return outcomeToError(backupOutcome)
	}

	regions, err := collectRegions(p.deps.RecoveryMan)
	if err != nil {
		return roterr.Wrap(roterr.ModuleHostProcessor, roterr.KindBadManifest, err)
	}

	for _, region := range regions {
		if err := activeFlash.Erase(ctx, region.Offset, region.Length); err != nil {
			return roterr.Wrap(roterr.ModuleHostProcessor, roterr.KindIoError, err)
		}
	}

	buf := make([]byte, maxRegionLen(regions))
	defer capabilities.Zeroize(buf)
	for _, region := range regions {
		n, err := flashmgr.ReadRegion(ctx, recoveryFlash, region, buf)
		if err != nil {
			return roterr.Wrap(roterr.ModuleHostProcessor, roterr.KindIoError, err)
		}
		if _, err := activeFlash.Write(ctx, region.Offset, buf[:n]); err != nil {
			return roterr.Wrap(roterr.ModuleHostProcessor, roterr.KindIoError, err)
		}
		capabilities.Zeroize(buf[:n])
	}

	postOutcome, err := p.runAuthWalk(ctx, activeFlash, p.deps.RecoveryMan, p.deps.Hash)
	if err != nil {
		return err
	}
	if !postOutcome.Good() {
		return outcomeToError(postOutcome)
	}

	return nil
}

func outcomeToError(outcome capabilities.AuthOutcome) error {
	switch outcome.Kind {
	case capabilities.AuthBadSignature:
		return roterr.New(roterr.ModuleHostProcessor, roterr.KindBadSignature)
	case capabilities.AuthBadManifest:
		return roterr.New(roterr.ModuleHostProcessor, roterr.KindBadManifest)
	case capabilities.AuthUnsupportedFlash:
		return roterr.New(roterr.ModuleHostProcessor, roterr.KindUnsupportedFlash)
	default:
		return roterr.Wrap(roterr.ModuleHostProcessor, roterr.KindIoError, outcome.Cause)
	}
}
