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

// Package bmcrecovery implements BmcRecovery (spec.md section 4.5): the
// watchdog state machine that cooperates with the BMC's reset/watchdog
// signalling to decide when the host firmware must be rolled back from the
// backup flash.
//
// The state machine itself is a small synchronous table-driven dispatcher;
// its "poll for a count, then act" shape is grounded on the teacher's
// pidmonitor/fileMonitor monitor loops (poll, compare against a threshold,
// emit events, clear what fired) even though here the polling clock lives
// outside this package (whatever drives timer_expired) and the package
// itself is purely reactive.
package bmcrecovery

import (
	"sync"

	"github.com/nestybox/rotcore/internal/observers"
	"github.com/sirupsen/logrus"
)

// State is one of the five BmcRecoveryState values of spec.md section 3.
type State uint8

const (
	Running State = iota
	InReset
	OutOfReset
	Rollback
	IrqFailed
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case InReset:
		return "in_reset"
	case OutOfReset:
		return "out_of_reset"
	case Rollback:
		return "rollback"
	case IrqFailed:
		return "irq_failed"
	default:
		return "unknown"
	}
}

// AuthResult is the outcome of a host authentication reported into the
// state machine by "bmc_reset_exited" or "host auth Good" transitions.
type AuthResult uint8

const (
	AuthUnknown AuthResult = iota
	AuthGood
	AuthBad
)

// Config carries the watchdog thresholds of spec.md section 6.
type Config struct {
	MinWdtSeconds uint32
	RecWaitSeconds uint32
	// ResetThreshold is the consecutive_resets count (spec.md calls it
	// "threshold") at or above which a timer_expired event in InReset
	// triggers Rollback. New replaces a zero value with 3. consecutive_resets
	// counts resets, not seconds, so this is configured independently of
	// MinWdtSeconds.
	ResetThreshold uint8
}

// Recoverer is invoked when the state machine schedules a recovery as the
// action of entering Rollback (spec.md section 4.5's "schedule recovery").
// Implementations (irqhandler) must not block the caller -- they should
// hand off to a worker, matching section 6's "callers from ISR context
// must schedule these on a worker."
type Recoverer interface {
	ScheduleRecovery()
}

// BmcRecovery is the single-writer, multi-reader state machine: updates
// come from one caller at a time (irqhandler's per-host mutex enforces
// this), observers read a consistent snapshot after every transition.
type BmcRecovery struct {
	mu     sync.Mutex
	state  State
	cfg    Config
	consecutiveResets uint8

	recoverer Recoverer
	obs       *observers.Registry
	log       *logrus.Entry
}

func New(cfg Config, recoverer Recoverer, obs *observers.Registry, log *logrus.Entry) *BmcRecovery {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.ResetThreshold == 0 {
		cfg.ResetThreshold = 3
	}
	return &BmcRecovery{
		state:     Running,
		cfg:       cfg,
		recoverer: recoverer,
		obs:       obs,
		log:       log.WithField("component", "bmcrecovery"),
	}
}

// SetRecoverer wires the Recoverer after construction, breaking the
// construction-order cycle between BmcRecovery and irqhandler.HostIrqHandler
// (the handler needs a constructed BmcRecovery to wire into its Deps, and
// BmcRecovery needs a constructed handler to call back into).
func (b *BmcRecovery) SetRecoverer(recoverer Recoverer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recoverer = recoverer
}

// Snapshot returns the current state and consecutive-reset count under a
// lock, for observers/status reporting.
func (b *BmcRecovery) Snapshot() (State, uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.consecutiveResets
}

// BmcResetEntered is the "bmc_reset_entered" input of spec.md section 4.5.
func (b *BmcRecovery) BmcResetEntered() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != Running {
		b.drop("bmc_reset_entered")
		return
	}
	b.consecutiveResets++
	b.transition(Running, InReset, "bmc_reset_entered", nil)
}

// BmcResetExited is the "bmc_reset_exited" input, carrying the host
// authentication result that gates which branch InReset takes.
func (b *BmcRecovery) BmcResetExited(auth AuthResult) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case InReset:
		if auth == AuthGood {
			b.consecutiveResets = 0
			b.transition(InReset, Running, "bmc_reset_exited", map[string]any{"auth": "good"})
		} else {
			b.transition(InReset, OutOfReset, "bmc_reset_exited", map[string]any{"auth": "bad"})
		}
	case Rollback:
		if auth == AuthGood {
			b.consecutiveResets = 0
			b.transition(Rollback, Running, "bmc_reset_exited", map[string]any{"auth": "good"})
		} else {
			b.drop("bmc_reset_exited")
		}
	default:
		b.drop("bmc_reset_exited")
	}
}

// TimerExpired is the "timer_expired(count)" input; t is the elapsed
// seconds counted against the relevant threshold for the current state.
func (b *BmcRecovery) TimerExpired(t uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case InReset:
		if t >= b.cfg.MinWdtSeconds && b.consecutiveResets >= b.cfg.ResetThreshold {
			b.enterRollback("timer_expired")
		} else {
			b.drop("timer_expired")
		}
	case OutOfReset:
		if t >= b.cfg.RecWaitSeconds {
			b.enterRollback("timer_expired")
		} else {
			b.drop("timer_expired")
		}
	default:
		b.drop("timer_expired")
	}
}

// IrqError is the "irq_error" input, only meaningful from Rollback.
func (b *BmcRecovery) IrqError() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != Rollback {
		b.drop("irq_error")
		return
	}
	b.transition(Rollback, IrqFailed, "irq_error", nil)
}

// ForceRecovery is the "force_recovery" input, valid from any state and
// bypassing all guards, per spec.md section 4.5's catch-all row.
func (b *BmcRecovery) ForceRecovery() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enterRollback("force_recovery")
}

func (b *BmcRecovery) enterRollback(trigger string) {
	from := b.state
	b.transition(from, Rollback, trigger, nil)
	if b.recoverer != nil {
		b.recoverer.ScheduleRecovery()
	}
}

// transition must be called with b.mu held.
func (b *BmcRecovery) transition(from, to State, trigger string, fields map[string]any) {
	b.state = to
	b.log.WithFields(logrus.Fields{"from": from, "to": to, "trigger": trigger}).Info("bmc recovery transition")

	if b.obs == nil {
		return
	}
	merged := map[string]any{"from": from.String(), "to": to.String(), "trigger": trigger}
	for k, v := range fields {
		merged[k] = v
	}
	b.obs.Notify(observers.Event{Category: "bmc.transition", Level: observers.LevelInfo, Fields: merged})
}

// drop records an unhandled (state, event) pair as a DroppedEvent
// notification, per spec.md section 4.5's "Transitions must be total."
// Must be called with b.mu held.
func (b *BmcRecovery) drop(trigger string) {
	b.log.WithFields(logrus.Fields{"state": b.state, "trigger": trigger}).Warn("dropped bmc recovery event")
	if b.obs == nil {
		return
	}
	b.obs.Notify(observers.Event{
		Category: "event.dropped",
		Level:    observers.LevelWarn,
		Fields:   map[string]any{"state": b.state.String(), "trigger": trigger, "source": "bmcrecovery"},
	})
}
