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

// Command rotctl is the operator-facing CLI: a self-contained dry-run
// driver over a fresh simulated flash/state set, useful for exercising
// power-on, recovery and status-reporting flows without a running
// rotcored instance or real hardware. It uses spf13/pflag for its
// POSIX/GNU-style flags, matching calvinalkan-agent-task's cmd/tk.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nestybox/rotcore/internal/bmcrecovery"
	"github.com/nestybox/rotcore/internal/config"
	"github.com/nestybox/rotcore/internal/flashmgr"
	"github.com/nestybox/rotcore/internal/hostproc"
	"github.com/nestybox/rotcore/internal/hoststate"
	"github.com/nestybox/rotcore/internal/irqhandler"
	"github.com/nestybox/rotcore/internal/journal"
	"github.com/nestybox/rotcore/internal/observers"
	"github.com/nestybox/rotcore/internal/simflash"
	"github.com/nestybox/rotcore/internal/testcrypto"
	"github.com/sirupsen/logrus"
	flagpkg "github.com/spf13/pflag"
)

func main() {
	allowUnsecure := flagpkg.Bool("allow-unsecure", false, "permit boot on auth failure when bypass provisioning is set")
	forceRecovery := flagpkg.Bool("force-recovery", false, "force a recovery pass instead of power-on")
	flashSize := flagpkg.Uint32("flash-size", 1<<20, "size in bytes of each simulated flash image")
	flagpkg.Parse()

	logrus.SetLevel(logrus.WarnLevel)
	log := logrus.NewEntry(logrus.StandardLogger())

	jnl := journal.NewMemJournal()
	state, err := hoststate.New(jnl, log)
	if err != nil {
		fatal(err)
	}

	activeFlash, err := simflash.NewMemMapFs("active.img", *flashSize, 4096)
	if err != nil {
		fatal(err)
	}
	recoveryFlash, err := simflash.NewMemMapFs("recovery.img", *flashSize, 4096)
	if err != nil {
		fatal(err)
	}

	registry := observers.NewRegistry()
	counters := observers.NewCounterObserver()
	registry.Register("counters", counters)

	arbiter := simflash.NewArbiter()
	flashMgr := flashmgr.New(flashmgr.Deps{
		Arbiter:       arbiter,
		ActiveFlash:   activeFlash,
		RecoveryFlash: recoveryFlash,
		Observers:     registry,
		Log:           log,
	})

	irqControl := simflash.NewIrqControl()
	hostProc := hostproc.New(hostproc.Deps{
		State:       state,
		Flash:       flashMgr,
		Hash:        testcrypto.NewHashEngine(),
		Verifier:    testcrypto.NewSignatureVerifier(),
		Manifest:    simflash.NewManifest(true, nil, nil),
		RecoveryMan: simflash.NewManifest(true, nil, nil),
		Control:     irqControl,
		Observers:   registry,
		Config: hostproc.Config{
			RecoveryAttemptsCap:  config.Default().RecoveryAttemptsCap,
			AllowUnsecureDefault: *allowUnsecure,
		},
		Log: log,
	})

	recovery := bmcrecovery.New(bmcrecovery.Config{}, nil, registry, log)
	handler := irqhandler.New(irqhandler.Deps{
		Host:      hostProc,
		Recovery:  recovery,
		Control:   irqControl,
		Observers: registry,
		Log:       log,
	})
	recovery.SetRecoverer(handler)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	if *forceRecovery {
		if err := handler.ForceRecovery(ctx); err != nil {
			fatal(err)
		}
		fmt.Println("recovery forced")
	} else {
		outcome, err := handler.PowerOn(ctx, *allowUnsecure, nil)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("power-on outcome: kind=%d bypass=%v\n", outcome.Kind, outcome.Bypass)
	}

	elapsed := time.Since(start)
	fmt.Printf("elapsed: %s\n", humanize.RelTime(start, time.Now(), "", ""))
	fmt.Printf("exit-reset enabled: %v\n", irqControl.ExitResetEnabled())
	fmt.Printf("simulated flash size: %s per image, operation took %s\n",
		humanize.Bytes(uint64(*flashSize)), elapsed)

	for category, count := range counters.Counts() {
		fmt.Printf("  %-20s %d\n", category, count)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "rotctl:", err)
	os.Exit(1)
}
