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

// Command rotcored is the supervisory binary that wires the capability
// implementations together over simulated flash images, runs one PowerOn
// through the host IRQ handler at startup, and then waits for SIGINT or
// SIGTERM. It is deliberately thin: all policy lives in internal/hostproc,
// internal/bmcrecovery and internal/irqhandler; this file only does
// construction. It has no event loop: no other hardware signal is
// dispatched to the handler after the initial PowerOn.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/nestybox/rotcore/internal/bmcrecovery"
	"github.com/nestybox/rotcore/internal/capabilities"
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
	"golang.org/x/sys/unix"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file (optional; defaults applied otherwise)")
	journalPath := flag.String("journal", "rotcore.state", "path to the persisted host-state journal")
	flashDir := flag.String("flash-dir", ".", "directory holding the simulated active/recovery flash images")
	flag.Parse()

	log := logrus.NewEntry(logrus.StandardLogger())
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.WithError(err).Fatal("failed to load config")
		}
		cfg = loaded
	}

	jnl := journal.NewFileJournal(*journalPath)
	state, err := hoststate.New(jnl, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize host state")
	}

	activeFlash, err := simflash.OpenMmapFlash(*flashDir+"/active.img", 16<<20, 4096)
	if err != nil {
		log.WithError(err).Fatal("failed to open active flash image")
	}
	defer activeFlash.Close()

	recoveryFlash, err := simflash.OpenMmapFlash(*flashDir+"/recovery.img", 16<<20, 4096)
	if err != nil {
		log.WithError(err).Fatal("failed to open recovery flash image")
	}
	defer recoveryFlash.Close()

	registry := observers.NewRegistry()
	registry.Register("log", observers.NewLogObserver(log))
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

	hashEngine := testcrypto.NewHashEngine()
	verifier := testcrypto.NewSignatureVerifier()
	irqControl := simflash.NewIrqControl()

	activeManifest := simflash.NewManifest(true, nil, nil)
	recoveryManifest := simflash.NewManifest(true, nil, nil)

	hostProc := hostproc.New(hostproc.Deps{
		State:       state,
		Flash:       flashMgr,
		Hash:        hashEngine,
		Verifier:    verifier,
		Manifest:    activeManifest,
		RecoveryMan: recoveryManifest,
		Control:     irqControl,
		Observers:   registry,
		Config: hostproc.Config{
			RecoveryAttemptsCap:  cfg.RecoveryAttemptsCap,
			AllowUnsecureDefault: cfg.AllowUnsecureDefault,
		},
		Log: log,
	})

	recovery := bmcrecovery.New(bmcrecovery.Config{
		MinWdtSeconds:  cfg.MinWdtSeconds,
		RecWaitSeconds: cfg.RecWaitSeconds,
	}, nil, registry, log)

	handler := irqhandler.New(irqhandler.Deps{
		Host:            hostProc,
		Recovery:        recovery,
		Control:         irqControl,
		Observers:       registry,
		NotifyExitReset: cfg.NotifyExitReset,
		Log:             log,
	})
	recovery.SetRecoverer(handler)

	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, unix.SIGHUP)
	defer signal.Stop(hup)
	go watchReload(ctx, hup, log, *configPath)

	log.Info("rotcored started")

	outcome, err := handler.PowerOn(ctx, cfg.AllowUnsecureDefault, nil)
	if err != nil {
		log.WithError(err).Error("initial power_on failed")
	} else {
		log.WithField("outcome", outcomeString(outcome)).Info("initial power_on complete")
	}

	<-ctx.Done()
	log.Info("rotcored shutting down")
	time.Sleep(50 * time.Millisecond) // let in-flight observers flush
}

// watchReload re-reads configPath on SIGHUP, the conventional Unix "reload
// your config" signal, and logs the values it finds. Applying them live
// would require every capability (flash devices, the arbiter, hostproc's
// Config) to accept a mutation after construction; today only a restart
// picks up a changed file, so this just surfaces what a restart would use.
func watchReload(ctx context.Context, hup <-chan os.Signal, log *logrus.Entry, configPath string) {
	if configPath == "" {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			loaded, err := config.Load(configPath)
			if err != nil {
				log.WithError(err).Warn("sighup: failed to read config")
				continue
			}
			log.WithFields(logrus.Fields{
				"recovery_attempts_cap": loaded.RecoveryAttemptsCap,
				"min_wdt_seconds":       loaded.MinWdtSeconds,
				"rec_wait_seconds":      loaded.RecWaitSeconds,
			}).Info("sighup: config file re-read (restart required to apply)")
		}
	}
}

func outcomeString(o capabilities.AuthOutcome) string {
	switch o.Kind {
	case capabilities.AuthGood:
		if o.Bypass {
			return "good (bypass)"
		}
		return "good"
	case capabilities.AuthBadSignature:
		return "bad_signature"
	case capabilities.AuthBadManifest:
		return "bad_manifest"
	case capabilities.AuthUnsupportedFlash:
		return "unsupported_flash"
	default:
		return "io_error"
	}
}
