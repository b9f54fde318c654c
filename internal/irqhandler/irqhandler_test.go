package irqhandler

import (
	"context"
	"testing"
	"time"

	"github.com/nestybox/rotcore/internal/bmcrecovery"
	"github.com/nestybox/rotcore/internal/flashmgr"
	"github.com/nestybox/rotcore/internal/hostproc"
	"github.com/nestybox/rotcore/internal/hoststate"
	"github.com/nestybox/rotcore/internal/journal"
	"github.com/nestybox/rotcore/internal/observers"
	"github.com/nestybox/rotcore/internal/simflash"
	"github.com/nestybox/rotcore/internal/testcrypto"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*HostIrqHandler, *simflash.IrqControl) {
	t.Helper()

	active, err := simflash.NewMemMapFs("active.img", 4096, 4096)
	require.NoError(t, err)
	recovery, err := simflash.NewMemMapFs("recovery.img", 4096, 4096)
	require.NoError(t, err)

	arb := simflash.NewArbiter()
	fm := flashmgr.New(flashmgr.Deps{Arbiter: arb, ActiveFlash: active, RecoveryFlash: recovery})

	state, err := hoststate.New(journal.NewMemJournal(), nil)
	require.NoError(t, err)

	control := simflash.NewIrqControl()
	obs := observers.NewRegistry()

	proc := hostproc.New(hostproc.Deps{
		State: state, Flash: fm,
		Hash: testcrypto.NewHashEngine(), Verifier: testcrypto.NewSignatureVerifier(),
		Manifest: simflash.NewManifest(true, nil, nil), RecoveryMan: simflash.NewManifest(true, nil, nil),
		Control: control, Observers: obs, Config: hostproc.Config{RecoveryAttemptsCap: 3},
	})

	rec := bmcrecovery.New(bmcrecovery.Config{}, nil, obs, nil)
	h := New(Deps{Host: proc, Recovery: rec, Control: control, Observers: obs, NotifyExitReset: true})
	rec.SetRecoverer(h)
	return h, control
}

func TestAssertCS1TriggersRecovery(t *testing.T) {
	h, _ := newTestHandler(t)
	err := h.AssertCS1(context.Background())
	require.NoError(t, err)
}

func TestForceRecoverySucceedsFromAnyState(t *testing.T) {
	h, _ := newTestHandler(t)
	require.NoError(t, h.ForceRecovery(context.Background()))

	state, _ := h.deps.Recovery.Snapshot()
	require.Equal(t, bmcrecovery.Rollback, state)
}

func TestExitResetReturnsPromptly(t *testing.T) {
	h, _ := newTestHandler(t)

	start := time.Now()
	err := h.ExitReset(context.Background())
	require.NoError(t, err)
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestPowerOnWhileBusyReturnsBusy(t *testing.T) {
	h, _ := newTestHandler(t)

	// hold the semaphore to simulate an in-flight call.
	<-h.sem
	_, err := h.PowerOn(context.Background(), false, nil)
	require.ErrorIs(t, err, ErrBusy)
	h.sem <- struct{}{}
}
