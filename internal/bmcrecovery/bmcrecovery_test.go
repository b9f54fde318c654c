package bmcrecovery

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeRecoverer struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeRecoverer) ScheduleRecovery() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
}

func (f *fakeRecoverer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestS4WatchdogRollback(t *testing.T) {
	rec := &fakeRecoverer{}
	bmc := New(Config{MinWdtSeconds: 2, ResetThreshold: 3}, rec, nil, nil)

	bmc.BmcResetEntered()
	state, count := bmc.Snapshot()
	require.Equal(t, InReset, state)
	require.Equal(t, uint8(1), count)

	bmc.BmcResetExited(AuthBad)
	state, _ = bmc.Snapshot()
	require.Equal(t, OutOfReset, state)

	// Re-enter via a fresh power cycle simulated directly: force back to
	// Running only via recovery succeeding is not what this scenario tests;
	// instead drive consecutive_resets to 3 by re-entering InReset from
	// Running after a transient recovery, matching S4's literal wording
	// "consecutive_resets reaching 3".
	bmc.mu.Lock()
	bmc.state = Running
	bmc.consecutiveResets = 2
	bmc.mu.Unlock()

	bmc.BmcResetEntered()
	state, count = bmc.Snapshot()
	require.Equal(t, InReset, state)
	require.Equal(t, uint8(3), count)

	bmc.TimerExpired(2)
	state, _ = bmc.Snapshot()
	require.Equal(t, Rollback, state)
	require.Equal(t, 1, rec.Calls())
}

func TestS6ForceRecoveryFromIrqFailed(t *testing.T) {
	bmc := New(Config{}, nil, nil, nil)

	bmc.ForceRecovery()
	require.Equal(t, Rollback, mustState(bmc))

	bmc.IrqError()
	require.Equal(t, IrqFailed, mustState(bmc))

	bmc.ForceRecovery()
	require.Equal(t, Rollback, mustState(bmc))

	bmc.BmcResetExited(AuthGood)
	state, count := bmc.Snapshot()
	require.Equal(t, Running, state)
	require.Equal(t, uint8(0), count)
}

func TestTotalityUnhandledPairsDropWithoutPanic(t *testing.T) {
	bmc := New(Config{}, nil, nil, nil)

	require.NotPanics(t, func() {
		bmc.BmcResetExited(AuthGood) // Running has no bmc_reset_exited transition
		bmc.IrqError()               // Running has no irq_error transition
		bmc.TimerExpired(100)        // Running has no timer_expired transition
	})
	require.Equal(t, Running, mustState(bmc))
}

func TestForceRecoveryFromRollbackSchedulesAgain(t *testing.T) {
	rec := &fakeRecoverer{}
	bmc := New(Config{}, rec, nil, nil)

	bmc.ForceRecovery()
	bmc.ForceRecovery() // still from Rollback: "any" row applies again
	require.Equal(t, 2, rec.Calls())
}

func mustState(b *BmcRecovery) State {
	s, _ := b.Snapshot()
	return s
}
