package hoststate

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nestybox/rotcore/internal/journal"
	"github.com/stretchr/testify/require"
)

func TestNewStartsAllFalse(t *testing.T) {
	hs, err := New(journal.NewMemJournal(), nil)
	require.NoError(t, err)

	snap := hs.Snapshot()
	if diff := cmp.Diff(Flags{}, snap); diff != "" {
		t.Fatalf("unexpected initial state (-want +got):\n%s", diff)
	}
}

func TestRecordAuthSuccessClearsAttempts(t *testing.T) {
	hs, err := New(journal.NewMemJournal(), nil)
	require.NoError(t, err)

	require.NoError(t, hs.RecordAuthFailure())
	require.NoError(t, hs.RecordAuthFailure())
	require.Equal(t, uint32(2), hs.RecoveryAttempts())

	require.NoError(t, hs.RecordAuthSuccess())
	require.True(t, hs.Authenticated())
	require.Equal(t, uint32(0), hs.RecoveryAttempts())
}

func TestMutatePersistsBeforeReturning(t *testing.T) {
	jnl := journal.NewMemJournal()
	hs, err := New(jnl, nil)
	require.NoError(t, err)

	require.NoError(t, hs.SetBypass(true))

	rec, ok, err := jnl.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, rec.Bypass)
}

func TestMutateRollsBackOnPersistFailure(t *testing.T) {
	hs, err := New(journal.NewMemJournal(), nil)
	require.NoError(t, err)
	require.NoError(t, hs.SetBypass(true))

	hs.jnl = &journal.FailingJournal{}

	err = hs.RecordAuthFailure()
	require.Error(t, err)

	// in-memory state must be exactly what it was before the failed mutation.
	snap := hs.Snapshot()
	require.True(t, snap.Bypass)
	require.Equal(t, uint32(0), snap.RecoveryAttempts)
}

func TestLoadRestoresPersistedFlags(t *testing.T) {
	jnl := journal.NewMemJournal()
	require.NoError(t, jnl.Commit(journal.Record{Authenticated: true, Attempts: 2}))

	hs, err := New(jnl, nil)
	require.NoError(t, err)
	require.True(t, hs.Authenticated())
	require.Equal(t, uint32(2), hs.RecoveryAttempts())
}
