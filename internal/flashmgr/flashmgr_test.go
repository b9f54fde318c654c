package flashmgr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nestybox/rotcore/internal/capabilities"
	"github.com/nestybox/rotcore/internal/roterr"
	"github.com/stretchr/testify/require"
)

type fakeArbiter struct {
	hostGranted bool
	rotGranted  bool
}

func newFakeArbiter() *fakeArbiter {
	return &fakeArbiter{hostGranted: true}
}

func (a *fakeArbiter) RevokeHost() error { a.hostGranted = false; return nil }
func (a *fakeArbiter) GrantHost() error  { a.hostGranted = true; return nil }
func (a *fakeArbiter) RevokeRot() error  { a.rotGranted = false; return nil }
func (a *fakeArbiter) GrantRot() error   { a.rotGranted = true; return nil }
func (a *fakeArbiter) AwaitSettle(ctx context.Context) error {
	if a.rotGranted && a.hostGranted {
		panic("both granted during settle")
	}
	return nil
}

type noopFlash struct{}

func (noopFlash) Read(context.Context, uint32, []byte) (int, error)  { return 0, nil }
func (noopFlash) Erase(context.Context, uint32, uint32) error        { return nil }
func (noopFlash) Write(context.Context, uint32, []byte) (int, error) { return 0, nil }
func (noopFlash) Sectors() []capabilities.SectorInfo                 { return nil }

func newMgr() (*HostFlashMgr, *fakeArbiter) {
	arb := newFakeArbiter()
	return New(Deps{Arbiter: arb, ActiveFlash: noopFlash{}, RecoveryFlash: noopFlash{}}), arb
}

func TestMutualExclusion(t *testing.T) {
	mgr, arb := newMgr()
	ctx := context.Background()

	_, err := WithRotAccess(ctx, mgr, func(ctx context.Context) (struct{}, error) {
		if !arb.rotGranted || arb.hostGranted {
			t.Fatalf("expected rot granted, host revoked inside scope; got rot=%v host=%v", arb.rotGranted, arb.hostGranted)
		}
		return struct{}{}, nil
	})
	require.NoError(t, err)
	require.True(t, arb.hostGranted)
	require.False(t, arb.rotGranted)
}

func TestFinalizerRestoresHostOnError(t *testing.T) {
	mgr, arb := newMgr()
	ctx := context.Background()
	sentinel := errors.New("boom")

	_, err := WithRotAccess(ctx, mgr, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.True(t, arb.hostGranted)
	require.False(t, arb.rotGranted)
}

func TestFinalizerRestoresHostOnPanic(t *testing.T) {
	mgr, arb := newMgr()
	ctx := context.Background()

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_, _ = WithRotAccess(ctx, mgr, func(ctx context.Context) (struct{}, error) {
			panic("op blew up")
		})
	}()

	require.True(t, arb.hostGranted)
	require.False(t, arb.rotGranted)
}

func TestNestedAccessFailsBusy(t *testing.T) {
	mgr, _ := newMgr()
	ctx := context.Background()

	_, err := WithRotAccess(ctx, mgr, func(ctx context.Context) (struct{}, error) {
		_, innerErr := WithRotAccess(ctx, mgr, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, nil
		})
		return struct{}{}, innerErr
	})

	var rerr *roterr.Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, roterr.KindBusBusy, rerr.Kind)
}

func TestSwapActiveFlashTogglesRouting(t *testing.T) {
	mgr, _ := newMgr()
	active := mgr.ActiveFlash()
	mgr.SwapActiveFlash()
	require.NotEqual(t, active, mgr.ActiveFlash())
	mgr.SwapActiveFlash()
	require.Equal(t, active, mgr.ActiveFlash())
}

func TestConcurrentAccessSerializes(t *testing.T) {
	mgr, arb := newMgr()
	ctx := context.Background()
	done := make(chan error, 2)

	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		go func() {
			<-start
			_, err := WithRotAccess(ctx, mgr, func(ctx context.Context) (struct{}, error) {
				time.Sleep(5 * time.Millisecond)
				return struct{}{}, nil
			})
			done <- err
		}()
	}
	close(start)

	var busyCount, okCount int
	for i := 0; i < 2; i++ {
		err := <-done
		if err == nil {
			okCount++
		} else {
			busyCount++
		}
	}
	// exactly one of the two concurrent calls should observe BusBusy since
	// the mutex-guarded busy flag forbids nested/overlapping scoped access.
	require.Equal(t, 1, okCount)
	require.Equal(t, 1, busyCount)
	require.True(t, arb.hostGranted)
}
