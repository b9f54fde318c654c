package pit

import (
	"testing"

	"github.com/nestybox/rotcore/internal/hoststate"
	"github.com/nestybox/rotcore/internal/journal"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	called bool
}

func (f *fakeTransport) ExchangeKeys(req KeyExchangeRequest) (KeyExchangeResponse, error) {
	f.called = true
	return KeyExchangeResponse{ServerPubKey: []byte("server-key")}, nil
}

func (f *fakeTransport) SendUnlockInfo(info UnlockInfo) error {
	f.called = true
	return nil
}

func (f *fakeTransport) ReceiveProductInfo() (ProductInfo, error) {
	f.called = true
	return ProductInfo{}, nil
}

func TestGatedWhenNeitherAuthenticatedNorBypass(t *testing.T) {
	state, err := hoststate.New(journal.NewMemJournal(), nil)
	require.NoError(t, err)

	transport := &fakeTransport{}
	client := NewClient(state, transport)

	_, err = client.ExchangeKeys(KeyExchangeRequest{})
	require.Error(t, err)
	require.False(t, transport.called)
}

func TestAllowedWhenAuthenticated(t *testing.T) {
	state, err := hoststate.New(journal.NewMemJournal(), nil)
	require.NoError(t, err)
	require.NoError(t, state.RecordAuthSuccess())

	transport := &fakeTransport{}
	client := NewClient(state, transport)

	_, err = client.ExchangeKeys(KeyExchangeRequest{})
	require.NoError(t, err)
	require.True(t, transport.called)
}

func TestAllowedWhenBypass(t *testing.T) {
	state, err := hoststate.New(journal.NewMemJournal(), nil)
	require.NoError(t, err)
	require.NoError(t, state.SetBypass(true))

	transport := &fakeTransport{}
	client := NewClient(state, transport)

	require.NoError(t, client.SendUnlockInfo(UnlockInfo{}))
	require.True(t, transport.called)
}

func TestReceiveProductInfoGatedTheSameWay(t *testing.T) {
	state, err := hoststate.New(journal.NewMemJournal(), nil)
	require.NoError(t, err)

	transport := &fakeTransport{}
	client := NewClient(state, transport)

	_, err = client.ReceiveProductInfo()
	require.Error(t, err)
	require.False(t, transport.called)
}
