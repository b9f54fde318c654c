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

// Package pit models the provisioning side-channel referenced in
// original_source/core/pit/pit_client.h: a key-exchange/OTP-unlock flow
// that rides the same trust boundary as host boot but is otherwise
// disconnected from it.
//
// spec.md's Open Questions leave unspecified whether this flow must be
// gated by HostState.authenticated; this module's documented default
// (spec.md section 9) is to require authenticated || bypass, enforced
// here before any request reaches the Transport capability.
package pit

import (
	"github.com/nestybox/rotcore/internal/hoststate"
	"github.com/nestybox/rotcore/internal/roterr"
)

// KeyExchangeRequest/Response model pit_client.h's keyexchangestate.
type KeyExchangeRequest struct {
	ClientPubKey []byte
}

type KeyExchangeResponse struct {
	ServerPubKey []byte
}

// UnlockInfo models pit_client.h's send_unlock_info.
type UnlockInfo struct {
	OTPs      []byte
	AESIV     []byte
	OTPTag    []byte
	CipherMsg []byte
	ServerTag []byte
}

// ProductInfo models pit_client.h's receive_product_info.
type ProductInfo struct {
	EncryptedProductID    []byte
	EncryptedProductIDTag []byte
	AESIV                 []byte
}

// Transport is the narrow capability carrying PIT requests over whatever
// physical link the platform uses (I2C in the original); that link itself
// stays external to this module, per spec.md section 1's exclusion of "the
// PIT side-channel used for provisioning."
type Transport interface {
	ExchangeKeys(req KeyExchangeRequest) (KeyExchangeResponse, error)
	SendUnlockInfo(info UnlockInfo) error
	ReceiveProductInfo() (ProductInfo, error)
}

// Client gates a Transport behind the host's trust state.
type Client struct {
	state     *hoststate.HostState
	transport Transport
}

func NewClient(state *hoststate.HostState, transport Transport) *Client {
	return &Client{state: state, transport: transport}
}

func (c *Client) gate() error {
	snap := c.state.Snapshot()
	if !snap.Authenticated && !snap.Bypass {
		return roterr.New(roterr.ModulePit, roterr.KindInvalidArgument)
	}
	return nil
}

func (c *Client) ExchangeKeys(req KeyExchangeRequest) (KeyExchangeResponse, error) {
	if err := c.gate(); err != nil {
		return KeyExchangeResponse{}, err
	}
	return c.transport.ExchangeKeys(req)
}

func (c *Client) SendUnlockInfo(info UnlockInfo) error {
	if err := c.gate(); err != nil {
		return err
	}
	return c.transport.SendUnlockInfo(info)
}

func (c *Client) ReceiveProductInfo() (ProductInfo, error) {
	if err := c.gate(); err != nil {
		return ProductInfo{}, err
	}
	return c.transport.ReceiveProductInfo()
}
