// Copyright 2026 The Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//     http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package credential declares the external Credential Broker contract
// (spec §6): it mints a per-title session descriptor from a catalog entry
// plus device identity. The account-login protocol itself is out of scope
// (spec §1) and is implemented by a real collaborator behind the Broker
// interface; this package only defines the contract and the two input
// shapes (account-server flow, handheld flow).
package credential

import (
	"context"

	"github.com/nex-archival/nexharvest/internal/catalog"
	"github.com/nex-archival/nexharvest/internal/nexrpc"
)

// AccountDeviceIdentity is the device/user identity fed into the
// account-server flow (spec §6).
type AccountDeviceIdentity struct {
	DeviceID      uint32
	Serial        string
	SystemVersion uint32 // parsed from hex
	RegionID      int
	Country       string
	Language      string
	Username      string
	Password      string
}

// HandheldDeviceIdentity is the device/user identity fed into the handheld
// flow (spec §6). PrincipalID and Password arrive out-of-band (environment)
// per spec §6 and are not part of the broker's output for this flow.
type HandheldDeviceIdentity struct {
	Serial       string
	MAC          string
	DeviceCert   []byte
	Region       string
	Language     string
	Username     string
	UsernameHMAC string
}

// Broker mints a nexrpc.Descriptor for one title.
type Broker interface {
	// Broker returns {host, port, principal-id, password[, auth-info]} for
	// the given title. The concrete identity type passed in selects which
	// flow (account-server vs. handheld) is exercised.
	Broker(ctx context.Context, title catalog.Title, identity any) (nexrpc.Descriptor, error)
}

// AccountFlowBroker documents the account-server flow contract: output is
// {host, port, principal-id, password}, plus an optional bearer token used
// to construct AuthenticationInfo{token, ngs_version=2} for titles selected
// by title_id equality (spec §6). The concrete network call is external;
// this type exists so callers have something to construct against in tests.
type AccountFlowBroker struct {
	// Dial performs the actual account-server login. Supplied by the real
	// collaborator; left nil in this repository.
	Dial func(ctx context.Context, identity AccountDeviceIdentity, title catalog.Title) (nexrpc.Descriptor, error)
	// BearerTitles lists title_ids whose descriptor should carry an
	// AuthenticationInfo token.
	BearerTitles map[int64]struct{}
}

func (b *AccountFlowBroker) Broker(ctx context.Context, title catalog.Title, identity any) (nexrpc.Descriptor, error) {
	acct, ok := identity.(AccountDeviceIdentity)
	if !ok {
		return nexrpc.Descriptor{}, errNotAccountIdentity
	}
	return b.Dial(ctx, acct, title)
}

// HandheldFlowBroker documents the handheld flow contract: output is
// {host, port}; principal-id and password are supplied out-of-band via
// environment (spec §6).
type HandheldFlowBroker struct {
	Dial func(ctx context.Context, identity HandheldDeviceIdentity, title catalog.Title) (host string, port int, err error)
	// PrincipalID and Password come from environment, not from the broker
	// response, per spec §6.
	PrincipalID string
	Password    string
}

func (b *HandheldFlowBroker) Broker(ctx context.Context, title catalog.Title, identity any) (nexrpc.Descriptor, error) {
	hh, ok := identity.(HandheldDeviceIdentity)
	if !ok {
		return nexrpc.Descriptor{}, errNotHandheldIdentity
	}
	host, port, err := b.Dial(ctx, hh, title)
	if err != nil {
		return nexrpc.Descriptor{}, err
	}
	return nexrpc.Descriptor{
		Host:        host,
		Port:        port,
		PrincipalID: b.PrincipalID,
		Password:    b.Password,
	}, nil
}

var (
	errNotAccountIdentity  = brokerErr("account flow broker requires AccountDeviceIdentity")
	errNotHandheldIdentity = brokerErr("handheld flow broker requires HandheldDeviceIdentity")
)

type brokerErr string

func (e brokerErr) Error() string { return string(e) }
