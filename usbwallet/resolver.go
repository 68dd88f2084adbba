// Copyright 2024 The ledger-utils Authors
// This file is part of the ledger-utils library.
//
// The ledger-utils library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ledger-utils library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the ledger-utils library. If not, see <http://www.gnu.org/licenses/>.

package usbwallet

import (
	"github.com/marinade-finance/ledger-utils/accounts"
)

// ResolveOptions tunes wallet resolution. The zero value falls back to
// accounts.DefaultSearchSpace.
type ResolveOptions struct {
	// Defaults is the minimum search space used for account discovery. A
	// derivation path hint on the locator can widen it further, never narrow
	// it.
	Defaults accounts.SearchSpace
}

// FindWallet resolves a wallet locator against the hub's connected devices
// using the default search space.
func (hub *Hub) FindWallet(locator accounts.WalletLocator) (*RemoteWallet, error) {
	return hub.FindWalletWithOptions(locator, ResolveOptions{Defaults: accounts.DefaultSearchSpace})
}

// FindWalletWithOptions resolves a wallet locator against the hub's connected
// devices and returns a signing session bound to a concrete derivation path.
//
// Without a target public key the first enumerated device is taken at the
// locator's path verbatim, since there is nothing to validate against. With a
// target, every device is probed at the locator's path first; failing that,
// the search space inferred from the path hint is walked exhaustively, device
// by device, candidate by candidate, until the first match.
//
// Every probe is a blocking round-trip to hardware and resolution is strictly
// sequential; a caller needing a timeout imposes one around the whole call.
func (hub *Hub) FindWalletWithOptions(locator accounts.WalletLocator, opts ResolveOptions) (*RemoteWallet, error) {
	if opts.Defaults == (accounts.SearchSpace{}) {
		opts.Defaults = accounts.DefaultSearchSpace
	}
	wallets := hub.Wallets()
	sessions := make([]deviceSession, len(wallets))
	for i, w := range wallets {
		sessions[i] = w
	}
	return findWallet(sessions, locator, opts)
}

// findWallet is the transport-agnostic resolution algorithm behind
// FindWalletWithOptions.
func findWallet(devices []deviceSession, locator accounts.WalletLocator, opts ResolveOptions) (*RemoteWallet, error) {
	if len(devices) == 0 {
		return nil, accounts.ErrNoDeviceFound
	}
	// Without a target key there is nothing to search for: bind the first
	// device at the given path
	if locator.PubKey == nil {
		device := devices[0]
		if err := device.Open(); err != nil {
			return nil, err
		}
		key, err := device.PublicKey(locator.Path)
		if err != nil {
			return nil, err
		}
		return &RemoteWallet{session: device, path: locator.Path, pubkey: key}, nil
	}
	target := *locator.PubKey

	// Probe the locator's own path on every device first; first match wins
	for _, device := range devices {
		if err := device.Open(); err != nil {
			return nil, err
		}
		key, err := device.PublicKey(locator.Path)
		if err != nil {
			return nil, err
		}
		if key == target {
			return &RemoteWallet{session: device, path: locator.Path, pubkey: key}, nil
		}
	}
	// No device matched at the given path: widen into account discovery. The
	// path hint can only grow the space beyond the defaults.
	space := accounts.AccountDiscoverySpace(locator.Path, opts.Defaults)
	for _, device := range devices {
		next := space.Iterator()
		for {
			candidate, ok := next()
			if !ok {
				break
			}
			key, err := device.PublicKey(candidate)
			if err != nil {
				return nil, err
			}
			if key == target {
				return &RemoteWallet{session: device, path: candidate, pubkey: key}, nil
			}
		}
	}
	return nil, &accounts.PubkeyNotFoundError{PubKey: target, Path: locator.Path}
}
