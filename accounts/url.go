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

package accounts

import (
	"fmt"
	"strings"
)

// WalletKind identifies which hardware vendor family a wallet URL targets.
type WalletKind string

const (
	// KindLedger targets Ledger devices (Nano S/S Plus/X and kin).
	KindLedger WalletKind = "ledger"

	// KindTrezor targets Trezor devices.
	KindTrezor WalletKind = "trezor"
)

// Scheme is the protocol scheme prefixing hardware wallet URLs.
const Scheme = "usb"

// WalletLocator is the parsed form of a wallet URL: which vendor to look for,
// an optional target public key to search the device for, and the derivation
// path to anchor that search (or to use directly when no key is given).
//
// It is deliberately a value-copyable struct parsed by hand rather than a
// net/url.URL: the grammar admits exactly one canonical form and no escaping,
// so round-tripping through a general URL parser would only invite
// alternative spellings.
type WalletLocator struct {
	Kind   WalletKind     // Vendor family named by the URL
	PubKey *PublicKey     // Target public key, nil when the URL names none
	Path   DerivationPath // Derivation path suffix, empty for the base path
}

// String reassembles the canonical URL form of the locator.
func (loc WalletLocator) String() string {
	url := fmt.Sprintf("%s://%s", Scheme, loc.Kind)
	if loc.PubKey != nil {
		url += "/" + loc.PubKey.String()
	}
	if len(loc.Path) > 0 {
		segments := make([]string, len(loc.Path))
		for i, component := range loc.Path {
			segments[i] = fmt.Sprintf("%d", component)
		}
		url += "?key=" + strings.Join(segments, "/")
	}
	return url
}

// ParseWalletURL parses a CLI supplied wallet URL of the form
//
//	usb://<kind>[/<base58-pubkey>][?key=<path-suffix>]
//
// where <kind> is one of "ledger" or "trezor" (exact match), the optional
// identifier must be a valid base58 32-byte public key, and the optional
// keyspec is a /-delimited sequence of non-negative integers, optionally
// prefixed with the fixed 44'/501' pair which is stripped. An empty keyspec
// is the same as no keyspec at all: the base path.
func ParseWalletURL(url string) (WalletLocator, error) {
	rest, found := strings.CutPrefix(url, Scheme+"://")
	if !found {
		return WalletLocator{}, fmt.Errorf("%w: %q", ErrInvalidWalletURL, url)
	}
	body, query, hasQuery := strings.Cut(rest, "?")

	kind, identifier, hasIdentifier := strings.Cut(body, "/")
	locator := WalletLocator{Kind: WalletKind(kind), Path: DerivationPath{}}
	switch locator.Kind {
	case KindLedger, KindTrezor:
	default:
		return WalletLocator{}, fmt.Errorf("%w: unsupported wallet kind in %q", ErrInvalidWalletURL, url)
	}
	if hasIdentifier {
		key, err := ParsePublicKey(identifier)
		if err != nil {
			return WalletLocator{}, err
		}
		locator.PubKey = &key
	}
	if hasQuery && query != "" {
		keyspec, found := strings.CutPrefix(query, "key=")
		if !found {
			return WalletLocator{}, fmt.Errorf("%w: unexpected query in %q", ErrInvalidWalletURL, url)
		}
		// An explicitly empty key is the same as an absent one
		if keyspec != "" {
			path, err := ParseDerivationPath(keyspec)
			if err != nil {
				return WalletLocator{}, err
			}
			locator.Path = path
		}
	}
	return locator, nil
}
