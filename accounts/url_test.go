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
	"testing"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/stretchr/testify/require"
)

// testPubkey returns a well formed base58 public key for URL tests.
func testPubkey() (PublicKey, string) {
	var key PublicKey
	for i := range key {
		key[i] = byte(i + 1)
	}
	return key, base58.Encode(key[:])
}

func TestParseWalletURL(t *testing.T) {
	key, encoded := testPubkey()

	tests := []struct {
		url  string
		want WalletLocator
	}{
		// Kind only: no identifier, base path
		{"usb://ledger", WalletLocator{Kind: KindLedger, Path: DerivationPath{}}},
		{"usb://trezor", WalletLocator{Kind: KindTrezor, Path: DerivationPath{}}},

		// An explicitly empty key is the same as no key at all
		{"usb://ledger?key=", WalletLocator{Kind: KindLedger, Path: DerivationPath{}}},

		// Kind and identifier: base path
		{"usb://ledger/" + encoded, WalletLocator{Kind: KindLedger, PubKey: &key, Path: DerivationPath{}}},

		// Kind and key: no identifier
		{"usb://ledger?key=2", WalletLocator{Kind: KindLedger, Path: DerivationPath{2}}},
		{"usb://ledger?key=0/1", WalletLocator{Kind: KindLedger, Path: DerivationPath{0, 1}}},

		// The fixed prefix inside the keyspec is stripped
		{"usb://ledger?key=44/501/0/1", WalletLocator{Kind: KindLedger, Path: DerivationPath{0, 1}}},
		{"usb://ledger?key=44'/501'/0/1", WalletLocator{Kind: KindLedger, Path: DerivationPath{0, 1}}},

		// The full shape
		{"usb://ledger/" + encoded + "?key=0/1", WalletLocator{Kind: KindLedger, PubKey: &key, Path: DerivationPath{0, 1}}},
	}
	for _, tt := range tests {
		locator, err := ParseWalletURL(tt.url)
		require.NoErrorf(t, err, "url %q", tt.url)
		require.Equalf(t, tt.want, locator, "url %q", tt.url)
	}
}

func TestParseWalletURLPath(t *testing.T) {
	_, encoded := testPubkey()

	locator, err := ParseWalletURL("usb://ledger/" + encoded + "?key=0/1")
	require.NoError(t, err)
	require.Equal(t, "44'/501'/0/1", locator.Path.String())

	for _, url := range []string{"usb://ledger", "usb://ledger?key="} {
		locator, err := ParseWalletURL(url)
		require.NoError(t, err)
		require.Nil(t, locator.PubKey)
		require.Equal(t, "44'/501'", locator.Path.String())
	}
}

func TestParseWalletURLErrors(t *testing.T) {
	_, encoded := testPubkey()

	// Missing scheme
	_, err := ParseWalletURL("m/44/501/0/0")
	require.ErrorIs(t, err, ErrInvalidWalletURL)

	// Unsupported wallet kind
	_, err = ParseWalletURL("usb://rosie-cotton?key=0")
	require.ErrorIs(t, err, ErrInvalidWalletURL)

	// Kinds are matched exactly, no case folding
	_, err = ParseWalletURL("usb://Ledger")
	require.ErrorIs(t, err, ErrInvalidWalletURL)

	// Identifier segment that is not a public key, named verbatim
	_, err = ParseWalletURL("usb://ledger/elanor?key=0")
	var pubkeyErr *InvalidPubkeyError
	require.ErrorAs(t, err, &pubkeyErr)
	require.Equal(t, "elanor", pubkeyErr.Input)

	// Query that is not a key assignment
	_, err = ParseWalletURL("usb://ledger/" + encoded + "?samwise-gamgee=0")
	require.ErrorIs(t, err, ErrInvalidWalletURL)

	// Non-numeric path segment, naming the whole keyspec
	_, err = ParseWalletURL("usb://ledger?key=0/elanor")
	var segErr *InvalidPathSegmentError
	require.ErrorAs(t, err, &segErr)
	require.Equal(t, "0/elanor", segErr.Path)
}

func TestWalletLocatorString(t *testing.T) {
	key, encoded := testPubkey()

	tests := []struct {
		locator WalletLocator
		want    string
	}{
		{WalletLocator{Kind: KindLedger}, "usb://ledger"},
		{WalletLocator{Kind: KindTrezor}, "usb://trezor"},
		{WalletLocator{Kind: KindLedger, PubKey: &key}, "usb://ledger/" + encoded},
		{WalletLocator{Kind: KindLedger, Path: DerivationPath{0, 1}}, "usb://ledger?key=0/1"},
		{WalletLocator{Kind: KindLedger, PubKey: &key, Path: DerivationPath{7}}, "usb://ledger/" + encoded + "?key=7"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, tt.locator.String())

		// Canonical forms survive a parse round-trip
		parsed, err := ParseWalletURL(tt.want)
		require.NoError(t, err)
		require.Equal(t, tt.want, parsed.String())
	}
}
