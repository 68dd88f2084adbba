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
	"errors"
	"fmt"
)

// ErrInvalidWalletURL is returned when a wallet URL violates the
// usb://<kind>[/<pubkey>][?key=<path>] grammar. The wrapping error quotes the
// offending input verbatim.
var ErrInvalidWalletURL = errors.New("invalid wallet url")

// ErrNoDeviceFound is returned when device enumeration comes back empty.
var ErrNoDeviceFound = errors.New("no hardware wallet found")

// ErrWalletClosed is returned if an operation is requested against a wallet
// whose transport has been torn down.
var ErrWalletClosed = errors.New("wallet closed")

// InvalidPubkeyError is returned when a wallet URL identifier segment does
// not parse as a base58-encoded 32-byte public key.
type InvalidPubkeyError struct {
	Input string // The offending token, quoted verbatim for diagnosability
}

// Error implements the standard error interface.
func (err *InvalidPubkeyError) Error() string {
	return fmt.Sprintf("invalid public key %q", err.Input)
}

// InvalidPathSegmentError is returned when a derivation path contains a
// component that is not a non-negative integer.
type InvalidPathSegmentError struct {
	Path    string // The whole path spec as supplied by the user
	Segment string // The component that failed to parse
}

// Error implements the standard error interface.
func (err *InvalidPathSegmentError) Error() string {
	return fmt.Sprintf("invalid derivation path %q: must be a set of numbers delimited with \"/\"", err.Path)
}

// PubkeyNotFoundError is returned when an exhaustive account discovery search
// completed without any device reporting the requested public key.
type PubkeyNotFoundError struct {
	PubKey PublicKey      // The public key that was searched for
	Path   DerivationPath // The path used as the search anchor
}

// Error implements the standard error interface.
func (err *PubkeyNotFoundError) Error() string {
	return fmt.Sprintf("public key %s not found on any connected device (searched around %s)", err.PubKey, err.Path)
}
