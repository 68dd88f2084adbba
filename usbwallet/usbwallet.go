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

// Package usbwallet implements support for USB hardware wallets signing
// Solana payloads.
package usbwallet

import (
	"io"

	"github.com/marinade-finance/ledger-utils/accounts"
)

// driver defines the vendor specific functionality hardware wallets instances
// must implement to allow using them with the wallet lifecycle management.
type driver interface {
	// Status returns a textual status to aid the user in the current state of the
	// wallet. It also returns an error indicating any failure the wallet might have
	// encountered.
	Status() (string, error)

	// Open initializes access to a wallet instance.
	Open(device io.ReadWriter) error

	// Close releases any resources held by an open wallet instance.
	Close() error

	// Derive sends a derivation request to the USB device and returns the
	// public key located on that path.
	Derive(path accounts.DerivationPath) (accounts.PublicKey, error)

	// SignTransaction sends an already serialized transaction message to the
	// USB device and waits for the user to confirm or deny the signature.
	SignTransaction(path accounts.DerivationPath, message []byte) ([]byte, error)

	// SignOffchainMessage sends a canonically encoded off-chain message to
	// the USB device and waits for the user to confirm or deny the signature.
	SignOffchainMessage(path accounts.DerivationPath, message []byte) ([]byte, error)
}
