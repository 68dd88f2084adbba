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
	"errors"
	"io"

	"github.com/marinade-finance/ledger-utils/accounts"
	"github.com/sirupsen/logrus"
)

// ErrVendorUnsupported is returned when a recognized hardware vendor cannot
// perform Solana operations yet.
var ErrVendorUnsupported = errors.New("trezor: solana signing not supported")

// trezorDriver recognizes Trezor devices but refuses to operate them: the
// Solana remote signing flow is Ledger-only today. Keeping the vendor behind
// the shared driver interface keeps URL parsing and enumeration uniform and
// makes the eventual real driver a one-file change.
//
// TODO: implement the protobuf wire protocol once trezor-firmware stabilizes
// its Solana message surface.
type trezorDriver struct {
	log *logrus.Entry // Contextual logger to tag the trezor with its id
}

// newTrezorDriver creates a new instance of a Trezor USB protocol driver.
func newTrezorDriver(logger *logrus.Entry) driver {
	return &trezorDriver{
		log: logger,
	}
}

// Status implements usbwallet.driver, returning various states the Trezor can
// currently be in.
func (w *trezorDriver) Status() (string, error) {
	return "Solana signing not supported", ErrVendorUnsupported
}

// Open implements usbwallet.driver, refusing the session since no Solana
// operation can follow.
func (w *trezorDriver) Open(device io.ReadWriter) error {
	return ErrVendorUnsupported
}

// Close implements usbwallet.driver.
func (w *trezorDriver) Close() error {
	return nil
}

// Derive implements usbwallet.driver.
func (w *trezorDriver) Derive(path accounts.DerivationPath) (accounts.PublicKey, error) {
	return accounts.PublicKey{}, ErrVendorUnsupported
}

// SignTransaction implements usbwallet.driver.
func (w *trezorDriver) SignTransaction(path accounts.DerivationPath, message []byte) ([]byte, error) {
	return nil, ErrVendorUnsupported
}

// SignOffchainMessage implements usbwallet.driver.
func (w *trezorDriver) SignOffchainMessage(path accounts.DerivationPath, message []byte) ([]byte, error) {
	return nil, ErrVendorUnsupported
}
