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
	"runtime"
	"sync"

	"github.com/karalabe/hid"
	"github.com/marinade-finance/ledger-utils/accounts"
	"github.com/sirupsen/logrus"
)

// wallet represents the common functionality shared by all USB hardware
// wallets to prevent reimplementing the same complex maintenance mechanisms
// for different vendors.
type wallet struct {
	hub    *Hub   // USB hub the wallet was discovered by
	driver driver // Hardware implementation of the low level device operations

	info   hid.DeviceInfo // Known USB device infos about the wallet
	device hid.Device     // USB device advertising itself as a hardware wallet

	// Locking a hardware wallet is a bit special. Since hardware devices are lower
	// performing, any communication with them might take a non negligible amount of
	// time. Worse still, waiting for user confirmation can take arbitrarily long,
	// but exclusive communication must be upheld during. Locking the entire wallet
	// in the mean time however would stall any parts of the system that don't want
	// to communicate, just read some state.
	//
	// As such, a hardware wallet needs two locks to function correctly. A state
	// lock can be used to protect the wallet's software-side internal state, which
	// must not be held exclusively during hardware communication. A communication
	// lock can be used to achieve exclusive access to the device itself.
	//
	// Since we have two locks, it's important to know how to properly use them:
	//   - Communication requires the `device` to not change, so obtaining the
	//     commsLock should be done after having a stateLock.
	//   - Communication must not disable read access to the wallet state, so it
	//     must only ever hold a *read* lock to stateLock.
	commsLock chan struct{} // Mutex (buf=1) for the USB comms without keeping the state locked
	stateLock sync.RWMutex  // Protects read and write access to the wallet struct fields

	log *logrus.Entry // Contextual logger to tag the wallet with its path
}

// Path returns the physical USB path uniquely identifying the device.
func (w *wallet) Path() string {
	return w.info.Path // Immutable, no need for a lock
}

// Status returns a custom status message from the underlying vendor-specific
// hardware wallet implementation.
func (w *wallet) Status() (string, error) {
	w.stateLock.RLock() // No device communication, state lock is enough
	defer w.stateLock.RUnlock()

	status, failure := w.driver.Status()
	if w.device == nil {
		return "Closed", failure
	}
	return status, failure
}

// Open establishes the USB connection to the hardware wallet. Opening a
// transport is expensive, so an already open session is reused rather than
// reopened; calling Open on an open wallet is a no-op.
func (w *wallet) Open() error {
	w.stateLock.Lock() // State lock is enough since there's no connection yet at this point
	defer w.stateLock.Unlock()

	if w.device != nil {
		return nil
	}
	device, err := w.info.Open()
	if err != nil {
		return err
	}
	w.device = device
	w.commsLock = make(chan struct{}, 1)
	w.commsLock <- struct{}{} // Enable lock

	// Delegate device initialization to the underlying driver
	if err := w.driver.Open(w.device); err != nil {
		w.close()
		return err
	}
	return nil
}

// Close terminates the connection to the hardware wallet.
func (w *wallet) Close() error {
	w.stateLock.Lock()
	defer w.stateLock.Unlock()

	return w.close()
}

// close is the internal wallet closer that terminates the USB connection.
//
// The method assumes the state lock is held!
func (w *wallet) close() error {
	// Allow duplicate closes, especially for health-check failures
	if w.device == nil {
		return nil
	}
	// Close the device, clear everything, then return
	err := w.device.Close()
	w.device = nil

	if derr := w.driver.Close(); err == nil {
		err = derr
	}
	return err
}

// PublicKey asks the device which public key it derives at the given path.
func (w *wallet) PublicKey(path accounts.DerivationPath) (accounts.PublicKey, error) {
	var key accounts.PublicKey
	err := w.exchange(func() error {
		var err error
		key, err = w.driver.Derive(path)
		return err
	})
	return key, err
}

// SignTransaction sends an already serialized transaction message to the
// device for signing, blocking until the user confirms or denies it.
func (w *wallet) SignTransaction(path accounts.DerivationPath, message []byte) ([]byte, error) {
	var signature []byte
	err := w.exchange(func() error {
		var err error
		signature, err = w.driver.SignTransaction(path, message)
		return err
	})
	return signature, err
}

// SignOffchainMessage sends a canonically encoded off-chain message to the
// device for signing, blocking until the user confirms or denies it.
func (w *wallet) SignOffchainMessage(path accounts.DerivationPath, message []byte) ([]byte, error) {
	var signature []byte
	err := w.exchange(func() error {
		var err error
		signature, err = w.driver.SignOffchainMessage(path, message)
		return err
	})
	return signature, err
}

// exchange runs one device round-trip under the wallet's communication lock.
// USB HID transports do not support concurrent outstanding requests per
// connection, so every round-trip completes before the next begins.
func (w *wallet) exchange(op func() error) error {
	if err := w.Open(); err != nil {
		return err
	}
	w.stateLock.RLock() // Comms have own mutex, this is for the state fields
	defer w.stateLock.RUnlock()

	if w.device == nil {
		return accounts.ErrWalletClosed
	}
	<-w.commsLock // Don't lock state while talking to the device

	// Mark a communication pending to block device enumeration on Linux
	// while a user confirmation may be in flight
	if runtime.GOOS == "linux" {
		w.hub.commsLock.Lock()
		w.hub.commsPend++
		w.hub.commsLock.Unlock()
	}
	err := op()

	if runtime.GOOS == "linux" {
		w.hub.commsLock.Lock()
		w.hub.commsPend--
		w.hub.commsLock.Unlock()
	}
	w.commsLock <- struct{}{}

	return err
}

// deviceSession is the slice of wallet the resolver binds against; it exists
// so resolution can be exercised without physical hardware.
type deviceSession interface {
	Open() error
	Path() string
	Status() (string, error)
	PublicKey(path accounts.DerivationPath) (accounts.PublicKey, error)
	SignTransaction(path accounts.DerivationPath, message []byte) ([]byte, error)
	SignOffchainMessage(path accounts.DerivationPath, message []byte) ([]byte, error)
}

// RemoteWallet is a resolved signing session: an open device transport bound
// to the concrete derivation path whose public key the caller asked for.
type RemoteWallet struct {
	session deviceSession
	path    accounts.DerivationPath
	pubkey  accounts.PublicKey
}

// PublicKey returns the public key the device reports at the bound path.
func (rw *RemoteWallet) PublicKey() accounts.PublicKey {
	return rw.pubkey
}

// Path returns the derivation path the session is bound to.
func (rw *RemoteWallet) Path() accounts.DerivationPath {
	return rw.path
}

// Status reports the device state, e.g. whether the Solana app is open.
func (rw *RemoteWallet) Status() (string, error) {
	return rw.session.Status()
}

// SignTransaction signs one serialized transaction message with the bound key.
func (rw *RemoteWallet) SignTransaction(message []byte) ([]byte, error) {
	return rw.session.SignTransaction(rw.path, message)
}

// SignAllTransactions signs a batch of serialized transaction messages in
// order. Each message is a separate device round-trip and a separate user
// confirmation; the first denial or failure aborts the rest.
func (rw *RemoteWallet) SignAllTransactions(messages [][]byte) ([][]byte, error) {
	signatures := make([][]byte, 0, len(messages))
	for _, message := range messages {
		signature, err := rw.session.SignTransaction(rw.path, message)
		if err != nil {
			return nil, err
		}
		signatures = append(signatures, signature)
	}
	return signatures, nil
}

// SignOffchainMessage signs a canonically encoded off-chain message with the
// bound key.
func (rw *RemoteWallet) SignOffchainMessage(encoded []byte) ([]byte, error) {
	return rw.session.SignOffchainMessage(rw.path, encoded)
}
