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
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/karalabe/hid"
	"github.com/marinade-finance/ledger-utils/accounts"
	"github.com/sirupsen/logrus"
)

// refreshThrottling is the minimum time between device enumerations to avoid
// USB trashing when a caller fetches wallets in a loop.
const refreshThrottling = 500 * time.Millisecond

// deviceProfile describes one USB identity a vendor ships devices under.
type deviceProfile struct {
	vendorID   uint16   // USB vendor identifier used for device discovery
	productIDs []uint16 // USB product identifiers used for device discovery
	usageID    uint16   // USB usage page identifier used for macOS device discovery
	endpointID int      // USB endpoint identifier used for non-macOS device discovery
}

// ledgerProfiles enumerates the USB identities of Ledger devices. Device
// definitions taken from
// https://github.com/LedgerHQ/ledger-live/blob/develop/libs/ledgerjs/packages/devices/src/index.ts
var ledgerProfiles = []deviceProfile{{
	vendorID: 0x2c97,
	productIDs: []uint16{
		// Original product IDs
		0x0000, /* Ledger Blue */
		0x0001, /* Ledger Nano S */
		0x0004, /* Ledger Nano X */
		0x0005, /* Ledger Nano S Plus */
		0x0006, /* Ledger Nano FTS */

		0x0015, /* HID + U2F + WebUSB Ledger Blue */
		0x1015, /* HID + U2F + WebUSB Ledger Nano S */
		0x4015, /* HID + U2F + WebUSB Ledger Nano X */
		0x5015, /* HID + U2F + WebUSB Ledger Nano S Plus */
		0x6015, /* HID + U2F + WebUSB Ledger Nano FTS */

		0x0011, /* HID + WebUSB Ledger Blue */
		0x1011, /* HID + WebUSB Ledger Nano S */
		0x4011, /* HID + WebUSB Ledger Nano X */
		0x5011, /* HID + WebUSB Ledger Nano S Plus */
		0x6011, /* HID + WebUSB Ledger Nano FTS */
	},
	usageID: 0xffa0,
}}

// trezorProfiles enumerates the USB identities of Trezor devices, both the
// older HID models and the WebUSB ones with firmware > 1.8.0.
var trezorProfiles = []deviceProfile{
	{vendorID: 0x534c, productIDs: []uint16{0x0001 /* Trezor HID */}, usageID: 0xff00},
	{vendorID: 0x1209, productIDs: []uint16{0x53c1 /* Trezor WebUSB */}, usageID: 0xffff /* No usage id on webusb, don't match unset (0) */},
}

// Hub finds and tracks the USB hardware wallets of a single vendor family.
// It owns the session cache: a device transport is opened at most once per
// physical device path and reused for the lifetime of the hub, with CloseAll
// releasing everything best-effort. This replaces the process-global cache of
// older implementations with an explicitly owned object.
type Hub struct {
	kind       accounts.WalletKind        // Vendor family this hub discovers
	profiles   []deviceProfile            // USB identities used for device discovery
	makeDriver func(*logrus.Entry) driver // Factory method to construct a vendor specific driver

	refreshed time.Time // Time instance when the list of wallets was last refreshed
	wallets   []*wallet // List of USB wallet devices currently tracking

	// TODO(karalabe upstream): drop the pending counter if hotplug ever
	// lands on Windows and enumeration stops opening devices on Linux.
	commsPend int        // Number of operations blocking enumeration
	commsLock sync.Mutex // Lock protecting the pending counter and enumeration

	enumFails atomic.Uint32 // Number of times enumeration has failed

	stateLock sync.RWMutex // Protects the internals of the hub from racey access

	log *logrus.Entry // Contextual logger tagged with the vendor family
}

// NewHub creates a hardware wallet manager for the requested vendor family.
func NewHub(kind accounts.WalletKind, logger *logrus.Entry) (*Hub, error) {
	if !hid.Supported() {
		return nil, errors.New("unsupported platform")
	}
	hub := &Hub{
		kind: kind,
		log:  logger.WithField("wallet", string(kind)),
	}
	switch kind {
	case accounts.KindLedger:
		hub.profiles, hub.makeDriver = ledgerProfiles, newLedgerDriver
	case accounts.KindTrezor:
		hub.profiles, hub.makeDriver = trezorProfiles, newTrezorDriver
	default:
		return nil, fmt.Errorf("%w: unknown wallet kind %q", accounts.ErrInvalidWalletURL, string(kind))
	}
	hub.refreshWallets()
	return hub, nil
}

// Kind returns the vendor family this hub discovers.
func (hub *Hub) Kind() accounts.WalletKind {
	return hub.kind
}

// Wallets returns all the currently tracked USB devices that appear to be
// hardware wallets, ordered by their physical USB path so enumeration order
// is stable between calls.
func (hub *Hub) Wallets() []*wallet {
	// Make sure the list of wallets is up to date
	hub.refreshWallets()

	hub.stateLock.RLock()
	defer hub.stateLock.RUnlock()

	cpy := make([]*wallet, len(hub.wallets))
	copy(cpy, hub.wallets)
	return cpy
}

// refreshWallets scans the USB devices attached to the machine and updates
// the list of wallets based on the found devices. Already open sessions for
// devices that are still attached are kept as-is.
func (hub *Hub) refreshWallets() {
	// Don't scan the USB like crazy if the user fetches wallets in a loop
	hub.stateLock.RLock()
	elapsed := time.Since(hub.refreshed)
	hub.stateLock.RUnlock()

	if elapsed < refreshThrottling {
		return
	}
	// If USB enumeration is continually failing, don't keep trying indefinitely
	if hub.enumFails.Load() > 2 {
		return
	}
	if runtime.GOOS == "linux" {
		// hidapi on Linux opens the device during enumeration to retrieve some infos,
		// breaking the Ledger protocol if that is waiting for user confirmation. This
		// is a bug acknowledged at Ledger, but it won't be fixed on old devices so we
		// need to prevent concurrent comms ourselves.
		hub.commsLock.Lock()
		if hub.commsPend > 0 { // A confirmation is pending, don't refresh
			hub.commsLock.Unlock()
			return
		}
	}
	var devices []hid.DeviceInfo
	for _, profile := range hub.profiles {
		infos, err := hid.Enumerate(profile.vendorID, 0)
		if err != nil {
			failcount := hub.enumFails.Add(1)
			if runtime.GOOS == "linux" {
				// See rationale before the enumeration why this is needed and only on Linux.
				hub.commsLock.Unlock()
			}
			hub.log.WithFields(logrus.Fields{
				"vendor":    profile.vendorID,
				"failcount": failcount,
			}).WithError(err).Error("Failed to enumerate USB devices")
			return
		}
		for _, info := range infos {
			for _, id := range profile.productIDs {
				// Windows and Macos use UsageID matching, Linux uses Interface matching
				if info.ProductID == id && (info.UsagePage == profile.usageID || info.Interface == profile.endpointID) {
					devices = append(devices, info)
					break
				}
			}
		}
	}
	if runtime.GOOS == "linux" {
		// See rationale before the enumeration why this is needed and only on Linux.
		hub.commsLock.Unlock()
	}
	hub.enumFails.Store(0)

	sort.Slice(devices, func(i, j int) bool { return devices[i].Path < devices[j].Path })

	// Transform the current list of wallets into the new one, reusing the
	// sessions of devices that stayed attached
	hub.stateLock.Lock()

	existing := make(map[string]*wallet, len(hub.wallets))
	for _, w := range hub.wallets {
		existing[w.info.Path] = w
	}
	wallets := make([]*wallet, 0, len(devices))
	for _, device := range devices {
		if w, ok := existing[device.Path]; ok {
			wallets = append(wallets, w)
			delete(existing, device.Path)
			continue
		}
		logger := hub.log.WithField("path", device.Path)
		wallets = append(wallets, &wallet{hub: hub, driver: hub.makeDriver(logger), info: device, log: logger})
	}
	hub.refreshed = time.Now()
	hub.wallets = wallets
	hub.stateLock.Unlock()

	// Tear down sessions of devices that were unplugged, best-effort
	for _, w := range existing {
		if err := w.Close(); err != nil {
			w.log.WithError(err).Debug("Failed to close unplugged wallet")
		}
	}
}

// CloseAll releases every open device session. Close failures are swallowed:
// leaving a USB handle open is worse than an unchecked close error, so this
// is safe to run from an exit hook.
func (hub *Hub) CloseAll() {
	hub.stateLock.RLock()
	wallets := make([]*wallet, len(hub.wallets))
	copy(wallets, hub.wallets)
	hub.stateLock.RUnlock()

	for _, w := range wallets {
		if err := w.Close(); err != nil {
			w.log.WithError(err).Debug("Failed to close wallet")
		}
	}
}
