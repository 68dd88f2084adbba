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

// This file contains the implementation for interacting with the Ledger
// hardware wallets running the Solana app. The wire protocol spec can be
// found in the app-solana GitHub repo:
// https://github.com/LedgerHQ/app-solana/blob/master/doc/api.md

package usbwallet

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/marinade-finance/ledger-utils/accounts"
	"github.com/sirupsen/logrus"
)

// ledgerOpcode is an enumeration encoding the supported Ledger opcodes.
type ledgerOpcode byte

// ledgerParam1 is an enumeration encoding the supported Ledger parameters for
// specific opcodes. The same parameter values may be reused between opcodes.
type ledgerParam1 byte

// ledgerParam2 is an enumeration encoding the supported Ledger parameters for
// specific opcodes. The same parameter values may be reused between opcodes.
type ledgerParam2 byte

const (
	ledgerOpGetConfiguration    ledgerOpcode = 0x04 // Returns the Solana app configuration and version
	ledgerOpGetPubkey           ledgerOpcode = 0x05 // Returns the public key for a given BIP 32 path
	ledgerOpSignMessage         ledgerOpcode = 0x06 // Signs a serialized transaction message after user validation
	ledgerOpSignOffchainMessage ledgerOpcode = 0x07 // Signs an off-chain message envelope after user validation

	ledgerP1NonConfirm ledgerParam1 = 0x00 // Return the result directly, without on-device confirmation
	ledgerP1Confirm    ledgerParam1 = 0x01 // Display the result and confirm before returning

	ledgerP2None   ledgerParam2 = 0x00 // Single APDU payload
	ledgerP2Extend ledgerParam2 = 0x01 // Payload extends a previous APDU
	ledgerP2More   ledgerParam2 = 0x02 // More APDUs follow this one

	// ledgerAPDUDataLimit is the maximum data length of a single APDU;
	// larger payloads are chained with the extend/more parameters.
	ledgerAPDUDataLimit = 255
)

// errLedgerReplyInvalidHeader is the error message returned by a Ledger data exchange
// if the device replies with a mismatching header. This usually means the device
// is in browser mode.
var errLedgerReplyInvalidHeader = errors.New("ledger: invalid reply header")

// errLedgerInvalidVersionReply is the error message returned by a Ledger version retrieval
// when a response does arrive, but it does not contain the expected data.
var errLedgerInvalidVersionReply = errors.New("ledger: invalid version reply")

// ledgerDriver implements the communication with a Ledger hardware wallet
// running the Solana app.
type ledgerDriver struct {
	device  io.ReadWriter // USB device connection to communicate through
	version [3]byte       // Current version of the Solana app (zero if app is offline)
	browser bool          // Flag whether the Ledger is in browser mode (reply channel mismatch)
	failure error         // Any failure that would make the device unusable
	log     *logrus.Entry // Contextual logger to tag the ledger with its id
}

// newLedgerDriver creates a new instance of a Ledger USB protocol driver.
func newLedgerDriver(logger *logrus.Entry) driver {
	return &ledgerDriver{
		log: logger,
	}
}

// Status implements usbwallet.driver, returning various states the Ledger can
// currently be in.
func (w *ledgerDriver) Status() (string, error) {
	if w.failure != nil {
		return fmt.Sprintf("Failed: %v", w.failure), w.failure
	}
	if w.browser {
		return "Solana app in browser mode", w.failure
	}
	if w.offline() {
		return "Solana app offline", w.failure
	}
	return fmt.Sprintf("Solana app v%d.%d.%d online", w.version[0], w.version[1], w.version[2]), w.failure
}

// offline returns whether the wallet and the Solana app is offline or not.
func (w *ledgerDriver) offline() bool {
	return w.version == [3]byte{0, 0, 0}
}

// Open implements usbwallet.driver, attempting to initialize the connection
// to the Ledger hardware wallet.
func (w *ledgerDriver) Open(device io.ReadWriter) error {
	w.device, w.failure = device, nil

	_, err := w.ledgerDerive(accounts.DerivationPath{})
	if err != nil {
		// Solana app is not running or in browser mode, nothing more to do, return
		if err == errLedgerReplyInvalidHeader {
			w.browser = true
		}
		return nil
	}
	// Try to resolve the Solana app's version
	if w.version, err = w.ledgerVersion(); err != nil {
		w.version = [3]byte{1, 0, 0} // Assume worst case, app predates the config opcode
	}
	return nil
}

// Close implements usbwallet.driver, cleaning up and metadata maintained
// within the Ledger driver.
func (w *ledgerDriver) Close() error {
	w.browser, w.version = false, [3]byte{}
	return nil
}

// Derive implements usbwallet.driver, sending a derivation request to the
// Ledger and returning the Solana public key located on that derivation path.
func (w *ledgerDriver) Derive(path accounts.DerivationPath) (accounts.PublicKey, error) {
	return w.ledgerDerive(path)
}

// SignTransaction implements usbwallet.driver, sending the serialized
// transaction message to the Ledger and waiting for the user to confirm or
// deny the signature.
func (w *ledgerDriver) SignTransaction(path accounts.DerivationPath, message []byte) ([]byte, error) {
	// If the Solana app doesn't run, abort
	if w.offline() {
		return nil, accounts.ErrWalletClosed
	}
	return w.ledgerSign(ledgerOpSignMessage, path, message)
}

// SignOffchainMessage implements usbwallet.driver, sending the canonical
// off-chain message envelope to the Ledger and waiting for the user to
// confirm or deny the signature.
func (w *ledgerDriver) SignOffchainMessage(path accounts.DerivationPath, message []byte) ([]byte, error) {
	if w.offline() {
		return nil, accounts.ErrWalletClosed
	}
	return w.ledgerSign(ledgerOpSignOffchainMessage, path, message)
}

// ledgerVersion retrieves the current version of the Solana wallet app running
// on the Ledger wallet.
//
// The version retrieval protocol is defined as follows:
//
//	CLA | INS | P1 | P2 | Lc | Le
//	----+-----+----+----+----+---
//	 E0 | 04  | 00 | 00 | 00 | 04
//
// With no input data, and the output data being:
//
//	Description                                        | Length
//	---------------------------------------------------+--------
//	Flags 01: blind signing enabled by user            | 1 byte
//	Application major version                          | 1 byte
//	Application minor version                          | 1 byte
//	Application patch version                          | 1 byte
func (w *ledgerDriver) ledgerVersion() ([3]byte, error) {
	// Send the request and wait for the response
	reply, err := w.ledgerExchange(ledgerOpGetConfiguration, 0, 0, nil)
	if err != nil {
		return [3]byte{}, err
	}
	if len(reply) < 4 {
		return [3]byte{}, errLedgerInvalidVersionReply
	}
	// Cache the version for future reference
	var version [3]byte
	copy(version[:], reply[len(reply)-3:])
	return version, nil
}

// ledgerDerive retrieves the Solana public key from a Ledger wallet at the
// specified derivation path.
//
// The address derivation protocol is defined as follows:
//
//	CLA | INS | P1 | P2 | Lc  | Le
//	----+-----+----+----+-----+---
//	 E0 | 05  | 00 return key
//	            01 display key and confirm before returning
//	               | 00 | var | 00
//
// Where the input data is:
//
//	Description                                      | Length
//	-------------------------------------------------+--------
//	Number of BIP 32 derivations to perform (max 10) | 1 byte
//	First derivation index (big endian)              | 4 bytes
//	...                                              | 4 bytes
//	Last derivation index (big endian)               | 4 bytes
//
// And the output data is:
//
//	Description        | Length
//	-------------------+--------
//	Ed25519 public key | 32 bytes
func (w *ledgerDriver) ledgerDerive(derivationPath accounts.DerivationPath) (accounts.PublicKey, error) {
	// Send the request and wait for the response
	reply, err := w.ledgerExchange(ledgerOpGetPubkey, ledgerP1NonConfirm, ledgerP2None, ledgerPath(derivationPath))
	if err != nil {
		return accounts.PublicKey{}, err
	}
	if len(reply) != accounts.PublicKeyLength {
		return accounts.PublicKey{}, errors.New("ledger: reply lacks public key entry")
	}
	var key accounts.PublicKey
	copy(key[:], reply)
	return key, nil
}

// ledgerSign sends a payload to the Ledger wallet for signing, and waits for
// the user to confirm or deny the signature.
//
// The signing protocol is defined as follows:
//
//	CLA | INS | P1 | P2 | Lc  | Le
//	----+-----+----+----+-----+---
//	 E0 | 06/07 | 01 | 02: more data follows
//	                   01: data extends a previous APDU
//	                      | var | var
//
// Where the input for the first data block is:
//
//	Description                                      | Length
//	-------------------------------------------------+----------
//	Number of signers (always 1)                     | 1 byte
//	Number of BIP 32 derivations to perform (max 10) | 1 byte
//	First derivation index (big endian)              | 4 bytes
//	...                                              | 4 bytes
//	Last derivation index (big endian)               | 4 bytes
//	Message chunk                                    | arbitrary
//
// And the input for subsequent data blocks is the next message chunk. The
// output data is:
//
//	Description       | Length
//	------------------+---------
//	Ed25519 signature | 64 bytes
func (w *ledgerDriver) ledgerSign(opcode ledgerOpcode, derivationPath accounts.DerivationPath, message []byte) ([]byte, error) {
	// Flatten the derivation path into the Ledger request
	payload := append([]byte{1}, ledgerPath(derivationPath)...)
	payload = append(payload, message...)

	// Stream the payload over in APDU sized chunks
	var (
		reply []byte
		err   error
		first = true
	)
	for len(payload) > 0 {
		chunk := ledgerAPDUDataLimit
		if chunk > len(payload) {
			chunk = len(payload)
		}
		var p2 ledgerParam2
		if !first {
			p2 |= ledgerP2Extend
		}
		if len(payload) > chunk {
			p2 |= ledgerP2More
		}
		reply, err = w.ledgerExchange(opcode, ledgerP1Confirm, p2, payload[:chunk])
		if err != nil {
			return nil, err
		}
		payload = payload[chunk:]
		first = false
	}
	// Extract the signature and do a sanity validation
	if len(reply) != 64 {
		return nil, errors.New("ledger: reply lacks signature")
	}
	return reply, nil
}

// ledgerPath flattens a derivation path into its device representation: a
// component count followed by big endian indices. The Solana app derives
// hardened-only keys, so the fixed 44'/501' prefix is prepended and every
// suffix component gets the hardened flag here.
func ledgerPath(path accounts.DerivationPath) []byte {
	flat := make([]byte, 1+4*(2+len(path)))
	flat[0] = byte(2 + len(path))
	binary.BigEndian.PutUint32(flat[1:], accounts.HardenedOffset|accounts.PurposeBIP44)
	binary.BigEndian.PutUint32(flat[5:], accounts.HardenedOffset|accounts.CoinTypeSolana)
	for i, component := range path {
		binary.BigEndian.PutUint32(flat[9+4*i:], accounts.HardenedOffset|component)
	}
	return flat
}

// ledgerExchange performs a data exchange with the Ledger wallet, sending it
// a message and retrieving the response.
//
// The common transport header is defined as follows:
//
//	Description                           | Length
//	--------------------------------------+----------
//	Communication channel ID (big endian) | 2 bytes
//	Command tag                           | 1 byte
//	Packet sequence index (big endian)    | 2 bytes
//	Payload                               | arbitrary
//
// The Communication channel ID allows commands multiplexing over the same
// physical link. It is not used for the time being, and should be set to 0101
// to avoid compatibility issues with implementations ignoring a leading 00 byte.
//
// The Command tag describes the message content. Use TAG_APDU (0x05) for standard
// APDU payloads, or TAG_PING (0x02) for a simple link test.
//
// The Packet sequence index describes the current sequence for fragmented payloads.
// The first fragment index is 0x00.
//
// APDU Command payloads are encoded as follows:
//
//	Description              | Length
//	-----------------------------------
//	APDU length (big endian) | 2 bytes
//	APDU CLA                 | 1 byte
//	APDU INS                 | 1 byte
//	APDU P1                  | 1 byte
//	APDU P2                  | 1 byte
//	APDU length              | 1 byte
//	Optional APDU data       | arbitrary
func (w *ledgerDriver) ledgerExchange(opcode ledgerOpcode, p1 ledgerParam1, p2 ledgerParam2, data []byte) ([]byte, error) {
	// Construct the message payload, possibly split into multiple chunks
	apdu := make([]byte, 2, 7+len(data))

	binary.BigEndian.PutUint16(apdu, uint16(5+len(data)))
	apdu = append(apdu, []byte{0xe0, byte(opcode), byte(p1), byte(p2), byte(len(data))}...)
	apdu = append(apdu, data...)

	// Stream all the chunks to the device
	header := []byte{0x01, 0x01, 0x05, 0x00, 0x00} // Channel ID and command tag appended
	chunk := make([]byte, 64)
	space := len(chunk) - len(header)

	for i := 0; len(apdu) > 0; i++ {
		// Construct the new message to stream
		chunk = append(chunk[:0], header...)
		binary.BigEndian.PutUint16(chunk[3:], uint16(i))

		if len(apdu) > space {
			chunk = append(chunk, apdu[:space]...)
			apdu = apdu[space:]
		} else {
			chunk = append(chunk, apdu...)
			apdu = nil
		}
		// Send over to the device
		w.log.WithField("chunk", hex.EncodeToString(chunk)).Trace("Data chunk sent to the Ledger")
		if _, err := w.device.Write(chunk); err != nil {
			return nil, err
		}
	}
	// Stream the reply back from the wallet in 64 byte chunks
	var reply []byte
	chunk = chunk[:64] // Yeah, we surely have enough space
	for {
		// Read the next chunk from the Ledger wallet
		if _, err := io.ReadFull(w.device, chunk); err != nil {
			return nil, err
		}
		w.log.WithField("chunk", hex.EncodeToString(chunk)).Trace("Data chunk received from the Ledger")

		// Make sure the transport header matches
		if chunk[0] != 0x01 || chunk[1] != 0x01 || chunk[2] != 0x05 {
			return nil, errLedgerReplyInvalidHeader
		}
		// If it's the first chunk, retrieve the total message length
		var payload []byte

		if chunk[3] == 0x00 && chunk[4] == 0x00 {
			reply = make([]byte, 0, int(binary.BigEndian.Uint16(chunk[5:7])))
			payload = chunk[7:]
		} else {
			payload = chunk[5:]
		}
		// Append to the reply and stop when filled up
		if left := cap(reply) - len(reply); left > len(payload) {
			reply = append(reply, payload...)
		} else {
			reply = append(reply, payload[:left]...)
			break
		}
	}
	return reply[:len(reply)-2], nil
}
