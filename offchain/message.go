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

// Package offchain implements the Solana off-chain message standard: a
// binary envelope giving plaintext messages domain separation from on-chain
// transactions, plus Ed25519 signing and verification over it.
package offchain

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/marinade-finance/ledger-utils/accounts"
)

// MessageVersion is the only envelope version this implementation speaks.
const MessageVersion = 0

const (
	// MaxLedgerMessageLen is the longest content signable by hardware
	// wallets, matching the maximum Solana transaction size. The boundary is
	// versioned with the standard; bump it together with MessageVersion.
	MaxLedgerMessageLen = 1232

	// MaxMessageLen is the longest content the extended format can carry.
	MaxMessageLen = 65535
)

// ApplicationDomainLength is the byte length of an application domain
// identifier, which scopes a message to one application so signatures cannot
// be replayed across applications.
const ApplicationDomainLength = 32

// signingDomain is the 16-byte marker opening every off-chain message. The
// leading 0xff byte cannot occur in a valid on-chain transaction, which is
// what keeps the two signing domains disjoint.
var signingDomain = []byte("\xffsolana offchain")

// ApplicationDomain identifies the application an off-chain message belongs to.
type ApplicationDomain [ApplicationDomainLength]byte

// MessageFormat tags how the content of an off-chain message is encoded.
// Exactly one format applies to any given message; selection is deterministic
// from the content's byte length and character class, never caller-chosen.
type MessageFormat uint8

const (
	// FormatRestrictedASCII marks content of printable ASCII (0x20-0x7e)
	// up to MaxLedgerMessageLen bytes, displayable on every signer device.
	FormatRestrictedASCII MessageFormat = iota

	// FormatLimitedUTF8 marks UTF-8 content up to MaxLedgerMessageLen bytes.
	FormatLimitedUTF8

	// FormatExtendedUTF8 marks UTF-8 content up to MaxMessageLen bytes,
	// beyond what hardware wallets can display or sign.
	FormatExtendedUTF8
)

// String implements the stringer interface.
func (f MessageFormat) String() string {
	switch f {
	case FormatRestrictedASCII:
		return "restricted-ascii"
	case FormatLimitedUTF8:
		return "limited-utf8"
	case FormatExtendedUTF8:
		return "extended-utf8"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(f))
	}
}

// ErrMessageTooLong is returned for content exceeding MaxMessageLen bytes.
var ErrMessageTooLong = errors.New("offchain: message too long")

// ErrNoSigners is returned when a message is constructed without any
// required signatory.
var ErrNoSigners = errors.New("offchain: at least one required signatory")

// Message is a version 0 off-chain message: plaintext content scoped to an
// application domain and bound to the ordered set of required signatories.
type Message struct {
	ApplicationDomain ApplicationDomain
	Format            MessageFormat
	Content           []byte
	Signers           []accounts.PublicKey
}

// NewMessage builds an off-chain message from plaintext, selecting the
// content format deterministically: printable ASCII within the hardware size
// limit first, then size-limited UTF-8, then extended UTF-8.
func NewMessage(text string, domain ApplicationDomain, signers ...accounts.PublicKey) (*Message, error) {
	if len(signers) == 0 {
		return nil, ErrNoSigners
	}
	content := []byte(text)
	format, err := selectFormat(content)
	if err != nil {
		return nil, err
	}
	return &Message{
		ApplicationDomain: domain,
		Format:            format,
		Content:           content,
		Signers:           signers,
	}, nil
}

// selectFormat picks the unique content format for a message body. The rules
// are evaluated in order and the first match wins.
func selectFormat(content []byte) (MessageFormat, error) {
	switch {
	case len(content) <= MaxLedgerMessageLen && isRestrictedASCII(content):
		return FormatRestrictedASCII, nil
	case len(content) <= MaxLedgerMessageLen:
		return FormatLimitedUTF8, nil
	case len(content) <= MaxMessageLen:
		return FormatExtendedUTF8, nil
	default:
		return 0, fmt.Errorf("%w: %d bytes exceeds %d", ErrMessageTooLong, len(content), MaxMessageLen)
	}
}

// isRestrictedASCII reports whether every byte lies in the printable ASCII
// range 0x20-0x7e inclusive.
func isRestrictedASCII(content []byte) bool {
	for _, b := range content {
		if b < 0x20 || b > 0x7e {
			return false
		}
	}
	return true
}

// Encode serializes the message into its canonical byte layout:
//
//	Description                        | Length
//	-----------------------------------+------------------
//	Signing domain marker              | 16 bytes
//	Header version (0)                 | 1 byte
//	Application domain                 | 32 bytes
//	Message format                     | 1 byte
//	Message length (little endian)     | 2 bytes
//	Message content                    | arbitrary
//	Required signatory public keys     | 32 bytes each
//
// These are the exact bytes that get signed; signatures are over the
// envelope, never over the raw plaintext.
func (m *Message) Encode() ([]byte, error) {
	limit := MaxMessageLen
	if m.Format != FormatExtendedUTF8 {
		limit = MaxLedgerMessageLen
	}
	if len(m.Content) > limit {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d for format %s", ErrMessageTooLong, len(m.Content), limit, m.Format)
	}
	if len(m.Signers) == 0 {
		return nil, ErrNoSigners
	}
	buf := make([]byte, 0, len(signingDomain)+1+ApplicationDomainLength+1+2+len(m.Content)+accounts.PublicKeyLength*len(m.Signers))
	buf = append(buf, signingDomain...)
	buf = append(buf, MessageVersion)
	buf = append(buf, m.ApplicationDomain[:]...)
	buf = append(buf, byte(m.Format))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(m.Content)))
	buf = append(buf, m.Content...)
	for _, signer := range m.Signers {
		buf = append(buf, signer[:]...)
	}
	return buf, nil
}
