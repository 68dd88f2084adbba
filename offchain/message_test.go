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

package offchain

import (
	"strings"
	"testing"

	"github.com/marinade-finance/ledger-utils/accounts"
	"github.com/stretchr/testify/require"
)

func testDomain() ApplicationDomain {
	var domain ApplicationDomain
	for i := range domain {
		domain[i] = byte(i)
	}
	return domain
}

func testSigner() accounts.PublicKey {
	var signer accounts.PublicKey
	for i := range signer {
		signer[i] = byte(i + 1)
	}
	return signer
}

func TestMessageFormatSelection(t *testing.T) {
	tests := []struct {
		text   string
		format MessageFormat
	}{
		// Printable ASCII within the hardware limit
		{"hello solana", FormatRestrictedASCII},
		{" ~", FormatRestrictedASCII}, // Range boundaries 0x20 and 0x7e
		{strings.Repeat("a", MaxLedgerMessageLen), FormatRestrictedASCII},

		// Anything outside printable ASCII demotes to UTF-8
		{"héllo", FormatLimitedUTF8},
		{"hello\n", FormatLimitedUTF8},  // 0x0a below the printable range
		{"hello\x7f", FormatLimitedUTF8}, // DEL above it
		{strings.Repeat("é", MaxLedgerMessageLen/2), FormatLimitedUTF8},

		// Beyond the hardware limit only the extended format remains, even
		// for pure ASCII content
		{strings.Repeat("a", MaxLedgerMessageLen+1), FormatExtendedUTF8},
		{strings.Repeat("é", MaxMessageLen/2), FormatExtendedUTF8},
	}
	for _, tt := range tests {
		msg, err := NewMessage(tt.text, testDomain(), testSigner())
		require.NoError(t, err)
		require.Equalf(t, tt.format, msg.Format, "text %.32q (len %d)", tt.text, len(tt.text))
	}
}

func TestMessageTooLong(t *testing.T) {
	_, err := NewMessage(strings.Repeat("a", MaxMessageLen+1), testDomain(), testSigner())
	require.ErrorIs(t, err, ErrMessageTooLong)
}

func TestMessageNoSigners(t *testing.T) {
	_, err := NewMessage("hello", testDomain())
	require.ErrorIs(t, err, ErrNoSigners)
}

func TestMessageEncodeLayout(t *testing.T) {
	domain, signer := testDomain(), testSigner()

	msg, err := NewMessage("test", domain, signer)
	require.NoError(t, err)

	encoded, err := msg.Encode()
	require.NoError(t, err)

	// The canonical layout, byte for byte
	var want []byte
	want = append(want, 0xff)
	want = append(want, []byte("solana offchain")...)
	want = append(want, 0)           // Version
	want = append(want, domain[:]...)
	want = append(want, 0)           // FormatRestrictedASCII
	want = append(want, 4, 0)        // Content length, little endian
	want = append(want, []byte("test")...)
	want = append(want, signer[:]...)

	require.Equal(t, want, encoded)
	require.Len(t, encoded, 16+1+32+1+2+4+32)
}

func TestMessageEncodeMultipleSigners(t *testing.T) {
	first, second := testSigner(), accounts.PublicKey{0xab}

	msg, err := NewMessage("multi", testDomain(), first, second)
	require.NoError(t, err)

	encoded, err := msg.Encode()
	require.NoError(t, err)

	// Signatories appear in order at the tail of the envelope
	require.Equal(t, first[:], encoded[len(encoded)-64:len(encoded)-32])
	require.Equal(t, second[:], encoded[len(encoded)-32:])
}

func TestMessageEncodeValidation(t *testing.T) {
	// A hand-built message violating its own format limit must not encode
	msg := &Message{
		Format:  FormatRestrictedASCII,
		Content: []byte(strings.Repeat("a", MaxLedgerMessageLen+1)),
		Signers: []accounts.PublicKey{testSigner()},
	}
	_, err := msg.Encode()
	require.ErrorIs(t, err, ErrMessageTooLong)

	msg = &Message{Format: FormatRestrictedASCII, Content: []byte("ok")}
	_, err = msg.Encode()
	require.ErrorIs(t, err, ErrNoSigners)
}
