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

func TestPublicKeyRoundTrip(t *testing.T) {
	var key PublicKey
	for i := range key {
		key[i] = byte(255 - i)
	}
	parsed, err := ParsePublicKey(key.String())
	require.NoError(t, err)
	require.Equal(t, key, parsed)
	require.Equal(t, key[:], key.Bytes())
}

func TestParsePublicKeyErrors(t *testing.T) {
	for _, input := range []string{
		"",
		"elanor", // contains the non-base58 'l'
		"abc",    // decodes to fewer than 32 bytes
		base58.Encode(make([]byte, 31)), // one byte short
		base58.Encode(make([]byte, 33)), // one byte long
		base58.Encode(make([]byte, 64)), // signature sized
	} {
		_, err := ParsePublicKey(input)
		var pubkeyErr *InvalidPubkeyError
		require.ErrorAsf(t, err, &pubkeyErr, "input %q", input)
		require.Equal(t, input, pubkeyErr.Input)
	}
}

func TestPublicKeyText(t *testing.T) {
	var key PublicKey
	key[0] = 42

	text, err := key.MarshalText()
	require.NoError(t, err)

	var parsed PublicKey
	require.NoError(t, parsed.UnmarshalText(text))
	require.Equal(t, key, parsed)

	require.Error(t, parsed.UnmarshalText([]byte("elanor")))
}
