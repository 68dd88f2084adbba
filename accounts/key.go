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
	"github.com/btcsuite/btcd/btcutil/base58"
)

// PublicKeyLength is the byte length of an Ed25519 public key.
const PublicKeyLength = 32

// PublicKey is a Solana account address: a raw Ed25519 public key, rendered
// as base58 text everywhere it faces the user.
type PublicKey [PublicKeyLength]byte

// ParsePublicKey decodes a base58 string into a public key, rejecting
// anything that does not decode to exactly 32 bytes.
func ParsePublicKey(input string) (PublicKey, error) {
	raw := base58.Decode(input)
	if len(raw) != PublicKeyLength {
		return PublicKey{}, &InvalidPubkeyError{Input: input}
	}
	var key PublicKey
	copy(key[:], raw)
	return key, nil
}

// Bytes returns the raw key as a freshly allocated slice.
func (key PublicKey) Bytes() []byte {
	out := make([]byte, PublicKeyLength)
	copy(out, key[:])
	return out
}

// String implements the stringer interface, returning the base58 form.
func (key PublicKey) String() string {
	return base58.Encode(key[:])
}

// MarshalText implements encoding.TextMarshaler.
func (key PublicKey) MarshalText() ([]byte, error) {
	return []byte(key.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (key *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePublicKey(string(text))
	if err != nil {
		return err
	}
	*key = parsed
	return nil
}
