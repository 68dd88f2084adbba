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
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"

	"github.com/marinade-finance/ledger-utils/accounts"
)

// SignatureLength is the byte length of an Ed25519 signature.
const SignatureLength = ed25519.SignatureSize

// Sign signs the canonical encoding of the message with a file-based Ed25519
// private key and returns the raw 64-byte signature.
func Sign(msg *Message, key ed25519.PrivateKey) ([]byte, error) {
	encoded, err := msg.Encode()
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(key, encoded), nil
}

// SignMessage builds the off-chain envelope for a plaintext message with the
// key's own public key as the sole required signatory, and signs it.
func SignMessage(text string, domain ApplicationDomain, key ed25519.PrivateKey) ([]byte, error) {
	signer, err := SignerKey(key)
	if err != nil {
		return nil, err
	}
	msg, err := NewMessage(text, domain, signer)
	if err != nil {
		return nil, err
	}
	return Sign(msg, key)
}

// Verify checks an Ed25519 signature against the canonical encoding of the
// message. It is total: any mismatch whatsoever (wrong content, wrong domain,
// wrong key, tampered signature, malformed message) uniformly yields false,
// never an error, so callers cannot distinguish failure reasons and signature
// checks cannot be bypassed by error handling mistakes.
func Verify(msg *Message, signature []byte, key accounts.PublicKey) bool {
	if len(signature) != SignatureLength {
		return false
	}
	encoded, err := msg.Encode()
	if err != nil {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(key[:]), encoded, signature)
}

// VerifyMessage rebuilds the envelope a conforming signer would have produced
// for the plaintext, domain and signer key, and checks the signature against
// it.
func VerifyMessage(text string, domain ApplicationDomain, signature []byte, key accounts.PublicKey) bool {
	msg, err := NewMessage(text, domain, key)
	if err != nil {
		return false
	}
	return Verify(msg, signature, key)
}

// SignerKey extracts the public half of a private key as an account key.
func SignerKey(key ed25519.PrivateKey) (accounts.PublicKey, error) {
	if len(key) != ed25519.PrivateKeySize {
		return accounts.PublicKey{}, fmt.Errorf("invalid private key length %d", len(key))
	}
	var signer accounts.PublicKey
	copy(signer[:], key.Public().(ed25519.PublicKey))
	return signer, nil
}

// LoadKeypair reads an Ed25519 keypair from the Solana CLI JSON file format:
// a 64-element array of bytes holding the seed followed by the public key.
// The embedded public key is checked against the one the seed derives, so a
// corrupted file fails here instead of producing unverifiable signatures.
func LoadKeypair(path string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var elems []int
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("keypair file %s: %w", path, err)
	}
	if len(elems) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keypair file %s: expected %d bytes, got %d", path, ed25519.PrivateKeySize, len(elems))
	}
	key := make(ed25519.PrivateKey, ed25519.PrivateKeySize)
	for i, e := range elems {
		if e < 0 || e > 255 {
			return nil, fmt.Errorf("keypair file %s: byte %d out of range", path, i)
		}
		key[i] = byte(e)
	}
	derived := ed25519.NewKeyFromSeed(key.Seed())
	if !bytes.Equal(derived.Public().(ed25519.PublicKey), key[ed25519.SeedSize:]) {
		return nil, fmt.Errorf("keypair file %s: public key does not match seed", path)
	}
	return key, nil
}
